package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"evalpanel/internal/agents"
	"evalpanel/internal/api"
	"evalpanel/internal/config"
	"evalpanel/internal/jobs"
	"evalpanel/internal/logging"
	"evalpanel/internal/notifications"
	"evalpanel/internal/services"
	"evalpanel/internal/store"
	"evalpanel/internal/supervisor"
	"evalpanel/internal/teams"
)

type rootFlags struct {
	config string
	tenant string
	user   string
	role   string
	json   bool
}

type commandContext struct {
	flags *rootFlags

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(flags *rootFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) jsonOutput() bool {
	return c.flags.json
}

// caller builds the acting identity from the persistent flags.
func (c *commandContext) caller() (services.Caller, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return services.Caller{}, err
	}
	tenant := strings.TrimSpace(c.flags.tenant)
	if tenant == "" {
		tenant = cfg.API.DefaultTenant
	}
	user := strings.TrimSpace(c.flags.user)
	if user == "" {
		user = os.Getenv("USER")
	}
	role := strings.ToLower(strings.TrimSpace(c.flags.role))
	switch role {
	case "":
		role = services.RoleManager
	case services.RoleAdmin, services.RoleManager:
	case services.RoleRestricted:
		if user == "" {
			return services.Caller{}, fmt.Errorf("--user is required for the restricted role")
		}
	default:
		return services.Caller{}, fmt.Errorf("unknown role %q (want admin, manager or restricted)", c.flags.role)
	}
	caller := services.Caller{TenantID: tenant, UserID: user, Role: role}
	return caller, caller.Validate()
}

// app bundles the services a command needs against the local database.
type app struct {
	cfg        *config.Config
	db         *store.DB
	registry   *agents.Registry
	teams      *teams.Store
	jobs       *jobs.Service
	supervisor *supervisor.Supervisor
	api        *api.JobService
}

func (c *commandContext) withApp(fn func(*app) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	db, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	logger := logging.NewNop()
	registry := agents.NewRegistry(db)
	teamStore := teams.NewStore(db, registry)
	jobSvc := jobs.NewService(db, teamStore, cfg, logger)
	sup := supervisor.New(cfg, jobSvc, notifications.NewService(cfg), logger)
	return fn(&app{
		cfg:        cfg,
		db:         db,
		registry:   registry,
		teams:      teamStore,
		jobs:       jobSvc,
		supervisor: sup,
		api:        api.NewJobService(jobSvc, sup),
	})
}

// runWithApp adapts withApp to a cobra RunE.
func (c *commandContext) runWithApp(fn func(context.Context, *cobra.Command, *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		return c.withApp(func(a *app) error {
			return fn(cmd.Context(), cmd, a)
		})
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

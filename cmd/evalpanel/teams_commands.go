package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"evalpanel/internal/teams"
)

func newTeamsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teams",
		Short: "Compose evaluation panels",
	}
	cmd.AddCommand(newTeamsCreateCommand(ctx))
	cmd.AddCommand(newTeamsListCommand(ctx))
	cmd.AddCommand(newTeamsShowCommand(ctx))
	cmd.AddCommand(newTeamsAddCommand(ctx))
	cmd.AddCommand(newTeamsRemoveCommand(ctx))
	cmd.AddCommand(newTeamsWeightsCommand(ctx))
	cmd.AddCommand(newTeamsDistributeCommand(ctx))
	cmd.AddCommand(newTeamsReorderCommand(ctx))
	cmd.AddCommand(newTeamsValidateCommand(ctx))
	cmd.AddCommand(newTeamsDefaultCommand(ctx))
	return cmd
}

// loadTeam resolves a team id inside the caller's tenant.
func (c *commandContext) loadTeam(cmdCtx context.Context, a *app, id string) (*teams.Team, error) {
	caller, err := c.caller()
	if err != nil {
		return nil, err
	}
	return a.teams.GetForTenant(cmdCtx, caller.TenantID, strings.TrimSpace(id))
}

func memberByKey(team *teams.Team, key string) (teams.Member, error) {
	key = strings.TrimSpace(key)
	for _, member := range team.Members {
		if strings.EqualFold(member.AgentKey, key) {
			return member, nil
		}
	}
	return teams.Member{}, fmt.Errorf("agent %s is not on team %s", key, team.Name)
}

func newTeamsCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		description string
		eventType   string
		makeDefault bool
		agentKeys   []string
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a panel with the active coordinator and the given modules",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVar(&description, "description", "", "Team description")
	cmd.Flags().StringVar(&eventType, "event-type", "", "Meeting type reported to the agents")
	cmd.Flags().BoolVar(&makeDefault, "default", false, "Make this the tenant default team")
	cmd.Flags().StringSliceVarP(&agentKeys, "agent", "a", nil, "Module agent key (repeatable)")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		caller, err := ctx.caller()
		if err != nil {
			return err
		}
		return ctx.withApp(func(a *app) error {
			ids := make([]string, 0, len(agentKeys))
			for _, key := range agentKeys {
				agent, err := a.registry.GetByKey(cmd.Context(), key)
				if err != nil {
					return err
				}
				ids = append(ids, agent.ID)
			}
			team, err := a.teams.CreateTeam(cmd.Context(), teams.Team{
				TenantID:    caller.TenantID,
				Name:        args[0],
				Description: description,
				EventType:   eventType,
				IsDefault:   makeDefault,
			}, ids)
			if err != nil {
				return err
			}
			return printTeam(ctx, cmd, team)
		})
	}
	return cmd
}

func newTeamsListCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tenant's teams",
	}
	cmd.RunE = ctx.runWithApp(func(c context.Context, cmd *cobra.Command, a *app) error {
		caller, err := ctx.caller()
		if err != nil {
			return err
		}
		list, err := a.teams.List(c, caller.TenantID)
		if err != nil {
			return err
		}
		if ctx.jsonOutput() {
			return writeJSON(cmd, list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No teams configured")
			return nil
		}
		rows := make([][]string, 0, len(list))
		for _, team := range list {
			rows = append(rows, []string{
				team.ID,
				team.Name,
				strconv.Itoa(len(team.Modules())),
				strconv.Itoa(team.WeightSum()),
				yesNo(team.IsDefault),
				yesNo(team.Active),
			})
		}
		fmt.Fprint(cmd.OutOrStdout(), renderTable(
			[]column{left("ID"), clipped("Name", 32), right("Modules"), right("Weight"), left("Default"), left("Active")},
			rows,
		))
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	})
	return cmd
}

func newTeamsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <team-id>",
		Short: "Show a team's members and weights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				team, err := ctx.loadTeam(cmd.Context(), a, args[0])
				if err != nil {
					return err
				}
				return printTeam(ctx, cmd, team)
			})
		},
	}
}

func newTeamsAddCommand(ctx *commandContext) *cobra.Command {
	var weight int
	cmd := &cobra.Command{
		Use:   "add <team-id> <agent-key>",
		Short: "Add a module agent to a team",
		Args:  cobra.ExactArgs(2),
	}
	cmd.Flags().IntVarP(&weight, "weight", "w", teams.DefaultMemberWeight, "Module weight (0-100)")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ctx.withApp(func(a *app) error {
			team, err := ctx.loadTeam(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			agent, err := a.registry.GetByKey(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			if _, err := a.teams.AddMember(cmd.Context(), team.ID, agent.ID, &weight); err != nil {
				return err
			}
			return reportTeam(ctx, cmd, a, team.ID)
		})
	}
	return cmd
}

func newTeamsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <team-id> <agent-key>",
		Short: "Remove a module agent from a team",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				team, err := ctx.loadTeam(cmd.Context(), a, args[0])
				if err != nil {
					return err
				}
				member, err := memberByKey(team, args[1])
				if err != nil {
					return err
				}
				if _, err := a.teams.RemoveMember(cmd.Context(), team.ID, member.ID); err != nil {
					return err
				}
				return reportTeam(ctx, cmd, a, team.ID)
			})
		},
	}
}

func newTeamsWeightsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "weights <team-id> <agent-key=weight>...",
		Short: "Set several module weights in one atomic commit",
		Long: "Stages every assignment in a draft and commits them together. The commit is " +
			"rejected unless the resulting module weights sum to exactly 100.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				team, err := ctx.loadTeam(cmd.Context(), a, args[0])
				if err != nil {
					return err
				}
				draft := teams.NewDraft(team)
				for _, assignment := range args[1:] {
					key, raw, ok := strings.Cut(assignment, "=")
					if !ok {
						return fmt.Errorf("invalid weight assignment %q (want agent-key=weight)", assignment)
					}
					weight, err := strconv.Atoi(strings.TrimSpace(raw))
					if err != nil {
						return fmt.Errorf("invalid weight for %s: %w", key, err)
					}
					member, err := memberByKey(team, key)
					if err != nil {
						return err
					}
					if err := draft.SetWeight(member.ID, weight); err != nil {
						return err
					}
				}
				if check := draft.Check(); !check.Valid {
					return fmt.Errorf("weights not saved: %s", check.Error())
				}
				updated, err := a.teams.Commit(cmd.Context(), draft)
				if err != nil {
					return err
				}
				return printTeam(ctx, cmd, updated)
			})
		},
	}
}

func newTeamsDistributeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "distribute <team-id>",
		Short: "Spread module weights evenly so they sum to 100",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				team, err := ctx.loadTeam(cmd.Context(), a, args[0])
				if err != nil {
					return err
				}
				updated, err := a.teams.DistributeEvenly(cmd.Context(), team.ID)
				if err != nil {
					return err
				}
				return printTeam(ctx, cmd, updated)
			})
		},
	}
}

func newTeamsReorderCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <team-id> <agent-key>...",
		Short: "Set the display order of every module",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				team, err := ctx.loadTeam(cmd.Context(), a, args[0])
				if err != nil {
					return err
				}
				ids := make([]string, 0, len(args)-1)
				for _, key := range args[1:] {
					member, err := memberByKey(team, key)
					if err != nil {
						return err
					}
					ids = append(ids, member.ID)
				}
				updated, err := a.teams.Reorder(cmd.Context(), team.ID, ids)
				if err != nil {
					return err
				}
				return printTeam(ctx, cmd, updated)
			})
		},
	}
}

func newTeamsValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <team-id>",
		Short: "Check whether a team can run evaluations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				team, err := ctx.loadTeam(cmd.Context(), a, args[0])
				if err != nil {
					return err
				}
				validation := teams.Check(team.Members)
				if ctx.jsonOutput() {
					return writeJSON(cmd, validation)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Team "+team.Name, colorize) {
					fmt.Fprintln(out, line)
				}
				weightKind := statusOK
				if validation.WeightSum != teams.TotalWeight {
					weightKind = statusError
				}
				fmt.Fprintln(out, renderStatusLine("Weight sum", weightKind, fmt.Sprintf("%d/%d", validation.WeightSum, teams.TotalWeight), colorize))
				fmt.Fprintln(out, renderStatusLine("Modules", countKind(validation.Modules > 0), strconv.Itoa(validation.Modules), colorize))
				fmt.Fprintln(out, renderStatusLine("Coordinator", countKind(validation.Coordinators == 1), strconv.Itoa(validation.Coordinators), colorize))
				for _, problem := range validation.Problems {
					fmt.Fprintln(out, renderStatusLine("Problem", statusWarn, problem, colorize))
				}
				if !validation.Valid {
					return fmt.Errorf("team %s cannot run evaluations", team.Name)
				}
				fmt.Fprintln(out, renderStatusLine("Result", statusOK, "ready", colorize))
				return nil
			})
		},
	}
}

func newTeamsDefaultCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set-default <team-id>",
		Short: "Make a team the tenant default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				team, err := ctx.loadTeam(cmd.Context(), a, args[0])
				if err != nil {
					return err
				}
				if err := a.teams.SetDefault(cmd.Context(), team.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Default team: %s\n", team.Name)
				return nil
			})
		},
	}
}

func countKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusError
}

func reportTeam(ctx *commandContext, cmd *cobra.Command, a *app, teamID string) error {
	team, err := a.teams.Get(cmd.Context(), teamID)
	if err != nil {
		return err
	}
	return printTeam(ctx, cmd, team)
}

func printTeam(ctx *commandContext, cmd *cobra.Command, team *teams.Team) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, team)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", team.Name, team.ID)
	if team.Description != "" {
		fmt.Fprintln(out, team.Description)
	}
	rows := make([][]string, 0, len(team.Members))
	for _, member := range team.Members {
		weight := strconv.Itoa(member.Weight)
		role := "module"
		if member.IsCoordinator {
			weight = "-"
			role = "coordinator"
		}
		rows = append(rows, []string{member.AgentKey, member.AgentName, role, weight})
	}
	fmt.Fprint(out, renderTable(
		[]column{left("Agent"), clipped("Name", 32), left("Role"), right("Weight")},
		rows,
	))
	fmt.Fprintln(out)
	validation := teams.Check(team.Members)
	fmt.Fprintf(out, "Weight sum: %d/%d  Valid: %s\n", validation.WeightSum, teams.TotalWeight, yesNo(validation.Valid))
	return nil
}

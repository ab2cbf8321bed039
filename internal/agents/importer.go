package agents

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"evalpanel/internal/services"
)

//go:embed defaults.yaml
var defaultTemplates []byte

// templateFile is the YAML document accepted by ImportYAML.
type templateFile struct {
	Agents []templateEntry `yaml:"agents"`
}

type templateEntry struct {
	Key           string `yaml:"key"`
	Name          string `yaml:"name"`
	Icon          string `yaml:"icon"`
	Description   string `yaml:"description"`
	SystemPrompt  string `yaml:"system_prompt"`
	BusinessRules string `yaml:"business_rules"`
	OutputSchema  string `yaml:"output_schema"`
	Coordinator   bool   `yaml:"coordinator"`
	Inactive      bool   `yaml:"inactive"`
}

// ImportResult lists the keys touched by an import.
type ImportResult struct {
	Created []string
	Updated []string
}

// ImportYAML upserts templates by key. Document-level checks (required
// fields, duplicate keys, coordinator count) run before any write.
func (r *Registry) ImportYAML(ctx context.Context, reader io.Reader) (ImportResult, error) {
	var result ImportResult
	data, err := io.ReadAll(reader)
	if err != nil {
		return result, fmt.Errorf("read templates: %w", err)
	}
	var doc templateFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return result, services.Wrap(services.ErrValidation, "agents", "import", "invalid yaml", err)
	}
	if len(doc.Agents) == 0 {
		return result, services.Validation("agents", "import", "document contains no agents")
	}

	seen := make(map[string]struct{}, len(doc.Agents))
	coordinators := 0
	for i, entry := range doc.Agents {
		key := NormalizeKey(entry.Key)
		if key == "" || strings.TrimSpace(entry.Name) == "" {
			return result, services.Validation("agents", "import", fmt.Sprintf("entry %d requires key and name", i+1))
		}
		if _, dup := seen[key]; dup {
			return result, services.Validation("agents", "import", fmt.Sprintf("duplicate key %q", key))
		}
		seen[key] = struct{}{}
		if entry.Coordinator && !entry.Inactive {
			coordinators++
		}
	}
	if coordinators > 1 {
		return result, services.Validation("agents", "import", "at most one active coordinator may be declared")
	}

	for _, entry := range doc.Agents {
		agent := Agent{
			Key:           entry.Key,
			Name:          entry.Name,
			Icon:          entry.Icon,
			Description:   entry.Description,
			SystemPrompt:  strings.TrimSpace(entry.SystemPrompt),
			BusinessRules: strings.TrimSpace(entry.BusinessRules),
			OutputSchema:  strings.TrimSpace(entry.OutputSchema),
			IsCoordinator: entry.Coordinator,
			IsTemplate:    true,
			Active:        !entry.Inactive,
		}
		existing, err := r.GetByKey(ctx, entry.Key)
		switch {
		case errors.Is(err, services.ErrNotFound):
			created, err := r.Create(ctx, agent)
			if err != nil {
				return result, err
			}
			result.Created = append(result.Created, created.Key)
		case err != nil:
			return result, err
		default:
			agent.ID = existing.ID
			updated, err := r.Update(ctx, agent)
			if err != nil {
				return result, err
			}
			result.Updated = append(result.Updated, updated.Key)
		}
	}
	return result, nil
}

// SeedDefaults installs the built-in module templates and coordinator when
// the registry is empty. It is a no-op otherwise.
func (r *Registry) SeedDefaults(ctx context.Context) (ImportResult, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(1) FROM agents`).Scan(&count); err != nil {
		return ImportResult{}, fmt.Errorf("count agents: %w", err)
	}
	if count > 0 {
		return ImportResult{}, nil
	}
	return r.ImportYAML(ctx, bytes.NewReader(defaultTemplates))
}

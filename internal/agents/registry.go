package agents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"evalpanel/internal/services"
	"evalpanel/internal/store"
)

const agentColumns = "id, key, name, icon, description, system_prompt, business_rules, output_schema, is_coordinator, is_template, active, created_at, updated_at"

// Registry persists agent templates.
type Registry struct {
	db  *store.DB
	now func() time.Time
}

// NewRegistry binds a registry to the shared database.
func NewRegistry(db *store.DB) *Registry {
	return &Registry{db: db, now: time.Now}
}

// Create validates and inserts a new template, assigning its id.
func (r *Registry) Create(ctx context.Context, agent Agent) (*Agent, error) {
	if err := prepare(&agent); err != nil {
		return nil, err
	}
	if agent.IsCoordinator && agent.Active {
		if err := r.ensureNoOtherCoordinator(ctx, ""); err != nil {
			return nil, err
		}
	}
	now := r.now().UTC()
	agent.ID = uuid.NewString()
	agent.CreatedAt = now
	agent.UpdatedAt = now

	_, err := r.db.Exec(ctx, `INSERT INTO agents (`+agentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.ID,
		agent.Key,
		agent.Name,
		store.NullableString(agent.Icon),
		store.NullableString(agent.Description),
		store.NullableString(agent.SystemPrompt),
		store.NullableString(agent.BusinessRules),
		store.NullableString(agent.OutputSchema),
		store.BoolToInt(agent.IsCoordinator),
		store.BoolToInt(agent.IsTemplate),
		store.BoolToInt(agent.Active),
		store.FormatTime(agent.CreatedAt),
		store.FormatTime(agent.UpdatedAt),
	)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, services.Validation("agents", "create", fmt.Sprintf("agent key %q already exists", agent.Key))
		}
		return nil, fmt.Errorf("insert agent: %w", err)
	}
	return &agent, nil
}

// Update rewrites a template's instructions and flags. Templates used by an
// in-flight job are frozen.
func (r *Registry) Update(ctx context.Context, agent Agent) (*Agent, error) {
	if strings.TrimSpace(agent.ID) == "" {
		return nil, services.Validation("agents", "update", "agent id is required")
	}
	if err := prepare(&agent); err != nil {
		return nil, err
	}
	existing, err := r.Get(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	if err := r.ensureNotInFlight(ctx, agent.ID); err != nil {
		return nil, err
	}
	if agent.IsCoordinator && agent.Active {
		if err := r.ensureNoOtherCoordinator(ctx, agent.ID); err != nil {
			return nil, err
		}
	}
	agent.CreatedAt = existing.CreatedAt
	agent.UpdatedAt = r.now().UTC()

	_, err = r.db.Exec(ctx, `UPDATE agents SET key = ?, name = ?, icon = ?, description = ?, system_prompt = ?, business_rules = ?, output_schema = ?, is_coordinator = ?, is_template = ?, active = ?, updated_at = ? WHERE id = ?`,
		agent.Key,
		agent.Name,
		store.NullableString(agent.Icon),
		store.NullableString(agent.Description),
		store.NullableString(agent.SystemPrompt),
		store.NullableString(agent.BusinessRules),
		store.NullableString(agent.OutputSchema),
		store.BoolToInt(agent.IsCoordinator),
		store.BoolToInt(agent.IsTemplate),
		store.BoolToInt(agent.Active),
		store.FormatTime(agent.UpdatedAt),
		agent.ID,
	)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, services.Validation("agents", "update", fmt.Sprintf("agent key %q already exists", agent.Key))
		}
		return nil, fmt.Errorf("update agent: %w", err)
	}
	return &agent, nil
}

// SetActive toggles whether the template can be added to panels.
func (r *Registry) SetActive(ctx context.Context, id string, active bool) error {
	agent, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	agent.Active = active
	_, err = r.Update(ctx, *agent)
	return err
}

// Get loads a template by id.
func (r *Registry) Get(ctx context.Context, id string) (*Agent, error) {
	row := r.db.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.NotFound("agents", "get", fmt.Sprintf("agent %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return agent, nil
}

// GetByKey loads a template by its normalized key.
func (r *Registry) GetByKey(ctx context.Context, key string) (*Agent, error) {
	normalized := NormalizeKey(key)
	row := r.db.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE key = ?`, normalized)
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.NotFound("agents", "get", fmt.Sprintf("agent key %q not found", normalized))
	}
	if err != nil {
		return nil, fmt.Errorf("get agent by key: %w", err)
	}
	return agent, nil
}

// List returns templates ordered with the coordinator first, then by name.
func (r *Registry) List(ctx context.Context, filter Filter) ([]*Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents`
	var clauses []string
	if filter.ActiveOnly {
		clauses = append(clauses, "active = 1")
	}
	if !filter.IncludeCoordinator {
		clauses = append(clauses, "is_coordinator = 0")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY is_coordinator DESC, name COLLATE NOCASE"

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// Coordinator returns the single active coordinator template.
func (r *Registry) Coordinator(ctx context.Context) (*Agent, error) {
	row := r.db.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE is_coordinator = 1 AND active = 1 ORDER BY created_at LIMIT 1`)
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.NotFound("agents", "coordinator", "no active coordinator template")
	}
	if err != nil {
		return nil, fmt.Errorf("get coordinator: %w", err)
	}
	return agent, nil
}

func (r *Registry) ensureNoOtherCoordinator(ctx context.Context, exceptID string) error {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(1) FROM agents WHERE is_coordinator = 1 AND active = 1 AND id <> ?`, exceptID).Scan(&count); err != nil {
		return fmt.Errorf("count coordinators: %w", err)
	}
	if count > 0 {
		return services.Validation("agents", "coordinator", "an active coordinator template already exists")
	}
	return nil
}

func (r *Registry) ensureNotInFlight(ctx context.Context, agentID string) error {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(1) FROM jobs j
		JOIN team_members m ON m.team_id = j.team_id
		WHERE m.agent_id = ? AND j.status IN ('queued', 'processing', 'retrying')`, agentID).Scan(&count)
	if err != nil {
		return fmt.Errorf("check in-flight jobs: %w", err)
	}
	if count > 0 {
		return services.Wrap(services.ErrConflict, "agents", "update",
			fmt.Sprintf("agent is referenced by %d running job(s)", count), nil)
	}
	return nil
}

func prepare(agent *Agent) error {
	agent.Key = NormalizeKey(agent.Key)
	agent.Name = strings.TrimSpace(agent.Name)
	if agent.Key == "" {
		return services.Validation("agents", "validate", "agent key is required")
	}
	if agent.Name == "" {
		return services.Validation("agents", "validate", "agent name is required")
	}
	agent.Icon = strings.TrimSpace(agent.Icon)
	agent.Description = strings.TrimSpace(agent.Description)
	return nil
}

func scanAgent(scanner store.Scanner) (*Agent, error) {
	var (
		agent         Agent
		icon          sql.NullString
		description   sql.NullString
		systemPrompt  sql.NullString
		businessRules sql.NullString
		outputSchema  sql.NullString
		isCoordinator int
		isTemplate    int
		active        int
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)
	if err := scanner.Scan(
		&agent.ID,
		&agent.Key,
		&agent.Name,
		&icon,
		&description,
		&systemPrompt,
		&businessRules,
		&outputSchema,
		&isCoordinator,
		&isTemplate,
		&active,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	agent.Icon = icon.String
	agent.Description = description.String
	agent.SystemPrompt = systemPrompt.String
	agent.BusinessRules = businessRules.String
	agent.OutputSchema = outputSchema.String
	agent.IsCoordinator = isCoordinator != 0
	agent.IsTemplate = isTemplate != 0
	agent.Active = active != 0
	agent.CreatedAt = store.TimeValue(createdRaw)
	agent.UpdatedAt = store.TimeValue(updatedRaw)
	return &agent, nil
}

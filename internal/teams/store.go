package teams

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"evalpanel/internal/agents"
	"evalpanel/internal/services"
	"evalpanel/internal/store"
)

const teamColumns = "id, tenant_id, name, description, event_type, is_default, active, created_at, updated_at"

const memberQuery = `SELECT m.id, m.team_id, m.agent_id, a.key, a.name, m.weight, m.sort_order,
	m.business_rules_override, m.is_coordinator, m.created_at
	FROM team_members m JOIN agents a ON a.id = m.agent_id
	WHERE m.team_id = ?
	ORDER BY m.is_coordinator DESC, m.sort_order, m.created_at`

// Store persists teams and their members.
type Store struct {
	db       *store.DB
	registry *agents.Registry
	now      func() time.Time
}

// NewStore binds a team store to the shared database.
func NewStore(db *store.DB, registry *agents.Registry) *Store {
	return &Store{db: db, registry: registry, now: time.Now}
}

// CreateTeam inserts a team, its coordinator seat and one module seat per
// agent with evenly distributed weights, all in one transaction.
func (s *Store) CreateTeam(ctx context.Context, team Team, agentIDs []string) (*Team, error) {
	team.TenantID = strings.TrimSpace(team.TenantID)
	team.Name = strings.TrimSpace(team.Name)
	team.Description = strings.TrimSpace(team.Description)
	team.EventType = strings.TrimSpace(team.EventType)
	if team.TenantID == "" {
		return nil, services.Validation("teams", "create", "tenant is required")
	}
	if team.Name == "" {
		return nil, services.Validation("teams", "create", "team name is required")
	}
	coordinator, err := s.registry.Coordinator(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	team.ID = uuid.NewString()
	team.Active = true
	team.CreatedAt = now
	team.UpdatedAt = now
	team.Members = []Member{{
		ID:            uuid.NewString(),
		TeamID:        team.ID,
		AgentID:       coordinator.ID,
		AgentKey:      coordinator.Key,
		AgentName:     coordinator.Name,
		SortOrder:     CoordinatorSortOrder,
		IsCoordinator: true,
		CreatedAt:     now,
	}}
	seen := make(map[string]bool, len(agentIDs))
	for i, agentID := range agentIDs {
		agent, err := s.registry.Get(ctx, agentID)
		if err != nil {
			return nil, err
		}
		if err := checkCandidate(agent); err != nil {
			return nil, err
		}
		if seen[agent.ID] {
			return nil, services.Validation("teams", "create", fmt.Sprintf("agent %s listed twice", agent.Key))
		}
		seen[agent.ID] = true
		team.Members = append(team.Members, Member{
			ID:        uuid.NewString(),
			TeamID:    team.ID,
			AgentID:   agent.ID,
			AgentKey:  agent.Key,
			AgentName: agent.Name,
			SortOrder: i,
			CreatedAt: now,
		})
	}
	DistributeEvenly(team.Members)

	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if team.IsDefault {
			if err := clearDefault(ctx, tx, team.TenantID, now); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO teams (`+teamColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			team.ID,
			team.TenantID,
			team.Name,
			store.NullableString(team.Description),
			store.NullableString(team.EventType),
			store.BoolToInt(team.IsDefault),
			store.BoolToInt(team.Active),
			store.FormatTime(team.CreatedAt),
			store.FormatTime(team.UpdatedAt),
		); err != nil {
			return fmt.Errorf("insert team: %w", err)
		}
		for _, member := range team.Members {
			if err := insertMember(ctx, tx, member); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// Get loads a team with its members, coordinator first.
func (s *Store) Get(ctx context.Context, id string) (*Team, error) {
	return getTeam(ctx, s.db.Querier(), id)
}

// GetForTenant loads a team only when it belongs to tenantID.
func (s *Store) GetForTenant(ctx context.Context, tenantID, id string) (*Team, error) {
	team, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if team.TenantID != strings.TrimSpace(tenantID) {
		return nil, services.NotFound("teams", "get", fmt.Sprintf("team %s not found", id))
	}
	return team, nil
}

// List returns a tenant's teams, default first, then by name.
func (s *Store) List(ctx context.Context, tenantID string) ([]*Team, error) {
	rows, err := s.db.Query(ctx, `SELECT `+teamColumns+` FROM teams WHERE tenant_id = ? ORDER BY is_default DESC, name COLLATE NOCASE`, strings.TrimSpace(tenantID))
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	var teams []*Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, team)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, team := range teams {
		members, err := loadMembers(ctx, s.db.Querier(), team.ID)
		if err != nil {
			return nil, err
		}
		team.Members = members
	}
	return teams, nil
}

// Default returns the tenant's default team.
func (s *Store) Default(ctx context.Context, tenantID string) (*Team, error) {
	var id string
	err := s.db.QueryRow(ctx, `SELECT id FROM teams WHERE tenant_id = ? AND is_default = 1 AND active = 1 LIMIT 1`, strings.TrimSpace(tenantID)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.NotFound("teams", "default", fmt.Sprintf("tenant %s has no default team", tenantID))
	}
	if err != nil {
		return nil, fmt.Errorf("get default team: %w", err)
	}
	return s.Get(ctx, id)
}

// SetDefault marks id as the tenant default, clearing the previous one.
func (s *Store) SetDefault(ctx context.Context, id string) error {
	team, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := clearDefault(ctx, tx, team.TenantID, now); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE teams SET is_default = 1, updated_at = ? WHERE id = ?`, store.FormatTime(now), id)
		if err != nil {
			return fmt.Errorf("set default team: %w", err)
		}
		return nil
	})
}

// SetActive toggles whether the team accepts new submissions.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.Exec(ctx, `UPDATE teams SET active = ?, updated_at = ? WHERE id = ?`, store.BoolToInt(active), store.FormatTime(s.now().UTC()), id)
	if err != nil {
		return fmt.Errorf("set team active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.NotFound("teams", "set active", fmt.Sprintf("team %s not found", id))
	}
	return nil
}

// AddMember appends a module seat with the next sortOrder. A nil weight
// means DefaultMemberWeight. The panel may be left unrunnable until weights
// are rebalanced.
func (s *Store) AddMember(ctx context.Context, teamID, agentID string, weight *int) (*Member, error) {
	agent, err := s.registry.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	w := DefaultMemberWeight
	if weight != nil {
		w = *weight
	}
	var addedID string
	team, err := s.mutate(ctx, teamID, func(d *Draft) error {
		id, err := d.AddMember(agent, w)
		addedID = id
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, member := range team.Members {
		if member.ID == addedID {
			return &member, nil
		}
	}
	return nil, fmt.Errorf("add member: member %s missing after write", addedID)
}

// RemoveMember deletes a module seat. The coordinator cannot be removed.
func (s *Store) RemoveMember(ctx context.Context, teamID, memberID string) (*Team, error) {
	return s.mutate(ctx, teamID, func(d *Draft) error {
		return d.RemoveMember(memberID)
	})
}

// DistributeEvenly rebalances module weights so they sum to 100.
func (s *Store) DistributeEvenly(ctx context.Context, teamID string) (*Team, error) {
	return s.mutate(ctx, teamID, func(d *Draft) error {
		d.DistributeEvenly()
		return nil
	})
}

// Reorder rewrites the module order. The coordinator always sorts first.
func (s *Store) Reorder(ctx context.Context, teamID string, memberIDs []string) (*Team, error) {
	return s.mutate(ctx, teamID, func(d *Draft) error {
		return d.Reorder(memberIDs)
	})
}

// Commit applies a draft atomically. The draft is replayed over the panel as
// persisted at commit time and rejected as a whole unless the result is
// runnable.
func (s *Store) Commit(ctx context.Context, draft *Draft) (*Team, error) {
	if draft == nil {
		return nil, services.Validation("teams", "commit", "draft is required")
	}
	return s.write(ctx, draft.TeamID(), func(*Team) (*Draft, error) {
		return draft, nil
	}, true)
}

// Validate reports whether the persisted panel can run.
func (s *Store) Validate(ctx context.Context, teamID string) (Validation, error) {
	team, err := s.Get(ctx, teamID)
	if err != nil {
		return Validation{}, err
	}
	return Check(team.Members), nil
}

// ValidateForRun returns a validation error unless team can run.
func ValidateForRun(team *Team) error {
	if team == nil {
		return services.Validation("teams", "validate", "team is required")
	}
	if !team.Active {
		return services.Validation("teams", "validate", fmt.Sprintf("team %s is inactive", team.Name))
	}
	if v := Check(team.Members); !v.Valid {
		return services.Validation("teams", "validate", v.Error())
	}
	return nil
}

// mutate runs a single-step edit. Immediate edits may leave the panel
// unrunnable; Commit is the path that enforces the run preconditions.
func (s *Store) mutate(ctx context.Context, teamID string, edit func(*Draft) error) (*Team, error) {
	return s.write(ctx, teamID, func(team *Team) (*Draft, error) {
		draft := NewDraft(team)
		return draft, edit(draft)
	}, false)
}

// write replays a draft over the panel read inside the transaction and
// persists the result.
func (s *Store) write(ctx context.Context, teamID string, build func(*Team) (*Draft, error), requireValid bool) (*Team, error) {
	var result *Team
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		team, err := getTeam(ctx, tx, teamID)
		if err != nil {
			return err
		}
		draft, err := build(team)
		if err != nil {
			return err
		}
		if draft.TeamID() != team.ID {
			return services.Validation("teams", "commit", "draft belongs to another team")
		}
		members, err := draft.apply(team.Members)
		if err != nil {
			return err
		}
		if requireValid {
			if v := Check(members); !v.Valid {
				return services.Validation("teams", "commit", v.Error())
			}
		}
		if err := s.writeMembers(ctx, tx, team, members, draft); err != nil {
			return err
		}
		team.Members = members
		result = team
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) writeMembers(ctx context.Context, tx *sql.Tx, team *Team, members []Member, draft *Draft) error {
	now := s.now().UTC()
	for id := range draft.removed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM team_members WHERE id = ? AND team_id = ? AND is_coordinator = 0`, id, team.ID); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
	}
	existing := make(map[string]bool, len(team.Members))
	for _, member := range team.Members {
		existing[member.ID] = true
	}
	for i := range members {
		member := &members[i]
		if !existing[member.ID] {
			member.CreatedAt = now
			if err := insertMember(ctx, tx, *member); err != nil {
				return err
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE team_members SET weight = ?, sort_order = ? WHERE id = ?`, member.Weight, member.SortOrder, member.ID); err != nil {
			return fmt.Errorf("update member: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE teams SET updated_at = ? WHERE id = ?`, store.FormatTime(now), team.ID); err != nil {
		return fmt.Errorf("touch team: %w", err)
	}
	return nil
}

func insertMember(ctx context.Context, tx *sql.Tx, member Member) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO team_members (id, team_id, agent_id, weight, sort_order, business_rules_override, is_coordinator, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		member.ID,
		member.TeamID,
		member.AgentID,
		member.Weight,
		member.SortOrder,
		store.NullableString(member.BusinessRulesOverride),
		store.BoolToInt(member.IsCoordinator),
		store.FormatTime(member.CreatedAt),
	)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return services.Validation("teams", "add member", fmt.Sprintf("agent %s is already a member", member.AgentKey))
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func clearDefault(ctx context.Context, tx *sql.Tx, tenantID string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `UPDATE teams SET is_default = 0, updated_at = ? WHERE tenant_id = ? AND is_default = 1`, store.FormatTime(now), tenantID); err != nil {
		return fmt.Errorf("clear default team: %w", err)
	}
	return nil
}

func getTeam(ctx context.Context, q store.Querier, id string) (*Team, error) {
	row := q.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = ?`, strings.TrimSpace(id))
	team, err := scanTeam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.NotFound("teams", "get", fmt.Sprintf("team %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}
	members, err := loadMembers(ctx, q, team.ID)
	if err != nil {
		return nil, err
	}
	team.Members = members
	return team, nil
}

func loadMembers(ctx context.Context, q store.Querier, teamID string) ([]Member, error) {
	rows, err := q.QueryContext(ctx, memberQuery, teamID)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var (
			member     Member
			override   sql.NullString
			coord      int
			createdRaw sql.NullString
		)
		if err := rows.Scan(
			&member.ID,
			&member.TeamID,
			&member.AgentID,
			&member.AgentKey,
			&member.AgentName,
			&member.Weight,
			&member.SortOrder,
			&override,
			&coord,
			&createdRaw,
		); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		member.BusinessRulesOverride = override.String
		member.IsCoordinator = coord != 0
		member.CreatedAt = store.TimeValue(createdRaw)
		members = append(members, member)
	}
	return members, rows.Err()
}

func scanTeam(scanner store.Scanner) (*Team, error) {
	var (
		team        Team
		description sql.NullString
		eventType   sql.NullString
		isDefault   int
		active      int
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&team.ID,
		&team.TenantID,
		&team.Name,
		&description,
		&eventType,
		&isDefault,
		&active,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	team.Description = description.String
	team.EventType = eventType.String
	team.IsDefault = isDefault != 0
	team.Active = active != 0
	team.CreatedAt = store.TimeValue(createdRaw)
	team.UpdatedAt = store.TimeValue(updatedRaw)
	return &team, nil
}

package testsupport

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"evalpanel/internal/agents"
	"evalpanel/internal/store"
	"evalpanel/internal/teams"
)

// TestTenant is the tenant used by seeded fixtures.
const TestTenant = "tenant-test"

// Panel bundles the records created by SeedPanel.
type Panel struct {
	Registry    *agents.Registry
	Teams       *teams.Store
	Coordinator *agents.Agent
	Agents      []*agents.Agent
	Team        *teams.Team
}

// SeedCoordinator creates the coordinator template.
func SeedCoordinator(t testing.TB, registry *agents.Registry) *agents.Agent {
	t.Helper()
	coordinator, err := registry.Create(context.Background(), agents.Agent{
		Key:           agents.CoordinatorKey,
		Name:          "Coordenador",
		SystemPrompt:  "Consolide os resultados dos módulos.",
		IsCoordinator: true,
		IsTemplate:    true,
		Active:        true,
	})
	if err != nil {
		t.Fatalf("create coordinator: %v", err)
	}
	return coordinator
}

// SeedAgent creates an active module template with the given key.
func SeedAgent(t testing.TB, registry *agents.Registry, key string) *agents.Agent {
	t.Helper()
	agent, err := registry.Create(context.Background(), agents.Agent{
		Key:          key,
		Name:         strings.ToUpper(key[:1]) + key[1:],
		SystemPrompt: "Avalie o módulo " + key + ".",
		IsTemplate:   true,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("create agent %s: %v", key, err)
	}
	return agent
}

// SeedPanel creates a coordinator, one module agent per weight and an active
// team in TestTenant whose module weights are set to weights. With no
// weights the panel gets three modules at 34/33/33.
func SeedPanel(t testing.TB, db *store.DB, weights ...int) *Panel {
	t.Helper()
	ctx := context.Background()
	registry := agents.NewRegistry(db)
	teamStore := teams.NewStore(db, registry)

	n := len(weights)
	if n == 0 {
		n = 3
	}
	panel := &Panel{
		Registry:    registry,
		Teams:       teamStore,
		Coordinator: SeedCoordinator(t, registry),
	}
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		agent := SeedAgent(t, registry, fmt.Sprintf("modulo_%d", i+1))
		panel.Agents = append(panel.Agents, agent)
		ids = append(ids, agent.ID)
	}
	team, err := teamStore.CreateTeam(ctx, teams.Team{TenantID: TestTenant, Name: "Painel de teste"}, ids)
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	if len(weights) > 0 {
		draft := teams.NewDraft(team)
		for i, module := range team.Modules() {
			if err := draft.SetWeight(module.ID, weights[i]); err != nil {
				t.Fatalf("stage weight: %v", err)
			}
		}
		if draft.Check().Valid {
			team, err = teamStore.Commit(ctx, draft)
		} else {
			team, err = forceWeights(ctx, teamStore, db, team, weights)
		}
		if err != nil {
			t.Fatalf("set weights: %v", err)
		}
	}
	panel.Team = team
	return panel
}

// forceWeights writes weights that do not sum to 100, for tests that need
// an unrunnable panel.
func forceWeights(ctx context.Context, teamStore *teams.Store, db *store.DB, team *teams.Team, weights []int) (*teams.Team, error) {
	for i, module := range team.Modules() {
		if _, err := db.Exec(ctx, `UPDATE team_members SET weight = ? WHERE id = ?`, weights[i], module.ID); err != nil {
			return nil, err
		}
	}
	return teamStore.Get(ctx, team.ID)
}

// Transcript returns an ASCII transcript of exactly n characters.
func Transcript(n int) string {
	const line = "[10:00] Cliente: Gostaria de um orcamento para 150 convidados.\n"
	return strings.Repeat(line, n/len(line)+1)[:n]
}

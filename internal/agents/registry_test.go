package agents_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"evalpanel/internal/agents"
	"evalpanel/internal/services"
	"evalpanel/internal/store"
	"evalpanel/internal/testsupport"
)

func newRegistry(t *testing.T) (*agents.Registry, *store.DB) {
	t.Helper()
	db := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	return agents.NewRegistry(db), db
}

func TestCreateNormalizesAndRejectsDuplicates(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	created, err := reg.Create(ctx, agents.Agent{Key: "Pós Vendas", Name: " Pós-Vendas ", Active: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" || created.Key != "pos_vendas" || created.Name != "Pós-Vendas" {
		t.Fatalf("unexpected agent %+v", created)
	}

	_, err = reg.Create(ctx, agents.Agent{Key: "pos-vendas", Name: "Other", Active: true})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected duplicate key validation error, got %v", err)
	}

	if _, err := reg.Create(ctx, agents.Agent{Key: "  ", Name: "x"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected missing key validation error, got %v", err)
	}

	byKey, err := reg.GetByKey(ctx, "POS_VENDAS")
	if err != nil {
		t.Fatalf("GetByKey: %v", err)
	}
	if byKey.ID != created.ID {
		t.Fatalf("GetByKey returned %s, want %s", byKey.ID, created.ID)
	}
}

func TestSingleActiveCoordinator(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	if _, err := reg.Coordinator(ctx); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found before seeding, got %v", err)
	}
	first, err := reg.Create(ctx, agents.Agent{Key: "coordenador", Name: "Coordenador", IsCoordinator: true, Active: true})
	if err != nil {
		t.Fatalf("Create coordinator: %v", err)
	}
	if _, err := reg.Create(ctx, agents.Agent{Key: "outro", Name: "Outro", IsCoordinator: true, Active: true}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected second coordinator to be rejected, got %v", err)
	}
	got, err := reg.Coordinator(ctx)
	if err != nil {
		t.Fatalf("Coordinator: %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("unexpected coordinator %s", got.ID)
	}
}

func TestListOrdersAndFilters(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	if _, err := reg.SeedDefaults(ctx); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	negociacao, err := reg.GetByKey(ctx, "negociacao")
	if err != nil {
		t.Fatalf("GetByKey: %v", err)
	}
	if err := reg.SetActive(ctx, negociacao.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	all, err := reg.List(ctx, agents.Filter{IncludeCoordinator: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 7 || !all[0].IsCoordinator {
		t.Fatalf("expected 7 agents with coordinator first, got %d (first=%+v)", len(all), all[0])
	}

	active, err := reg.List(ctx, agents.Filter{ActiveOnly: true})
	if err != nil {
		t.Fatalf("List active: %v", err)
	}
	if len(active) != 5 {
		t.Fatalf("expected 5 active module agents, got %d", len(active))
	}
	for _, agent := range active {
		if agent.IsCoordinator || agent.Key == "negociacao" {
			t.Fatalf("unexpected agent in filtered list: %s", agent.Key)
		}
	}
}

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	first, err := reg.SeedDefaults(ctx)
	if err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	if len(first.Created) != 7 {
		t.Fatalf("expected 7 created templates, got %v", first.Created)
	}
	second, err := reg.SeedDefaults(ctx)
	if err != nil {
		t.Fatalf("SeedDefaults again: %v", err)
	}
	if len(second.Created)+len(second.Updated) != 0 {
		t.Fatalf("expected no-op on second seed, got %+v", second)
	}
	coordinator, err := reg.Coordinator(ctx)
	if err != nil {
		t.Fatalf("Coordinator: %v", err)
	}
	if coordinator.Key != agents.CoordinatorKey || !strings.Contains(coordinator.OutputSchema, "final_score") {
		t.Fatalf("unexpected coordinator template %+v", coordinator)
	}
}

func TestImportYAMLUpsertsByKey(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	doc := `
agents:
  - key: consultor
    name: Consultor
    system_prompt: v1
  - key: novo
    name: Novo Agente
`
	result, err := reg.ImportYAML(ctx, strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ImportYAML: %v", err)
	}
	if len(result.Created) != 2 {
		t.Fatalf("expected 2 created, got %+v", result)
	}

	result, err = reg.ImportYAML(ctx, strings.NewReader("agents:\n  - key: consultor\n    name: Consultor\n    system_prompt: v2\n"))
	if err != nil {
		t.Fatalf("ImportYAML update: %v", err)
	}
	if len(result.Updated) != 1 || result.Updated[0] != "consultor" {
		t.Fatalf("expected consultor updated, got %+v", result)
	}
	agent, err := reg.GetByKey(ctx, "consultor")
	if err != nil {
		t.Fatalf("GetByKey: %v", err)
	}
	if agent.SystemPrompt != "v2" {
		t.Fatalf("expected updated prompt, got %q", agent.SystemPrompt)
	}
}

func TestImportYAMLRejectsBadDocuments(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	tests := map[string]string{
		"syntax":       "agents: [",
		"empty":        "agents: []",
		"missing name": "agents:\n  - key: a\n",
		"duplicate":    "agents:\n  - key: a\n    name: A\n  - key: A\n    name: B\n",
		"coordinators": "agents:\n  - key: a\n    name: A\n    coordinator: true\n  - key: b\n    name: B\n    coordinator: true\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := reg.ImportYAML(ctx, strings.NewReader(doc)); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	all, err := reg.List(ctx, agents.Filter{IncludeCoordinator: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no agents after rejected imports, got %d", len(all))
	}
}

func TestUpdateRejectedWhileJobInFlight(t *testing.T) {
	reg, db := newRegistry(t)
	ctx := context.Background()

	agent, err := reg.Create(ctx, agents.Agent{Key: "consultor", Name: "Consultor", Active: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	now := store.FormatTime(time.Now())
	statements := []string{
		`INSERT INTO teams (id, tenant_id, name, created_at, updated_at) VALUES ('team-1', 'acme', 'Painel', '` + now + `', '` + now + `')`,
		`INSERT INTO team_members (id, team_id, agent_id, weight, sort_order, created_at) VALUES ('m1', 'team-1', '` + agent.ID + `', 100, 0, '` + now + `')`,
		`INSERT INTO jobs (id, tenant_id, team_id, title, transcript, model, meeting_type, status, created_at, updated_at) VALUES ('job-1', 'acme', 'team-1', 't', 'x', 'openai/gpt-4o', 'casamento', 'processing', '` + now + `', '` + now + `')`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	agent.SystemPrompt = "changed"
	if _, err := reg.Update(ctx, *agent); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict while job is processing, got %v", err)
	}

	if _, err := db.Exec(ctx, `UPDATE jobs SET status = 'completed' WHERE id = 'job-1'`); err != nil {
		t.Fatalf("complete job: %v", err)
	}
	updated, err := reg.Update(ctx, *agent)
	if err != nil {
		t.Fatalf("Update after completion: %v", err)
	}
	if updated.SystemPrompt != "changed" {
		t.Fatalf("unexpected prompt %q", updated.SystemPrompt)
	}
}

func TestGetMissingAgent(t *testing.T) {
	reg, _ := newRegistry(t)
	if _, err := reg.Get(context.Background(), "nope"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

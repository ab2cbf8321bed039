package teams_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"evalpanel/internal/services"
	"evalpanel/internal/teams"
	"evalpanel/internal/testsupport"
)

func weightsOf(team *teams.Team) []int {
	var out []int
	for _, module := range team.Modules() {
		out = append(out, module.Weight)
	}
	return out
}

func TestCreateTeamAddsCoordinatorAndDistributes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)
	panel := testsupport.SeedPanel(t, db)

	team, err := panel.Teams.Get(context.Background(), panel.Team.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	coordinator := team.Coordinator()
	if coordinator == nil {
		t.Fatal("expected coordinator seat")
	}
	if coordinator.Weight != 0 || coordinator.SortOrder != teams.CoordinatorSortOrder {
		t.Fatalf("unexpected coordinator seat %+v", coordinator)
	}
	if team.Members[0].ID != coordinator.ID {
		t.Fatal("coordinator must sort first")
	}
	if diff := cmp.Diff([]int{34, 33, 33}, weightsOf(team)); diff != "" {
		t.Fatalf("weights mismatch (-want +got):\n%s", diff)
	}
	if err := teams.ValidateForRun(team); err != nil {
		t.Fatalf("expected runnable panel: %v", err)
	}
	if team.MeetingType() != teams.DefaultMeetingType {
		t.Fatalf("MeetingType = %q", team.MeetingType())
	}
}

func TestCreateTeamRejectsCoordinatorAgent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)
	panel := testsupport.SeedPanel(t, db)

	_, err := panel.Teams.CreateTeam(context.Background(), teams.Team{TenantID: testsupport.TestTenant, Name: "Outro"}, []string{panel.Coordinator.ID})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	list, err := panel.Teams.List(context.Background(), testsupport.TestTenant)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected no team to be created, got %d", len(list))
	}
}

func TestDistributeEvenlyRemainderGoesFirst(t *testing.T) {
	for n := 1; n <= 20; n++ {
		members := []teams.Member{{ID: "coord", IsCoordinator: true, SortOrder: teams.CoordinatorSortOrder, Weight: 5}}
		for i := n - 1; i >= 0; i-- {
			members = append(members, teams.Member{ID: string(rune('a' + i)), SortOrder: i, Weight: 1})
		}
		teams.DistributeEvenly(members)

		v := teams.Check(members)
		if !v.Valid {
			t.Fatalf("n=%d: expected valid panel, got %v", n, v.Problems)
		}
		base := 100 / n
		for _, member := range members {
			switch {
			case member.IsCoordinator:
				if member.Weight != 0 {
					t.Fatalf("n=%d: coordinator weight %d", n, member.Weight)
				}
			case member.SortOrder == 0:
				if member.Weight != base+100-base*n {
					t.Fatalf("n=%d: first member weight %d", n, member.Weight)
				}
			default:
				if member.Weight != base {
					t.Fatalf("n=%d: member %s weight %d, want %d", n, member.ID, member.Weight, base)
				}
			}
		}
	}
}

func TestRemoveReAddDistributeIsAlwaysValid(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)
	panel := testsupport.SeedPanel(t, db, 100)

	var pool []string
	for i := 0; i < 20; i++ {
		pool = append(pool, testsupport.SeedAgent(t, panel.Registry, "extra_"+string(rune('a'+i))).ID)
	}
	for n := 1; n <= 20; n++ {
		team, err := panel.Teams.Get(ctx, panel.Team.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		for _, module := range team.Modules() {
			if _, err := panel.Teams.RemoveMember(ctx, team.ID, module.ID); err != nil {
				t.Fatalf("RemoveMember: %v", err)
			}
		}
		for _, agentID := range pool[:n] {
			if _, err := panel.Teams.AddMember(ctx, team.ID, agentID, nil); err != nil {
				t.Fatalf("AddMember: %v", err)
			}
		}
		team, err = panel.Teams.DistributeEvenly(ctx, team.ID)
		if err != nil {
			t.Fatalf("DistributeEvenly: %v", err)
		}
		if err := teams.ValidateForRun(team); err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if len(team.Modules()) != n {
			t.Fatalf("n=%d: got %d modules", n, len(team.Modules()))
		}
	}
}

func TestCommitRejectsInvalidSumAtomically(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)
	panel := testsupport.SeedPanel(t, db, 50, 30, 20)

	draft := teams.NewDraft(panel.Team)
	modules := panel.Team.Modules()
	if err := draft.SetWeight(modules[0].ID, 60); err != nil {
		t.Fatalf("SetWeight: %v", err)
	}
	if err := draft.SetWeight(modules[1].ID, 30); err != nil {
		t.Fatalf("SetWeight: %v", err)
	}
	if draft.Check().Valid {
		t.Fatal("expected staged panel to be invalid")
	}
	if _, err := panel.Teams.Commit(ctx, draft); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	team, err := panel.Teams.Get(ctx, panel.Team.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff([]int{50, 30, 20}, weightsOf(team)); diff != "" {
		t.Fatalf("weights changed after rejected commit (-want +got):\n%s", diff)
	}

	if err := draft.SetWeight(modules[2].ID, 10); err != nil {
		t.Fatalf("SetWeight: %v", err)
	}
	team, err = panel.Teams.Commit(ctx, draft)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if diff := cmp.Diff([]int{60, 30, 10}, weightsOf(team)); diff != "" {
		t.Fatalf("weights mismatch (-want +got):\n%s", diff)
	}
}

func TestCommitDetectsStaleDraft(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)
	panel := testsupport.SeedPanel(t, db, 50, 50)

	draft := teams.NewDraft(panel.Team)
	modules := panel.Team.Modules()
	if err := draft.SetWeight(modules[1].ID, 50); err != nil {
		t.Fatalf("SetWeight: %v", err)
	}
	if _, err := panel.Teams.RemoveMember(ctx, panel.Team.ID, modules[1].ID); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if _, err := panel.Teams.Commit(ctx, draft); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCoordinatorSeatIsPinned(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)
	panel := testsupport.SeedPanel(t, db, 60, 40)
	ctx := context.Background()
	coordinator := panel.Team.Coordinator()

	draft := teams.NewDraft(panel.Team)
	if err := draft.SetWeight(coordinator.ID, 10); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected coordinator weight to be fixed, got %v", err)
	}
	if err := draft.RemoveMember(coordinator.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected coordinator removal to fail, got %v", err)
	}
	if _, err := panel.Teams.RemoveMember(ctx, panel.Team.ID, coordinator.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected coordinator removal to fail, got %v", err)
	}
	if _, err := panel.Teams.AddMember(ctx, panel.Team.ID, panel.Coordinator.ID, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected manual coordinator add to fail, got %v", err)
	}
	if _, err := panel.Teams.AddMember(ctx, panel.Team.ID, panel.Agents[0].ID, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected duplicate member to fail, got %v", err)
	}
	over := 101
	extra := testsupport.SeedAgent(t, panel.Registry, "extra")
	if _, err := panel.Teams.AddMember(ctx, panel.Team.ID, extra.ID, &over); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected out of range weight to fail, got %v", err)
	}
	member, err := panel.Teams.AddMember(ctx, panel.Team.ID, extra.ID, nil)
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if member.Weight != teams.DefaultMemberWeight || member.SortOrder != 2 {
		t.Fatalf("unexpected new member %+v", member)
	}
	if v, err := panel.Teams.Validate(ctx, panel.Team.ID); err != nil || v.Valid || v.WeightSum != 110 {
		t.Fatalf("expected unrunnable panel at 110, got %+v %v", v, err)
	}
}

func TestReorderExcludesCoordinator(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)
	panel := testsupport.SeedPanel(t, db, 50, 30, 20)
	ctx := context.Background()
	modules := panel.Team.Modules()

	if _, err := panel.Teams.Reorder(ctx, panel.Team.ID, []string{panel.Team.Coordinator().ID, modules[0].ID, modules[1].ID}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected coordinator in order to fail, got %v", err)
	}
	team, err := panel.Teams.Reorder(ctx, panel.Team.ID, []string{modules[2].ID, modules[0].ID, modules[1].ID})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if diff := cmp.Diff([]int{20, 50, 30}, weightsOf(team)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if !team.Members[0].IsCoordinator {
		t.Fatal("coordinator must stay first")
	}

	draft := teams.NewDraft(team)
	if _, err := panel.Teams.DistributeEvenly(ctx, team.ID); err != nil {
		t.Fatalf("DistributeEvenly: %v", err)
	}
	draft.DistributeEvenly()
	if diff := cmp.Diff([]int{34, 33, 33}, weightsOf(&teams.Team{Members: draft.Members()})); diff != "" {
		t.Fatalf("draft distribute mismatch (-want +got):\n%s", diff)
	}
}

func TestSetDefaultIsExclusivePerTenant(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)
	panel := testsupport.SeedPanel(t, db)
	ctx := context.Background()

	second, err := panel.Teams.CreateTeam(ctx, teams.Team{TenantID: testsupport.TestTenant, Name: "15 anos", EventType: "15_anos"}, []string{panel.Agents[0].ID})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if err := panel.Teams.SetDefault(ctx, panel.Team.ID); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}
	if err := panel.Teams.SetDefault(ctx, second.ID); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}
	def, err := panel.Teams.Default(ctx, testsupport.TestTenant)
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if def.ID != second.ID || def.MeetingType() != "15_anos" {
		t.Fatalf("unexpected default %+v", def)
	}
	if _, err := panel.Teams.GetForTenant(ctx, "other-tenant", second.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected cross-tenant lookup to fail, got %v", err)
	}
}

func TestCheckReportsProblems(t *testing.T) {
	v := teams.Check([]teams.Member{{ID: "a", AgentKey: "a", Weight: 40}})
	if v.Valid {
		t.Fatal("expected invalid panel")
	}
	want := []string{"panel has no coordinator", "module weights sum to 40, expected 100"}
	if diff := cmp.Diff(want, v.Problems); diff != "" {
		t.Fatalf("problems mismatch (-want +got):\n%s", diff)
	}
}

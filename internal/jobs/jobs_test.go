package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"evalpanel/internal/aggregate"
	"evalpanel/internal/config"
	"evalpanel/internal/consolidation"
	"evalpanel/internal/jobs"
	"evalpanel/internal/logging"
	"evalpanel/internal/services"
	"evalpanel/internal/store"
	"evalpanel/internal/testsupport"
)

type harness struct {
	cfg    *config.Config
	db     *store.DB
	panel  *testsupport.Panel
	svc    *jobs.Service
	caller services.Caller
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	db := testsupport.MustOpenStore(t, cfg)
	panel := testsupport.SeedPanel(t, db)
	return &harness{
		cfg:    cfg,
		db:     db,
		panel:  panel,
		svc:    jobs.NewService(db, panel.Teams, cfg, logging.NewNop()),
		caller: services.Caller{UserID: "user-1", TenantID: testsupport.TestTenant, Role: services.RoleManager},
	}
}

func (h *harness) submit(t *testing.T) *jobs.Job {
	t.Helper()
	job, err := h.svc.Submit(context.Background(), h.caller, jobs.Submission{
		TeamID:     h.panel.Team.ID,
		Title:      "Reunião Silva",
		Transcript: testsupport.Transcript(200),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return job
}

func (h *harness) countJobs(t *testing.T) int {
	t.Helper()
	var n int
	if err := h.db.QueryRow(context.Background(), `SELECT COUNT(1) FROM jobs`).Scan(&n); err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	return n
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func TestSubmitQueuesJob(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t)

	if job.Status != jobs.StatusQueued {
		t.Fatalf("status = %s, want queued", job.Status)
	}
	if job.Model != h.cfg.Jobs.DefaultModel {
		t.Fatalf("model = %q, want default", job.Model)
	}
	if job.QueuedAt == nil {
		t.Fatal("expected queuedAt")
	}
	stored, err := h.svc.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.MeetingType != "casamento" || stored.ContractStatus != jobs.ContractNA {
		t.Fatalf("unexpected stored job %+v", stored)
	}
	if stored.CreatedBy != "user-1" {
		t.Fatalf("createdBy = %q", stored.CreatedBy)
	}
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)
	negative := -1
	tests := []struct {
		name string
		sub  jobs.Submission
	}{
		{"short transcript", jobs.Submission{Title: "t", Transcript: testsupport.Transcript(99)}},
		{"missing title", jobs.Submission{Title: "  ", Transcript: testsupport.Transcript(150)}},
		{"model not allowed", jobs.Submission{Title: "t", Transcript: testsupport.Transcript(150), Model: "mistral/large"}},
		{"unknown contract", jobs.Submission{Title: "t", Transcript: testsupport.Transcript(150), ContractStatus: "signed"}},
		{"negative guests", jobs.Submission{Title: "t", Transcript: testsupport.Transcript(150), GuestCount: &negative}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.sub.TeamID = h.panel.Team.ID
			_, err := h.svc.Submit(context.Background(), h.caller, tt.sub)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if n := h.countJobs(t); n != 0 {
		t.Fatalf("expected no job rows, got %d", n)
	}
}

func TestSubmitRejectsUnrunnableOrForeignTeam(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := jobs.Submission{TeamID: h.panel.Team.ID, Title: "t", Transcript: testsupport.Transcript(150)}

	foreign := h.caller
	foreign.TenantID = "other-tenant"
	if _, err := h.svc.Submit(ctx, foreign, sub); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for foreign tenant, got %v", err)
	}

	module := h.panel.Team.Modules()[0]
	if _, err := h.db.Exec(ctx, `UPDATE team_members SET weight = 10 WHERE id = ?`, module.ID); err != nil {
		t.Fatalf("skew weight: %v", err)
	}
	if _, err := h.svc.Submit(ctx, h.caller, sub); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unbalanced panel, got %v", err)
	}
	if n := h.countJobs(t); n != 0 {
		t.Fatalf("expected no job rows, got %d", n)
	}
}

func TestSubmitUsesDefaultTeam(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.panel.Teams.SetDefault(ctx, h.panel.Team.ID); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}
	job, err := h.svc.Submit(ctx, h.caller, jobs.Submission{Title: "t", Transcript: testsupport.Transcript(120)})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.TeamID != h.panel.Team.ID {
		t.Fatalf("team = %s, want default %s", job.TeamID, h.panel.Team.ID)
	}
}

func TestClaimIsConditional(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.submit(t)

	claimed, err := h.svc.Claim(ctx, job.ID)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed.Status != jobs.StatusProcessing || claimed.ProcessingStartedAt == nil {
		t.Fatalf("unexpected claimed job %+v", claimed)
	}
	if _, err := h.svc.Claim(ctx, job.ID); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict on second claim, got %v", err)
	}
	if _, err := h.svc.Claim(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClaimNextTakesOldest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.submit(t)
	h.submit(t)

	claimed, err := h.svc.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected oldest job %s, got %+v", first.ID, claimed)
	}
	if _, err := h.svc.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	none, err := h.svc.ClaimNext(ctx)
	if err != nil || none != nil {
		t.Fatalf("expected empty queue, got %+v, %v", none, err)
	}
}

func TestApplyUpdateCompletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.submit(t)
	if _, err := h.svc.Claim(ctx, job.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	if _, err := h.svc.ApplyUpdate(ctx, job.ID, jobs.Update{Status: jobs.StatusCompleted}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error without score, got %v", err)
	}

	tokens := int64(1234)
	updated, err := h.svc.ApplyUpdate(ctx, job.ID, jobs.Update{
		Status:            jobs.StatusCompleted,
		FinalScore:        intPtr(71),
		Classification:    aggregate.Regular,
		MechanicalScore:   intPtr(66),
		CoordinatorResult: &consolidation.Result{FinalScore: 71, Classification: aggregate.Bom, Summary: "ok"},
		TokensUsed:        &tokens,
		ModelUsed:         "openai/gpt-4o",
		Modules: []jobs.ModuleRecord{
			{AgentKey: "modulo_1", Weight: 34, Result: aggregate.ModuleResult{Score: 80}},
		},
	})
	if err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if updated.Status != jobs.StatusCompleted || updated.CompletedAt == nil {
		t.Fatalf("unexpected job %+v", updated)
	}
	if updated.Classification != aggregate.Bom {
		t.Fatalf("classification = %s, want recomputed BOM", updated.Classification)
	}
	if updated.MechanicalClassification != aggregate.Regular {
		t.Fatalf("mechanical classification = %s", updated.MechanicalClassification)
	}

	stored, err := h.svc.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.CoordinatorResult == nil || stored.CoordinatorResult.Summary != "ok" {
		t.Fatalf("coordinator result not stored: %+v", stored.CoordinatorResult)
	}
	if stored.TokensUsed != tokens || *stored.FinalScore != 71 || *stored.MechanicalScore != 66 {
		t.Fatalf("unexpected stored job %+v", stored)
	}
	results, err := h.svc.Results(ctx, job.ID)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 1 || results[0].Result.Score != 80 {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestApplyUpdateRetryPolicy(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxRetries(2))
	ctx := context.Background()
	job := h.submit(t)

	var statuses []jobs.Status
	for i := 0; i < 3; i++ {
		if _, err := h.svc.Claim(ctx, job.ID); err != nil {
			t.Fatalf("Claim %d: %v", i, err)
		}
		updated, err := h.svc.ApplyUpdate(ctx, job.ID, jobs.Update{Status: jobs.StatusRetrying, LastError: strPtr("timeout")})
		if err != nil {
			t.Fatalf("ApplyUpdate %d: %v", i, err)
		}
		statuses = append(statuses, updated.Status)
		if updated.Status == jobs.StatusFailed {
			break
		}
	}
	want := []jobs.Status{jobs.StatusRetrying, jobs.StatusRetrying, jobs.StatusFailed}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Fatalf("statuses mismatch (-want +got):\n%s", diff)
	}
	stored, err := h.svc.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.RetryCount != 2 || stored.LastError != "timeout" {
		t.Fatalf("unexpected stored job %+v", stored)
	}
	if label := stored.RetryLabel(h.svc.MaxRetries()); label != "Tentativas: 2/2" {
		t.Fatalf("RetryLabel = %q", label)
	}
}

func TestApplyUpdateRejectsDisallowedEdges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.submit(t)

	if _, err := h.svc.ApplyUpdate(ctx, job.ID, jobs.Update{Status: jobs.StatusCompleted, FinalScore: intPtr(50)}); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict for queued -> completed, got %v", err)
	}
	if _, err := h.svc.ApplyUpdate(ctx, job.ID, jobs.Update{Status: jobs.StatusCancelled}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for cancel via update, got %v", err)
	}
	if _, err := h.svc.ApplyUpdate(ctx, job.ID, jobs.Update{Status: "paused"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
}

func TestUpdatesRequireClaimedJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	queued := h.submit(t)
	_, err := h.svc.ApplyUpdate(ctx, queued.ID, jobs.Update{FinalScore: intPtr(42), LastError: strPtr("x")})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict for unclaimed job, got %v", err)
	}
	err = h.svc.SaveModuleResult(ctx, jobs.ModuleRecord{JobID: queued.ID, AgentKey: "modulo_1"})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict saving result on unclaimed job, got %v", err)
	}
	stored, err := h.svc.Get(ctx, queued.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != jobs.StatusQueued || stored.FinalScore != nil || stored.LastError != "" {
		t.Fatalf("unclaimed job was modified: %+v", stored)
	}

	completed := h.submit(t)
	if _, err := h.svc.Claim(ctx, completed.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := h.svc.ApplyUpdate(ctx, completed.ID, jobs.Update{Status: jobs.StatusCompleted, FinalScore: intPtr(90)}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	_, err = h.svc.ApplyUpdate(ctx, completed.ID, jobs.Update{FinalScore: intPtr(10), LastError: strPtr("late write")})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict for completed job, got %v", err)
	}
	err = h.svc.SaveModuleResult(ctx, jobs.ModuleRecord{JobID: completed.ID, AgentKey: "modulo_1"})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict saving result on completed job, got %v", err)
	}
	stored, err = h.svc.Get(ctx, completed.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if *stored.FinalScore != 90 || stored.Classification != aggregate.Excelente || stored.LastError != "" {
		t.Fatalf("completed job was modified: %+v", stored)
	}

	retrying := h.submit(t)
	if _, err := h.svc.Claim(ctx, retrying.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := h.svc.ApplyUpdate(ctx, retrying.ID, jobs.Update{Status: jobs.StatusRetrying}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	_, err = h.svc.ApplyUpdate(ctx, retrying.ID, jobs.Update{Status: jobs.StatusCompleted, FinalScore: intPtr(70)})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected retrying job to need a new claim, got %v", err)
	}
}

func TestCancelledJobRefusesWorkerWrites(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.submit(t)
	if _, err := h.svc.Claim(ctx, job.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	cancelled, err := h.svc.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != jobs.StatusCancelled || cancelled.LastError != jobs.CancelReason || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected cancelled job %+v", cancelled)
	}

	_, err = h.svc.ApplyUpdate(ctx, job.ID, jobs.Update{Status: jobs.StatusCompleted, FinalScore: intPtr(90)})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	err = h.svc.SaveModuleResult(ctx, jobs.ModuleRecord{JobID: job.ID, AgentKey: "modulo_1"})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	stored, err := h.svc.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != jobs.StatusCancelled || stored.FinalScore != nil {
		t.Fatalf("cancelled job was modified: %+v", stored)
	}
}

func TestCancelRejectsTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.submit(t)
	if _, err := h.svc.Claim(ctx, job.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := h.svc.ApplyUpdate(ctx, job.ID, jobs.Update{Status: jobs.StatusCompleted, FinalScore: intPtr(88)}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if _, err := h.svc.Cancel(ctx, job.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected cancel of completed job to be rejected, got %v", err)
	}
	if _, err := h.svc.Cancel(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	completed := h.submit(t)
	if _, err := h.svc.Claim(ctx, completed.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := h.svc.ApplyUpdate(ctx, completed.ID, jobs.Update{Status: jobs.StatusCompleted, FinalScore: intPtr(90)}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if _, err := h.svc.Retry(ctx, completed.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected retry of completed job to be rejected, got %v", err)
	}

	failed := h.submit(t)
	if _, err := h.svc.Claim(ctx, failed.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := h.svc.ApplyUpdate(ctx, failed.ID, jobs.Update{Status: jobs.StatusFailed, LastError: strPtr("provider down")}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	requeued, err := h.svc.Retry(ctx, failed.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if requeued.Status != jobs.StatusQueued || requeued.LastError != "" || requeued.ProcessingStartedAt != nil {
		t.Fatalf("unexpected requeued job %+v", requeued)
	}
	if _, err := h.svc.Retry(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFailedJobCannotBeRequeuedByWorker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.submit(t)
	if _, err := h.svc.Claim(ctx, job.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := h.svc.ApplyUpdate(ctx, job.ID, jobs.Update{Status: jobs.StatusFailed}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if _, err := h.svc.ApplyUpdate(ctx, job.ID, jobs.Update{Status: jobs.StatusQueued}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected failed -> queued through update to be rejected, got %v", err)
	}
}

func TestListCountsAndScope(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		h.submit(t)
	}
	other := h.caller
	other.UserID = "user-2"
	if _, err := h.svc.Submit(ctx, other, jobs.Submission{TeamID: h.panel.Team.ID, Title: "x", Transcript: testsupport.Transcript(100)}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := h.svc.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	page, err := h.svc.List(ctx, jobs.Query{TenantID: testsupport.TestTenant, Page: 2, PageSize: 4})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 6 || len(page.Jobs) != 2 || page.Page != 2 {
		t.Fatalf("unexpected page total=%d len=%d page=%d", page.Total, len(page.Jobs), page.Page)
	}

	counts, err := h.svc.Counts(ctx, jobs.Query{TenantID: testsupport.TestTenant, Page: 2, PageSize: 1})
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if diff := cmp.Diff(jobs.Counts{Queued: 5, Processing: 1}, counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}

	restricted := services.Caller{UserID: "user-2", TenantID: testsupport.TestTenant, Role: services.RoleRestricted}
	own, err := h.svc.List(ctx, jobs.QueryFor(restricted))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if own.Total != 1 || own.Jobs[0].CreatedBy != "user-2" {
		t.Fatalf("restricted caller saw %d jobs", own.Total)
	}
	if _, err := h.svc.GetForCaller(ctx, restricted, page.Jobs[0].ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("restricted caller read another user's job: %v", err)
	}

	queued, err := h.svc.List(ctx, jobs.Query{TenantID: testsupport.TestTenant, Statuses: []jobs.Status{jobs.StatusProcessing}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if queued.Total != 1 {
		t.Fatalf("expected one processing job, got %d", queued.Total)
	}
}

func TestStuckDetection(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	threshold := 10 * time.Minute
	tests := []struct {
		name    string
		status  jobs.Status
		started time.Duration
		want    bool
	}{
		{"eleven minutes", jobs.StatusProcessing, 11 * time.Minute, true},
		{"nine minutes", jobs.StatusProcessing, 9 * time.Minute, false},
		{"exactly ten", jobs.StatusProcessing, 10 * time.Minute, false},
		{"queued is never stuck", jobs.StatusQueued, time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			started := now.Add(-tt.started)
			job := &jobs.Job{
				Status:              tt.status,
				CreatedAt:           now.Add(-2 * time.Hour),
				QueuedAt:            &started,
				ProcessingStartedAt: &started,
			}
			if got := job.IsStuck(now, threshold); got != tt.want {
				t.Fatalf("IsStuck = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStuckUsesLatestActivity(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	started := now.Add(-30 * time.Minute)
	queued := now.Add(-5 * time.Minute)
	job := &jobs.Job{Status: jobs.StatusProcessing, CreatedAt: now.Add(-time.Hour), QueuedAt: &queued, ProcessingStartedAt: &started}
	if job.IsStuck(now, 10*time.Minute) {
		t.Fatal("a recent queuedAt should keep the job fresh")
	}
}

func TestStuckQuery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stale := h.submit(t)
	fresh := h.submit(t)
	for _, id := range []string{stale.ID, fresh.ID} {
		if _, err := h.svc.Claim(ctx, id); err != nil {
			t.Fatalf("Claim: %v", err)
		}
	}
	old := store.FormatTime(time.Now().Add(-11 * time.Minute))
	if _, err := h.db.Exec(ctx, `UPDATE jobs SET created_at = ?, queued_at = ?, processing_started_at = ? WHERE id = ?`, old, old, old, stale.ID); err != nil {
		t.Fatalf("age job: %v", err)
	}
	stuck, err := h.svc.Stuck(ctx, testsupport.TestTenant, time.Now())
	if err != nil {
		t.Fatalf("Stuck: %v", err)
	}
	if len(stuck) != 1 || stuck[0].ID != stale.ID {
		t.Fatalf("unexpected stuck jobs %+v", stuck)
	}
}

func TestTransitionEdges(t *testing.T) {
	allowed := make(map[[2]jobs.Status]bool)
	for _, edge := range [][2]jobs.Status{
		{jobs.StatusQueued, jobs.StatusProcessing},
		{jobs.StatusQueued, jobs.StatusCancelled},
		{jobs.StatusProcessing, jobs.StatusCompleted},
		{jobs.StatusProcessing, jobs.StatusFailed},
		{jobs.StatusProcessing, jobs.StatusRetrying},
		{jobs.StatusProcessing, jobs.StatusCancelled},
		{jobs.StatusRetrying, jobs.StatusProcessing},
		{jobs.StatusRetrying, jobs.StatusCancelled},
		{jobs.StatusFailed, jobs.StatusQueued},
	} {
		allowed[edge] = true
	}
	for _, from := range jobs.AllStatuses() {
		for _, to := range jobs.AllStatuses() {
			if got := jobs.CanTransition(from, to); got != allowed[[2]jobs.Status{from, to}] {
				t.Fatalf("CanTransition(%s, %s) = %v", from, to, got)
			}
		}
	}
	if jobs.CanTransition(jobs.StatusCompleted, jobs.StatusCancelled) {
		t.Fatal("completed jobs cannot be cancelled")
	}
}

func TestDeleteCascadesResults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := h.submit(t)
	if _, err := h.svc.Claim(ctx, job.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := h.svc.SaveModuleResult(ctx, jobs.ModuleRecord{JobID: job.ID, AgentKey: "modulo_1", Result: aggregate.ModuleResult{Score: 70}}); err != nil {
		t.Fatalf("SaveModuleResult: %v", err)
	}
	if err := h.svc.Delete(ctx, job.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	var n int
	if err := h.db.QueryRow(ctx, `SELECT COUNT(1) FROM job_results`).Scan(&n); err != nil {
		t.Fatalf("count results: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected results to be removed, got %d", n)
	}
	if err := h.svc.Delete(ctx, job.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := jobs.ParseStatus(" Retrying "); !ok || status != jobs.StatusRetrying {
		t.Fatalf("ParseStatus = %q, %v", status, ok)
	}
	if _, ok := jobs.ParseStatus("paused"); ok {
		t.Fatal("unknown status accepted")
	}
}

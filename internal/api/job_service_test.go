package api_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"evalpanel/internal/api"
	"evalpanel/internal/jobs"
	"evalpanel/internal/logging"
	"evalpanel/internal/notifications"
	"evalpanel/internal/services"
	"evalpanel/internal/supervisor"
	"evalpanel/internal/testsupport"
)

type serviceEnv struct {
	svc    *api.JobService
	jobs   *jobs.Service
	caller services.Caller
	teamID string
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)
	panel := testsupport.SeedPanel(t, db)
	jobSvc := jobs.NewService(db, panel.Teams, cfg, logging.NewNop())
	sup := supervisor.New(cfg, jobSvc, notifications.NewService(nil), logging.NewNop())
	return &serviceEnv{
		svc:    api.NewJobService(jobSvc, sup),
		jobs:   jobSvc,
		caller: services.Caller{UserID: "user-1", TenantID: testsupport.TestTenant, Role: services.RoleManager},
		teamID: panel.Team.ID,
	}
}

func (e *serviceEnv) submit(t *testing.T) api.Job {
	t.Helper()
	job, err := e.svc.Submit(context.Background(), e.caller, jobs.Submission{
		TeamID:     e.teamID,
		Title:      "Reunião Costa",
		Transcript: testsupport.Transcript(200),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return job
}

func (e *serviceEnv) fail(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.jobs.Claim(ctx, id); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	msg := "provider unavailable"
	if _, err := e.jobs.ApplyUpdate(ctx, id, jobs.Update{Status: jobs.StatusFailed, LastError: &msg}); err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}
}

func TestJobServiceListIncludesCounts(t *testing.T) {
	env := newServiceEnv(t)
	env.submit(t)
	env.submit(t)

	resp, err := env.svc.List(context.Background(), env.caller, nil, 1, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if resp.Total != 2 || len(resp.Jobs) != 2 {
		t.Fatalf("total=%d len=%d, want 2", resp.Total, len(resp.Jobs))
	}
	if resp.Counts.Queued != 2 {
		t.Fatalf("queuedCount = %d, want 2", resp.Counts.Queued)
	}
	if resp.Jobs[0].RetryLabel != "Tentativas: 0/3" {
		t.Fatalf("retryLabel = %q", resp.Jobs[0].RetryLabel)
	}
}

func TestJobServiceDescribeScopesTenant(t *testing.T) {
	env := newServiceEnv(t)
	job := env.submit(t)

	detail, err := env.svc.Describe(context.Background(), env.caller, job.ID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if detail.Job.ID != job.ID || len(detail.Modules) != 0 {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	other := services.Caller{UserID: "user-9", TenantID: "outro-tenant", Role: services.RoleAdmin}
	if _, err := env.svc.Describe(context.Background(), other, job.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("foreign tenant err = %v, want not found", err)
	}
}

func TestJobServiceStuckFlag(t *testing.T) {
	env := newServiceEnv(t)
	job := env.submit(t)
	if _, err := env.jobs.Claim(context.Background(), job.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	env.svc.SetClock(func() time.Time { return time.Now().Add(11 * time.Minute) })

	detail, err := env.svc.Describe(context.Background(), env.caller, job.ID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if !detail.Job.Stuck {
		t.Fatal("expected processing job to read as stuck")
	}
	if detail.Job.Status != "processing" {
		t.Fatalf("status = %s, stuck must not transition", detail.Job.Status)
	}
}

func TestRetryFailedJobsByID(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()
	failed := env.submit(t)
	env.fail(t, failed.ID)
	queued := env.submit(t)

	result, err := api.RetryFailedJobsByID(ctx, env.svc, env.caller, []string{failed.ID, queued.ID, "missing"})
	if err != nil {
		t.Fatalf("RetryFailedJobsByID: %v", err)
	}
	if result.UpdatedCount != 1 {
		t.Fatalf("updatedCount = %d, want 1", result.UpdatedCount)
	}
	want := []api.RetryJobOutcome{api.RetryJobUpdated, api.RetryJobNotFailed, api.RetryJobNotFound}
	for i, outcome := range want {
		if result.Jobs[i].Outcome != outcome {
			t.Fatalf("job %d outcome = %s, want %s", i, result.Jobs[i].Outcome, outcome)
		}
	}
	if result.Jobs[0].NewStatus != "queued" {
		t.Fatalf("newStatus = %q, want queued", result.Jobs[0].NewStatus)
	}
}

func TestCancelJobsByID(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()
	queued := env.submit(t)
	failed := env.submit(t)
	env.fail(t, failed.ID)

	result, err := api.CancelJobsByID(ctx, env.svc, env.caller, []string{queued.ID, failed.ID})
	if err != nil {
		t.Fatalf("CancelJobsByID: %v", err)
	}
	if result.Jobs[0].Outcome != api.CancelJobUpdated || result.Jobs[0].PriorStatus != "queued" {
		t.Fatalf("queued job result = %+v", result.Jobs[0])
	}
	if result.Jobs[1].Outcome != api.CancelJobAlreadyTerminal {
		t.Fatalf("failed job outcome = %s", result.Jobs[1].Outcome)
	}

	detail, err := env.svc.Describe(ctx, env.caller, queued.ID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if detail.Job.Status != "cancelled" || detail.Job.LastError != jobs.CancelReason {
		t.Fatalf("cancelled job = %s %q", detail.Job.Status, detail.Job.LastError)
	}
}

func TestJobServiceDeleteRequiresVisibility(t *testing.T) {
	env := newServiceEnv(t)
	job := env.submit(t)
	restricted := services.Caller{UserID: "user-2", TenantID: testsupport.TestTenant, Role: services.RoleRestricted}
	if err := env.svc.Delete(context.Background(), restricted, job.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("restricted delete err = %v, want not found", err)
	}
	if err := env.svc.Delete(context.Background(), env.caller, job.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := env.svc.Describe(context.Background(), env.caller, job.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("after delete err = %v, want not found", err)
	}
}

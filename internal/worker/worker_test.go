package worker_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"evalpanel/internal/aggregate"
	"evalpanel/internal/config"
	"evalpanel/internal/jobs"
	"evalpanel/internal/logging"
	"evalpanel/internal/notifications"
	"evalpanel/internal/reasoning"
	"evalpanel/internal/services"
	"evalpanel/internal/testsupport"
	"evalpanel/internal/worker"
)

type stubProvider struct {
	mu          sync.Mutex
	scores      map[string]string
	coordinator string
	failModule  string
	onModule    func(key string)
	calls       []string
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(ctx context.Context, req reasoning.Request) (reasoning.Completion, error) {
	if strings.Contains(req.System, "Consolide") {
		p.record("coordenador")
		return reasoning.Completion{Content: p.coordinator, InputTokens: 100, OutputTokens: 50}, nil
	}
	for key, body := range p.scores {
		if !strings.Contains(req.System, "módulo "+key+".") {
			continue
		}
		p.record(key)
		if p.onModule != nil {
			p.onModule(key)
		}
		if key == p.failModule {
			return reasoning.Completion{}, services.Wrap(services.ErrTransient, "reasoning", "complete", "upstream 502", nil)
		}
		return reasoning.Completion{Content: body, InputTokens: 10, OutputTokens: 5}, nil
	}
	return reasoning.Completion{}, errors.New("unexpected prompt")
}

func (p *stubProvider) record(key string) {
	p.mu.Lock()
	p.calls = append(p.calls, key)
	p.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
	return nil
}

type fixture struct {
	cfg      *config.Config
	svc      *jobs.Service
	manager  *worker.Manager
	provider *stubProvider
	notifier *recordingNotifier
	job      *jobs.Job
}

func newFixture(t *testing.T, provider *stubProvider, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithWorker(2)}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	db := testsupport.MustOpenStore(t, cfg)
	panel := testsupport.SeedPanel(t, db, 50, 30, 20)
	svc := jobs.NewService(db, panel.Teams, cfg, logging.NewNop())
	notifier := &recordingNotifier{}
	manager := worker.NewManager(cfg, svc, panel.Teams, panel.Registry, provider, notifier, logging.NewNop())

	caller := services.Caller{UserID: "u1", TenantID: testsupport.TestTenant}
	job, err := svc.Submit(context.Background(), caller, jobs.Submission{
		TeamID:     panel.Team.ID,
		Title:      "Reunião Oliveira",
		Transcript: testsupport.Transcript(300),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return &fixture{cfg: cfg, svc: svc, manager: manager, provider: provider, notifier: notifier, job: job}
}

func panelScores() map[string]string {
	return map[string]string{
		"modulo_1": `{"nota": 80, "estrelas": "★★★★☆", "comentario": "bom"}`,
		"modulo_2": "```json\n{\"nota\": \"60\", \"comentario\": \"ok\"}\n```",
		"modulo_3": `{"nota": 40, "checklist": [{"item_name": "rapport", "classification": "not_done"}]}`,
	}
}

func (f *fixture) process(t *testing.T) *jobs.Job {
	t.Helper()
	processed, err := f.manager.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if !processed {
		t.Fatal("expected a job to be processed")
	}
	job, err := f.svc.Get(context.Background(), f.job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return job
}

func TestProcessCompletesWithCoordinatorOpinion(t *testing.T) {
	provider := &stubProvider{
		scores:      panelScores(),
		coordinator: `{"final_score": 72, "classification": "REGULAR", "resumo_estrategico": "Boa condução.", "recommendations": [{"title": "Criar urgência", "priority": "alta", "impact": "média"}]}`,
	}
	f := newFixture(t, provider)
	job := f.process(t)

	if job.Status != jobs.StatusCompleted {
		t.Fatalf("status = %s, last error %q", job.Status, job.LastError)
	}
	if *job.FinalScore != 72 || job.Classification != aggregate.Bom {
		t.Fatalf("final = %d %s, want 72 BOM", *job.FinalScore, job.Classification)
	}
	if *job.MechanicalScore != 66 || job.MechanicalClassification != aggregate.Regular {
		t.Fatalf("mechanical = %d %s, want 66 REGULAR", *job.MechanicalScore, job.MechanicalClassification)
	}
	if job.CoordinatorFallback || job.CoordinatorResult == nil || job.CoordinatorResult.Fallback {
		t.Fatalf("expected coordinator opinion, got %+v", job.CoordinatorResult)
	}
	if job.CoordinatorResult.Metadata == nil || job.CoordinatorResult.Metadata.AgentsConsolidated != 3 {
		t.Fatalf("unexpected metadata %+v", job.CoordinatorResult.Metadata)
	}
	if job.TokensUsed != 3*15+150 {
		t.Fatalf("tokens = %d", job.TokensUsed)
	}
	if got := provider.calls[len(provider.calls)-1]; got != "coordenador" {
		t.Fatalf("coordinator must run last, calls %v", provider.calls)
	}

	records, err := f.svc.Results(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	var scores []int
	for _, record := range records {
		scores = append(scores, record.Result.Score)
	}
	if diff := cmp.Diff([]int{80, 60, 40}, scores); diff != "" {
		t.Fatalf("stored scores mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessFallsBackOnMalformedCoordinator(t *testing.T) {
	provider := &stubProvider{scores: panelScores(), coordinator: "Desculpe, não consegui analisar."}
	f := newFixture(t, provider)
	job := f.process(t)

	if job.Status != jobs.StatusCompleted {
		t.Fatalf("status = %s, last error %q", job.Status, job.LastError)
	}
	if *job.FinalScore != 66 || job.Classification != aggregate.Regular {
		t.Fatalf("final = %d %s, want aggregate 66 REGULAR", *job.FinalScore, job.Classification)
	}
	if !job.CoordinatorFallback || !job.CoordinatorResult.Fallback {
		t.Fatal("expected fallback marker")
	}
	if len(job.CoordinatorResult.Warnings) == 0 || !strings.HasPrefix(job.CoordinatorResult.Warnings[0], "consolidação automática") {
		t.Fatalf("unexpected warnings %v", job.CoordinatorResult.Warnings)
	}
}

func TestProcessRetriesTransientModuleFailure(t *testing.T) {
	provider := &stubProvider{scores: panelScores(), failModule: "modulo_2"}
	f := newFixture(t, provider)
	job := f.process(t)

	if job.Status != jobs.StatusRetrying || job.RetryCount != 1 {
		t.Fatalf("status = %s retry = %d, want retrying 1", job.Status, job.RetryCount)
	}
	if !strings.Contains(job.LastError, "upstream 502") {
		t.Fatalf("lastError = %q", job.LastError)
	}
	for _, call := range provider.calls {
		if call == "coordenador" {
			t.Fatal("coordinator ran on an incomplete panel")
		}
	}
}

func TestProcessFailsOnceRetriesExhausted(t *testing.T) {
	provider := &stubProvider{scores: panelScores(), failModule: "modulo_1"}
	f := newFixture(t, provider, testsupport.WithMaxRetries(0))
	job := f.process(t)

	if job.Status != jobs.StatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if diff := cmp.Diff([]notifications.Event{notifications.EventJobFailed}, f.notifier.events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessStopsWhenCancelled(t *testing.T) {
	provider := &stubProvider{scores: panelScores(), coordinator: `{"final_score": 90}`}
	f := newFixture(t, provider)
	var once sync.Once
	provider.onModule = func(string) {
		once.Do(func() {
			if _, err := f.svc.Cancel(context.Background(), f.job.ID); err != nil {
				t.Errorf("Cancel: %v", err)
			}
		})
	}
	job := f.process(t)

	if job.Status != jobs.StatusCancelled || job.FinalScore != nil {
		t.Fatalf("cancelled job was written: %+v", job)
	}
	if job.LastError != jobs.CancelReason {
		t.Fatalf("lastError = %q", job.LastError)
	}
}

func TestProcessNextEmptyQueue(t *testing.T) {
	provider := &stubProvider{scores: panelScores(), coordinator: `{"final_score": 70}`}
	f := newFixture(t, provider)
	f.process(t)

	processed, err := f.manager.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if processed {
		t.Fatal("expected empty queue")
	}
}

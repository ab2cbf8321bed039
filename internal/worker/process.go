package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"evalpanel/internal/agents"
	"evalpanel/internal/aggregate"
	"evalpanel/internal/consolidation"
	"evalpanel/internal/jobs"
	"evalpanel/internal/logging"
	"evalpanel/internal/notifications"
	"evalpanel/internal/reasoning"
	"evalpanel/internal/services"
	"evalpanel/internal/teams"
)

// errCancelled marks a run abandoned because the job was cancelled.
var errCancelled = errors.New("job cancelled")

type moduleOutcome struct {
	member teams.Member
	result aggregate.ModuleResult
	tokens int64
}

// Process evaluates a claimed job end to end. Failures are recorded on the
// job; the returned error is reserved for problems persisting that record.
func (m *Manager) Process(ctx context.Context, job *jobs.Job) error {
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, m.logger).With(logging.String(logging.FieldTeamID, job.TeamID))
	start := m.now()

	err := m.evaluate(ctx, logger, job, start)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errCancelled), errors.Is(err, services.ErrConflict):
		logger.Info("job cancelled during evaluation; abandoning run")
		return nil
	case errors.Is(err, context.Canceled):
		return err
	default:
		return m.fail(ctx, logger, job, err)
	}
}

func (m *Manager) evaluate(ctx context.Context, logger *slog.Logger, job *jobs.Job, start time.Time) error {
	team, err := m.teams.Get(ctx, job.TeamID)
	if err != nil {
		return err
	}
	if err := teams.ValidateForRun(team); err != nil {
		return err
	}
	coordinatorSeat := team.Coordinator()
	coordinator, err := m.registry.Get(ctx, coordinatorSeat.AgentID)
	if err != nil {
		return err
	}

	outcomes, err := m.runModules(ctx, logger, job, team)
	if err != nil {
		return err
	}

	members := make([]aggregate.Member, 0, len(outcomes))
	results := make(map[string]aggregate.ModuleResult, len(outcomes))
	var tokens int64
	for _, outcome := range outcomes {
		result := outcome.result
		members = append(members, aggregate.Member{
			Key:    outcome.member.AgentKey,
			Name:   outcome.member.AgentName,
			Weight: outcome.member.Weight,
			Result: &result,
		})
		results[outcome.member.AgentKey] = result
		tokens += outcome.tokens
	}
	mechanical := aggregate.Aggregate(members)
	if mechanical.WeightWarning {
		logger.Warn("module weights do not sum to 100",
			logging.Int("weight_sum", mechanical.WeightSum),
			logging.Alert("weight_warning"),
		)
	}

	if err := m.ensureLive(ctx, job.ID); err != nil {
		return err
	}

	outcome, completion := m.runCoordinator(ctx, logger, job, team, coordinator, mechanical, results)
	tokens += completion.TokensUsed()
	report, err := consolidation.Consolidate(mechanical, outcome)
	if err != nil {
		return err
	}
	elapsed := m.now().Sub(start)
	report.Result.Metadata = &consolidation.Metadata{
		ProcessingTime:     elapsed.Seconds(),
		TokensUsed:         int(tokens),
		Model:              job.Model,
		AgentsConsolidated: len(outcomes),
	}
	if report.Fallback {
		logger.Warn("coordinator output unusable; completing from aggregate",
			logging.String("reason", report.FallbackReason),
			logging.String("raw", reasoning.Snippet(report.Raw)),
			logging.Alert("coordinator_fallback"),
		)
	}

	finalScore := report.FinalScore
	mechanicalScore := mechanical.FinalScore
	fallback := report.Fallback
	weightWarning := mechanical.WeightWarning
	seconds := elapsed.Seconds()
	updated, err := m.jobs.ApplyUpdate(ctx, job.ID, jobs.Update{
		Status:                   jobs.StatusCompleted,
		FinalScore:               &finalScore,
		Classification:           report.Classification,
		MechanicalScore:          &mechanicalScore,
		MechanicalClassification: mechanical.Classification,
		WeightWarning:            &weightWarning,
		CoordinatorResult:        &report.Result,
		CoordinatorFallback:      &fallback,
		TokensUsed:               &tokens,
		ProcessingTimeSeconds:    &seconds,
		ModelUsed:                job.Model,
	})
	if err != nil {
		return err
	}
	logger.Info("evaluation completed",
		logging.Int("final_score", finalScore),
		logging.String("classification", string(updated.Classification)),
		logging.Int("mechanical_score", mechanicalScore),
		logging.Bool("fallback", fallback),
		logging.Int64("tokens", tokens),
		logging.Duration("elapsed", elapsed),
	)
	m.publish(ctx, logger, notifications.EventJobCompleted, notifications.Payload{
		"jobId":          updated.ID,
		"title":          updated.Title,
		"score":          finalScore,
		"classification": string(updated.Classification),
		"fallback":       fallback,
	})
	return nil
}

// runModules evaluates every module seat in parallel, bounded by the
// configured concurrency. Each result is stored as soon as it arrives.
func (m *Manager) runModules(ctx context.Context, logger *slog.Logger, job *jobs.Job, team *teams.Team) ([]moduleOutcome, error) {
	modules := team.Modules()
	outcomes := make([]moduleOutcome, len(modules))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(m.concurrency)
	var saveMu sync.Mutex
	for i, member := range modules {
		group.Go(func() error {
			agent, err := m.registry.Get(groupCtx, member.AgentID)
			if err != nil {
				return err
			}
			started := m.now()
			completion, err := m.provider.Complete(groupCtx, reasoning.Request{
				Model:  job.Model,
				System: moduleSystemPrompt(agent, member),
				User:   moduleUserPrompt(job, team),
				JSON:   true,
			})
			if err != nil {
				return services.Wrap(services.ErrTransient, "worker", "module "+member.AgentKey, "reasoning request failed", err)
			}
			var result aggregate.ModuleResult
			if err := reasoning.DecodeJSON(completion.Content, &result); err != nil {
				return services.Wrap(services.ErrTransient, "worker", "module "+member.AgentKey,
					fmt.Sprintf("unusable module output %s", reasoning.Snippet(completion.Content)), err)
			}
			elapsed := m.now().Sub(started)
			seconds := elapsed.Seconds()

			saveMu.Lock()
			err = m.jobs.SaveModuleResult(groupCtx, jobs.ModuleRecord{
				JobID:                 job.ID,
				AgentKey:              member.AgentKey,
				AgentID:               member.AgentID,
				Weight:                member.Weight,
				Result:                result,
				TokensUsed:            completion.TokensUsed(),
				ProcessingTimeSeconds: &seconds,
			})
			saveMu.Unlock()
			if err != nil {
				return err
			}
			outcomes[i] = moduleOutcome{member: member, result: result, tokens: completion.TokensUsed()}
			logger.Debug("module evaluated",
				logging.String(logging.FieldAgentKey, member.AgentKey),
				logging.Int("score", result.Score),
				logging.Duration("elapsed", elapsed),
			)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// runCoordinator never fails the job: any problem becomes an absent outcome
// and the report falls back to the aggregate.
func (m *Manager) runCoordinator(ctx context.Context, logger *slog.Logger, job *jobs.Job, team *teams.Team, coordinator *agents.Agent, mechanical aggregate.Result, results map[string]aggregate.ModuleResult) (consolidation.Outcome, reasoning.Completion) {
	prompt, err := consolidation.BuildPrompt(consolidation.Input{
		Meeting:     meetingOf(job, team),
		Transcript:  job.Transcript,
		Aggregation: mechanical,
		Modules:     results,
	})
	if err != nil {
		return consolidation.Absent(err.Error()), reasoning.Completion{}
	}
	completion, err := m.provider.Complete(ctx, reasoning.Request{
		Model:  job.Model,
		System: coordinatorSystemPrompt(coordinator),
		User:   prompt,
		JSON:   true,
	})
	if err != nil {
		logger.Warn("coordinator request failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.ErrorKind(err)),
		)
		return consolidation.Absent(fmt.Sprintf("coordinator unavailable: %v", err)), reasoning.Completion{}
	}
	return consolidation.Parse(completion.Content), completion
}

func (m *Manager) ensureLive(ctx context.Context, jobID string) error {
	current, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if current.Status == jobs.StatusCancelled {
		return errCancelled
	}
	return nil
}

func (m *Manager) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		logger.Warn("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

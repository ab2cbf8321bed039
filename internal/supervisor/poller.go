package supervisor

import (
	"context"
	"time"

	"evalpanel/internal/jobs"
	"evalpanel/internal/services"
)

// ListSnapshot is one refresh of a job listing.
type ListSnapshot struct {
	Page   jobs.Page
	Counts jobs.Counts
	At     time.Time
}

// Poller refreshes job state for callers at fixed intervals. Reads are
// idempotent and may be repeated freely.
type Poller struct {
	jobs           *jobs.Service
	listInterval   time.Duration
	detailInterval time.Duration
}

// NewPoller builds a poller with the given intervals.
func NewPoller(jobSvc *jobs.Service, listInterval, detailInterval time.Duration) *Poller {
	if listInterval <= 0 {
		listInterval = 10 * time.Second
	}
	if detailInterval <= 0 {
		detailInterval = 5 * time.Second
	}
	return &Poller{jobs: jobSvc, listInterval: listInterval, detailInterval: detailInterval}
}

// ListInterval returns the list refresh interval.
func (p *Poller) ListInterval() time.Duration { return p.listInterval }

// DetailInterval returns the detail refresh interval.
func (p *Poller) DetailInterval() time.Duration { return p.detailInterval }

// Subscribe emits the job immediately and again whenever its status or
// update time changes. The channel closes once the job is terminal, the job
// disappears, or ctx ends. Access is checked once up front.
func (p *Poller) Subscribe(ctx context.Context, caller services.Caller, id string) (<-chan *jobs.Job, error) {
	first, err := p.jobs.GetForCaller(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	out := make(chan *jobs.Job, 1)
	go func() {
		defer close(out)
		last := first
		if !send(ctx, out, first) || first.Status.Terminal() {
			return
		}
		ticker := time.NewTicker(p.detailInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			job, err := p.jobs.Get(ctx, id)
			if err != nil {
				return
			}
			if job.Status == last.Status && job.UpdatedAt.Equal(last.UpdatedAt) {
				continue
			}
			last = job
			if !send(ctx, out, job) || job.Status.Terminal() {
				return
			}
		}
	}()
	return out, nil
}

// WatchList emits a page of jobs and the queue counts every list interval
// until ctx ends.
func (p *Poller) WatchList(ctx context.Context, q jobs.Query) (<-chan ListSnapshot, error) {
	first, err := p.list(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make(chan ListSnapshot, 1)
	go func() {
		defer close(out)
		if !send(ctx, out, first) {
			return
		}
		ticker := time.NewTicker(p.listInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			snap, err := p.list(ctx, q)
			if err != nil {
				continue
			}
			if !send(ctx, out, snap) {
				return
			}
		}
	}()
	return out, nil
}

func (p *Poller) list(ctx context.Context, q jobs.Query) (ListSnapshot, error) {
	page, err := p.jobs.List(ctx, q)
	if err != nil {
		return ListSnapshot{}, err
	}
	counts, err := p.jobs.Counts(ctx, q)
	if err != nil {
		return ListSnapshot{}, err
	}
	return ListSnapshot{Page: page, Counts: counts, At: time.Now()}, nil
}

func send[T any](ctx context.Context, out chan<- T, value T) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- value:
		return true
	}
}

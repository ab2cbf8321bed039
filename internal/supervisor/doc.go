// Package supervisor exposes the operator side of the job lifecycle.
//
// Retry and Cancel are tenant-scoped wrappers around the job service. Stuck
// detection is diagnostic only: the scheduled sweep logs and notifies once per
// newly stuck job but never transitions it. The Poller gives callers an
// idempotent read loop with fixed list and detail intervals.
package supervisor

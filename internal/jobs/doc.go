// Package jobs owns the evaluation job lifecycle.
//
// A job is created queued by Submit after its team, transcript, title and
// model pass validation. From there it moves only along the allowed edges:
//
//	queued -> processing -> completed | failed | retrying | cancelled
//	retrying -> processing | cancelled
//	failed -> queued (explicit retry)
//
// Claim is the single conditional update that hands write authority to a
// worker. Workers report progress through ApplyUpdate, which accepts partial
// updates and applies the retry policy; a cancelled job rejects further
// writes. Per-agent module results live in job_results and cascade on delete.
package jobs

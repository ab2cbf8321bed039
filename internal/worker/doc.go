// Package worker is the in-process reference worker for evaluation jobs.
//
// The Manager polls for the oldest claimable job, claims it through the
// conditional update, runs every module agent of the team in parallel, stores
// each module result, aggregates, and only then asks the coordinator for the
// consolidated report. All progress flows through the job update contract, so
// an external worker speaking the HTTP API behaves the same way.
//
// Cancellation is cooperative: the worker re-reads the job before each write
// and abandons the run when the job was cancelled.
package worker

// Package daemon coordinates the long-running evalpanel process.
//
// It wires configuration, the job store, the lifecycle supervisor, and the
// optional reference worker into a single lifecycle with flock-based locking
// to prevent multiple instances. The daemon also serves the HTTP API that
// dashboards and external workers use: submission, listing, retry/cancel,
// claim and the worker update contract.
//
// Caller identity is not authenticated here. An upstream auth layer passes
// tenant, user and role in request headers after the shared bearer token has
// been checked.
//
// Keep orchestration logic here: job rules live in internal/jobs and the
// evaluation pipeline in internal/worker.
package daemon

// Package api defines wire-format types and converters for the HTTP API and
// the CLI's JSON output. It translates evaluation jobs, module results and
// panel checks into transport-friendly DTOs that dashboards can render
// without coupling to internal types.
//
// # Key Types
//
// Job: transport representation of an evaluation job with its derived stuck
// flag and attempt label.
//
// JobDetail: a job together with its per-module results.
//
// JobListResponse: one page of jobs plus the queue counts for the same scope.
//
// RetryJobsResult/CancelJobsResult: per-id outcomes for batch actions.
//
// # Converters
//
// FromJob: jobs.Job -> Job, deriving stuck and retryLabel from the supplied
// clock, threshold and retry ceiling.
//
// FromModuleRecords: jobs.ModuleRecord -> ModuleResult in agent key order.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Status and classification enums are exposed
// as lowercase and uppercase strings respectively. Timestamps use RFC3339 with
// milliseconds. The coordinator result keeps its own snake_case document shape
// since downstream reports consume it verbatim.
//
// Stuck is computed at read time and never stored; a stuck job keeps its
// processing status until an operator acts.
package api

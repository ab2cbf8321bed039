// Package agents implements the Agent Registry: reusable scoring-agent
// templates holding the system, business-rules, and output-schema
// instruction blocks plus the coordinator flag.
//
// Exactly one active coordinator template may exist. Templates referenced by
// a job that is still queued, processing, or retrying are frozen; Update
// reports a conflict until those jobs settle. Templates can be seeded from the
// embedded defaults or imported from YAML documents.
package agents

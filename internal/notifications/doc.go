// Package notifications delivers evaluation job events to Slack.
//
// The default implementation posts to the incoming webhook configured in
// config.toml and degrades to a no-op when no webhook is set. Each event has
// a fixed title and message so the worker and supervisor emit consistent
// alerts without duplicating webhook glue.
package notifications

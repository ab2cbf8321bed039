// Package preflight runs the environment checks reported by `evalpanel config
// validate` and logged by the daemon at startup.
//
// Checks never contact external services: they confirm directory access,
// credentials for the configured reasoning provider, the stuck-sweep schedule,
// and the shape of the Slack webhook URL.
package preflight

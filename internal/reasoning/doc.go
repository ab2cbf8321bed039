// Package reasoning talks to the external models that play the panel agents.
//
// Two providers sit behind the Provider interface: an OpenRouter chat
// completion client with retry and backoff, and an Anthropic Messages client
// built on the official SDK. Both return plain text; callers decode the JSON
// payload with DecodeJSON, which tolerates code fences and surrounding prose.
//
// Provider errors are wrapped with services.ErrTransient or
// services.ErrExternalTool so the worker can decide between retrying and
// failing a job.
package reasoning

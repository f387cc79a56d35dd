// Package notifications delivers run events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Sink adapts a
// Service to the jobs event bus so queue runs, history imports and serve mode
// share one set of messages.
package notifications

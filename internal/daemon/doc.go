// Package daemon runs serve mode: one long-lived process that owns the queue
// runner, starts runs on a cron schedule, and streams run events to GUI
// clients over a websocket.
//
// A flock on the state directory keeps a second serve process from starting.
// Clients send confirm, stop and run commands over the same websocket or the
// small JSON API; everything else lives in the jobs package.
package daemon

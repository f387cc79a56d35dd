// Package jobs drives queued catalog records through generation.
//
// A Runner pulls queued records in ascending id order and hands each one to a
// Transport: the MusicGPT HTTP API, or the site automated through a browser.
// The transport submits the song, tracks the job to a terminal state and
// returns the raw service document. The Retriever normalizes that document,
// downloads both renditions through the artifact store and builds the
// catalog update. Progress is published as Events on a Bus without ever
// blocking the runner.
//
// Runs are cooperative: Stop sets a flag that is observed at every sleep,
// confirmation wait and step boundary. Network calls already in flight finish
// first.
package jobs

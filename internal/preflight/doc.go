// Package preflight checks the environment before a run: writable
// directories, a usable catalog, credentials for the API transport, and a
// browser plus selector registry for the automation transport.
package preflight

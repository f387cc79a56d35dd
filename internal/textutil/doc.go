// Package textutil provides text helpers shared by the artifact store, the
// automation driver and history import.
//
// The primary use cases are:
//   - Slugifying song titles into filesystem-safe directory and file names
//   - Case-folded title comparison for catalog matching
//   - Word-overlap scoring used to pick a song card by title
//   - Sanitizing short tokens (screenshot contexts) for filenames
package textutil

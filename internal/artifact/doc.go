// Package artifact downloads generated songs into the library and decides
// whether a file on disk is real audio.
//
// Validator inspects size and leading signature bytes only; it knows nothing
// about expected sizes. Store owns naming (date-prefixed song directory plus
// slug and rendition), atomic writes, remote size checks and the
// expected-size tolerance check, and removes any file that fails either check
// so a rejected download never lingers in the library.
package artifact

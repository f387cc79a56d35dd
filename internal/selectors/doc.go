// Package selectors persists ordered selector candidates for the automation
// driver.
//
// Each group maps a UI element (prompt textarea, generate button, song card)
// to candidate selectors, most recently successful first. The driver promotes
// a candidate when it matches and demotes it when it fails, so learned order
// survives site markup drift across sessions. The registry is a JSON object
// written atomically under a file lock.
package selectors

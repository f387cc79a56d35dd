// Package metadata normalizes the heterogeneous response shapes of the music
// service (submit responses, by-id status documents, history feed entries and
// legacy rendition lists) into one flat Resolved value.
//
// URL resolution follows a fixed priority: numbered rendition fields, generic
// audio fields, legacy rendition lists, storage URLs rebuilt from conversion
// ids, and finally a storage URL rebuilt from the job id. Any URL equal to a
// configured placeholder bucket root counts as absent at every step.
package metadata

// Package services defines shared utilities consumed by the job runners and
// the external service clients.
//
// Key responsibilities:
//   - The failure taxonomy (credential_invalid, rate_limited, network_error,
//     timeout, selector_not_found, verification_failed, no_artifact_resolved,
//     service_error) as sentinel markers plus the Wrap helper.
//   - KindOf/IsTransient/Note so runners decide between local retries and
//     failing the current catalog record with a readable note.
//   - Context helpers that stamp record ids, job ids, run ids and the active
//     transport for logging.
package services

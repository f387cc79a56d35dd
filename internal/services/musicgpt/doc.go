// Package musicgpt talks to the MusicGPT-compatible generation API.
//
// The client issues single requests and leaves polling policy to callers:
//
//   - Submit: POST {base}/MusicAI with the prompt and lyrics
//   - Status: GET {base}/byId?conversionType=MUSIC_AI&task_id=X
//   - StatusByConversionID: the same endpoint keyed by conversion id
//
// Non-2xx responses surface as *StatusError, which carries the status code
// and any Retry-After hint and classifies itself into a services.Kind:
// 401/403 are credential_invalid, 429 is rate_limited, 5xx is network_error
// and every other 4xx is service_error. Transport failures are wrapped with
// services.ErrNetwork.
package musicgpt

// Package automation drives the music site through Chrome using chromedp.
//
// The Driver owns one browser per process, launched lazily with a dedicated
// user-data directory so the login session survives restarts. Every
// interactive lookup goes through the selector registry: candidates are tried
// in order, the first visible one is promoted and the ones that failed before
// it are demoted. A group whose candidates are all invisible fails with
// selector_not_found and leaves a screenshot behind.
//
// Submit arms a network listener before clicking generate. The listener
// records the Authorization header of outgoing API calls and searches JSON
// responses for the job id and conversion ids. FetchFresh reuses the
// captured token from inside the page to query the status endpoint.
// MenuDownload is the last-resort retrieval path through a song card's menu.
package automation

// Package history discovers songs already generated on the service and merges
// them into the catalog.
//
// Discovery reads the per-user project feed (FeedSource) or the public
// profile page loaded through the browser (ProfileSource). Import matches each
// discovered item against the catalog by job id, then by title, and stores
// its renditions through the same retriever the queue runner uses. SyncDetails
// backfills prompts and lyrics for records that only carry a job id.
package history

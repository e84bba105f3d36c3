// Package retry re-runs idempotent platform requests with backoff.
//
// Only reads are retried: article pages and compose forms. A note send is
// never retried because a lost response may still have delivered the note.
package retry

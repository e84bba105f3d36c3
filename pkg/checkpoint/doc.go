// Package checkpoint saves the outcome of each crawl so it can be reviewed
// and curated before sending.
//
// Every run is written to crawl-<runID>.json and copied to latest.json in
// the configured results directory (storage.results_dir). Files are written
// to a temporary path and renamed into place, so a reader never observes a
// half-written snapshot.
//
// The send command reads latest.json by default and narrows it with
// Select (the --only and --skip flags).
package checkpoint

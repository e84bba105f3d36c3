// Package crawler walks the configured cafe boards newest-first and collects
// each distinct author who posted inside the crawl window, skipping members
// already present in the ledger.
package crawler

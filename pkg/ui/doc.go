// Package ui renders crawl and send progress on the terminal and raises
// desktop notifications when a run finishes.
package ui

// Package sender delivers one note per recipient in order, honoring the
// provider's daily counter and recording each delivered recipient in the
// ledger.
//
// Every recipient gets a freshly fetched compose form. A failed recipient is
// counted and skipped; it never aborts the batch.
package sender

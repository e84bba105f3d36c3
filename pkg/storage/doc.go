// Package storage is the SQLite-backed store for everything cafenote keeps
// between runs.
//
// The storage package handles:
//   - The member ledger: who has already been collected or messaged
//   - Configured sources (cafe menus) and whether each is active
//   - Named message templates
//
// The ledger enforces one entry per member key. Inserting a key that is
// already present returns an error of type errors.ErrorTypeDuplicate and
// leaves the original entry in place, so callers can tell "already known"
// apart from "newly recorded".
//
// The database runs in WAL mode with a single open connection. It is safe
// for concurrent use from multiple goroutines.
//
// Usage:
//
//	db, err := storage.Open(cfg.Storage.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	keys, err := db.LedgerKeys(ctx)
//	...
//	_, err = db.CreateLedgerEntry(ctx, models.LedgerEntry{MemberKey: "abc123"})
//	if errors.IsType(err, errors.ErrorTypeDuplicate) {
//	    // already recorded
//	}
package storage

package storage

import (
	"context"
	"fmt"
	"strings"

	"cafenote/pkg/errors"
	"cafenote/pkg/models"
)

// CreateLedgerEntry records a member. An existing member key yields a
// duplicate error and leaves the stored entry untouched.
func (db *DB) CreateLedgerEntry(ctx context.Context, entry models.LedgerEntry) (*models.LedgerEntry, error) {
	entry.MemberKey = strings.TrimSpace(entry.MemberKey)
	if entry.MemberKey == "" {
		return nil, errors.Validation("ledger entry needs a member key")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = db.now()
	}

	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO ledger (member_key, nickname, source_ref, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(member_key) DO NOTHING`,
		entry.MemberKey, entry.Nickname, entry.SourceRef, toMillis(entry.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	if n == 0 {
		return nil, errors.Duplicate(entry.MemberKey)
	}

	entry.CreatedAt = fromMillis(toMillis(entry.CreatedAt))
	return &entry, nil
}

// LedgerEntries returns every entry, oldest first
func (db *DB) LedgerEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT member_key, nickname, source_ref, created_at
		FROM ledger ORDER BY created_at, member_key`)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		var created int64
		if err := rows.Scan(&e.MemberKey, &e.Nickname, &e.SourceRef, &created); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.CreatedAt = fromMillis(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// FindLedger returns the entries matching pred
func (db *DB) FindLedger(ctx context.Context, pred func(models.LedgerEntry) bool) ([]models.LedgerEntry, error) {
	all, err := db.LedgerEntries(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.LedgerEntry
	for _, e := range all {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// LedgerKeys snapshots the set of recorded member keys
func (db *DB) LedgerKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT member_key FROM ledger`)
	if err != nil {
		return nil, fmt.Errorf("query ledger keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan ledger key: %w", err)
		}
		keys[k] = struct{}{}
	}
	return keys, rows.Err()
}

// DeleteLedgerEntry forgets a member so later crawls can collect it again
func (db *DB) DeleteLedgerEntry(ctx context.Context, memberKey string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM ledger WHERE member_key = ?`, memberKey)
	if err != nil {
		return fmt.Errorf("delete ledger entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

package storage

import (
	"context"
	"fmt"
	"strings"

	"cafenote/pkg/errors"
	"cafenote/pkg/models"
)

// AddSource stores a new source. The same cafe menu cannot be added twice.
func (db *DB) AddSource(ctx context.Context, s models.Source) (*models.Source, error) {
	s.CafeID = strings.TrimSpace(s.CafeID)
	s.CategoryID = strings.TrimSpace(s.CategoryID)
	if s.CafeID == "" || s.CategoryID == "" {
		return nil, errors.Validation("source needs a cafe id and a category id")
	}
	if s.Name == "" {
		s.Name = s.Ref()
	}
	s.CreatedAt = fromMillis(toMillis(db.now()))

	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (cafe_id, category_id, name, url, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cafe_id, category_id) DO NOTHING`,
		s.CafeID, s.CategoryID, s.Name, s.URL, s.Active, toMillis(s.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.Validation(fmt.Sprintf("source %s is already configured", s.Ref()))
	}
	if s.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("insert source: %w", err)
	}
	return &s, nil
}

// ListSources returns every source in insertion order
func (db *DB) ListSources(ctx context.Context) ([]models.Source, error) {
	return db.querySources(ctx, `SELECT id, cafe_id, category_id, name, url, active, created_at FROM sources ORDER BY id`)
}

// ActiveSources returns the sources a crawl should visit
func (db *DB) ActiveSources(ctx context.Context) ([]models.Source, error) {
	return db.querySources(ctx, `SELECT id, cafe_id, category_id, name, url, active, created_at FROM sources WHERE active = 1 ORDER BY id`)
}

// Source looks one source up by id
func (db *DB) Source(ctx context.Context, id int64) (*models.Source, error) {
	sources, err := db.querySources(ctx, `SELECT id, cafe_id, category_id, name, url, active, created_at FROM sources WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, ErrNotFound
	}
	return &sources[0], nil
}

func (db *DB) querySources(ctx context.Context, query string, args ...interface{}) ([]models.Source, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		var s models.Source
		var created int64
		if err := rows.Scan(&s.ID, &s.CafeID, &s.CategoryID, &s.Name, &s.URL, &s.Active, &created); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		s.CreatedAt = fromMillis(created)
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// SetSourceActive enables or disables a source
func (db *DB) SetSourceActive(ctx context.Context, id int64, active bool) error {
	return db.execOne(ctx, `UPDATE sources SET active = ? WHERE id = ?`, active, id)
}

// RemoveSource deletes a source
func (db *DB) RemoveSource(ctx context.Context, id int64) error {
	return db.execOne(ctx, `DELETE FROM sources WHERE id = ?`, id)
}

// execOne runs a statement that must touch exactly one row
func (db *DB) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"cafenote/pkg/errors"
	"cafenote/pkg/models"
)

// AddTemplate stores a named message body
func (db *DB) AddTemplate(ctx context.Context, name, body string) (*models.Template, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(body) == "" {
		return nil, errors.Validation("template needs a name and a body")
	}
	t := models.Template{Name: name, Body: body, CreatedAt: fromMillis(toMillis(db.now()))}

	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO templates (name, body, created_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING`,
		t.Name, t.Body, toMillis(t.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.Validation(fmt.Sprintf("template %q already exists", name))
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}
	return &t, nil
}

// Templates lists templates by name
func (db *DB) Templates(ctx context.Context) ([]models.Template, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name, body, created_at FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var out []models.Template
	for rows.Next() {
		var t models.Template
		var created int64
		if err := rows.Scan(&t.ID, &t.Name, &t.Body, &created); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		t.CreatedAt = fromMillis(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

// TemplateByName looks a template up
func (db *DB) TemplateByName(ctx context.Context, name string) (*models.Template, error) {
	var t models.Template
	var created int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, body, created_at FROM templates WHERE name = ?`, name,
	).Scan(&t.ID, &t.Name, &t.Body, &created)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}
	t.CreatedAt = fromMillis(created)
	return &t, nil
}

// RemoveTemplate deletes a template by name
func (db *DB) RemoveTemplate(ctx context.Context, name string) error {
	return db.execOne(ctx, `DELETE FROM templates WHERE name = ?`, name)
}

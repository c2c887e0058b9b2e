package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/harrison/ptw/internal/models"
)

// sqlRepo is the Repository shared by the relational adapters. The dialects
// differ only in placeholder syntax and in how the table is created.
type sqlRepo struct {
	db          *sql.DB
	placeholder func(n int) string
}

const upsertPermit = `INSERT INTO permits (id, status, site_id, is_template, created_at, updated_at, document)
VALUES (%s, %s, %s, %s, %s, %s, %s)
ON CONFLICT (id) DO UPDATE SET
	status = excluded.status,
	site_id = excluded.site_id,
	is_template = excluded.is_template,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at,
	document = excluded.document`

func (r *sqlRepo) args(n int) []interface{} {
	out := make([]interface{}, n)
	for i := range out {
		out[i] = r.placeholder(i + 1)
	}
	return out
}

func (r *sqlRepo) Save(ctx context.Context, p *models.Permit) error {
	if p == nil || p.ID == "" {
		return errors.New("save permit: missing id")
	}
	data, err := models.Encode(p)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(upsertPermit, r.args(7)...)
	_, err = r.db.ExecContext(ctx, query,
		p.ID, string(p.Status), p.SiteID, p.IsTemplate,
		p.CreatedAt.UTC().UnixNano(), p.UpdatedAt.UTC().UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("save permit %s: %w", p.ID, err)
	}
	return nil
}

func (r *sqlRepo) Load(ctx context.Context, id string) (*models.Permit, error) {
	query := "SELECT document FROM permits WHERE id = " + r.placeholder(1)
	var doc []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load permit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load permit %s: %w", id, err)
	}
	return models.Decode(doc)
}

// listQuery builds the filtered SELECT for f.
func (r *sqlRepo) listQuery(f Filter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		clauses = append(clauses, clause+" "+r.placeholder(len(args)))
	}

	add("is_template =", f.Templates)
	if f.SiteID != "" {
		add("site_id =", f.SiteID)
	}
	if f.Status != "" {
		add("status =", string(f.Status))
	}
	if !f.From.IsZero() {
		add("created_at >=", f.From.UTC().UnixNano())
	}
	if !f.To.IsZero() {
		add("created_at <=", f.To.UTC().UnixNano())
	}

	query := "SELECT document FROM permits WHERE " + strings.Join(clauses, " AND ") +
		" ORDER BY created_at DESC, id ASC"
	return query, args
}

func (r *sqlRepo) List(ctx context.Context, f Filter) ([]*models.Permit, error) {
	query, args := r.listQuery(f)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list permits: %w", err)
	}
	defer rows.Close()

	var out []*models.Permit
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan permit: %w", err)
		}
		p, err := models.Decode(doc)
		if err != nil {
			return nil, err
		}
		if f.Requires != "" && !p.IsRequired(f.Requires) {
			continue
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list permits: %w", err)
	}
	return out, nil
}

func (r *sqlRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM permits WHERE id = "+r.placeholder(1), id)
	if err != nil {
		return fmt.Errorf("delete permit %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete permit %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete permit %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *sqlRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

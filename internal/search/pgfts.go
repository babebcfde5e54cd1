package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a
// fallback, and owns the draft_search_entries table that feeds both
// backends.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries draft_search_entries with plainto_tsquery and ts_rank,
// using ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.OwnerID == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "owner_id = $1 AND fts @@ plainto_tsquery('english', $2)"
	args := []any{q.OwnerID, q.Text}
	if q.FilterNamespace != "" {
		where += " AND namespace = $3"
		args = append(args, q.FilterNamespace)
	}

	ctx := context.Background()

	var total int
	countSQL := "SELECT count(*) FROM draft_search_entries WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT namespace, section_id,
			ts_headline('english', content, plainto_tsquery('english', $2), 'MaxFragments=1,MaxWords=30') AS snippet
		FROM draft_search_entries
		WHERE %s
		ORDER BY ts_rank(fts, plainto_tsquery('english', $2)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Namespace, &r.SectionID, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// UpsertEntry writes or refreshes a section's search row.
func (p *PgFTS) UpsertEntry(ctx context.Context, entry SectionEntry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO draft_search_entries (owner_id, namespace, section_id, content, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (owner_id, namespace, section_id) DO UPDATE SET content=EXCLUDED.content, updated_at=NOW()
	`, entry.OwnerID, entry.Namespace, entry.SectionID, entry.Content)
	if err != nil {
		return fmt.Errorf("upsert search entry: %w", err)
	}
	return nil
}

// LoadAllEntries returns every search row for full reindexing.
func (p *PgFTS) LoadAllEntries(ctx context.Context) ([]SectionEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT owner_id, namespace, section_id, content
		FROM draft_search_entries
	`)
	if err != nil {
		return nil, fmt.Errorf("load search entries: %w", err)
	}
	defer rows.Close()

	entries := make([]SectionEntry, 0)
	for rows.Next() {
		var e SectionEntry
		if err := rows.Scan(&e.OwnerID, &e.Namespace, &e.SectionID, &e.Content); err != nil {
			return nil, fmt.Errorf("scan search entry: %w", err)
		}
		e.ID = EntryID(e.OwnerID, e.Namespace, e.SectionID)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search entries: %w", err)
	}
	return entries, nil
}

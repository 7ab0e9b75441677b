package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/notecanvas/internal/apperr"
)

// PageRow represents a row in the pages table.
type PageRow struct {
	Path       string
	DocumentID string
	Number     int
	Checksum   string
	Size       int64
	Strokes    int
	UpdatedAt  time.Time
}

// DocumentRow aggregates the indexed pages of one document.
type DocumentRow struct {
	ID        string
	Pages     int // highest stored page number
	UpdatedAt time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	DocumentID string
	Number     int
	Snippet    string
}

// UpsertPage inserts or replaces a page row.
func (db *DB) UpsertPage(p PageRow) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`
		INSERT INTO pages (path, document_id, page_number, checksum, size, strokes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum   = excluded.checksum,
			size       = excluded.size,
			strokes    = excluded.strokes,
			updated_at = excluded.updated_at
	`, p.Path, p.DocumentID, p.Number, p.Checksum, p.Size, p.Strokes, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert page: %w", err)
	}
	return nil
}

// DeletePage removes a page row together with its recognized text.
func (db *DB) DeletePage(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var doc string
	var n int
	err = tx.QueryRow(`SELECT document_id, page_number FROM pages WHERE path = ?`, path).Scan(&doc, &n)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("index: lookup page: %w", err)
	}

	ftsDelete(tx, doc, n)
	_, _ = tx.Exec(`DELETE FROM page_text WHERE document_id = ? AND page_number = ?`, doc, n)
	_, _ = tx.Exec(`DELETE FROM pages WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a page, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM pages WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// GetPage returns one page row or apperr.ErrNotFound.
func (db *DB) GetPage(documentID string, number int) (*PageRow, error) {
	var p PageRow
	err := db.conn.QueryRow(`
		SELECT path, document_id, page_number, checksum, size, strokes, updated_at
		FROM pages WHERE document_id = ? AND page_number = ?
	`, documentID, number).Scan(&p.Path, &p.DocumentID, &p.Number, &p.Checksum, &p.Size, &p.Strokes, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: page %s/%d: %w", documentID, number, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get page: %w", err)
	}
	return &p, nil
}

// ListPages returns the stored pages of a document in page order.
func (db *DB) ListPages(documentID string) ([]PageRow, error) {
	rows, err := db.conn.Query(`
		SELECT path, document_id, page_number, checksum, size, strokes, updated_at
		FROM pages WHERE document_id = ?
		ORDER BY page_number
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("index: list pages: %w", err)
	}
	defer rows.Close()

	var out []PageRow
	for rows.Next() {
		var p PageRow
		if err := rows.Scan(&p.Path, &p.DocumentID, &p.Number, &p.Checksum, &p.Size, &p.Strokes, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Documents lists every document with stored pages, most recently updated first.
func (db *DB) Documents() ([]DocumentRow, error) {
	rows, err := db.conn.Query(`
		SELECT document_id, MAX(page_number), MAX(updated_at)
		FROM pages
		GROUP BY document_id
		ORDER BY MAX(updated_at) DESC, document_id
	`)
	if err != nil {
		return nil, fmt.Errorf("index: documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var d DocumentRow
		var updated string
		if err := rows.Scan(&d.ID, &d.Pages, &updated); err != nil {
			return nil, err
		}
		d.UpdatedAt = parseTime(updated)
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetText stores the recognized text of a page, replacing any earlier text.
func (db *DB) SetText(documentID string, number int, text string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO page_text (document_id, page_number, text, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(document_id, page_number) DO UPDATE SET
			text       = excluded.text,
			updated_at = excluded.updated_at
	`, documentID, number, text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("index: set text: %w", err)
	}
	if err := ftsUpsert(tx, documentID, number, text); err != nil {
		return err
	}
	return tx.Commit()
}

// GetText returns the recognized text of a page, or "" when none is stored.
func (db *DB) GetText(documentID string, number int) (string, error) {
	var text string
	err := db.conn.QueryRow(`SELECT text FROM page_text WHERE document_id = ? AND page_number = ?`,
		documentID, number).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get text: %w", err)
	}
	return text, nil
}

// AllChecksums returns path → checksum for every indexed page.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM pages`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// parseTime reads the text form sqlite3 returns for aggregated DATETIME columns.
func parseTime(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS page_text_fts USING fts5(
			document_id UNINDEXED,
			page_number UNINDEXED,
			text,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, documentID string, number int, text string) error {
	ftsDelete(tx, documentID, number)
	_, err := tx.Exec(`INSERT INTO page_text_fts (document_id, page_number, text) VALUES (?, ?, ?)`,
		documentID, number, text)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, documentID string, number int) {
	_, _ = tx.Exec(`DELETE FROM page_text_fts WHERE document_id = ? AND page_number = ?`, documentID, number)
}

// Search performs an FTS5 full-text search over recognized page text.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT document_id,
		       page_number,
		       snippet(page_text_fts, 2, '<b>', '</b>', '...', 32)
		FROM page_text_fts
		WHERE page_text_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.DocumentID, &r.Number, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

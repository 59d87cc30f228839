package metastore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/starford/munin/internal/apperr"
	"github.com/starford/munin/internal/models"
)

// Insert adds a new document row. Returns apperr.ErrAlreadyExists if
// the id is taken.
func (s *Store) Insert(doc *models.Document) error {
	metaJSON, err := json.Marshal(orEmpty(doc.Metadata))
	if err != nil {
		return fmt.Errorf("metastore: marshal metadata: %w", err)
	}
	_, err = s.conn.Exec(`
		INSERT INTO documents (id, collection, content, metadata, status, sync_attempts, checksum, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)
	`, doc.ID, doc.Collection, doc.Content, string(metaJSON), string(doc.Status), doc.Checksum, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
			return apperr.ErrAlreadyExists
		}
		return fmt.Errorf("metastore: insert: %w", err)
	}
	return nil
}

// Update replaces content, metadata, status, and checksum of an
// existing row. created_at and collection are never touched.
func (s *Store) Update(doc *models.Document) error {
	metaJSON, err := json.Marshal(orEmpty(doc.Metadata))
	if err != nil {
		return fmt.Errorf("metastore: marshal metadata: %w", err)
	}
	res, err := s.conn.Exec(`
		UPDATE documents
		SET content = ?, metadata = ?, status = ?, sync_attempts = ?, checksum = ?, updated_at = ?
		WHERE id = ?
	`, doc.Content, string(metaJSON), string(doc.Status), doc.SyncAttempts, doc.Checksum, doc.UpdatedAt, doc.ID)
	if err != nil {
		return fmt.Errorf("metastore: update: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// Get returns the document with the given id, or apperr.ErrNotFound.
func (s *Store) Get(id string) (*models.Document, error) {
	row := s.conn.QueryRow(`
		SELECT id, collection, content, metadata, status, sync_attempts, checksum, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)
	return scanDocument(row)
}

// Delete removes the row with the given id. Deleting an absent row is
// not an error.
func (s *Store) Delete(id string) error {
	if _, err := s.conn.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("metastore: delete: %w", err)
	}
	return nil
}

// SetStatus updates the sync status and attempt counter of a row.
func (s *Store) SetStatus(id string, status models.DocStatus, attempts int) error {
	res, err := s.conn.Exec(`UPDATE documents SET status = ?, sync_attempts = ? WHERE id = ?`,
		string(status), attempts, id)
	if err != nil {
		return fmt.Errorf("metastore: set status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// List returns up to limit documents, optionally filtered by
// collection, newest first. The total count (before limit) is returned
// alongside.
func (s *Store) List(collection string, limit int) ([]models.Document, int, error) {
	if limit <= 0 {
		limit = 50
	}

	where := ""
	args := []any{}
	if collection != "" {
		where = "WHERE collection = ?"
		args = append(args, collection)
	}

	var total int
	if err := s.conn.QueryRow(`SELECT count(*) FROM documents `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("metastore: count: %w", err)
	}

	args = append(args, limit)
	rows, err := s.conn.Query(`
		SELECT id, collection, content, metadata, status, sync_attempts, checksum, created_at, updated_at
		FROM documents `+where+` ORDER BY updated_at DESC LIMIT ?
	`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("metastore: list: %w", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *doc)
	}
	return out, total, rows.Err()
}

// ListByStatus returns documents in the given sync status with fewer
// than maxAttempts repair attempts.
func (s *Store) ListByStatus(status models.DocStatus, maxAttempts int) ([]models.Document, error) {
	rows, err := s.conn.Query(`
		SELECT id, collection, content, metadata, status, sync_attempts, checksum, created_at, updated_at
		FROM documents WHERE status = ? AND sync_attempts < ?
	`, string(status), maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("metastore: list by status: %w", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

// IDs returns the set of document ids in a collection.
func (s *Store) IDs(collection string) (map[string]struct{}, error) {
	rows, err := s.conn.Query(`SELECT id FROM documents WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("metastore: ids: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// Collections returns every distinct collection name.
func (s *Store) Collections() ([]string, error) {
	rows, err := s.conn.Query(`SELECT DISTINCT collection FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("metastore: collections: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of documents in a collection ("" for all).
func (s *Store) Count(collection string) (int, error) {
	var n int
	var err error
	if collection == "" {
		err = s.conn.QueryRow(`SELECT count(*) FROM documents`).Scan(&n)
	} else {
		err = s.conn.QueryRow(`SELECT count(*) FROM documents WHERE collection = ?`, collection).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("metastore: count: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var metaJSON, status string
	err := row.Scan(&doc.ID, &doc.Collection, &doc.Content, &metaJSON, &status,
		&doc.SyncAttempts, &doc.Checksum, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("metastore: scan: %w", err)
	}
	doc.Status = models.DocStatus(status)
	if err := json.Unmarshal([]byte(metaJSON), &doc.Metadata); err != nil {
		return nil, fmt.Errorf("metastore: unmarshal metadata: %w", err)
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	return &doc, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

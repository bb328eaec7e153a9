package store

import (
	"context"
	"database/sql"
	"errors"
)

const importKeyPrefix = "import:"

// setMetadata upserts a key-value pair in the exam_metadata table.
func (s *Store) setMetadata(ctx context.Context, db execer, key, value string) error {
	_, err := db.ExecContext(ctx, s.rebind(
		`INSERT INTO exam_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`),
		key, value,
	)
	return err
}

// getMetadata returns the value for a metadata key, or "" if it is missing.
func (s *Store) getMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT value FROM exam_metadata WHERE key = ?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// GetImportedFileHash returns the content hash recorded for the last import
// of path, or "" if the file was never imported.
func (s *Store) GetImportedFileHash(ctx context.Context, path string) (string, error) {
	return s.getMetadata(ctx, importKeyPrefix+path)
}

func (s *Store) setImportedFileHash(ctx context.Context, db execer, path, hash string) error {
	return s.setMetadata(ctx, db, importKeyPrefix+path, hash)
}

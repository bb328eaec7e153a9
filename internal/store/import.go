package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/xcalificator/grader/internal/model"
)

// ImportResult summarizes one exam file import.
type ImportResult struct {
	Name      string `json:"name"`
	Hash      string `json:"hash"`
	Imported  int    `json:"imported"`
	Unchanged bool   `json:"unchanged"`
}

// ImportExams saves the exam definitions of a JSON file (an array of exams)
// under the file's name. A file whose content hash matches the last import
// of the same name is skipped; a changed file updates its exams.
func (s *Store) ImportExams(ctx context.Context, name string, data []byte) (ImportResult, error) {
	res := ImportResult{Name: name, Hash: sha256sum(data)}
	stored, err := s.GetImportedFileHash(ctx, name)
	if err != nil {
		return res, fmt.Errorf("check import status for %s: %w", name, err)
	}
	if stored == res.Hash {
		slog.Info("exam file unchanged, skipping", "name", name)
		res.Unchanged = true
		return res, nil
	}
	if stored != "" {
		slog.Warn("exam file changed since last import, updating its exams", "name", name)
	}

	var exams []model.Exam
	if err := json.Unmarshal(data, &exams); err != nil {
		return res, fmt.Errorf("parse %s: %w", name, err)
	}
	for i := range exams {
		if exams[i].ID == "" {
			return res, fmt.Errorf("%s: exam at position %d has no id", name, i)
		}
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for i := range exams {
			if err := s.saveExam(ctx, tx, &exams[i]); err != nil {
				return err
			}
		}
		return s.setImportedFileHash(ctx, tx, name, res.Hash)
	})
	if err != nil {
		return res, fmt.Errorf("import %s: %w", name, err)
	}
	res.Imported = len(exams)
	slog.Info("imported exams", "name", name, "count", res.Imported)
	return res, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

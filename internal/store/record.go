package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xcalificator/grader/internal/model"
)

// ErrRecordExists is returned by InsertGradeRecord when the pair already has
// a record; use ReplaceGradeRecord to regrade.
var ErrRecordExists = errors.New("grade record already exists")

const recordColumns = `id, student_id, exam_id, score, detail, feedback,
	processed_image_url, extracted_text, supersedes_id, created_at`

// execer is the subset of *sql.DB and *sql.Tx used by insertRecord.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InsertGradeRecord stores the first grade record of a (student, exam) pair.
func (s *Store) InsertGradeRecord(ctx context.Context, rec *model.GradeRecord) error {
	err := s.insertRecord(ctx, s.db, rec)
	if isUniqueViolation(err) {
		return fmt.Errorf("student %s, exam %s: %w", rec.StudentID, rec.ExamID, ErrRecordExists)
	}
	return err
}

// ReplaceGradeRecord deletes the pair's current record, if any, and inserts
// rec in its place within one transaction. rec always gets a fresh ID and
// SupersedesID points at the deleted record.
func (s *Store) ReplaceGradeRecord(ctx context.Context, rec *model.GradeRecord) error {
	rec.ID = ""
	rec.SupersedesID = nil
	rec.CreatedAt = time.Time{}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var oldID string
		err := tx.QueryRowContext(ctx, s.rebind(
			`SELECT id FROM grade_records WHERE student_id = ? AND exam_id = ?`), rec.StudentID, rec.ExamID,
		).Scan(&oldID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("find current record: %w", err)
		default:
			if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM grade_records WHERE id = ?`), oldID); err != nil {
				return fmt.Errorf("delete record %s: %w", oldID, err)
			}
			rec.SupersedesID = &oldID
		}
		return s.insertRecord(ctx, tx, rec)
	})
}

func (s *Store) insertRecord(ctx context.Context, db execer, rec *model.GradeRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	var detail sql.NullString
	if rec.Detail != nil {
		b, err := json.Marshal(rec.Detail)
		if err != nil {
			return fmt.Errorf("encode detail: %w", err)
		}
		detail = sql.NullString{String: string(b), Valid: true}
	}
	var score sql.NullFloat64
	if rec.Score != nil {
		score = sql.NullFloat64{Float64: *rec.Score, Valid: true}
	}
	_, err := db.ExecContext(ctx, s.rebind(
		`INSERT INTO grade_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.StudentID, rec.ExamID, score, detail, rec.Feedback,
		nullString(rec.ProcessedImageURL), nullString(rec.ExtractedText), nullString(rec.SupersedesID), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert grade record: %w", err)
	}
	return nil
}

// GetGradeRecord returns the current record of a pair.
func (s *Store) GetGradeRecord(ctx context.Context, examID, studentID string) (*model.GradeRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+recordColumns+` FROM grade_records WHERE exam_id = ? AND student_id = ?`), examID, studentID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("student %s, exam %s: %w", studentID, examID, model.ErrGradeRecordNotFound)
	}
	return rec, err
}

// ListGradeRecords returns the current records of an exam ordered by student.
func (s *Store) ListGradeRecords(ctx context.Context, examID string) ([]model.GradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+recordColumns+` FROM grade_records WHERE exam_id = ? ORDER BY student_id`), examID)
	if err != nil {
		return nil, fmt.Errorf("list grade records: %w", err)
	}
	defer rows.Close()

	var out []model.GradeRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*model.GradeRecord, error) {
	var (
		rec                         model.GradeRecord
		score                       sql.NullFloat64
		detail, image, text, supers sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.StudentID, &rec.ExamID, &score, &detail, &rec.Feedback,
		&image, &text, &supers, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan grade record: %w", err)
	}
	if score.Valid {
		rec.Score = &score.Float64
	}
	if detail.Valid {
		rec.Detail = &model.GradeDetail{}
		if err := json.Unmarshal([]byte(detail.String), rec.Detail); err != nil {
			return nil, fmt.Errorf("decode detail of record %s: %w", rec.ID, err)
		}
	}
	rec.ProcessedImageURL = stringPtr(image)
	rec.ExtractedText = stringPtr(text)
	rec.SupersedesID = stringPtr(supers)
	return &rec, nil
}

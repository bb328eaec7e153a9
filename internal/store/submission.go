package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xcalificator/grader/internal/model"
)

// CreateSubmission stores a student's responses. A second submission for
// the same (student, exam) pair is ErrAlreadySubmitted.
func (s *Store) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO submissions (id, exam_id, student_id, responses, submitted_at) VALUES (?, ?, ?, ?, ?)`),
		sub.ID, sub.ExamID, sub.StudentID, nullJSON(sub.Responses), sub.SubmittedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("student %s, exam %s: %w", sub.StudentID, sub.ExamID, model.ErrAlreadySubmitted)
	}
	if err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// GetSubmission returns the stored submission of a pair, ErrResponseNotFound
// when the student never submitted.
func (s *Store) GetSubmission(ctx context.Context, examID, studentID string) (*model.Submission, error) {
	var (
		sub       model.Submission
		responses sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, exam_id, student_id, responses, submitted_at
		 FROM submissions WHERE exam_id = ? AND student_id = ?`), examID, studentID,
	).Scan(&sub.ID, &sub.ExamID, &sub.StudentID, &responses, &sub.SubmittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("student %s, exam %s: %w", studentID, examID, model.ErrResponseNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	sub.Responses = jsonBytes(responses)
	return &sub, nil
}

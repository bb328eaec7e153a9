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

// SaveExam inserts an exam or replaces the definition of an existing one.
func (s *Store) SaveExam(ctx context.Context, e *model.Exam) error {
	return s.saveExam(ctx, s.db, e)
}

func (s *Store) saveExam(ctx context.Context, db execer, e *model.Exam) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var deadline sql.NullTime
	if e.Deadline != nil {
		deadline = sql.NullTime{Time: *e.Deadline, Valid: true}
	}
	_, err := db.ExecContext(ctx, s.rebind(
		`INSERT INTO exams (id, title, content, answer_key, active_online, deadline, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET title = excluded.title, content = excluded.content,
		   answer_key = excluded.answer_key, active_online = excluded.active_online, deadline = excluded.deadline`),
		e.ID, e.Title, nullJSON(e.Content), nullJSON(e.AnswerKey), e.ActiveOnline, deadline, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save exam %s: %w", e.ID, err)
	}
	return nil
}

// GetExam returns an exam by ID, ErrExamNotFound when there is none.
func (s *Store) GetExam(ctx context.Context, id string) (*model.Exam, error) {
	var (
		e                  model.Exam
		content, answerKey sql.NullString
		deadline           sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, title, content, answer_key, active_online, deadline, created_at FROM exams WHERE id = ?`), id,
	).Scan(&e.ID, &e.Title, &content, &answerKey, &e.ActiveOnline, &deadline, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("exam %s: %w", id, model.ErrExamNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get exam %s: %w", id, err)
	}
	e.Content = jsonBytes(content)
	e.AnswerKey = jsonBytes(answerKey)
	if deadline.Valid {
		e.Deadline = &deadline.Time
	}
	return &e, nil
}

// ExamCount returns the number of stored exams.
func (s *Store) ExamCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exams`).Scan(&count)
	return count, err
}

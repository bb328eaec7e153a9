// Package gradebook owns the lifecycle of grade records: first grading of an
// online submission, grading of uploaded scans and regrading. A (student,
// exam) pair has at most one current record; regrading replaces it.
package gradebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xcalificator/grader/internal/answers"
	"github.com/xcalificator/grader/internal/blob"
	"github.com/xcalificator/grader/internal/grading"
	"github.com/xcalificator/grader/internal/metrics"
	"github.com/xcalificator/grader/internal/model"
)

// Store is the persistence the manager needs. store.Store implements it.
type Store interface {
	GetExam(ctx context.Context, id string) (*model.Exam, error)
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	GetSubmission(ctx context.Context, examID, studentID string) (*model.Submission, error)
	InsertGradeRecord(ctx context.Context, rec *model.GradeRecord) error
	ReplaceGradeRecord(ctx context.Context, rec *model.GradeRecord) error
	GetGradeRecord(ctx context.Context, examID, studentID string) (*model.GradeRecord, error)
}

// Extractor turns an uploaded file into text and parsed answers.
// ocr.Pipeline implements it.
type Extractor interface {
	Process(ctx context.Context, f model.UploadedFile) (*model.Extraction, error)
}

type Manager struct {
	store     Store
	grader    *grading.Grader
	extractor Extractor
	blobs     blob.Store
	metrics   *metrics.Metrics
	deferOpen bool
	now       func() time.Time
}

type Option func(*Manager)

func WithExtractor(e Extractor) Option { return func(m *Manager) { m.extractor = e } }

func WithBlobStore(b blob.Store) Option { return func(m *Manager) { m.blobs = b } }

func WithMetrics(mt *metrics.Metrics) Option { return func(m *Manager) { m.metrics = mt } }

// WithDeferOpenOnSubmit leaves open-ended questions pending when grading at
// submission time. Regrades and uploads still resolve them.
func WithDeferOpenOnSubmit(deferOpen bool) Option {
	return func(m *Manager) { m.deferOpen = deferOpen }
}

// WithClock overrides the clock used for deadlines.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func New(s Store, g *grading.Grader, opts ...Option) *Manager {
	m := &Manager{store: s, grader: g, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SubmitResult is the outcome of an online submission. Record is nil when
// auto-grading failed; the submission is kept either way.
type SubmitResult struct {
	Submission *model.Submission  `json:"submission"`
	Record     *model.GradeRecord `json:"record,omitempty"`
}

// Submit stores a student's online responses and attempts to grade them.
// The exam must be open online and before its deadline, and a student
// submits once per exam.
func (m *Manager) Submit(ctx context.Context, examID, studentID string, responses json.RawMessage) (*SubmitResult, error) {
	exam, err := m.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.ActiveOnline {
		return nil, fmt.Errorf("exam %s: %w", examID, model.ErrExamClosed)
	}
	if exam.Deadline != nil && m.now().After(*exam.Deadline) {
		return nil, fmt.Errorf("exam %s: deadline %s passed: %w", examID, exam.Deadline.Format(time.RFC3339), model.ErrExamClosed)
	}
	if _, err := answers.NormalizeResponses(responses); err != nil {
		return nil, err
	}

	sub := &model.Submission{ExamID: examID, StudentID: studentID, Responses: responses}
	if err := m.store.CreateSubmission(ctx, sub); err != nil {
		return nil, err
	}
	slog.Info("submission stored", "exam_id", examID, "student_id", studentID, "submission_id", sub.ID)

	res := &SubmitResult{Submission: sub}
	rec, err := m.CreateFromSubmission(ctx, exam, sub)
	if err != nil {
		slog.Error("auto-grading failed, submission kept ungraded",
			"exam_id", examID, "student_id", studentID, "error", err)
		return res, nil
	}
	res.Record = rec
	return res, nil
}

// CreateFromSubmission grades a stored submission and inserts its first
// grade record.
func (m *Manager) CreateFromSubmission(ctx context.Context, exam *model.Exam, sub *model.Submission) (*model.GradeRecord, error) {
	var opts []grading.GradeOption
	if m.deferOpen {
		opts = append(opts, grading.DeferOpen())
	}
	rec, err := m.gradeSubmission(ctx, exam, sub, opts...)
	if err != nil {
		return nil, err
	}
	if err := m.store.InsertGradeRecord(ctx, rec); err != nil {
		return nil, err
	}
	slog.Info("submission graded", "exam_id", exam.ID, "student_id", sub.StudentID,
		"record_id", rec.ID, "score", *rec.Score, "pending", rec.Detail.HasOpenQuestions)
	return rec, nil
}

// Regrade grades the stored submission of a pair again and replaces the
// current record. Every regrade yields a new record ID.
func (m *Manager) Regrade(ctx context.Context, examID, studentID string) (*model.GradeRecord, error) {
	exam, err := m.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	sub, err := m.store.GetSubmission(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}
	rec, err := m.gradeSubmission(ctx, exam, sub)
	if err != nil {
		return nil, err
	}
	if err := m.replace(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GradeUpload grades an uploaded scan or document of a student's exam and
// replaces the pair's current record.
func (m *Manager) GradeUpload(ctx context.Context, examID, studentID string, f model.UploadedFile) (*model.GradeRecord, error) {
	if m.extractor == nil {
		return nil, fmt.Errorf("no text extractor configured: %w", model.ErrOCRUnavailable)
	}
	exam, err := m.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := checkKey(exam); err != nil {
		return nil, err
	}

	originalURL, err := m.putBlob(ctx, "originals", f.Filename, f.ContentType, f.Data)
	if err != nil {
		return nil, err
	}
	ext, err := m.extractor.Process(ctx, f)
	if err != nil {
		return nil, err
	}
	imageURL := originalURL
	if len(ext.ProcessedImage) > 0 {
		if imageURL, err = m.putBlob(ctx, "processed", "", "image/png", ext.ProcessedImage); err != nil {
			return nil, err
		}
	}

	detail, err := m.grader.Grade(ctx, *exam, ext.Responses())
	if err != nil {
		return nil, err
	}
	rec := m.newRecord(ctx, exam.ID, studentID, detail)
	if imageURL != "" {
		rec.ProcessedImageURL = &imageURL
	}
	rec.ExtractedText = &ext.ExtractedText
	if err := m.replace(ctx, rec); err != nil {
		return nil, err
	}
	slog.Info("upload graded", "exam_id", examID, "student_id", studentID, "record_id", rec.ID,
		"writing_type", ext.WritingType, "questions", len(ext.Questions), "score", *rec.Score)
	return rec, nil
}

// checkKey fails when the exam has no key that grading could use. An
// object-shaped key passes since the judgment engine can still read it.
func checkKey(exam *model.Exam) error {
	doc := answers.Decode(exam.AnswerKey)
	_, err := answers.KeyFromDocument(doc)
	switch {
	case err == nil, doc.Shape == answers.ShapeObject:
		return nil
	case errors.Is(err, model.ErrInvalidAnswerKeyFormat):
		return fmt.Errorf("exam %s: %w: %w", exam.ID, model.ErrMissingAnswerKey, err)
	default:
		return fmt.Errorf("exam %s: %w", exam.ID, err)
	}
}

// Record returns the current grade record of a pair.
func (m *Manager) Record(ctx context.Context, examID, studentID string) (*model.GradeRecord, error) {
	return m.store.GetGradeRecord(ctx, examID, studentID)
}

func (m *Manager) gradeSubmission(ctx context.Context, exam *model.Exam, sub *model.Submission,
	opts ...grading.GradeOption) (*model.GradeRecord, error) {
	responses, err := answers.NormalizeResponses(sub.Responses)
	if err != nil {
		return nil, err
	}
	detail, err := m.grader.Grade(ctx, *exam, responses, opts...)
	if err != nil {
		return nil, err
	}
	return m.newRecord(ctx, exam.ID, sub.StudentID, detail), nil
}

func (m *Manager) newRecord(ctx context.Context, examID, studentID string, detail *model.GradeDetail) *model.GradeRecord {
	score := detail.TotalScore
	return &model.GradeRecord{
		StudentID: studentID,
		ExamID:    examID,
		Score:     &score,
		Detail:    detail,
		Feedback:  grading.FeedbackText(detail, m.grader.Phrases(ctx)),
	}
}

func (m *Manager) replace(ctx context.Context, rec *model.GradeRecord) error {
	if err := m.store.ReplaceGradeRecord(ctx, rec); err != nil {
		return err
	}
	if rec.SupersedesID != nil {
		m.metrics.Regraded()
		slog.Info("grade record replaced", "exam_id", rec.ExamID, "student_id", rec.StudentID,
			"record_id", rec.ID, "supersedes", *rec.SupersedesID)
	}
	return nil
}

func (m *Manager) putBlob(ctx context.Context, prefix, filename, contentType string, data []byte) (string, error) {
	if m.blobs == nil {
		return "", nil
	}
	url, err := m.blobs.Put(ctx, blob.NewKey(prefix, filename, contentType), contentType, data)
	if err != nil {
		return "", fmt.Errorf("store %s upload: %w", prefix, err)
	}
	return url, nil
}

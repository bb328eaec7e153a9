package store

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/xcalificator/grader/internal/model"
)

// ExportGrades builds the export document of an exam from its current
// grade records.
func (s *Store) ExportGrades(ctx context.Context, examID string) (model.GradeExport, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return model.GradeExport{}, err
	}
	records, err := s.ListGradeRecords(ctx, examID)
	if err != nil {
		return model.GradeExport{}, fmt.Errorf("export exam %s: %w", examID, err)
	}

	results := lo.Map(records, func(rec model.GradeRecord, _ int) model.StudentResult {
		r := model.StudentResult{
			StudentID: rec.StudentID,
			RecordID:  rec.ID,
			Score:     rec.Score,
			Source:    "online",
			GradedAt:  rec.CreatedAt,
			Questions: []model.QuestionResult{},
		}
		if rec.ProcessedImageURL != nil || rec.ExtractedText != nil {
			r.Source = "upload"
		}
		if rec.Detail != nil {
			r.MaxScore = rec.Detail.MaxScore
			r.HasOpenQuestions = rec.Detail.HasOpenQuestions
			r.Questions = lo.Map(rec.Detail.Questions, func(q model.GradedQuestion, _ int) model.QuestionResult {
				return model.QuestionResult{
					Number:         q.QuestionNumber,
					Type:           q.QuestionType,
					StudentAnswer:  q.StudentAnswer,
					PointsAwarded:  q.PointsAwarded,
					PointsPossible: q.PointsPossible,
					Feedback:       q.Feedback,
					Pending:        q.Pending,
				}
			})
		}
		return r
	})

	return model.GradeExport{
		ExamID:     exam.ID,
		Title:      exam.Title,
		ExportedAt: time.Now().UTC(),
		NumGraded:  len(results),
		Results:    results,
	}, nil
}

// Package grading grades exam responses: objective questions locally, the
// rest through a judgment engine, merged into one grade detail.
package grading

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/xcalificator/grader/internal/answers"
	"github.com/xcalificator/grader/internal/model"

	"github.com/samber/lo"
)

// Phrases supplies the feedback texts written into graded questions.
type Phrases interface {
	Correct() string
	Incorrect(correctAnswer string) string
	Pending() string
	FeedbackLine(number int, feedback string) string
}

type phrasesKey struct{}

// ContextWithPhrases makes Grade use p for calls made with the returned context.
func ContextWithPhrases(ctx context.Context, p Phrases) context.Context {
	return context.WithValue(ctx, phrasesKey{}, p)
}

func phrasesFrom(ctx context.Context, fallback Phrases) Phrases {
	if p, ok := ctx.Value(phrasesKey{}).(Phrases); ok {
		return p
	}
	return fallback
}

// EnglishPhrases is the built-in English feedback.
type EnglishPhrases struct{}

func (EnglishPhrases) Correct() string { return "Correct" }

func (EnglishPhrases) Incorrect(correctAnswer string) string {
	return "Incorrect. The correct answer is: " + correctAnswer
}

func (EnglishPhrases) Pending() string { return "Pending review" }

func (EnglishPhrases) FeedbackLine(number int, feedback string) string {
	return "Q" + strconv.Itoa(number) + ": " + feedback
}

// vowelFolder folds the five accented lowercase vowels only. Other
// diacritics (ü, ñ, à, ç, ...) are left as they are.
var vowelFolder = strings.NewReplacer("á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u")

// Normalize prepares an answer for objective comparison: trimmed,
// lowercased, with á é í ó ú folded to a e i o u.
func Normalize(s string) string {
	return vowelFolder.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// ObjectiveResult is the outcome of grading the objective questions of an exam.
type ObjectiveResult struct {
	Results  []model.GradedQuestion
	Score    float64
	MaxScore float64
}

// GradeObjective grades every key entry whose type is objective. Each one
// earns all of its points or none. Totals are rounded once, at the end.
func GradeObjective(keys []model.AnswerKeyEntry, responses []model.StudentResponseEntry,
	types model.QuestionTypeIndex, phrases Phrases) ObjectiveResult {
	given := answers.ResponseIndex(responses)

	var res ObjectiveResult
	for _, k := range keys {
		t := types.Lookup(k.QuestionNumber)
		if !t.Objective() {
			continue
		}
		res.Results = append(res.Results, gradeObjectiveQuestion(k, t, given[k.QuestionNumber], phrases))
	}
	res.Score = round2(lo.SumBy(res.Results, func(q model.GradedQuestion) float64 { return q.PointsAwarded }))
	res.MaxScore = round2(lo.SumBy(res.Results, func(q model.GradedQuestion) float64 { return q.PointsPossible }))
	return res
}

func gradeObjectiveQuestion(k model.AnswerKeyEntry, t model.QuestionType, answer string, phrases Phrases) model.GradedQuestion {
	q := model.GradedQuestion{
		QuestionNumber: k.QuestionNumber,
		StudentAnswer:  answer,
		CorrectAnswer:  k.CorrectAnswer,
		PointsPossible: k.MaxPoints,
		QuestionType:   t,
	}
	q.IsCorrect = Normalize(k.CorrectAnswer) == Normalize(answer)
	if q.IsCorrect {
		q.PointsAwarded = k.MaxPoints
		q.Feedback = phrases.Correct()
	} else {
		q.Feedback = phrases.Incorrect(k.CorrectAnswer)
	}
	return q
}

func pendingQuestion(k model.AnswerKeyEntry, t model.QuestionType, answer string, phrases Phrases) model.GradedQuestion {
	return model.GradedQuestion{
		QuestionNumber: k.QuestionNumber,
		StudentAnswer:  answer,
		CorrectAnswer:  k.CorrectAnswer,
		PointsPossible: k.MaxPoints,
		Feedback:       phrases.Pending(),
		QuestionType:   t,
		Pending:        true,
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// FeedbackText renders the per-question feedback of a detail, one line per
// question.
func FeedbackText(detail *model.GradeDetail, phrases Phrases) string {
	if detail == nil {
		return ""
	}
	lines := make([]string, 0, len(detail.Questions))
	for _, q := range detail.Questions {
		lines = append(lines, phrases.FeedbackLine(q.QuestionNumber, q.Feedback))
	}
	return strings.Join(lines, "\n")
}

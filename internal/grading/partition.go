package grading

import (
	"github.com/xcalificator/grader/internal/answers"
	"github.com/xcalificator/grader/internal/model"
)

// PartitionResult splits an exam into locally graded questions and the
// questions that still need judgment.
type PartitionResult struct {
	ObjectiveResults []model.GradedQuestion
	ObjectiveScore   float64
	ObjectiveMax     float64

	// OpenResponses and OpenKeys hold exactly the open-ended subset, in key order.
	OpenResponses []model.JudgedAnswer
	OpenKeys      []model.AnswerKeyEntry
	OpenMax       float64

	// PendingResults are questions left for manual review.
	PendingResults []model.GradedQuestion
	PendingMax     float64
}

// AllObjective reports whether nothing is left open or pending.
func (p PartitionResult) AllObjective() bool {
	return len(p.OpenKeys) == 0 && len(p.PendingResults) == 0
}

// Partition routes every key entry by its type: objective questions are
// graded on the spot, open-ended ones are collected for the judgment engine
// and untyped ones follow policy.
func Partition(keys []model.AnswerKeyEntry, responses []model.StudentResponseEntry,
	types model.QuestionTypeIndex, policy model.UnknownTypePolicy, phrases Phrases) PartitionResult {
	obj := GradeObjective(keys, responses, types, phrases)
	p := PartitionResult{
		ObjectiveResults: obj.Results,
		ObjectiveScore:   obj.Score,
		ObjectiveMax:     obj.MaxScore,
	}

	given := answers.ResponseIndex(responses)
	var openMax, pendingMax float64
	for _, k := range keys {
		t := types.Lookup(k.QuestionNumber)
		switch {
		case t.Objective():
			continue
		case t == model.TypeUnknown && policy == model.UnknownAsPending:
			p.PendingResults = append(p.PendingResults, pendingQuestion(k, t, given[k.QuestionNumber], phrases))
			pendingMax += k.MaxPoints
		default:
			p.OpenKeys = append(p.OpenKeys, k)
			p.OpenResponses = append(p.OpenResponses, model.JudgedAnswer{
				QuestionNumber: k.QuestionNumber,
				AnswerText:     given[k.QuestionNumber],
				QuestionType:   t,
			})
			openMax += k.MaxPoints
		}
	}
	p.OpenMax = round2(openMax)
	p.PendingMax = round2(pendingMax)
	return p
}

// deferOpen turns the open subset into pending results.
func (p PartitionResult) deferOpen(phrases Phrases) PartitionResult {
	for i, k := range p.OpenKeys {
		a := p.OpenResponses[i]
		p.PendingResults = append(p.PendingResults, pendingQuestion(k, a.QuestionType, a.AnswerText, phrases))
	}
	p.PendingMax = round2(p.PendingMax + p.OpenMax)
	p.OpenKeys, p.OpenResponses, p.OpenMax = nil, nil, 0
	return p
}

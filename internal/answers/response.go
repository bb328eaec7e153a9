package answers

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/xcalificator/grader/internal/model"

	"github.com/samber/lo"
)

// NormalizeResponses turns a stored student response into its entries.
// A single object is read as a one-entry list and an absent response has
// no entries.
func NormalizeResponses(raw []byte) ([]model.StudentResponseEntry, error) {
	doc := Decode(raw)
	switch doc.Shape {
	case ShapeEmpty:
		return nil, nil
	case ShapeInvalid:
		return nil, fmt.Errorf("%w: got %s", model.ErrInvalidResponseFormat, doc.Shape)
	case ShapeObject:
		doc.Items = []json.RawMessage{doc.Raw}
	}

	entries := make([]model.StudentResponseEntry, 0, len(doc.Items))
	for i, item := range doc.Items {
		f := fields(item)
		if f == nil {
			slog.Debug("response entry is not an object", "position", i)
			continue
		}
		rawNum, ok := field(f, "question_number", "numero", "number")
		num, numOK := intValue(rawNum)
		if !ok || !numOK {
			slog.Debug("response entry without question number", "position", i)
			continue
		}
		e := model.StudentResponseEntry{QuestionNumber: num}
		if v, ok := field(f, "answer_text", "answer", "respuesta"); ok {
			e.AnswerText = textValue(v)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ResponseIndex maps question numbers to answer text. When a number repeats
// the last answer wins; numbers without a response read as "".
func ResponseIndex(entries []model.StudentResponseEntry) map[int]string {
	return lo.SliceToMap(entries, func(e model.StudentResponseEntry) (int, string) {
		return e.QuestionNumber, e.AnswerText
	})
}

// UniqueResponses drops repeated question numbers, keeping the last answer
// for each number at the position where the number first appeared.
func UniqueResponses(entries []model.StudentResponseEntry) []model.StudentResponseEntry {
	last := ResponseIndex(entries)
	nums := lo.Uniq(lo.Map(entries, func(e model.StudentResponseEntry, _ int) int { return e.QuestionNumber }))
	return lo.Map(nums, func(n int, _ int) model.StudentResponseEntry {
		return model.StudentResponseEntry{QuestionNumber: n, AnswerText: last[n]}
	})
}

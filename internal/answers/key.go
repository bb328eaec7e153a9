package answers

import (
	"fmt"
	"log/slog"

	"github.com/xcalificator/grader/internal/model"

	"github.com/samber/lo"
)

// DefaultMaxPoints is the value of a key entry that does not state its points.
const DefaultMaxPoints = 1.0

// NormalizeKey turns a stored answer key into its entries.
func NormalizeKey(raw []byte) ([]model.AnswerKeyEntry, error) {
	return KeyFromDocument(Decode(raw))
}

// KeyFromDocument returns the key entries of a decoded answer key.
//
// An absent key or an empty list is ErrMissingAnswerKey; any shape other
// than a list or a wrapped list is ErrInvalidAnswerKeyFormat. Malformed
// entries do not fail the key: entries without a question number are
// dropped, entries with unusable points are kept at zero points.
func KeyFromDocument(doc Document) ([]model.AnswerKeyEntry, error) {
	switch doc.Shape {
	case ShapeEmpty:
		return nil, fmt.Errorf("%w: no key stored", model.ErrMissingAnswerKey)
	case ShapeObject, ShapeInvalid:
		return nil, fmt.Errorf("%w: got %s, want a list or an object with a %q list",
			model.ErrInvalidAnswerKeyFormat, doc.Shape, wrapperFields[0])
	}

	seen := make(map[int]bool, len(doc.Items))
	entries := make([]model.AnswerKeyEntry, 0, len(doc.Items))
	for i, item := range doc.Items {
		e, ok := keyEntry(item, i)
		if !ok {
			continue
		}
		if seen[e.QuestionNumber] {
			slog.Warn("duplicate answer key entry ignored", "question", e.QuestionNumber)
			continue
		}
		seen[e.QuestionNumber] = true
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: key has no usable entries", model.ErrMissingAnswerKey)
	}
	return entries, nil
}

func keyEntry(item []byte, pos int) (model.AnswerKeyEntry, bool) {
	f := fields(item)
	if f == nil {
		slog.Warn("answer key entry is not an object", "position", pos)
		return model.AnswerKeyEntry{}, false
	}

	rawNum, ok := field(f, "question_number", "numero", "number")
	num, numOK := intValue(rawNum)
	if !ok || !numOK {
		slog.Warn("answer key entry without question number", "position", pos)
		return model.AnswerKeyEntry{}, false
	}

	e := model.AnswerKeyEntry{QuestionNumber: num, MaxPoints: DefaultMaxPoints}
	if v, ok := field(f, "correct_answer", "respuesta_correcta"); ok {
		e.CorrectAnswer = textValue(v)
	}
	if v, ok := field(f, "max_points", "puntos", "points"); ok {
		p, ok := floatValue(v)
		if !ok || p < 0 {
			slog.Warn("answer key entry has unusable points, counting it as zero",
				"question", num, "points", string(v))
			p = 0
		}
		e.MaxPoints = p
	}
	return e, true
}

// KeyIndex maps question numbers to key entries.
func KeyIndex(entries []model.AnswerKeyEntry) map[int]model.AnswerKeyEntry {
	return lo.KeyBy(entries, func(e model.AnswerKeyEntry) int { return e.QuestionNumber })
}

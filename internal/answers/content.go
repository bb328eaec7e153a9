package answers

import (
	"encoding/json"

	"github.com/xcalificator/grader/internal/model"
)

// Content is what grading needs from an exam's content definition.
type Content struct {
	Types  model.QuestionTypeIndex
	Rubric string
	typed  bool
}

// HasTypes reports whether the content declares question types at all.
// Without them the exam cannot be partitioned.
func (c Content) HasTypes() bool {
	return c.typed
}

// ParseContent reads the question types and the optional rubric from an
// exam's content definition.
func ParseContent(raw []byte) Content {
	c := Content{Types: model.QuestionTypeIndex{}}
	doc := Decode(raw)

	if doc.Shape == ShapeWrapped || doc.Shape == ShapeObject {
		var top map[string]json.RawMessage
		if err := json.Unmarshal(doc.Raw, &top); err == nil {
			if v, ok := field(top, "rubric", "rubrica"); ok {
				c.Rubric = textValue(v)
			}
		}
	}

	for _, item := range doc.Items {
		f := fields(item)
		if f == nil {
			continue
		}
		rawNum, ok := field(f, "question_number", "numero", "number")
		num, numOK := intValue(rawNum)
		if !ok || !numOK {
			continue
		}
		rawType, ok := field(f, "type", "tipo")
		if !ok {
			continue
		}
		c.typed = true
		c.Types[num] = model.ParseQuestionType(textValue(rawType))
	}
	return c
}

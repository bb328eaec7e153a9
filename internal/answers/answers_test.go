package answers

import (
	"errors"
	"reflect"
	"testing"

	"github.com/xcalificator/grader/internal/model"
)

func TestDecodeShapes(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  Shape
		items int
	}{
		{"absent", ``, ShapeEmpty, 0},
		{"null", `null`, ShapeEmpty, 0},
		{"bare list", `[{"question_number":1},{"question_number":2}]`, ShapeList, 2},
		{"wrapped", `{"questions":[{"question_number":1}]}`, ShapeWrapped, 1},
		{"legacy wrapper", `{"preguntas":[{"numero":1},{"numero":2}]}`, ShapeWrapped, 2},
		{"wrapped empty", `{"questions":[]}`, ShapeWrapped, 0},
		{"single object", `{"question_number":1,"correct_answer":"A"}`, ShapeObject, 0},
		{"wrapper not a list", `{"questions":"nope"}`, ShapeObject, 0},
		{"scalar", `42`, ShapeInvalid, 0},
		{"broken", `[{"question_number":`, ShapeInvalid, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Decode([]byte(tt.raw))
			if doc.Shape != tt.want {
				t.Errorf("Shape = %s, want %s", doc.Shape, tt.want)
			}
			if len(doc.Items) != tt.items {
				t.Errorf("len(Items) = %d, want %d", len(doc.Items), tt.items)
			}
		})
	}
}

func TestNormalizeKeyBareAndWrappedAreIdentical(t *testing.T) {
	bare := `[{"question_number":1,"correct_answer":"A","max_points":2},
	          {"question_number":2,"correct_answer":"Paris","max_points":3}]`
	wrapped := `{"questions":` + bare + `}`

	a, err := NormalizeKey([]byte(bare))
	if err != nil {
		t.Fatalf("NormalizeKey(bare): %v", err)
	}
	b, err := NormalizeKey([]byte(wrapped))
	if err != nil {
		t.Fatalf("NormalizeKey(wrapped): %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("bare %+v != wrapped %+v", a, b)
	}
	want := []model.AnswerKeyEntry{
		{QuestionNumber: 1, CorrectAnswer: "A", MaxPoints: 2},
		{QuestionNumber: 2, CorrectAnswer: "Paris", MaxPoints: 3},
	}
	if !reflect.DeepEqual(a, want) {
		t.Errorf("got %+v, want %+v", a, want)
	}
}

func TestNormalizeKeyLegacyFields(t *testing.T) {
	raw := `{"preguntas":[{"numero":"1","respuesta_correcta":"Verdadero","puntos":"1.5"},
	                     {"numero":2,"respuesta_correcta":4}]}`
	got, err := NormalizeKey([]byte(raw))
	if err != nil {
		t.Fatalf("NormalizeKey: %v", err)
	}
	want := []model.AnswerKeyEntry{
		{QuestionNumber: 1, CorrectAnswer: "Verdadero", MaxPoints: 1.5},
		{QuestionNumber: 2, CorrectAnswer: "4", MaxPoints: DefaultMaxPoints},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestNormalizeKeyToleratesMalformedEntries(t *testing.T) {
	raw := `[
		{"question_number":1,"correct_answer":"A","max_points":-3},
		{"correct_answer":"orphan"},
		"garbage",
		{"question_number":2,"max_points":"lots"},
		{"question_number":2,"correct_answer":"dup"},
		{"question_number":3,"correct_answer":null,"max_points":2}
	]`
	got, err := NormalizeKey([]byte(raw))
	if err != nil {
		t.Fatalf("NormalizeKey: %v", err)
	}
	want := []model.AnswerKeyEntry{
		{QuestionNumber: 1, CorrectAnswer: "A", MaxPoints: 0},
		{QuestionNumber: 2, CorrectAnswer: "", MaxPoints: 0},
		{QuestionNumber: 3, CorrectAnswer: "", MaxPoints: 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestNormalizeKeyErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"absent", ``, model.ErrMissingAnswerKey},
		{"empty list", `[]`, model.ErrMissingAnswerKey},
		{"no usable entries", `[{"correct_answer":"A"}]`, model.ErrMissingAnswerKey},
		{"single object", `{"question_number":1,"correct_answer":"A"}`, model.ErrInvalidAnswerKeyFormat},
		{"scalar", `"A,B,C"`, model.ErrInvalidAnswerKeyFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeKey([]byte(tt.raw))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNormalizeResponses(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []model.StudentResponseEntry
	}{
		{"absent", ``, nil},
		{"bare list", `[{"question_number":1,"answer_text":"a"},{"question_number":2,"answer_text":"The capital of France"}]`,
			[]model.StudentResponseEntry{resp(1, "a"), resp(2, "The capital of France")}},
		{"wrapped legacy", `{"preguntas":[{"numero":1,"respuesta":"B"}]}`,
			[]model.StudentResponseEntry{resp(1, "B")}},
		{"single object", `{"question_number":4,"answer":true}`,
			[]model.StudentResponseEntry{resp(4, "true")}},
		{"missing answer", `[{"question_number":3}]`,
			[]model.StudentResponseEntry{resp(3, "")}},
		{"skips entries without number", `[{"answer_text":"x"},{"question_number":5,"answer_text":7}]`,
			[]model.StudentResponseEntry{resp(5, "7")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeResponses([]byte(tt.raw))
			if err != nil {
				t.Fatalf("NormalizeResponses: %v", err)
			}
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}

	if _, err := NormalizeResponses([]byte(`12`)); !errors.Is(err, model.ErrInvalidResponseFormat) {
		t.Errorf("scalar response: err = %v, want ErrInvalidResponseFormat", err)
	}
}

func TestResponseIndexMissingIsEmpty(t *testing.T) {
	idx := ResponseIndex([]model.StudentResponseEntry{resp(1, "a")})
	if got := idx[2]; got != "" {
		t.Errorf("idx[2] = %q, want empty", got)
	}
	if got := idx[1]; got != "a" {
		t.Errorf("idx[1] = %q, want a", got)
	}
}

func TestUniqueResponses(t *testing.T) {
	got := UniqueResponses([]model.StudentResponseEntry{resp(2, "b"), resp(1, "a"), resp(2, "b2")})
	want := []model.StudentResponseEntry{resp(2, "b2"), resp(1, "a")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UniqueResponses = %+v, want %+v", got, want)
	}
}

func TestParseContent(t *testing.T) {
	raw := `{"rubric":"Be strict about units","questions":[
		{"question_number":1,"type":"single_choice","text":"Pick one"},
		{"numero":2,"tipo":"desarrollo"},
		{"question_number":3,"type":"matching"},
		{"question_number":4}
	]}`
	c := ParseContent([]byte(raw))
	if !c.HasTypes() {
		t.Fatal("HasTypes() = false, want true")
	}
	if c.Rubric != "Be strict about units" {
		t.Errorf("Rubric = %q", c.Rubric)
	}
	want := model.QuestionTypeIndex{1: model.TypeSingleChoice, 2: model.TypeEssay, 3: model.TypeUnknown}
	if !reflect.DeepEqual(c.Types, want) {
		t.Errorf("Types = %v, want %v", c.Types, want)
	}
	if c.Types.Lookup(4) != model.TypeUnknown {
		t.Errorf("Lookup(4) = %q, want unknown", c.Types.Lookup(4))
	}

	if ParseContent(nil).HasTypes() {
		t.Error("absent content should not have types")
	}
	if ParseContent([]byte(`{"questions":[{"question_number":1,"text":"x"}]}`)).HasTypes() {
		t.Error("content without type fields should not have types")
	}
}

func resp(n int, answer string) model.StudentResponseEntry {
	return model.StudentResponseEntry{QuestionNumber: n, AnswerText: answer}
}

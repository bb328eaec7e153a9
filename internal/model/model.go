package model

import (
	"encoding/json"
	"strings"
	"time"
)

// QuestionType is the type tag of an exam question.
type QuestionType string

const (
	TypeSingleChoice QuestionType = "single_choice"
	TypeTrueFalse    QuestionType = "true_false"
	TypeShortAnswer  QuestionType = "short_answer"
	TypeEssay        QuestionType = "essay"
	// TypeUnknown marks a question with no (or an unrecognized) type.
	TypeUnknown QuestionType = ""
)

// Legacy tags written by the Spanish front end.
var typeAliases = map[string]QuestionType{
	"seleccion_multiple": TypeSingleChoice,
	"verdadero_falso":    TypeTrueFalse,
	"respuesta_corta":    TypeShortAnswer,
	"desarrollo":         TypeEssay,
}

// ParseQuestionType maps a stored type tag to a QuestionType.
// Unrecognized tags map to TypeUnknown.
func ParseQuestionType(s string) QuestionType {
	s = strings.ToLower(strings.TrimSpace(s))
	switch t := QuestionType(s); t {
	case TypeSingleChoice, TypeTrueFalse, TypeShortAnswer, TypeEssay:
		return t
	}
	if t, ok := typeAliases[s]; ok {
		return t
	}
	return TypeUnknown
}

// Objective reports whether questions of this type are machine-checkable.
func (t QuestionType) Objective() bool {
	return t == TypeSingleChoice || t == TypeTrueFalse
}

// AnswerKeyEntry is one question of an exam's grading key.
type AnswerKeyEntry struct {
	QuestionNumber int     `json:"question_number"`
	CorrectAnswer  string  `json:"correct_answer"`
	MaxPoints      float64 `json:"max_points"`
}

// QuestionTypeIndex maps question numbers to their type.
type QuestionTypeIndex map[int]QuestionType

// Lookup returns the type of question n, TypeUnknown when absent.
func (idx QuestionTypeIndex) Lookup(n int) QuestionType {
	return idx[n]
}

// StudentResponseEntry is a student's answer to one question.
type StudentResponseEntry struct {
	QuestionNumber int    `json:"question_number"`
	AnswerText     string `json:"answer_text"`
}

// GradedQuestion is the outcome of grading one question.
type GradedQuestion struct {
	QuestionNumber int          `json:"question_number"`
	StudentAnswer  string       `json:"student_answer"`
	CorrectAnswer  string       `json:"correct_answer"`
	PointsAwarded  float64      `json:"points_awarded"`
	PointsPossible float64      `json:"points_possible"`
	Feedback       string       `json:"feedback"`
	IsCorrect      bool         `json:"is_correct"`
	QuestionType   QuestionType `json:"question_type,omitempty"`
	Pending        bool         `json:"pending,omitempty"`
}

// GradeDetail is the structured body of a grade record.
type GradeDetail struct {
	TotalScore float64          `json:"total_score"`
	MaxScore   float64          `json:"max_score"`
	Questions  []GradedQuestion `json:"questions"`
	AutoGraded bool             `json:"auto_graded"`
	// HasOpenQuestions means questions are still awaiting grading,
	// not that the exam contains open-ended questions.
	HasOpenQuestions bool `json:"has_open_questions"`
}

// GradeRecord is the persisted outcome of one grading run for a (student, exam) pair.
type GradeRecord struct {
	ID                string       `json:"id"`
	StudentID         string       `json:"student_id"`
	ExamID            string       `json:"exam_id"`
	Score             *float64     `json:"score"`
	Detail            *GradeDetail `json:"detail,omitempty"`
	Feedback          string       `json:"feedback"`
	ProcessedImageURL *string      `json:"processed_image_url,omitempty"`
	ExtractedText     *string      `json:"extracted_text,omitempty"`
	SupersedesID      *string      `json:"supersedes_id,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

// Exam is an exam definition. Content and AnswerKey are stored documents
// whose shape is resolved by the answers package.
type Exam struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Content      json.RawMessage `json:"content,omitempty"`
	AnswerKey    json.RawMessage `json:"answer_key,omitempty"`
	ActiveOnline bool            `json:"active_online"`
	Deadline     *time.Time      `json:"deadline,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Submission is a student's stored online response to an exam.
type Submission struct {
	ID          string          `json:"id"`
	ExamID      string          `json:"exam_id"`
	StudentID   string          `json:"student_id"`
	Responses   json.RawMessage `json:"responses"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// WritingType tells how the text of an uploaded exam was obtained.
type WritingType string

const (
	WritingPrinted     WritingType = "printed"
	WritingHandwritten WritingType = "handwritten"
)

// ParsedQuestion is a provisional question/answer pair recovered from extracted text.
type ParsedQuestion struct {
	QuestionNumber int    `json:"question_number"`
	Statement      string `json:"statement"`
	AnswerText     string `json:"answer_text"`
}

// Extraction is the output of the text extraction pipeline.
type Extraction struct {
	ExtractedText string           `json:"extracted_text"`
	Questions     []ParsedQuestion `json:"questions"`
	WritingType   WritingType      `json:"writing_type"`
	// ProcessedImage is the preprocessed PNG sent to text recognition, the
	// first page for multi-page documents. Nil for printed documents.
	ProcessedImage []byte `json:"-"`
}

// Responses converts the parsed questions into response entries.
func (e Extraction) Responses() []StudentResponseEntry {
	out := make([]StudentResponseEntry, 0, len(e.Questions))
	for _, q := range e.Questions {
		out = append(out, StudentResponseEntry{QuestionNumber: q.QuestionNumber, AnswerText: q.AnswerText})
	}
	return out
}

// JudgedAnswer is a student answer as sent to the judgment engine.
type JudgedAnswer struct {
	QuestionNumber int          `json:"question_number"`
	AnswerText     string       `json:"answer_text"`
	QuestionType   QuestionType `json:"question_type,omitempty"`
}

// JudgmentRequest is the grading request sent to the judgment engine.
// RawAnswerKey is set instead of AnswerKey when the stored key could not
// be normalized and is forwarded as-is.
type JudgmentRequest struct {
	StudentAnswers []JudgedAnswer   `json:"student_answers"`
	AnswerKey      []AnswerKeyEntry `json:"answer_key,omitempty"`
	RawAnswerKey   json.RawMessage  `json:"raw_answer_key,omitempty"`
	Rubric         string           `json:"rubric,omitempty"`
}

// JudgmentResult is the judgment engine's answer. Nil totals were omitted by the engine.
type JudgmentResult struct {
	TotalScore *float64         `json:"total_score"`
	MaxScore   *float64         `json:"max_score"`
	Questions  []GradedQuestion `json:"questions"`
}

// UploadedFile is an exam scan or document uploaded for grading.
type UploadedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

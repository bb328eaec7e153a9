package model

import "errors"

// Grading errors. Callers match them with errors.Is; the wrapped message
// carries the detail.
var (
	ErrInvalidAnswerKeyFormat = errors.New("invalid answer key format")
	ErrMissingAnswerKey       = errors.New("missing answer key")
	ErrInvalidResponseFormat  = errors.New("invalid response format")

	ErrOCRUnavailable    = errors.New("text recognition unavailable")
	ErrUnsupportedUpload = errors.New("unsupported upload")

	ErrJudgmentEngine = errors.New("judgment engine failure")

	ErrExamNotFound        = errors.New("exam not found")
	ErrResponseNotFound    = errors.New("student response not found")
	ErrGradeRecordNotFound = errors.New("grade record not found")

	ErrAlreadySubmitted = errors.New("responses already submitted")
	ErrExamClosed       = errors.New("exam is not open for online responses")
)

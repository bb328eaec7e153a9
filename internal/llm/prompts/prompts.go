package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var Templates embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const maxAnswerRunes = 10000

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict is a strict grading variant for majors.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient is a lenient grading variant for electives.
	PromptLenient PromptVariant = "lenient"
)

var variants = []PromptVariant{PromptStrict, PromptStandard, PromptLenient}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	for _, known := range variants {
		if PromptVariant(v) == known {
			return true
		}
	}
	return false
}

// AnswerData is one student answer as shown to the grader.
type AnswerData struct {
	QuestionNumber int
	QuestionType   string
	Answer         string
}

// GradeData holds template data for the grading request.
type GradeData struct {
	Answers []AnswerData
	Key     string // answer key, rendered as JSON
	Rubric  string
}

// Library holds the parsed grading templates.
type Library struct {
	system  map[PromptVariant]string
	request *template.Template
}

// Load parses the grading templates from fsys. It expects
// templates/grade_<variant>.txt for every variant and templates/request.txt.
func Load(fsys fs.FS) (*Library, error) {
	lib := &Library{system: make(map[PromptVariant]string, len(variants))}
	for _, v := range variants {
		name := "templates/grade_" + string(v) + ".txt"
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read prompt file %s: %w", name, err)
		}
		lib.system[v] = string(content)
	}

	content, err := fs.ReadFile(fsys, "templates/request.txt")
	if err != nil {
		return nil, fmt.Errorf("read prompt file templates/request.txt: %w", err)
	}
	lib.request, err = template.New("request").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template templates/request.txt: %w", err)
	}
	return lib, nil
}

// System returns the system prompt of a variant.
func (l *Library) System(variant PromptVariant) (string, error) {
	s, ok := l.system[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}
	return s, nil
}

// Request renders the user message carrying the answers to grade. Student
// answers are sanitized before they are rendered.
func (l *Library) Request(data GradeData) (string, error) {
	answers := make([]AnswerData, len(data.Answers))
	for i, a := range data.Answers {
		a.Answer = sanitizeAnswer(a.Answer)
		answers[i] = a
	}
	data.Answers = answers

	var buf bytes.Buffer
	if err := l.request.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		runes = runes[:maxAnswerRunes]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}

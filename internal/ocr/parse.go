package ocr

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xcalificator/grader/internal/model"
)

var questionLine = regexp.MustCompile(`^(\d+)[.)]\s*(.*)$`)

// answerMarkers open an answer line. Longer markers come first so that
// "Respuesta:" is not read as "R" followed by text.
var answerMarkers = []string{"Respuesta:", "R:", "R/", "→"}

// ParseText recovers numbered questions and their answers from extracted
// text. A line starting with a number followed by "." or ")" opens a
// question; a line starting with an answer marker sets the open question's
// answer; any other line continues its statement. Text before the first
// numbered line is ignored.
func ParseText(text string) []model.ParsedQuestion {
	var (
		questions []model.ParsedQuestion
		current   *model.ParsedQuestion
	)
	flush := func() {
		if current != nil {
			questions = append(questions, *current)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := questionLine.FindStringSubmatch(line); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil {
				flush()
				current = &model.ParsedQuestion{QuestionNumber: n, Statement: m[2]}
				continue
			}
		}
		if current == nil {
			continue
		}
		if answer, ok := cutAnswerMarker(line); ok {
			current.AnswerText = answer
			continue
		}
		if current.Statement == "" {
			current.Statement = line
		} else {
			current.Statement += " " + line
		}
	}
	flush()
	return questions
}

func cutAnswerMarker(line string) (string, bool) {
	for _, m := range answerMarkers {
		if rest, ok := strings.CutPrefix(line, m); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}

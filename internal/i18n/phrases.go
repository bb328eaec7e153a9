package i18n

import (
	"context"
	"strconv"
)

// Phrases renders grading feedback in the language of a context's localizer.
type Phrases struct {
	ctx context.Context
}

// PhrasesFor returns the feedback phrases for ctx.
func PhrasesFor(ctx context.Context) Phrases {
	return Phrases{ctx: ctx}
}

func (p Phrases) Correct() string { return T(p.ctx, MsgFeedbackCorrect) }

func (p Phrases) Incorrect(correctAnswer string) string {
	return Td(p.ctx, MsgFeedbackIncorrect, map[string]any{"Answer": correctAnswer})
}

func (p Phrases) Pending() string { return T(p.ctx, MsgFeedbackPending) }

// FeedbackLine prefixes one question's feedback with its number.
func (p Phrases) FeedbackLine(number int, feedback string) string {
	return Td(p.ctx, MsgFeedbackLine, map[string]any{"Number": strconv.Itoa(number), "Feedback": feedback})
}

// Package i18n renders grading feedback and API messages from embedded
// locale files.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// Message IDs.
const (
	MsgFeedbackCorrect    = "FeedbackCorrect"
	MsgFeedbackIncorrect  = "FeedbackIncorrect"
	MsgFeedbackPending    = "FeedbackPending"
	MsgFeedbackLine       = "FeedbackLine"
	MsgQuestionsGraded    = "QuestionsGraded"
	MsgSubmissionReceived = "SubmissionReceived"
)

// requiredMessages must be present in every locale: grade records store
// feedback rendered from them.
var requiredMessages = []string{
	MsgFeedbackCorrect, MsgFeedbackIncorrect, MsgFeedbackPending, MsgFeedbackLine,
	MsgQuestionsGraded, MsgSubmissionReceived,
}

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

var (
	bundle      *i18n.Bundle
	defaultLang = "en"
	languages   []string
)

// Init loads the embedded locales with lang as the default language.
// Feedback written into grade records is rendered in it unless a request
// asks for another one. lang must match one of the locales.
func Init(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}
	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)
	loaded, err := loadLocales(b)
	if err != nil {
		return err
	}
	if _, _, conf := language.NewMatcher(loaded).Match(tag); conf == language.No {
		return fmt.Errorf("no locale for language %q (have %s)", lang, strings.Join(tagNames(loaded), ", "))
	}

	bundle = b
	defaultLang = tag.String()
	languages = tagNames(loaded)
	slog.Debug("locales loaded", "default", defaultLang, "languages", languages)
	return nil
}

// Languages returns the tags of the loaded locales, sorted.
func Languages() []string {
	return slices.Clone(languages)
}

func loadLocales(b *i18n.Bundle) ([]language.Tag, error) {
	files, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales dir: %w", err)
	}
	var tags []language.Tag
	for _, f := range files {
		if f.IsDir() || path.Ext(f.Name()) != ".json" {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + f.Name())
		if err != nil {
			return nil, fmt.Errorf("read locale file %s: %w", f.Name(), err)
		}
		if err := checkMessages(f.Name(), data); err != nil {
			return nil, err
		}
		mf, err := b.ParseMessageFileBytes(data, f.Name())
		if err != nil {
			return nil, fmt.Errorf("parse locale file %s: %w", f.Name(), err)
		}
		tags = append(tags, mf.Tag)
	}
	return tags, nil
}

func checkMessages(name string, data []byte) error {
	var ids map[string]json.RawMessage
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("parse locale file %s: %w", name, err)
	}
	var missing []string
	for _, id := range requiredMessages {
		if _, ok := ids[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("locale file %s lacks %s", name, strings.Join(missing, ", "))
	}
	return nil
}

func tagNames(tags []language.Tag) []string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.String()
	}
	slices.Sort(names)
	return names
}

// NewLocalizer creates a localizer preferring langs in order, then the
// default language. Each entry may be a tag or an Accept-Language value.
func NewLocalizer(langs ...string) *i18n.Localizer {
	return i18n.NewLocalizer(bundle, append(langs, defaultLang)...)
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *i18n.Localizer) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

func localizerFromCtx(ctx context.Context) *i18n.Localizer {
	if loc, ok := ctx.Value(ctxKey{}).(*i18n.Localizer); ok {
		return loc
	}
	return i18n.NewLocalizer(bundle, defaultLang)
}

// localize renders cfg, falling back to the message ID.
func localize(ctx context.Context, cfg *i18n.LocalizeConfig) string {
	s, err := localizerFromCtx(ctx).Localize(cfg)
	if err != nil {
		slog.Warn("missing translation", "id", cfg.MessageID, "error", err)
		return cfg.MessageID
	}
	return s
}

// T translates a message by ID.
func T(ctx context.Context, msgID string) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID})
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID, TemplateData: data})
}

// Tp translates a pluralized message by ID.
func Tp(ctx context.Context, msgID string, count int) string {
	return localize(ctx, &i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
}

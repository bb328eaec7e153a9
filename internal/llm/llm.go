// Package llm is the judgment engine client: it grades open-ended answers
// through an OpenAI-compatible chat API (Groq, Ollama, OpenAI).
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xcalificator/grader/internal/llm/prompts"
	"github.com/xcalificator/grader/internal/metrics"
	"github.com/xcalificator/grader/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

const (
	gradingTemperature = 0.1
	gradingMaxTokens   = 4096
	defaultTimeout     = 120 * time.Second
)

// gradeResponse is the JSON document the model is asked to produce.
type gradeResponse struct {
	TotalScore *float64        `json:"total_score"`
	MaxScore   *float64        `json:"max_score"`
	Questions  []gradeQuestion `json:"questions"`
}

type gradeQuestion struct {
	QuestionNumber int     `json:"question_number"`
	StudentAnswer  string  `json:"student_answer"`
	CorrectAnswer  string  `json:"correct_answer"`
	PointsAwarded  float64 `json:"points_awarded"`
	PointsPossible float64 `json:"points_possible"`
	Feedback       string  `json:"feedback"`
	IsCorrect      bool    `json:"is_correct"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
	prompts *prompts.Library
	timeout time.Duration
	metrics *metrics.Metrics
}

type Option func(*clientOptions)

type clientOptions struct {
	timeout    time.Duration
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// WithTimeout bounds every call to the API.
func WithTimeout(d time.Duration) Option { return func(o *clientOptions) { o.timeout = d } }

// WithHTTPClient replaces the HTTP client used to reach the API.
func WithHTTPClient(c *http.Client) Option { return func(o *clientOptions) { o.httpClient = c } }

// WithMetrics records the token usage of grading calls.
func WithMetrics(m *metrics.Metrics) Option { return func(o *clientOptions) { o.metrics = m } }

// New creates a new LLM client grading with the given prompt variant.
func New(baseURL, apiKey, modelName, variant string, opts ...Option) (*Client, error) {
	o := clientOptions{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if !prompts.IsValidVariant(variant) {
		return nil, fmt.Errorf("invalid prompt variant %q", variant)
	}
	lib, err := prompts.Load(prompts.Templates)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if o.httpClient != nil {
		config.HTTPClient = o.httpClient
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: prompts.PromptVariant(variant),
		prompts: lib,
		timeout: o.timeout,
		metrics: o.metrics,
	}, nil
}

// Ping checks that the API is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Judge grades the answers of req in a single chat completion.
func (c *Client) Judge(ctx context.Context, req model.JudgmentRequest) (*model.JudgmentResult, error) {
	system, err := c.prompts.System(c.variant)
	if err != nil {
		return nil, err
	}
	key, err := renderKey(req)
	if err != nil {
		return nil, err
	}
	data := prompts.GradeData{Key: key, Rubric: req.Rubric}
	for _, a := range req.StudentAnswers {
		data.Answers = append(data.Answers, prompts.AnswerData{
			QuestionNumber: a.QuestionNumber,
			QuestionType:   string(a.QuestionType),
			Answer:         a.AnswerText,
		})
	}
	user, err := c.prompts.Request(data)
	if err != nil {
		return nil, fmt.Errorf("render grading request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: gradingTemperature,
		MaxTokens:   gradingMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: LLM grading API call: %w", model.ErrJudgmentEngine, err)
	}
	slog.Debug("LLM grading call", "model", c.model, "variant", c.variant,
		"questions", len(req.StudentAnswers), "duration", time.Since(start),
		"prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)
	c.metrics.EngineTokens(c.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: LLM returned no choices for grading", model.ErrJudgmentEngine)
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return parseGradeResponse(raw)
}

func parseGradeResponse(raw string) (*model.JudgmentResult, error) {
	var gr gradeResponse
	if err := json.Unmarshal([]byte(raw), &gr); err != nil {
		return nil, fmt.Errorf("%w: parse grading response: %w (raw: %s)", model.ErrJudgmentEngine, err, raw)
	}
	if gr.Questions == nil {
		return nil, fmt.Errorf("%w: grading response has no questions (raw: %s)", model.ErrJudgmentEngine, raw)
	}

	res := &model.JudgmentResult{TotalScore: gr.TotalScore, MaxScore: gr.MaxScore}
	for _, q := range gr.Questions {
		res.Questions = append(res.Questions, model.GradedQuestion{
			QuestionNumber: q.QuestionNumber,
			StudentAnswer:  q.StudentAnswer,
			CorrectAnswer:  q.CorrectAnswer,
			PointsAwarded:  q.PointsAwarded,
			PointsPossible: q.PointsPossible,
			Feedback:       q.Feedback,
			IsCorrect:      q.IsCorrect,
		})
	}
	return res, nil
}

// renderKey returns the answer key as JSON text, the raw document when the
// key could not be normalized.
func renderKey(req model.JudgmentRequest) (string, error) {
	if req.AnswerKey == nil && len(req.RawAnswerKey) > 0 {
		return string(req.RawAnswerKey), nil
	}
	if req.AnswerKey == nil {
		return "", errors.New("grading request has no answer key")
	}
	data, err := json.MarshalIndent(req.AnswerKey, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal answer key: %w", err)
	}
	return string(data), nil
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xcalificator/grader/internal/metrics"
	"github.com/xcalificator/grader/internal/model"
)

// fakeAPI serves chat completions answering with content and records the
// last request body.
type fakeAPI struct {
	content string
	status  int
	delay   time.Duration
	last    map[string]any
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/models":
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[{"id":"llama","object":"model"}]}`)
		return
	case "/chat/completions":
	default:
		http.NotFound(w, r)
		return
	}
	_ = json.NewDecoder(r.Body).Decode(&f.last)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-r.Context().Done():
			return
		}
	}
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, `{"error":{"message":"boom","type":"server_error"}}`)
		return
	}
	body, _ := json.Marshal(map[string]any{
		"id":     "cmpl-1",
		"object": "chat.completion",
		"model":  "llama",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": f.content},
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func newTestClient(t *testing.T, api *fakeAPI, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "test-key", "llama", "standard", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func essayRequest() model.JudgmentRequest {
	return model.JudgmentRequest{
		StudentAnswers: []model.JudgedAnswer{{QuestionNumber: 2, AnswerText: "Plants make sugar", QuestionType: model.TypeEssay}},
		AnswerKey:      []model.AnswerKeyEntry{{QuestionNumber: 2, CorrectAnswer: "Photosynthesis", MaxPoints: 3}},
		Rubric:         "Mention chlorophyll",
	}
}

func TestJudge(t *testing.T) {
	api := &fakeAPI{content: `{"total_score":2.5,"max_score":3,"questions":[
		{"question_number":2,"student_answer":"Plants make sugar","correct_answer":"Photosynthesis",
		 "points_awarded":2.5,"points_possible":3,"feedback":"Good, mention chlorophyll","is_correct":false}]}`}
	c := newTestClient(t, api)

	res, err := c.Judge(context.Background(), essayRequest())
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if res.TotalScore == nil || *res.TotalScore != 2.5 || res.MaxScore == nil || *res.MaxScore != 3 {
		t.Errorf("totals = %v/%v", res.TotalScore, res.MaxScore)
	}
	if len(res.Questions) != 1 || res.Questions[0].PointsAwarded != 2.5 || res.Questions[0].Feedback == "" {
		t.Errorf("questions = %+v", res.Questions)
	}

	if api.last["temperature"] != 0.1 {
		t.Errorf("temperature = %v, want 0.1", api.last["temperature"])
	}
	format, _ := api.last["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", api.last["response_format"])
	}
	msgs, _ := api.last["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(msgs))
	}
	user, _ := msgs[1].(map[string]any)["content"].(string)
	for _, want := range []string{"Plants make sugar", "Photosynthesis", "Mention chlorophyll"} {
		if !strings.Contains(user, want) {
			t.Errorf("user message missing %q", want)
		}
	}
}

func TestJudgeRecordsTokenUsage(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	api := &fakeAPI{content: `{"questions":[{"question_number":2,"points_awarded":3,"points_possible":3}]}`}
	c := newTestClient(t, api, WithMetrics(m))

	for range 2 {
		if _, err := c.Judge(context.Background(), essayRequest()); err != nil {
			t.Fatalf("Judge: %v", err)
		}
	}
	if got := testutil.ToFloat64(m.Tokens("llama", metrics.TokensPrompt)); got != 20 {
		t.Errorf("prompt tokens = %v, want 20", got)
	}
	if got := testutil.ToFloat64(m.Tokens("llama", metrics.TokensCompletion)); got != 10 {
		t.Errorf("completion tokens = %v, want 10", got)
	}
}

func TestJudgeOmittedTotals(t *testing.T) {
	api := &fakeAPI{content: `{"questions":[{"question_number":2,"points_awarded":1,"points_possible":3}]}`}
	res, err := newTestClient(t, api).Judge(context.Background(), essayRequest())
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if res.TotalScore != nil || res.MaxScore != nil {
		t.Errorf("omitted totals should stay nil, got %v/%v", res.TotalScore, res.MaxScore)
	}
}

func TestJudgeRawKey(t *testing.T) {
	api := &fakeAPI{content: `{"questions":[]}`}
	req := essayRequest()
	req.AnswerKey = nil
	req.RawAnswerKey = []byte(`{"2":"Photosynthesis"}`)

	if _, err := newTestClient(t, api).Judge(context.Background(), req); err != nil {
		t.Fatalf("Judge: %v", err)
	}
	msgs, _ := api.last["messages"].([]any)
	user, _ := msgs[1].(map[string]any)["content"].(string)
	if !strings.Contains(user, `{"2":"Photosynthesis"}`) {
		t.Errorf("raw key not sent:\n%s", user)
	}
}

func TestJudgeFailures(t *testing.T) {
	tests := []struct {
		name string
		api  *fakeAPI
	}{
		{"not json", &fakeAPI{content: "The student did well."}},
		{"no questions", &fakeAPI{content: `{"total_score":3}`}},
		{"server error", &fakeAPI{status: http.StatusInternalServerError}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestClient(t, tt.api).Judge(context.Background(), essayRequest())
			if !errors.Is(err, model.ErrJudgmentEngine) {
				t.Errorf("err = %v, want ErrJudgmentEngine", err)
			}
		})
	}
}

func TestJudgeTimeout(t *testing.T) {
	api := &fakeAPI{content: `{"questions":[]}`, delay: time.Second}
	c := newTestClient(t, api, WithTimeout(20*time.Millisecond))

	_, err := c.Judge(context.Background(), essayRequest())
	if !errors.Is(err, model.ErrJudgmentEngine) {
		t.Errorf("err = %v, want ErrJudgmentEngine", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want a deadline error", err)
	}
}

func TestJudgeWithoutKey(t *testing.T) {
	req := essayRequest()
	req.AnswerKey = nil
	if _, err := newTestClient(t, &fakeAPI{}).Judge(context.Background(), req); err == nil {
		t.Error("Judge without any key should fail")
	}
}

func TestPing(t *testing.T) {
	if err := newTestClient(t, &fakeAPI{}).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestNewRejectsUnknownVariant(t *testing.T) {
	if _, err := New("http://localhost", "k", "m", "harsh"); err == nil {
		t.Error("New with an unknown variant should fail")
	}
}

package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/xcalificator/grader/internal/metrics"
	"github.com/xcalificator/grader/internal/model"
)

// DefaultRecognizerTimeout bounds a single recognition call.
const DefaultRecognizerTimeout = 60 * time.Second

// Recognizer turns a preprocessed PNG image into text.
type Recognizer interface {
	Recognize(ctx context.Context, png []byte) (string, error)
}

// HTTPRecognizer calls a text recognition service (PaddleOCR behind a small
// HTTP wrapper) that accepts a multipart "file" field on POST /ocr and
// answers {"text": "..."}.
type HTTPRecognizer struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewHTTPRecognizer returns a recognizer for the service at baseURL.
// m may be nil.
func NewHTTPRecognizer(baseURL string, timeout time.Duration, m *metrics.Metrics) *HTTPRecognizer {
	if timeout <= 0 {
		timeout = DefaultRecognizerTimeout
	}
	return &HTTPRecognizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: timeout,
		metrics: m,
	}
}

type recognizeResponse struct {
	Text string `json:"text"`
}

// Recognize sends png to the service. Any failure, the timeout included,
// is ErrOCRUnavailable and no partial text is returned.
func (r *HTTPRecognizer) Recognize(ctx context.Context, png []byte) (string, error) {
	text, err := r.recognize(ctx, png)
	switch {
	case err == nil:
		r.metrics.OCRCall(metrics.OutcomeOK)
	case errors.Is(err, context.DeadlineExceeded):
		r.metrics.OCRCall(metrics.OutcomeTimeout)
	default:
		r.metrics.OCRCall(metrics.OutcomeError)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrOCRUnavailable, err)
	}
	return text, nil
}

func (r *HTTPRecognizer) recognize(ctx context.Context, png []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "image.png")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/ocr", &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call recognition service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("recognition service returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var out recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode recognition response: %w", err)
	}
	return out.Text, nil
}

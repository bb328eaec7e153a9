package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/xcalificator/grader/internal/model"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrExamNotFound),
		errors.Is(err, model.ErrResponseNotFound),
		errors.Is(err, model.ErrGradeRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrAlreadySubmitted):
		return http.StatusConflict
	case errors.Is(err, model.ErrExamClosed),
		errors.Is(err, model.ErrInvalidResponseFormat):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrMissingAnswerKey),
		errors.Is(err, model.ErrInvalidAnswerKeyFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrUnsupportedUpload):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, model.ErrOCRUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrJudgmentEngine):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	} else {
		slog.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeMessage(w, status, msg)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err)
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xcalificator/grader/internal/gradebook"
	"github.com/xcalificator/grader/internal/i18n"
	"github.com/xcalificator/grader/internal/model"
	"github.com/xcalificator/grader/internal/store"
)

// DefaultMaxUploadSize bounds uploaded exam files.
const DefaultMaxUploadSize = 10 << 20

// ExamImporter loads exam definition files. store.Store implements it.
type ExamImporter interface {
	ImportExams(ctx context.Context, name string, data []byte) (store.ImportResult, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	grades    *gradebook.Manager
	exams     ExamImporter
	validate  *validator.Validate
	maxUpload int64
}

// New creates a new Handler. maxUpload <= 0 means DefaultMaxUploadSize.
func New(grades *gradebook.Manager, exams ExamImporter, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadSize
	}
	return &Handler{grades: grades, exams: exams, validate: validator.New(), maxUpload: maxUpload}
}

// Routes registers the API routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/exams/import", h.handleImportExams)
	r.Post("/exams/{examID}/submissions", h.handleSubmit)
	r.Post("/grading/upload", h.handleUpload)
	r.Post("/grading/online/{examID}/{studentID}", h.handleRegrade)
	r.Get("/grades/{examID}/{studentID}", h.handleGetGrade)
}

type submitRequest struct {
	StudentID string          `json:"student_id" validate:"required,max=128"`
	Responses json.RawMessage `json:"responses" validate:"required"`
}

type submitResponse struct {
	*gradebook.SubmitResult
	Message string `json:"message"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxUpload)).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.grades.Submit(r.Context(), chi.URLParam(r, "examID"), req.StudentID, req.Responses)
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg := i18n.T(r.Context(), i18n.MsgSubmissionReceived)
	if res.Record != nil {
		msg = i18n.Tp(r.Context(), i18n.MsgQuestionsGraded, len(res.Record.Detail.Questions))
	}
	writeJSON(w, http.StatusCreated, submitResponse{SubmitResult: res, Message: msg})
}

type uploadRequest struct {
	ExamID    string `validate:"required,max=128"`
	StudentID string `validate:"required,max=128"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || r.ContentLength > h.maxUpload {
			writeMessage(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeMessage(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	req := uploadRequest{ExamID: r.FormValue("exam_id"), StudentID: r.FormValue("student_id")}
	if err := h.validate.Struct(req); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "failed to read file")
		return
	}

	rec, err := h.grades.GradeUpload(r.Context(), req.ExamID, req.StudentID, model.UploadedFile{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleRegrade(w http.ResponseWriter, r *http.Request) {
	rec, err := h.grades.Regrade(r.Context(), chi.URLParam(r, "examID"), chi.URLParam(r, "studentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleGetGrade(w http.ResponseWriter, r *http.Request) {
	rec, err := h.grades.Record(r.Context(), chi.URLParam(r, "examID"), chi.URLParam(r, "studentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleImportExams(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeMessage(w, http.StatusBadRequest, "file too large")
		return
	}

	file, header, err := r.FormFile("exams_file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "failed to read file")
		return
	}

	res, err := h.exams.ImportExams(r.Context(), header.Filename, data)
	if err != nil {
		slog.Warn("exam import failed", "filename", header.Filename, "error", err)
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

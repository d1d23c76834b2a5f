package consultation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ReportRenderer turns a finished consultation into a printable document.
type ReportRenderer interface {
	RenderPDF(sess Session, st *State) ([]byte, error)
}

type Handler struct {
	svc Service
	pdf ReportRenderer
}

// NewHandler builds the HTTP adapter. pdf may be nil, in which case the PDF
// endpoint answers 501.
func NewHandler(svc Service, pdf ReportRenderer) *Handler {
	return &Handler{svc: svc, pdf: pdf}
}

const userHeader = "X-User-ID"

type ChatRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
}

type CreateSessionRequest struct {
	UserID string `json:"user_id"`
}

type RenameRequest struct {
	Title string `json:"title"`
}

func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", ErrInvalidInput, err))
		return
	}

	res, err := h.svc.ProcessTurn(r.Context(), TurnRequest{
		SessionID: req.SessionID,
		UserID:    userID(r, req.UserID),
		Message:   req.Message,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("%w: %v", ErrInvalidInput, err))
			return
		}
	}

	sess, err := h.svc.CreateSession(r.Context(), userID(r, req.UserID))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	detail, err := h.svc.GetSession(r.Context(), id, userID(r, ""))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	detail, err := h.svc.GetSession(r.Context(), id, userID(r, ""))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, detail.State.Transcript)
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "userID")
	caller := userID(r, "")
	if caller == "" {
		writeError(w, fmt.Errorf("%w: missing %s header", ErrInvalidInput, userHeader))
		return
	}
	if caller != owner {
		writeError(w, ErrForbidden)
		return
	}

	sessions, err := h.svc.ListSessions(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) RenameSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", ErrInvalidInput, err))
		return
	}

	sess, err := h.svc.RenameSession(r.Context(), id, userID(r, ""), req.Title)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteSession(r.Context(), id, userID(r, "")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.svc.Clear(r.Context(), id, userID(r, ""))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	report, err := h.svc.GetReport(r.Context(), id, userID(r, ""))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) GetReportPDF(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		http.Error(w, "PDF reports are not available", http.StatusNotImplemented)
		return
	}

	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	detail, err := h.svc.GetSession(r.Context(), id, userID(r, ""))
	if err != nil {
		writeError(w, err)
		return
	}
	if !detail.State.AnalysisComplete {
		writeError(w, ErrReportNotReady)
		return
	}

	data, err := h.pdf.RenderPDF(detail.Session, detail.State)
	if err != nil {
		slog.Error("Failed to render PDF report",
			slog.String("session_id", id.String()),
			slog.Any("error", err),
		)
		http.Error(w, "Failed to render report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="report_%s.pdf"`, id))
	w.Write(data)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/chat", h.HandleChat)

	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)
		r.Patch("/title", h.RenameSession)
		r.Post("/clear", h.ClearSession)
		r.Get("/messages", h.ListMessages)
		r.Get("/report", h.GetReport)
		r.Get("/report.pdf", h.GetReportPDF)
	})

	r.Get("/users/{userID}/sessions", h.ListSessions)
}

// userID prefers the X-User-ID header over an identity carried in the body.
func userID(r *http.Request, fromBody string) string {
	if v := strings.TrimSpace(r.Header.Get(userHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(fromBody)
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid session id", ErrInvalidInput))
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrReportNotReady):
		status = http.StatusConflict
	case errors.Is(err, ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}

	msg := http.StatusText(status)
	if status < http.StatusInternalServerError {
		msg = err.Error()
	}
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", slog.Any("error", err))
	}

	writeJSON(w, status, map[string]string{"error": msg})
}

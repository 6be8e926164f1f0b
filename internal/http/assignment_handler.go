package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/meeting-coordinator/internal/assignment"
	"github.com/example/meeting-coordinator/internal/meeting"
)

var errInvalidPosition = errors.New("La asignación no es válida.")

type assignmentService interface {
	Assign(ctx context.Context, params meeting.AssignParams) (meeting.Meeting, error)
	Confirm(ctx context.Context, params meeting.ConfirmParams) (meeting.Meeting, error)
}

// AssignmentHandler serves position assignment and confirmation.
type AssignmentHandler struct {
	service   assignmentService
	responder responder
}

// NewAssignmentHandler wires the assignment endpoints.
func NewAssignmentHandler(service assignmentService, logger *slog.Logger) *AssignmentHandler {
	return &AssignmentHandler{service: service, responder: newResponder(logger)}
}

// Assign puts a roster member on a position. An empty name clears it.
func (h *AssignmentHandler) Assign(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, pos, ok := h.target(w, r)
	if !ok {
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	m, err := h.service.Assign(r.Context(), meeting.AssignParams{
		Principal: principal,
		MeetingID: id,
		Position:  pos,
		Name:      req.Name,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toMeetingDTO(m))
}

// Confirm records the assignee's answer.
func (h *AssignmentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, pos, ok := h.target(w, r)
	if !ok {
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Confirmed == nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	m, err := h.service.Confirm(r.Context(), meeting.ConfirmParams{
		Principal: principal,
		MeetingID: id,
		Position:  pos,
		Confirmed: *req.Confirmed,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toMeetingDTO(m))
}

// target resolves the meeting id and the position, which may be a display
// name ("Microfono 1") or its short key ("M1").
func (h *AssignmentHandler) target(w http.ResponseWriter, r *http.Request) (string, assignment.Position, bool) {
	id, ok := meetingIDParam(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidMeetingID)
		return "", "", false
	}
	raw, err := url.PathUnescape(chi.URLParam(r, "position"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidPosition)
		return "", "", false
	}
	pos, ok := assignment.ParsePosition(strings.TrimSpace(raw))
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusNotFound, errInvalidPosition)
		return "", "", false
	}
	return id, pos, true
}

type assignRequest struct {
	Name string `json:"name"`
}

type confirmRequest struct {
	Confirmed *bool `json:"confirmed"`
}

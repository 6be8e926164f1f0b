package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/meeting-coordinator/internal/assignment"
	"github.com/example/meeting-coordinator/internal/meeting"
	"github.com/example/meeting-coordinator/internal/persistence"
)

var errInvalidMeetingID = errors.New("El identificador de la reunión no es válido.")

const deleteFailedMessage = "Error al eliminar la reunión. Verifica tu conexión o permisos."

type lifecycleService interface {
	List() []meeting.Meeting
	Get(id string) (meeting.Meeting, error)
	Active() (meeting.Meeting, bool)
	Create(ctx context.Context, params meeting.CreateParams) (meeting.Meeting, error)
	SetStatus(ctx context.Context, params meeting.SetStatusParams) (meeting.Meeting, error)
	Delete(ctx context.Context, principal meeting.Principal, id string) error
	DeleteAll(ctx context.Context, principal meeting.Principal) (int, error)
	ScheduleRecurring(ctx context.Context, params meeting.ScheduleRecurringParams) ([]meeting.Meeting, error)
}

// MeetingHandler serves the meeting list and lifecycle endpoints.
type MeetingHandler struct {
	service   lifecycleService
	responder responder
	logger    *slog.Logger
}

// NewMeetingHandler wires the meeting endpoints.
func NewMeetingHandler(service lifecycleService, logger *slog.Logger) *MeetingHandler {
	base := defaultLogger(logger)
	return &MeetingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *MeetingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "MeetingHandler", operation, attrs...)
}

// List returns every meeting, newest date first.
func (h *MeetingHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	meetings := h.service.List()
	out := make([]meetingDTO, 0, len(meetings))
	for _, m := range meetings {
		out = append(out, toMeetingDTO(m))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

// Get returns one meeting.
func (h *MeetingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := meetingIDParam(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidMeetingID)
		return
	}
	m, err := h.service.Get(id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toMeetingDTO(m))
}

// Active returns the meeting in progress, or 204 when there is none.
func (h *MeetingHandler) Active(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	m, ok := h.service.Active()
	if !ok {
		h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toMeetingDTO(m))
}

// Create adds a scheduled meeting.
func (h *MeetingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req createMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	m, err := h.service.Create(r.Context(), meeting.CreateParams{
		Principal: principal,
		Date:      req.Date,
		Type:      req.Type,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toMeetingDTO(m))
}

// ScheduleRecurring creates the weekly meetings of a date window.
func (h *MeetingHandler) ScheduleRecurring(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req recurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	created, err := h.service.ScheduleRecurring(r.Context(), meeting.ScheduleRecurringParams{
		Principal: principal,
		From:      req.From,
		Until:     req.Until,
	})
	if err != nil && len(created) == 0 {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]meetingDTO, 0, len(created))
	for _, m := range created {
		out = append(out, toMeetingDTO(m))
	}
	status := http.StatusCreated
	if err != nil {
		h.log(r.Context(), "ScheduleRecurring").WarnContext(r.Context(), "recurring schedule stopped early", "created", len(created), "error", err)
		status = http.StatusMultiStatus
	}
	h.responder.writeJSON(r.Context(), w, status, out)
}

// SetStatus moves a meeting along its lifecycle.
func (h *MeetingHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := meetingIDParam(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidMeetingID)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	m, err := h.service.SetStatus(r.Context(), meeting.SetStatusParams{
		Principal: principal,
		MeetingID: id,
		Status:    meeting.Status(strings.TrimSpace(req.Status)),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toMeetingDTO(m))
}

// Delete removes one meeting.
func (h *MeetingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := meetingIDParam(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidMeetingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), principal, id); err != nil {
		if errors.Is(err, persistence.ErrUnavailable) {
			h.responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, errorResponse{Message: deleteFailedMessage})
			return
		}
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// DeleteAll removes every meeting. A partial failure reports how many were
// deleted before the store call that failed.
func (h *MeetingHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	deleted, err := h.service.DeleteAll(r.Context(), principal)
	if err != nil {
		if errors.Is(err, meeting.ErrUnauthorized) {
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
		h.log(r.Context(), "DeleteAll").ErrorContext(r.Context(), "bulk delete stopped", "deleted", deleted, "error", err)
		h.responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, deleteAllResponse{
			Deleted: deleted,
			Message: deleteFailedMessage,
		})
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, deleteAllResponse{Deleted: deleted})
}

func meetingIDParam(r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "meetingID"))
	return id, id != ""
}

type createMeetingRequest struct {
	Date string `json:"date"`
	Type string `json:"type"`
}

type recurringRequest struct {
	From  string `json:"from"`
	Until string `json:"until"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type deleteAllResponse struct {
	Deleted int    `json:"deleted"`
	Message string `json:"message,omitempty"`
}

type positionDTO struct {
	Position  assignment.Position `json:"position"`
	Name      string              `json:"name,omitempty"`
	Confirmed *bool               `json:"confirmed"`
}

type meetingDTO struct {
	meeting.Meeting
	Positions []positionDTO `json:"positions"`
}

// toMeetingDTO keeps the encoded assignment field and adds the decoded
// positions in display order.
func toMeetingDTO(m meeting.Meeting) meetingDTO {
	decoded := m.DecodedAssignments()
	positions := make([]positionDTO, 0, len(assignment.Positions()))
	for _, pos := range assignment.Positions() {
		a := decoded[pos]
		positions = append(positions, positionDTO{Position: pos, Name: a.Name, Confirmed: a.Confirmed})
	}
	return meetingDTO{Meeting: m, Positions: positions}
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/example/meeting-coordinator/internal/chat"
	"github.com/example/meeting-coordinator/internal/meeting"
	"github.com/example/meeting-coordinator/internal/persistence"
)

type chatService interface {
	Authorize(meetingID string, principal meeting.Principal) (meeting.Meeting, error)
	List(ctx context.Context, principal meeting.Principal, meetingID string) ([]chat.Message, error)
	Send(ctx context.Context, params chat.SendParams) (chat.Message, error)
	Watch(meetingID string) (<-chan chat.Message, func())
}

// ChatHandler serves the per meeting chat history and message posting.
type ChatHandler struct {
	service   chatService
	responder responder
	logger    *slog.Logger
}

// NewChatHandler wires the chat endpoints.
func NewChatHandler(service chatService, logger *slog.Logger) *ChatHandler {
	base := defaultLogger(logger)
	return &ChatHandler{service: service, responder: newResponder(base), logger: base}
}

// List returns the recent history, oldest first.
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
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
	messages, err := h.service.List(r.Context(), principal, id)
	if err != nil {
		h.writeChatError(r.Context(), w, err, chatLoadFailedMessage)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, messages)
}

// Send posts a message as the caller.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := meetingIDParam(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidMeetingID)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	message, err := h.service.Send(r.Context(), chat.SendParams{
		Principal: principal,
		MeetingID: id,
		Text:      req.Text,
	})
	if err != nil {
		h.writeChatError(r.Context(), w, err, chatSendFailedMessage)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, message)
}

// writeChatError maps known failures and reports anything else with the
// generic chat message.
func (h *ChatHandler) writeChatError(ctx context.Context, w http.ResponseWriter, err error, fallback string) {
	var vErr *meeting.ValidationError
	switch {
	case errors.Is(err, chat.ErrForbidden),
		errors.Is(err, chat.ErrChatIndexMissing),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrMessageTooLong),
		errors.Is(err, chat.ErrRateLimited),
		errors.Is(err, meeting.ErrNotFound),
		errors.As(err, &vErr):
		h.responder.handleServiceError(ctx, w, err)
	default:
		status := http.StatusInternalServerError
		if errors.Is(err, persistence.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		handlerLogger(ctx, h.logger, "ChatHandler", "", "error_kind", "store").ErrorContext(ctx, "chat request failed", "error", err)
		h.responder.writeJSON(ctx, w, status, errorResponse{Message: fallback})
	}
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

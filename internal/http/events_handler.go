package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/meeting-coordinator/internal/meeting"
)

// DefaultKeepAlive is the interval between comment frames on idle streams.
const DefaultKeepAlive = 25 * time.Second

type meetingWatcher interface {
	Watch() (<-chan meeting.Change, func())
}

// EventsHandler streams meeting changes and chat messages as server-sent
// events.
type EventsHandler struct {
	meetings  meetingWatcher
	chat      chatService
	keepAlive time.Duration
	responder responder
	logger    *slog.Logger
}

// NewEventsHandler wires the streaming endpoints. keepAlive <= 0 selects
// DefaultKeepAlive.
func NewEventsHandler(meetings meetingWatcher, chat chatService, keepAlive time.Duration, logger *slog.Logger) *EventsHandler {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	base := defaultLogger(logger)
	return &EventsHandler{meetings: meetings, chat: chat, keepAlive: keepAlive, responder: newResponder(base), logger: base}
}

// Meetings streams every collection change as a "meeting" event.
func (h *EventsHandler) Meetings(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.meetings == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	changes, stop := h.meetings.Watch()
	defer stop()
	stream(h, w, r, "meeting", changes, nil)
}

// Messages streams new chat messages of one meeting to an authorized
// caller as "message" events.
func (h *EventsHandler) Messages(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.chat == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := meetingIDParam(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidMeetingID)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	if _, err := h.chat.Authorize(id, principal); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	g := &guard{allowed: func() bool {
		_, err := h.chat.Authorize(id, principal)
		return err == nil
	}}
	if h.meetings != nil {
		changes, stopChanges := h.meetings.Watch()
		defer stopChanges()
		g.changes = changes
	}

	messages, stop := h.chat.Watch(id)
	defer stop()
	stream(h, w, r, "message", messages, g)
}

// guard ends a stream once the caller loses access. allowed is evaluated on
// every meeting change and before every value is written.
type guard struct {
	changes <-chan meeting.Change
	allowed func() bool
}

func (g *guard) permits() bool {
	return g == nil || g.allowed == nil || g.allowed()
}

// stream writes every value received on ch until the client goes away, ch is
// closed or g revokes access. A revoked stream ends with a "revoked" event.
func stream[T any](h *EventsHandler, w http.ResponseWriter, r *http.Request, event string, ch <-chan T, g *guard) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	logger := handlerLogger(r.Context(), h.logger, "EventsHandler", event)
	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	var changes <-chan meeting.Change
	if g != nil {
		changes = g.changes
	}
	revoke := func() {
		logger.InfoContext(r.Context(), "stream closed after access was revoked")
		fmt.Fprint(w, "event: revoked\ndata: {}\n\n")
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			logger.DebugContext(r.Context(), "stream closed by client")
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case _, open := <-changes:
			if !open {
				changes = nil
				continue
			}
			if !g.permits() {
				revoke()
				return
			}
		case value, open := <-ch:
			if !open {
				return
			}
			if !g.permits() {
				revoke()
				return
			}
			payload, err := json.Marshal(value)
			if err != nil {
				logger.ErrorContext(r.Context(), "failed to encode event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
			flusher.Flush()
		}
	}
}

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/example/meeting-coordinator/internal/logging"
	"github.com/example/meeting-coordinator/internal/meeting"
	"github.com/example/meeting-coordinator/internal/metrics"
	"github.com/example/meeting-coordinator/internal/persistence"
)

// Meetings resolves the meeting a chat belongs to.
type Meetings interface {
	Get(id string) (meeting.Meeting, bool)
}

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	Now      func() time.Time
	Recorder metrics.Recorder
	// SendRate and SendBurst bound how fast one sender may post.
	SendRate  rate.Limit
	SendBurst int
}

const (
	defaultSendRate  = rate.Limit(1)
	defaultSendBurst = 5
)

// SendParams wraps a message posted by Principal.
type SendParams struct {
	Principal meeting.Principal
	MeetingID string
	Text      string
}

// Service lists and posts chat messages for meetings.
type Service struct {
	store    persistence.Store
	meetings Meetings
	recorder metrics.Recorder
	now      func() time.Time
	logger   *slog.Logger
	hub      *hub

	limitMu   sync.Mutex
	limiters  map[string]*rate.Limiter
	sendRate  rate.Limit
	sendBurst int
}

// NewService wires dependencies for chat operations.
func NewService(store persistence.Store, meetings Meetings, opts Options) *Service {
	return NewServiceWithLogger(store, meetings, opts, nil)
}

// NewServiceWithLogger wires dependencies with a specified logger.
func NewServiceWithLogger(store persistence.Store, meetings Meetings, opts Options, logger *slog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.Nop{}
	}
	if opts.SendRate <= 0 {
		opts.SendRate = defaultSendRate
	}
	if opts.SendBurst <= 0 {
		opts.SendBurst = defaultSendBurst
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		meetings:  meetings,
		recorder:  opts.Recorder,
		now:       opts.Now,
		logger:    logger,
		hub:       newHub(),
		limiters:  make(map[string]*rate.Limiter),
		sendRate:  opts.SendRate,
		sendBurst: opts.SendBurst,
	}
}

func (s *Service) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	pairs := append([]any{"service", "ChatService", "operation", operation}, attrs...)
	return logging.Resolve(ctx, s.logger).With(pairs...)
}

// Authorize resolves the meeting and applies IsAuthorized.
func (s *Service) Authorize(meetingID string, principal meeting.Principal) (meeting.Meeting, error) {
	m, ok := s.meetings.Get(meetingID)
	if !ok {
		return meeting.Meeting{}, meeting.ErrNotFound
	}
	if !IsAuthorized(m, principal) {
		return m, ErrForbidden
	}
	return m, nil
}

// List returns the HistoryLimit most recent messages of the meeting, oldest
// first. On a local store an empty chat yields a single system message.
func (s *Service) List(ctx context.Context, principal meeting.Principal, meetingID string) (messages []Message, err error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("chat store not configured")
	}

	logger := s.loggerWith(ctx, "List", "principal", principal.Name, "meeting_id", meetingID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list messages", "error", err)
		}
	}()

	if _, err = s.Authorize(meetingID, principal); err != nil {
		if errors.Is(err, ErrForbidden) {
			s.recorder.RecordChatRejected("forbidden")
		}
		return nil, err
	}

	docs, err := s.store.List(ctx, persistence.CollectionMessages, persistence.Query{
		Filters:    []persistence.Filter{persistence.Equal("meetingId", meetingID)},
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      HistoryLimit,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrMissingIndex) {
			return nil, fmt.Errorf("%w: %w", ErrChatIndexMissing, err)
		}
		return nil, err
	}

	messages = make([]Message, len(docs))
	for i, doc := range docs {
		messages[len(docs)-1-i] = messageFrom(doc.ID, doc.Fields)
	}
	if len(messages) == 0 && !s.store.Realtime() {
		messages = append(messages, Message{
			ID:        "system",
			MeetingID: meetingID,
			Text:      LocalWelcome,
			Sender:    SystemSender,
			Timestamp: formatTimestamp(s.now()),
			Type:      MessageTypeSystem,
		})
	}
	return messages, nil
}

// Send stores a message from an authorized sender.
func (s *Service) Send(ctx context.Context, params SendParams) (message Message, err error) {
	if s == nil || s.store == nil {
		err = fmt.Errorf("chat store not configured")
		return
	}

	logger := s.loggerWith(ctx, "Send", "principal", params.Principal.Name, "meeting_id", params.MeetingID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to send message", "error", err)
			return
		}
		logger.InfoContext(ctx, "message sent", "message_id", message.ID)
	}()

	text := strings.TrimSpace(params.Text)
	switch {
	case text == "":
		s.recorder.RecordChatRejected("empty")
		err = ErrEmptyMessage
		return
	case utf8.RuneCountInString(text) > MaxTextLength:
		s.recorder.RecordChatRejected("too_long")
		err = ErrMessageTooLong
		return
	}

	if _, err = s.Authorize(params.MeetingID, params.Principal); err != nil {
		if errors.Is(err, ErrForbidden) {
			s.recorder.RecordChatRejected("forbidden")
		}
		return
	}
	if !s.limiter(params.Principal.Name).AllowN(s.now(), 1) {
		s.recorder.RecordChatRejected("rate_limited")
		err = ErrRateLimited
		return
	}

	message = Message{
		MeetingID: params.MeetingID,
		Text:      text,
		Sender:    params.Principal.Name,
		Timestamp: formatTimestamp(s.now()),
		Type:      MessageTypeText,
	}
	doc, err := s.store.Create(ctx, persistence.CollectionMessages, message.fields())
	if err != nil {
		return Message{}, err
	}
	message.ID = doc.ID

	kind := "text"
	if IsPhrase(text) {
		kind = "phrase"
	}
	s.recorder.RecordChatMessage(kind)

	if !s.store.Realtime() {
		s.hub.publish(message)
	}
	return message, nil
}

// Watch returns a channel receiving new messages of the meeting until stop
// is called.
func (s *Service) Watch(meetingID string) (<-chan Message, func()) {
	return s.hub.watch(meetingID)
}

// Listeners returns how many watchers the meeting has.
func (s *Service) Listeners(meetingID string) int {
	return s.hub.count(meetingID)
}

// Relay forwards message creations reported by the store to watchers. On a
// store without change events it is a no-op, Send publishes directly.
func (s *Service) Relay(ctx context.Context) (stop func(), err error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("chat store not configured")
	}
	return s.store.Subscribe(ctx, persistence.CollectionMessages, func(e persistence.Event) {
		if e.Type != persistence.EventCreate {
			return
		}
		s.hub.publish(messageFrom(e.DocumentID, e.Fields))
	})
}

func (s *Service) limiter(sender string) *rate.Limiter {
	s.limitMu.Lock()
	defer s.limitMu.Unlock()
	l, ok := s.limiters[sender]
	if !ok {
		l = rate.NewLimiter(s.sendRate, s.sendBurst)
		s.limiters[sender] = l
	}
	return l
}

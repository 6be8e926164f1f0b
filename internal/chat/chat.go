// Package chat implements the per-meeting message channel and the rule that
// decides who may use it.
package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/example/meeting-coordinator/internal/persistence"
)

const (
	// HistoryLimit caps how many of the most recent messages List returns.
	HistoryLimit = 50
	// MaxTextLength bounds a message in runes.
	MaxTextLength = 500

	// SystemSender signs messages generated by the service itself.
	SystemSender = "Sistema"
	// LocalWelcome is shown when a meeting has no messages in local mode.
	LocalWelcome = "Chat local habilitado"
)

var (
	// ErrForbidden is returned when the user is neither admin nor assigned to the meeting.
	ErrForbidden = errors.New("chat: user is not assigned to this meeting")
	// ErrChatIndexMissing is returned when the remote store lacks the meetingId/timestamp index.
	ErrChatIndexMissing = errors.New("chat: messages index on meetingId and timestamp is missing")
	// ErrEmptyMessage is returned for blank text.
	ErrEmptyMessage = errors.New("chat: message is empty")
	// ErrMessageTooLong is returned when the text exceeds MaxTextLength.
	ErrMessageTooLong = errors.New("chat: message is too long")
	// ErrRateLimited is returned when a sender exceeds the send rate.
	ErrRateLimited = errors.New("chat: too many messages")
)

// MessageType tags how a message was produced.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeSystem MessageType = "system"
)

// TimestampLayout is fixed width UTC with milliseconds, so lexical and
// chronological order agree.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Message is one chat entry.
type Message struct {
	ID        string      `json:"id"`
	MeetingID string      `json:"meetingId"`
	Text      string      `json:"text"`
	Sender    string      `json:"sender"`
	Timestamp string      `json:"timestamp"`
	Type      MessageType `json:"type"`
}

func (m Message) fields() persistence.Fields {
	return persistence.Fields{
		"meetingId": m.MeetingID,
		"text":      m.Text,
		"sender":    m.Sender,
		"timestamp": m.Timestamp,
		"type":      string(m.Type),
	}
}

func messageFrom(id string, fields persistence.Fields) Message {
	m := Message{
		ID:        id,
		MeetingID: fields.String("meetingId"),
		Text:      fields.String("text"),
		Sender:    fields.String("sender"),
		Timestamp: fields.String("timestamp"),
		Type:      MessageType(fields.String("type")),
	}
	if m.Type == "" {
		m.Type = MessageTypeText
	}
	return m
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

var phrases = []string{
	"ayuda",
	"mas fuerte el volumen",
	"mas despacio",
	"baja el microfono",
	"sube el microfono",
	"carga las pilas",
	"solucionado",
	"voy a ayudar",
}

// Phrases returns the quick replies offered next to the input.
func Phrases() []string {
	out := make([]string, len(phrases))
	copy(out, phrases)
	return out
}

// IsPhrase reports whether text is one of the quick replies.
func IsPhrase(text string) bool {
	text = strings.TrimSpace(text)
	for _, p := range phrases {
		if p == text {
			return true
		}
	}
	return false
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/meeting-coordinator/internal/persistence"
)

// changeMessage is the JSON payload published for every write.
type changeMessage struct {
	Events     []string       `json:"events"`
	Type       string         `json:"type"`
	DocumentID string         `json:"documentId"`
	Payload    map[string]any `json:"payload"`
	Timestamp  string         `json:"timestamp"`
}

// publish announces a change. Delivery is best effort: the write already
// succeeded, so a failed publish is only logged.
func (s *Store) publish(ctx context.Context, collection string, kind persistence.EventType, id string, fields persistence.Fields) {
	channel := s.Channel(collection)
	payload := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["$id"] = id

	data, err := json.Marshal(changeMessage{
		Events:     []string{fmt.Sprintf("%s.%s.%s", channel, id, kind)},
		Type:       string(kind),
		DocumentID: id,
		Payload:    payload,
		Timestamp:  s.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to encode change event", "channel", channel, "error", err)
		return
	}
	if err := s.client.Publish(ctx, channel, data).Err(); err != nil {
		s.logger.WarnContext(ctx, "failed to publish change event", "channel", channel, "document_id", id, "error", err)
	}
}

func decodeEvent(collection, raw string) (persistence.Event, error) {
	var msg changeMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return persistence.Event{}, fmt.Errorf("decode change event: %w", err)
	}

	event := persistence.Event{
		Type:       persistence.EventType(msg.Type),
		Collection: collection,
		DocumentID: msg.DocumentID,
		Fields:     persistence.Fields{},
	}
	switch event.Type {
	case persistence.EventCreate, persistence.EventUpdate, persistence.EventDelete:
	default:
		return persistence.Event{}, fmt.Errorf("decode change event: unknown type %q", msg.Type)
	}
	for k, v := range msg.Payload {
		if k == "$id" {
			continue
		}
		event.Fields[k] = v
	}
	if at, err := time.Parse(time.RFC3339Nano, msg.Timestamp); err == nil {
		event.At = at
	}
	return event, nil
}

// Package persistence defines the document store contract shared by the
// remote realtime backend and the local offline backend.
//
// Callers depend only on Store. The backend is chosen once at startup; a
// backend that cannot push change notifications reports Realtime() == false
// and its Subscribe is a no-op, so callers must re-fetch after their own
// mutations instead of waiting for an event.
package persistence

import (
	"context"
	"time"
)

// Logical collection names.
const (
	CollectionMeetings = "meetings"
	CollectionMessages = "messages"
)

// Fields holds document attributes. Values are JSON compatible scalars.
type Fields map[string]any

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// String returns the string form of a field, or "" when absent.
func (f Fields) String(key string) string {
	return stringValue(f[key])
}

// Document is a stored record with its store generated identifier.
type Document struct {
	ID     string
	Fields Fields
}

// Filter is an equality predicate on one field.
type Filter struct {
	Field string
	Value string
}

// Query narrows and orders List results. Ordering compares the string form
// of the field, which sorts ISO dates and RFC 3339 timestamps chronologically.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Equal returns a filter matching field == value.
func Equal(field, value string) Filter {
	return Filter{Field: field, Value: value}
}

// EventType classifies change notifications.
type EventType string

const (
	EventCreate EventType = "create"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event describes one change to a document of a collection.
type Event struct {
	Type       EventType
	Collection string
	DocumentID string
	Fields     Fields
	At         time.Time
}

// Store is the uniform CRUD and change notification contract.
type Store interface {
	// List returns the documents of collection matching q.
	List(ctx context.Context, collection string, q Query) ([]Document, error)
	// Create stores fields under a generated id and returns the record.
	Create(ctx context.Context, collection string, fields Fields) (Document, error)
	// Update merges partial into the stored document. Absent keys are kept.
	Update(ctx context.Context, collection, id string, partial Fields) error
	// Delete removes the document.
	Delete(ctx context.Context, collection, id string) error
	// Subscribe delivers change events of collection to fn until the returned
	// function is called or ctx is done. Calling it more than once is safe.
	Subscribe(ctx context.Context, collection string, fn func(Event)) (func(), error)
	// Realtime reports whether Subscribe delivers events.
	Realtime() bool
	// Close releases backend resources.
	Close() error
}

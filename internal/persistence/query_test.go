package persistence

import (
	"context"
	"errors"
	"testing"
	"time"
)

func doc(id string, fields Fields) Document {
	return Document{ID: id, Fields: fields}
}

func TestApply(t *testing.T) {
	docs := []Document{
		doc("m1", Fields{"meetingId": "a", "timestamp": "2026-02-04T19:00:01Z"}),
		doc("m2", Fields{"meetingId": "b", "timestamp": "2026-02-04T19:00:02Z"}),
		doc("m3", Fields{"meetingId": "a", "timestamp": "2026-02-04T19:00:03Z"}),
		doc("m4", Fields{"meetingId": "a", "timestamp": "2026-02-04T19:00:00Z"}),
	}

	t.Run("filters and orders ascending", func(t *testing.T) {
		got := Apply(docs, Query{Filters: []Filter{Equal("meetingId", "a")}, OrderBy: "timestamp"})
		want := []string{"m4", "m1", "m3"}
		assertIDs(t, got, want)
	})

	t.Run("orders descending with limit", func(t *testing.T) {
		got := Apply(docs, Query{OrderBy: "timestamp", Descending: true, Limit: 2})
		assertIDs(t, got, []string{"m3", "m2"})
	})

	t.Run("does not modify input", func(t *testing.T) {
		_ = Apply(docs, Query{OrderBy: "timestamp"})
		if docs[0].ID != "m1" || docs[3].ID != "m4" {
			t.Fatalf("expected input order to be preserved")
		}
	})
}

func assertIDs(t *testing.T, docs []Document, want []string) {
	t.Helper()
	if len(docs) != len(want) {
		t.Fatalf("expected %d documents, got %d", len(want), len(docs))
	}
	for i, id := range want {
		if docs[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, docs[i].ID)
		}
	}
}

type observerStub struct {
	calls []string
	errs  []error
}

func (o *observerStub) ObserveStoreOperation(collection, operation string, err error, _ time.Duration) {
	o.calls = append(o.calls, collection+"."+operation)
	o.errs = append(o.errs, err)
}

type failingStore struct{ err error }

func (f failingStore) List(context.Context, string, Query) ([]Document, error) { return nil, f.err }
func (f failingStore) Create(context.Context, string, Fields) (Document, error) {
	return Document{}, f.err
}
func (f failingStore) Update(context.Context, string, string, Fields) error { return f.err }
func (f failingStore) Delete(context.Context, string, string) error         { return f.err }
func (f failingStore) Subscribe(context.Context, string, func(Event)) (func(), error) {
	return func() {}, nil
}
func (f failingStore) Realtime() bool { return false }
func (f failingStore) Close() error   { return nil }

func TestInstrument(t *testing.T) {
	cause := Unavailable("list", errors.New("connection refused"))
	observer := &observerStub{}
	store := Instrument(failingStore{err: cause}, observer)

	if _, err := store.List(context.Background(), CollectionMeetings, Query{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := store.Delete(context.Background(), CollectionMessages, "x"); err == nil {
		t.Fatalf("expected delete error to propagate")
	}

	if len(observer.calls) != 2 || observer.calls[0] != "meetings.list" || observer.calls[1] != "messages.delete" {
		t.Fatalf("unexpected observed calls: %v", observer.calls)
	}
	if !errors.Is(observer.errs[0], ErrUnavailable) {
		t.Fatalf("expected observer to receive the error, got %v", observer.errs[0])
	}
}

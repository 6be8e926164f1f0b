package persistence

import (
	"context"
	"time"
)

// Observer receives the outcome of every store call.
type Observer interface {
	ObserveStoreOperation(collection, operation string, err error, elapsed time.Duration)
}

// Instrument wraps store so that every call is reported to observer.
func Instrument(store Store, observer Observer) Store {
	if observer == nil {
		return store
	}
	return &instrumentedStore{next: store, observer: observer, now: time.Now}
}

type instrumentedStore struct {
	next     Store
	observer Observer
	now      func() time.Time
}

func (s *instrumentedStore) observe(collection, operation string, start time.Time, err error) {
	s.observer.ObserveStoreOperation(collection, operation, err, s.now().Sub(start))
}

func (s *instrumentedStore) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	start := s.now()
	docs, err := s.next.List(ctx, collection, q)
	s.observe(collection, "list", start, err)
	return docs, err
}

func (s *instrumentedStore) Create(ctx context.Context, collection string, fields Fields) (Document, error) {
	start := s.now()
	doc, err := s.next.Create(ctx, collection, fields)
	s.observe(collection, "create", start, err)
	return doc, err
}

func (s *instrumentedStore) Update(ctx context.Context, collection, id string, partial Fields) error {
	start := s.now()
	err := s.next.Update(ctx, collection, id, partial)
	s.observe(collection, "update", start, err)
	return err
}

func (s *instrumentedStore) Delete(ctx context.Context, collection, id string) error {
	start := s.now()
	err := s.next.Delete(ctx, collection, id)
	s.observe(collection, "delete", start, err)
	return err
}

func (s *instrumentedStore) Subscribe(ctx context.Context, collection string, fn func(Event)) (func(), error) {
	start := s.now()
	unsubscribe, err := s.next.Subscribe(ctx, collection, fn)
	s.observe(collection, "subscribe", start, err)
	return unsubscribe, err
}

func (s *instrumentedStore) Realtime() bool {
	return s.next.Realtime()
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}

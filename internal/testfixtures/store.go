package testfixtures

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/example/meeting-coordinator/internal/persistence"
)

// ErrInjected is the default failure returned by FailNext.
var ErrInjected = errors.New("testfixtures: injected failure")

// Call records one store invocation.
type Call struct {
	Operation  string
	Collection string
	ID         string
	Fields     persistence.Fields
}

// MemoryStore is an in-memory persistence.Store with failure injection. In
// realtime mode every write is delivered synchronously to subscribers.
type MemoryStore struct {
	mu          sync.Mutex
	realtime    bool
	ids         *IDGenerator
	docs        map[string][]persistence.Document
	failures    map[string][]error
	calls       []Call
	subscribers map[string]map[int]func(persistence.Event)
	nextSub     int
	indexed     map[string]bool
	clock       *Clock
	pauses      map[string][]*pause
}

type pause struct {
	reached chan struct{}
	release chan struct{}
}

// NewMemoryStore returns an empty store. realtime selects whether Subscribe
// delivers events.
func NewMemoryStore(realtime bool) *MemoryStore {
	return &MemoryStore{
		realtime:    realtime,
		ids:         NewIDGenerator("doc"),
		docs:        make(map[string][]persistence.Document),
		failures:    make(map[string][]error),
		subscribers: make(map[string]map[int]func(persistence.Event)),
		clock:       NewClock(ReferenceTime()),
	}
}

// RequireIndexes makes filtered or ordered queries on collection fail with
// persistence.ErrMissingIndex, like a remote store without the index.
func (s *MemoryStore) RequireIndexes(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexed == nil {
		s.indexed = make(map[string]bool)
	}
	s.indexed[collection] = false
}

// FailNext makes the next call of operation ("list", "create", "update",
// "delete", "subscribe") fail with err, or ErrInjected when err is nil.
// Calls queue up: FailNext twice fails the next two calls.
func (s *MemoryStore) FailNext(operation string, err error) {
	if err == nil {
		err = ErrInjected
	}
	s.mu.Lock()
	s.failures[operation] = append(s.failures[operation], err)
	s.mu.Unlock()
}

// FailAfter lets n calls of operation succeed and fails the one after with
// err, or ErrInjected when err is nil.
func (s *MemoryStore) FailAfter(operation string, n int, err error) {
	if err == nil {
		err = ErrInjected
	}
	s.mu.Lock()
	for i := 0; i < n; i++ {
		s.failures[operation] = append(s.failures[operation], nil)
	}
	s.failures[operation] = append(s.failures[operation], err)
	s.mu.Unlock()
}

// PauseNext holds the next call of operation before it touches the store.
// reached is closed once the call is waiting; release lets it continue.
func (s *MemoryStore) PauseNext(operation string) (reached <-chan struct{}, release func()) {
	p := &pause{reached: make(chan struct{}), release: make(chan struct{})}
	s.mu.Lock()
	if s.pauses == nil {
		s.pauses = make(map[string][]*pause)
	}
	s.pauses[operation] = append(s.pauses[operation], p)
	s.mu.Unlock()

	var once sync.Once
	return p.reached, func() { once.Do(func() { close(p.release) }) }
}

func (s *MemoryStore) wait(operation string) {
	s.mu.Lock()
	queued := s.pauses[operation]
	if len(queued) == 0 {
		s.mu.Unlock()
		return
	}
	p := queued[0]
	s.pauses[operation] = queued[1:]
	s.mu.Unlock()

	close(p.reached)
	<-p.release
}

// Remove deletes a document directly, bypassing failure injection and events.
func (s *MemoryStore) Remove(collection, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(collection, id); i >= 0 {
		s.docs[collection] = append(s.docs[collection][:i:i], s.docs[collection][i+1:]...)
	}
}

// Calls returns the recorded invocations.
func (s *MemoryStore) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many times operation was invoked.
func (s *MemoryStore) CallCount(operation string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Operation == operation {
			n++
		}
	}
	return n
}

// Put stores a document directly, bypassing failure injection and events.
func (s *MemoryStore) Put(collection string, doc persistence.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[collection] = append(s.docs[collection], persistence.Document{ID: doc.ID, Fields: doc.Fields.Clone()})
}

// Document returns the stored document with id.
func (s *MemoryStore) Document(collection, id string) (persistence.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(collection, id); i >= 0 {
		doc := s.docs[collection][i]
		return persistence.Document{ID: doc.ID, Fields: doc.Fields.Clone()}, true
	}
	return persistence.Document{}, false
}

// Emit delivers e to the subscribers of its collection, simulating a change
// made by another client.
func (s *MemoryStore) Emit(e persistence.Event) {
	s.mu.Lock()
	subs := s.subscribersLocked(e.Collection)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(e)
	}
}

func (s *MemoryStore) record(c Call) error {
	s.calls = append(s.calls, c)
	if queued := s.failures[c.Operation]; len(queued) > 0 {
		s.failures[c.Operation] = queued[1:]
		return queued[0]
	}
	return nil
}

// List applies q in memory.
func (s *MemoryStore) List(_ context.Context, collection string, q persistence.Query) ([]persistence.Document, error) {
	s.wait("list")
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Operation: "list", Collection: collection}); err != nil {
		return nil, err
	}
	if indexed, ok := s.indexed[collection]; ok && !indexed && (len(q.Filters) > 0 || q.OrderBy != "") {
		return nil, persistence.MissingIndex(collection, q.OrderBy)
	}
	docs := make([]persistence.Document, 0, len(s.docs[collection]))
	for _, doc := range s.docs[collection] {
		docs = append(docs, persistence.Document{ID: doc.ID, Fields: doc.Fields.Clone()})
	}
	return persistence.Apply(docs, q), nil
}

// Create stores fields under a generated id.
func (s *MemoryStore) Create(_ context.Context, collection string, fields persistence.Fields) (persistence.Document, error) {
	s.wait("create")
	s.mu.Lock()
	if err := s.record(Call{Operation: "create", Collection: collection, Fields: fields.Clone()}); err != nil {
		s.mu.Unlock()
		return persistence.Document{}, err
	}
	doc := persistence.Document{ID: s.ids.Next(), Fields: fields.Clone()}
	s.docs[collection] = append(s.docs[collection], doc)
	subs := s.subscribersLocked(collection)
	s.mu.Unlock()

	s.deliver(subs, persistence.EventCreate, collection, doc)
	return persistence.Document{ID: doc.ID, Fields: doc.Fields.Clone()}, nil
}

// Update merges partial into the stored document.
func (s *MemoryStore) Update(_ context.Context, collection, id string, partial persistence.Fields) error {
	s.wait("update")
	s.mu.Lock()
	if err := s.record(Call{Operation: "update", Collection: collection, ID: id, Fields: partial.Clone()}); err != nil {
		s.mu.Unlock()
		return err
	}
	i := s.indexLocked(collection, id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("update %s/%s: %w", collection, id, persistence.ErrNotFound)
	}
	merged := s.docs[collection][i].Fields.Clone()
	for k, v := range partial {
		merged[k] = v
	}
	s.docs[collection][i].Fields = merged
	doc := persistence.Document{ID: id, Fields: merged.Clone()}
	subs := s.subscribersLocked(collection)
	s.mu.Unlock()

	s.deliver(subs, persistence.EventUpdate, collection, doc)
	return nil
}

// Delete removes the document.
func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.wait("delete")
	s.mu.Lock()
	if err := s.record(Call{Operation: "delete", Collection: collection, ID: id}); err != nil {
		s.mu.Unlock()
		return err
	}
	i := s.indexLocked(collection, id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("delete %s/%s: %w", collection, id, persistence.ErrNotFound)
	}
	doc := s.docs[collection][i]
	s.docs[collection] = append(s.docs[collection][:i:i], s.docs[collection][i+1:]...)
	subs := s.subscribersLocked(collection)
	s.mu.Unlock()

	s.deliver(subs, persistence.EventDelete, collection, doc)
	return nil
}

// Subscribe registers fn. On a non realtime store it returns a no-op.
func (s *MemoryStore) Subscribe(_ context.Context, collection string, fn func(persistence.Event)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Operation: "subscribe", Collection: collection}); err != nil {
		return nil, err
	}
	if !s.realtime {
		return func() {}, nil
	}
	if s.subscribers[collection] == nil {
		s.subscribers[collection] = make(map[int]func(persistence.Event))
	}
	id := s.nextSub
	s.nextSub++
	s.subscribers[collection][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers[collection], id)
			s.mu.Unlock()
		})
	}, nil
}

// Subscribers returns how many subscriptions on collection are live.
func (s *MemoryStore) Subscribers(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers[collection])
}

// Realtime reports the mode chosen at construction.
func (s *MemoryStore) Realtime() bool {
	return s.realtime
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) subscribersLocked(collection string) []func(persistence.Event) {
	subs := make([]func(persistence.Event), 0, len(s.subscribers[collection]))
	for _, fn := range s.subscribers[collection] {
		subs = append(subs, fn)
	}
	return subs
}

func (s *MemoryStore) deliver(subs []func(persistence.Event), kind persistence.EventType, collection string, doc persistence.Document) {
	event := persistence.Event{
		Type:       kind,
		Collection: collection,
		DocumentID: doc.ID,
		Fields:     doc.Fields,
		At:         s.clock.Now(),
	}
	for _, fn := range subs {
		fn(event)
	}
}

func (s *MemoryStore) indexLocked(collection, id string) int {
	for i, doc := range s.docs[collection] {
		if doc.ID == id {
			return i
		}
	}
	return -1
}

var _ persistence.Store = (*MemoryStore)(nil)

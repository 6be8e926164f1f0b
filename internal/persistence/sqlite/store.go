// Package sqlite implements the local offline persistence backend on top of
// an embedded SQLite key value table.
//
// Each collection is stored as one JSON array per key: meetings live under
// "local_meetings" and the messages of a meeting under
// "local_messages_<meetingId>". Lists load the whole array and apply the
// query in memory. The backend has no change notifications.
package sqlite

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/example/meeting-coordinator/internal/persistence"
)

const keyPrefix = "local_"

// partitions lists collections split into one key per value of a field.
var partitions = map[string]string{
	persistence.CollectionMessages: "meetingId",
}

// Store implements persistence.Store on a KV table.
type Store struct {
	kv      *KV
	mu      sync.Mutex
	now     func() time.Time
	entropy io.Reader
	logger  *slog.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for ids.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used to report unreadable stored data.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore returns a local store on kv.
func NewStore(kv *KV, opts ...Option) *Store {
	s := &Store{
		kv:      kv,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ persistence.Store = (*Store)(nil)

// List loads the collection and applies q in memory.
func (s *Store) List(ctx context.Context, collection string, q persistence.Query) ([]persistence.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.keysFor(ctx, collection, q.Filters)
	if err != nil {
		return nil, err
	}
	var docs []persistence.Document
	for _, key := range keys {
		loaded, err := s.load(ctx, key)
		if err != nil {
			return nil, err
		}
		docs = append(docs, loaded...)
	}
	return persistence.Apply(docs, q), nil
}

// Create appends a document with a clock based id.
func (s *Store) Create(ctx context.Context, collection string, fields persistence.Fields) (persistence.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.keyForFields(collection, fields)
	if err != nil {
		return persistence.Document{}, err
	}
	docs, err := s.load(ctx, key)
	if err != nil {
		return persistence.Document{}, err
	}

	doc := persistence.Document{ID: s.newID(), Fields: withoutID(fields)}
	docs = append(docs, doc)
	if err := s.save(ctx, key, docs); err != nil {
		return persistence.Document{}, err
	}
	return persistence.Document{ID: doc.ID, Fields: doc.Fields.Clone()}, nil
}

// Update merges partial into the stored document.
func (s *Store) Update(ctx context.Context, collection, id string, partial persistence.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, docs, idx, err := s.find(ctx, collection, id)
	if err != nil {
		return err
	}
	merged := docs[idx].Fields.Clone()
	for k, v := range withoutID(partial) {
		merged[k] = v
	}
	docs[idx].Fields = merged
	return s.save(ctx, key, docs)
}

// Delete removes the document. Deleting a meeting also drops its messages.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, docs, idx, err := s.find(ctx, collection, id)
	if err != nil {
		return err
	}
	docs = append(docs[:idx], docs[idx+1:]...)
	if err := s.save(ctx, key, docs); err != nil {
		return err
	}
	if collection == persistence.CollectionMeetings {
		return s.kv.Delete(ctx, partitionKey(persistence.CollectionMessages, id))
	}
	return nil
}

// Subscribe is a no-op: the local store has no event source.
func (s *Store) Subscribe(context.Context, string, func(persistence.Event)) (func(), error) {
	return func() {}, nil
}

// Realtime reports false.
func (s *Store) Realtime() bool {
	return false
}

// Close is a no-op; the connection pool is owned by the caller.
func (s *Store) Close() error {
	return nil
}

// SeedIfEmpty writes records when the collection holds no documents. A
// record may carry its own "id". It reports whether anything was written.
func (s *Store) SeedIfEmpty(ctx context.Context, collection string, records []persistence.Fields) (bool, error) {
	if _, partitioned := partitions[collection]; partitioned {
		return false, fmt.Errorf("sqlite: cannot seed partitioned collection %s", collection)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := collectionKey(collection)
	docs, err := s.load(ctx, key)
	if err != nil {
		return false, err
	}
	if len(docs) > 0 || len(records) == 0 {
		return false, nil
	}
	for _, record := range records {
		id := record.String("id")
		if id == "" {
			id = s.newID()
		}
		docs = append(docs, persistence.Document{ID: id, Fields: withoutID(record)})
	}
	return true, s.save(ctx, key, docs)
}

func (s *Store) newID() string {
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

func (s *Store) find(ctx context.Context, collection, id string) (string, []persistence.Document, int, error) {
	keys, err := s.keysFor(ctx, collection, nil)
	if err != nil {
		return "", nil, 0, err
	}
	for _, key := range keys {
		docs, err := s.load(ctx, key)
		if err != nil {
			return "", nil, 0, err
		}
		for i, doc := range docs {
			if doc.ID == id {
				return key, docs, i, nil
			}
		}
	}
	return "", nil, 0, persistence.ErrNotFound
}

func (s *Store) keysFor(ctx context.Context, collection string, filters []persistence.Filter) ([]string, error) {
	field, partitioned := partitions[collection]
	if !partitioned {
		return []string{collectionKey(collection)}, nil
	}
	for _, f := range filters {
		if f.Field == field {
			return []string{partitionKey(collection, f.Value)}, nil
		}
	}
	return s.kv.Keys(ctx, collectionKey(collection)+"_")
}

func (s *Store) keyForFields(collection string, fields persistence.Fields) (string, error) {
	field, partitioned := partitions[collection]
	if !partitioned {
		return collectionKey(collection), nil
	}
	value := fields.String(field)
	if value == "" {
		return "", fmt.Errorf("sqlite: %s documents require %s", collection, field)
	}
	return partitionKey(collection, value), nil
}

// load decodes the array stored under key. Unreadable data is logged and
// treated as an empty array.
func (s *Store) load(ctx context.Context, key string) ([]persistence.Document, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var records []map[string]any
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		s.logger.WarnContext(ctx, "discarding unreadable local data", "key", key, "error", err)
		return nil, nil
	}

	docs := make([]persistence.Document, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		fields := persistence.Fields(record)
		docs = append(docs, persistence.Document{ID: fields.String("id"), Fields: withoutID(fields)})
	}
	return docs, nil
}

func (s *Store) save(ctx context.Context, key string, docs []persistence.Document) error {
	records := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		record := make(map[string]any, len(doc.Fields)+1)
		for k, v := range doc.Fields {
			record[k] = v
		}
		record["id"] = doc.ID
		records = append(records, record)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("sqlite: encode %s: %w", key, err)
	}
	return s.kv.Set(ctx, key, string(data))
}

func withoutID(fields persistence.Fields) persistence.Fields {
	out := make(persistence.Fields, len(fields))
	for k, v := range fields {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	return out
}

func collectionKey(collection string) string {
	return keyPrefix + collection
}

func partitionKey(collection, value string) string {
	return collectionKey(collection) + "_" + value
}

// Ping reports whether the underlying database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.kv.pool.Ping(ctx)
}

// Package redis implements the remote realtime persistence backend on Redis.
//
// Documents are hashes under "<db>:<collection>:doc:<id>" whose values are
// JSON encoded per field, and every collection keeps the set of its ids.
// Filtered and ordered queries are answered from lexicographic sorted set
// indexes declared up front; a query no index can serve fails with
// persistence.ErrMissingIndex. Every write publishes a change event on
// "databases.<db>.collections.<collection>.documents".
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/example/meeting-coordinator/internal/persistence"
)

const (
	indexSeparator = "\x00"
	maxTxAttempts  = 5
)

// Index declares a lexicographic index of a collection. Equal lists the
// fields a query must filter on, Order the field it may sort by.
type Index struct {
	Collection string
	Equal      []string
	Order      string
}

func (ix Index) name() string {
	return strings.Join(ix.Equal, ",") + ":" + ix.Order
}

// serves reports whether the index answers a query with the given filters
// and ordering.
func (ix Index) serves(filters []persistence.Filter, orderBy string) bool {
	if orderBy != "" && orderBy != ix.Order {
		return false
	}
	if len(filters) != len(ix.Equal) {
		return false
	}
	for _, field := range ix.Equal {
		if _, ok := filterValue(filters, field); !ok {
			return false
		}
	}
	return true
}

func (ix Index) member(id string, fields persistence.Fields) string {
	parts := make([]string, 0, len(ix.Equal)+2)
	for _, field := range ix.Equal {
		parts = append(parts, fields.String(field))
	}
	if ix.Order != "" {
		parts = append(parts, fields.String(ix.Order))
	}
	parts = append(parts, id)
	return strings.Join(parts, indexSeparator)
}

// DefaultIndexes returns the indexes the coordinator queries need: meetings
// by date, and messages by meeting ordered by timestamp.
func DefaultIndexes() []Index {
	return []Index{
		{Collection: persistence.CollectionMeetings, Order: "date"},
		{Collection: persistence.CollectionMessages, Equal: []string{"meetingId"}, Order: "timestamp"},
	}
}

// Config describes the remote deployment.
type Config struct {
	URL        string
	DatabaseID string
	// Collections maps logical collection names to their remote ids.
	Collections map[string]string
	Indexes     []Index
}

// Store implements persistence.Store on Redis.
type Store struct {
	client      *goredis.Client
	databaseID  string
	collections map[string]string
	indexes     map[string][]Index
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source stamped on change events.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides document id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithLogger sets the logger used for undecodable events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New connects to cfg.URL and verifies the connection.
func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	redisOpts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, persistence.Unavailable("connect", err)
	}
	return NewWithClient(client, cfg, opts...), nil
}

// NewWithClient creates a store from an existing client.
func NewWithClient(client *goredis.Client, cfg Config, opts ...Option) *Store {
	s := &Store{
		client:      client,
		databaseID:  cfg.DatabaseID,
		collections: make(map[string]string, len(cfg.Collections)),
		indexes:     make(map[string][]Index),
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      slog.Default(),
	}
	for logical, remote := range cfg.Collections {
		s.collections[logical] = remote
	}
	for _, ix := range cfg.Indexes {
		s.indexes[ix.Collection] = append(s.indexes[ix.Collection], ix)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ persistence.Store = (*Store)(nil)

// Channel returns the Pub/Sub channel carrying change events of collection.
func (s *Store) Channel(collection string) string {
	return fmt.Sprintf("databases.%s.collections.%s.documents", s.databaseID, s.collectionID(collection))
}

func (s *Store) collectionID(collection string) string {
	if id, ok := s.collections[collection]; ok && id != "" {
		return id
	}
	return collection
}

func (s *Store) docKey(collection, id string) string {
	return s.databaseID + ":" + s.collectionID(collection) + ":doc:" + id
}

func (s *Store) idsKey(collection string) string {
	return s.databaseID + ":" + s.collectionID(collection) + ":ids"
}

func (s *Store) indexKey(collection string, ix Index) string {
	return s.databaseID + ":" + s.collectionID(collection) + ":idx:" + ix.name()
}

// List answers q from an index when it filters or orders, and from the id
// set otherwise.
func (s *Store) List(ctx context.Context, collection string, q persistence.Query) ([]persistence.Document, error) {
	if len(q.Filters) == 0 && q.OrderBy == "" {
		ids, err := s.client.SMembers(ctx, s.idsKey(collection)).Result()
		if err != nil {
			return nil, persistence.Unavailable("list "+collection, err)
		}
		sort.Strings(ids)
		if q.Limit > 0 && len(ids) > q.Limit {
			ids = ids[:q.Limit]
		}
		return s.fetch(ctx, collection, ids)
	}

	ix, ok := s.indexFor(collection, q)
	if !ok {
		fields := make([]string, 0, len(q.Filters)+1)
		for _, f := range q.Filters {
			fields = append(fields, f.Field)
		}
		if q.OrderBy != "" {
			fields = append(fields, q.OrderBy)
		}
		return nil, persistence.MissingIndex(s.collectionID(collection), fields...)
	}

	prefix := ""
	for _, field := range ix.Equal {
		value, _ := filterValue(q.Filters, field)
		prefix += value + indexSeparator
	}
	by := &goredis.ZRangeBy{Min: "-", Max: "+", Count: int64(q.Limit)}
	if prefix != "" {
		by.Min = "[" + prefix
		by.Max = "(" + prefix + "\xff"
	}

	var members []string
	var err error
	if q.Descending {
		members, err = s.client.ZRevRangeByLex(ctx, s.indexKey(collection, ix), by).Result()
	} else {
		members, err = s.client.ZRangeByLex(ctx, s.indexKey(collection, ix), by).Result()
	}
	if err != nil {
		return nil, persistence.Unavailable("query "+collection, err)
	}

	ids := make([]string, 0, len(members))
	for _, member := range members {
		ids = append(ids, member[strings.LastIndex(member, indexSeparator)+1:])
	}
	return s.fetch(ctx, collection, ids)
}

func (s *Store) indexFor(collection string, q persistence.Query) (Index, bool) {
	for _, ix := range s.indexes[collection] {
		if ix.serves(q.Filters, q.OrderBy) {
			return ix, true
		}
	}
	return Index{}, false
}

// fetch loads documents in the order of ids, skipping ids whose hash is gone.
func (s *Store) fetch(ctx context.Context, collection string, ids []string) ([]persistence.Document, error) {
	if len(ids) == 0 {
		return []persistence.Document{}, nil
	}
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	_, err := s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.docKey(collection, id))
		}
		return nil
	})
	if err != nil {
		return nil, persistence.Unavailable("fetch "+collection, err)
	}

	docs := make([]persistence.Document, 0, len(ids))
	for i, cmd := range cmds {
		raw := cmd.Val()
		if len(raw) == 0 {
			continue
		}
		docs = append(docs, persistence.Document{ID: ids[i], Fields: decodeHash(raw)})
	}
	return docs, nil
}

// Create stores fields under a new uuid.
func (s *Store) Create(ctx context.Context, collection string, fields persistence.Fields) (persistence.Document, error) {
	doc := persistence.Document{ID: s.newID(), Fields: fields.Clone()}
	delete(doc.Fields, "id")

	hash, err := encodeHash(doc.Fields)
	if err != nil {
		return persistence.Document{}, err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if len(hash) > 0 {
			pipe.HSet(ctx, s.docKey(collection, doc.ID), hash)
		}
		pipe.SAdd(ctx, s.idsKey(collection), doc.ID)
		for _, ix := range s.indexes[collection] {
			pipe.ZAdd(ctx, s.indexKey(collection, ix), goredis.Z{Member: ix.member(doc.ID, doc.Fields)})
		}
		return nil
	})
	if err != nil {
		return persistence.Document{}, persistence.Unavailable("create "+collection, err)
	}

	s.publish(ctx, collection, persistence.EventCreate, doc.ID, doc.Fields)
	return doc, nil
}

// Update writes only the given fields and moves the document within its
// indexes.
func (s *Store) Update(ctx context.Context, collection, id string, partial persistence.Fields) error {
	partial = partial.Clone()
	delete(partial, "id")
	hash, err := encodeHash(partial)
	if err != nil {
		return err
	}

	key := s.docKey(collection, id)
	var merged persistence.Fields
	err = s.watch(ctx, func(tx *goredis.Tx) error {
		current, err := s.load(ctx, tx, collection, id)
		if err != nil {
			return err
		}
		merged = current.Clone()
		for k, v := range partial {
			merged[k] = v
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			if len(hash) > 0 {
				pipe.HSet(ctx, key, hash)
			}
			for _, ix := range s.indexes[collection] {
				before, after := ix.member(id, current), ix.member(id, merged)
				if before == after {
					continue
				}
				pipe.ZRem(ctx, s.indexKey(collection, ix), before)
				pipe.ZAdd(ctx, s.indexKey(collection, ix), goredis.Z{Member: after})
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		return s.wrap("update "+collection, err)
	}

	s.publish(ctx, collection, persistence.EventUpdate, id, merged)
	return nil
}

// Delete removes the document, its id and its index entries.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	key := s.docKey(collection, id)
	var current persistence.Fields
	err := s.watch(ctx, func(tx *goredis.Tx) error {
		var err error
		current, err = s.load(ctx, tx, collection, id)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, s.idsKey(collection), id)
			for _, ix := range s.indexes[collection] {
				pipe.ZRem(ctx, s.indexKey(collection, ix), ix.member(id, current))
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		return s.wrap("delete "+collection, err)
	}

	s.publish(ctx, collection, persistence.EventDelete, id, current)
	return nil
}

func (s *Store) load(ctx context.Context, tx *goredis.Tx, collection, id string) (persistence.Fields, error) {
	exists, err := tx.SIsMember(ctx, s.idsKey(collection), id).Result()
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, persistence.ErrNotFound
	}
	raw, err := tx.HGetAll(ctx, s.docKey(collection, id)).Result()
	if err != nil {
		return nil, err
	}
	return decodeHash(raw), nil
}

// watch runs fn in an optimistic transaction, retrying when a watched key
// changed concurrently.
func (s *Store) watch(ctx context.Context, fn func(*goredis.Tx) error, keys ...string) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (s *Store) wrap(op string, err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return err
	}
	return persistence.Unavailable(op, err)
}

// Subscribe relays change events of collection to fn from a goroutine.
func (s *Store) Subscribe(ctx context.Context, collection string, fn func(persistence.Event)) (func(), error) {
	pubsub := s.client.Subscribe(ctx, s.Channel(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, persistence.Unavailable("subscribe "+collection, err)
	}

	done := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}

	messages := pubsub.Channel()
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				event, err := decodeEvent(collection, msg.Payload)
				if err != nil {
					s.logger.WarnContext(ctx, "discarding undecodable change event", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case <-done:
					return
				default:
				}
				fn(event)
			}
		}
	}()
	return unsubscribe, nil
}

// Realtime reports true.
func (s *Store) Realtime() bool {
	return true
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func filterValue(filters []persistence.Filter, field string) (string, bool) {
	for _, f := range filters {
		if f.Field == field {
			return f.Value, true
		}
	}
	return "", false
}

func encodeHash(fields persistence.Fields) (map[string]any, error) {
	hash := make(map[string]any, len(fields))
	for k, v := range fields {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		hash[k] = string(data)
	}
	return hash, nil
}

func decodeHash(raw map[string]string) persistence.Fields {
	fields := make(persistence.Fields, len(raw))
	for k, v := range raw {
		var value any
		if err := json.Unmarshal([]byte(v), &value); err != nil {
			fields[k] = v
			continue
		}
		fields[k] = value
	}
	return fields
}

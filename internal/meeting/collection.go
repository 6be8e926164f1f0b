package meeting

import (
	"context"
	"sync"

	"github.com/example/meeting-coordinator/internal/persistence"
)

// ChangeKind classifies collection changes delivered to watchers.
type ChangeKind string

const (
	ChangeRefreshed ChangeKind = "refreshed"
	ChangeCreated   ChangeKind = "created"
	ChangeUpdated   ChangeKind = "updated"
	ChangeDeleted   ChangeKind = "deleted"
)

// Change is delivered to watchers after the collection changed. MeetingID is
// empty for a full refresh.
type Change struct {
	Kind      ChangeKind `json:"kind"`
	MeetingID string     `json:"meetingId,omitempty"`
}

const watcherBuffer = 16

// Collection is the process local meeting set shared by the services. The
// order is the one of the last refresh: newest date first.
type Collection struct {
	mu       sync.RWMutex
	meetings []Meeting
	watchers map[chan Change]struct{}
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{watchers: make(map[chan Change]struct{})}
}

// Snapshot returns a copy of every meeting.
func (c *Collection) Snapshot() []Meeting {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Meeting, len(c.meetings))
	copy(out, c.meetings)
	return out
}

// Get returns the meeting with id.
func (c *Collection) Get(id string) (Meeting, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.meetings[i], true
	}
	return Meeting{}, false
}

// Active returns the meeting in progress, if any. When stored data holds
// more than one, the first in collection order wins.
func (c *Collection) Active() (Meeting, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return activeIn(c.meetings, "")
}

func activeIn(meetings []Meeting, exceptID string) (Meeting, bool) {
	for _, m := range meetings {
		if m.Status == StatusInProgress && m.ID != exceptID {
			return m, true
		}
	}
	return Meeting{}, false
}

// Len returns the number of meetings.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.meetings)
}

// Replace swaps the whole collection for meetings.
func (c *Collection) Replace(meetings []Meeting) {
	c.mu.Lock()
	c.meetings = append([]Meeting(nil), meetings...)
	c.mu.Unlock()
	c.notify(Change{Kind: ChangeRefreshed})
}

// Prepend inserts m at the front.
func (c *Collection) Prepend(m Meeting) {
	c.mu.Lock()
	c.meetings = append([]Meeting{m}, c.meetings...)
	c.mu.Unlock()
	c.notify(Change{Kind: ChangeCreated, MeetingID: m.ID})
}

// Remove drops the meeting with id and reports whether it was present.
func (c *Collection) Remove(id string) bool {
	c.mu.Lock()
	i := c.indexLocked(id)
	if i >= 0 {
		c.meetings = append(c.meetings[:i:i], c.meetings[i+1:]...)
	}
	c.mu.Unlock()
	if i < 0 {
		return false
	}
	c.notify(Change{Kind: ChangeDeleted, MeetingID: id})
	return true
}

// Update applies fn to the meeting with id while holding the write lock, so
// concurrent in-process mutations of one meeting are serialised. fn sees the
// whole collection and must not retain it. fn returning an error leaves the
// meeting untouched. Update returns the meeting before and after fn.
func (c *Collection) Update(id string, fn func(m *Meeting, all []Meeting) error) (before, after Meeting, err error) {
	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return Meeting{}, Meeting{}, ErrNotFound
	}
	before = c.meetings[i]
	after = before
	if err = fn(&after, c.meetings); err != nil {
		c.mu.Unlock()
		return before, before, err
	}
	c.meetings[i] = after
	c.mu.Unlock()

	if after != before {
		c.notify(Change{Kind: ChangeUpdated, MeetingID: id})
	}
	return before, after, nil
}

// restoreIf puts back the value read by get from previous when the meeting
// still holds the value read from optimistic. It reports whether it did.
func (c *Collection) restoreIf(id string, optimistic, previous Meeting, get func(Meeting) string, set func(*Meeting, string)) bool {
	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 || get(c.meetings[i]) != get(optimistic) {
		c.mu.Unlock()
		return false
	}
	set(&c.meetings[i], get(previous))
	c.mu.Unlock()
	c.notify(Change{Kind: ChangeUpdated, MeetingID: id})
	return true
}

// Watch returns a channel receiving every change until stop is called.
// Slow receivers miss changes rather than block writers.
func (c *Collection) Watch() (<-chan Change, func()) {
	ch := make(chan Change, watcherBuffer)
	c.mu.Lock()
	c.watchers[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, ch)
			c.mu.Unlock()
			close(ch)
		})
	}
	return ch, stop
}

func (c *Collection) notify(change Change) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for ch := range c.watchers {
		select {
		case ch <- change:
		default:
		}
	}
}

func (c *Collection) indexLocked(id string) int {
	for i, m := range c.meetings {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// reload replaces the collection with the stored meetings, newest date
// first.
func reload(ctx context.Context, store persistence.Store, meetings *Collection) error {
	docs, err := store.List(ctx, persistence.CollectionMeetings, persistence.Query{OrderBy: "date", Descending: true})
	if err != nil {
		return err
	}
	out := make([]Meeting, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromDocument(doc))
	}
	meetings.Replace(out)
	return nil
}

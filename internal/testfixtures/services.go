package testfixtures

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/example/meeting-coordinator/internal/chat"
	"github.com/example/meeting-coordinator/internal/meeting"
	"github.com/example/meeting-coordinator/internal/metrics"
	"github.com/example/meeting-coordinator/internal/persistence"
)

// ServiceFactory assists tests with constructing services on a shared
// MemoryStore using deterministic clocks.
type ServiceFactory struct {
	Clock    *Clock
	Store    *MemoryStore
	Recorder metrics.Recorder
	Logger   *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with a local (non realtime)
// memory store.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:    NewClock(time.Time{}),
		Store:    NewMemoryStore(false),
		Recorder: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.Store == nil {
		factory.Store = NewMemoryStore(false)
	}
	if factory.Recorder == nil {
		factory.Recorder = metrics.Nop{}
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithStore overrides the memory store used by the factory.
func WithStore(store *MemoryStore) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Store = store
	}
}

// WithRecorder overrides the metrics recorder.
func WithRecorder(recorder metrics.Recorder) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Recorder = recorder
	}
}

// Services bundles the services sharing one meeting collection.
type Services struct {
	Meetings    *meeting.Collection
	Lifecycle   *meeting.LifecycleService
	Assignments *meeting.AssignmentService
	Chat        *chat.Service
}

// NewServices builds every service on the factory store and seeds it with
// fixtures. The collection is refreshed before returning.
func (f *ServiceFactory) NewServices(tb testing.TB, fixtures ...MeetingFixture) *Services {
	tb.Helper()

	for _, fixture := range fixtures {
		f.Store.Put(persistence.CollectionMeetings, fixture.Document())
	}

	meetings := meeting.NewCollection()
	services := &Services{
		Meetings:    meetings,
		Lifecycle:   meeting.NewLifecycleServiceWithLogger(f.Store, meetings, f.Recorder, f.Clock.NowFunc(), f.Logger),
		Assignments: meeting.NewAssignmentServiceWithLogger(f.Store, meetings, Roster(), f.Recorder, f.Logger),
		Chat: chat.NewServiceWithLogger(f.Store, meetings, chat.Options{
			Now:      f.Clock.NowFunc(),
			Recorder: f.Recorder,
		}, f.Logger),
	}
	if err := services.Lifecycle.Refresh(context.Background()); err != nil {
		tb.Fatalf("failed to refresh meetings: %v", err)
	}
	return services
}

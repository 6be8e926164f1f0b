package meeting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/meeting-coordinator/internal/assignment"
	"github.com/example/meeting-coordinator/internal/metrics"
	"github.com/example/meeting-coordinator/internal/persistence"
	"github.com/example/meeting-coordinator/internal/recurrence"
)

// LifecycleService creates, lists, transitions and deletes meetings.
type LifecycleService struct {
	// transitions serialises status changes from the active check until the
	// store holds the new status.
	transitions sync.Mutex

	store    persistence.Store
	meetings *Collection
	recorder metrics.Recorder
	engine   *recurrence.Engine
	now      func() time.Time
	logger   *slog.Logger
}

// NewLifecycleService wires dependencies for lifecycle operations.
func NewLifecycleService(store persistence.Store, meetings *Collection, recorder metrics.Recorder, now func() time.Time) *LifecycleService {
	return NewLifecycleServiceWithLogger(store, meetings, recorder, now, nil)
}

// NewLifecycleServiceWithLogger wires dependencies with a specified logger.
func NewLifecycleServiceWithLogger(store persistence.Store, meetings *Collection, recorder metrics.Recorder, now func() time.Time, logger *slog.Logger) *LifecycleService {
	if meetings == nil {
		meetings = NewCollection()
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &LifecycleService{
		store:    store,
		meetings: meetings,
		recorder: recorder,
		engine:   recurrence.NewEngine(time.UTC),
		now:      now,
		logger:   defaultLogger(logger),
	}
}

func (s *LifecycleService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "LifecycleService", operation, attrs...)
}

// Collection exposes the shared meeting collection.
func (s *LifecycleService) Collection() *Collection {
	return s.meetings
}

// List returns the meetings of the last refresh plus local mutations.
func (s *LifecycleService) List() []Meeting {
	return s.meetings.Snapshot()
}

// Get returns the meeting with id.
func (s *LifecycleService) Get(id string) (Meeting, error) {
	m, ok := s.meetings.Get(id)
	if !ok {
		return Meeting{}, ErrNotFound
	}
	return m, nil
}

// Active returns the meeting in progress, if any.
func (s *LifecycleService) Active() (Meeting, bool) {
	return s.meetings.Active()
}

// Refresh reloads the collection from the store, newest date first.
func (s *LifecycleService) Refresh(ctx context.Context) (err error) {
	if s == nil || s.store == nil {
		return fmt.Errorf("meeting store not configured")
	}

	if err = reload(ctx, s.store, s.meetings); err != nil {
		s.loggerWith(ctx, "Refresh").ErrorContext(ctx, "failed to list meetings", "error", err, "error_kind", ErrorKind(err))
	}
	return err
}

// Create validates the date and type and stores a scheduled meeting with no
// assignments.
func (s *LifecycleService) Create(ctx context.Context, params CreateParams) (meeting Meeting, err error) {
	if s == nil || s.store == nil {
		err = fmt.Errorf("meeting store not configured")
		return
	}

	logger := s.loggerWith(ctx, "Create",
		"principal", params.Principal.Name,
		"date", params.Date,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create meeting", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("meeting_id", meeting.ID).InfoContext(ctx, "meeting created")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	date, kind, vErr := validateCreate(params.Date, params.Type)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	meeting, err = s.create(ctx, date, kind)
	if err != nil {
		return
	}
	s.afterMutation(ctx)
	return
}

func (s *LifecycleService) create(ctx context.Context, date string, kind Type) (Meeting, error) {
	meeting := Meeting{
		Date:        date,
		Type:        kind,
		Status:      StatusScheduled,
		Assignments: assignment.EmptyEncoded,
	}
	doc, err := s.store.Create(ctx, persistence.CollectionMeetings, meeting.fields())
	if err != nil {
		return Meeting{}, err
	}
	meeting.ID = doc.ID
	s.meetings.Prepend(meeting)
	return meeting, nil
}

func validateCreate(date, kind string) (string, Type, *ValidationError) {
	vErr := &ValidationError{}

	date = strings.TrimSpace(date)
	if date == "" {
		vErr.add("date", "date is required")
	} else if _, err := time.Parse(DateLayout, date); err != nil {
		vErr.add("date", "date must use YYYY-MM-DD")
	}

	parsed, ok := ParseType(strings.TrimSpace(kind))
	if !ok {
		vErr.add("type", "type must be Miércoles or Sábado")
	}
	return date, parsed, vErr
}

// SetStatus moves a meeting through scheduled, in-progress and completed.
// Starting a meeting while another one is in progress is rejected with
// ErrMeetingAlreadyActive; the check runs on freshly listed meetings and no
// other status change of this service interleaves before the store write.
// Setting the current status again is a no-op.
func (s *LifecycleService) SetStatus(ctx context.Context, params SetStatusParams) (meeting Meeting, err error) {
	if s == nil || s.store == nil {
		err = fmt.Errorf("meeting store not configured")
		return
	}

	logger := s.loggerWith(ctx, "SetStatus",
		"principal", params.Principal.Name,
		"meeting_id", params.MeetingID,
		"status", string(params.Status),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to change meeting status", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "meeting status changed")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}
	if _, ok := ParseStatus(string(params.Status)); !ok {
		vErr := &ValidationError{}
		vErr.add("status", "status must be scheduled, in-progress or completed")
		err = vErr
		return
	}

	s.transitions.Lock()
	defer s.transitions.Unlock()

	if params.Status == StatusInProgress {
		// the collection may have been replaced by a reload since our last
		// write, or another client may have started a meeting
		if err = s.Refresh(ctx); err != nil {
			return
		}
	}

	before, after, err := s.meetings.Update(params.MeetingID, func(m *Meeting, all []Meeting) error {
		if m.Status == params.Status {
			return nil
		}
		if !m.Status.CanTransition(params.Status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, m.Status, params.Status)
		}
		if params.Status == StatusInProgress {
			if active, ok := activeIn(all, m.ID); ok {
				return fmt.Errorf("%w: %s", ErrMeetingAlreadyActive, active.ID)
			}
		}
		m.Status = params.Status
		return nil
	})
	meeting = after
	if err != nil || before == after {
		return
	}

	err = s.store.Update(ctx, persistence.CollectionMeetings, params.MeetingID, persistence.Fields{"status": string(params.Status)})
	if err != nil {
		if s.meetings.restoreIf(params.MeetingID, after, before, statusOf, setStatus) {
			s.recorder.RecordOptimisticRollback("status")
		}
		meeting = before
		err = mapStoreError(err)
		return
	}

	s.recorder.RecordStatusTransition(string(before.Status), string(after.Status))
	s.afterMutation(ctx)
	return
}

func statusOf(m Meeting) string          { return string(m.Status) }
func setStatus(m *Meeting, value string) { m.Status = Status(value) }

// Delete removes a meeting in any state.
func (s *LifecycleService) Delete(ctx context.Context, principal Principal, id string) (err error) {
	if s == nil || s.store == nil {
		return fmt.Errorf("meeting store not configured")
	}

	logger := s.loggerWith(ctx, "Delete",
		"principal", principal.Name,
		"meeting_id", id,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete meeting", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "meeting deleted")
	}()

	if !principal.IsAdmin {
		return ErrUnauthorized
	}
	if _, ok := s.meetings.Get(id); !ok {
		return ErrNotFound
	}

	err = s.store.Delete(ctx, persistence.CollectionMeetings, id)
	if errors.Is(err, persistence.ErrNotFound) {
		// already gone remotely; drop the stale copy
		s.meetings.Remove(id)
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.meetings.Remove(id)
	s.afterMutation(ctx)
	return nil
}

// DeleteAll deletes every meeting one by one. It stops at the first failure
// and returns how many were deleted; earlier deletions are kept.
func (s *LifecycleService) DeleteAll(ctx context.Context, principal Principal) (deleted int, err error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("meeting store not configured")
	}

	logger := s.loggerWith(ctx, "DeleteAll", "principal", principal.Name)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete all meetings", "deleted", deleted, "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "all meetings deleted", "deleted", deleted)
	}()

	if !principal.IsAdmin {
		return 0, ErrUnauthorized
	}

	for _, m := range s.meetings.Snapshot() {
		derr := s.store.Delete(ctx, persistence.CollectionMeetings, m.ID)
		if derr != nil && !errors.Is(derr, persistence.ErrNotFound) {
			err = fmt.Errorf("delete meeting %s: %w", m.ID, derr)
			break
		}
		s.meetings.Remove(m.ID)
		if derr == nil {
			deleted++
		}
	}
	s.afterMutation(ctx)
	return deleted, err
}

// ScheduleRecurring creates the weekly meetings between From and Until:
// Miércoles on Wednesdays and Sábado on Saturdays. Dates that already have a
// meeting of that type are skipped.
func (s *LifecycleService) ScheduleRecurring(ctx context.Context, params ScheduleRecurringParams) (created []Meeting, err error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("meeting store not configured")
	}

	logger := s.loggerWith(ctx, "ScheduleRecurring",
		"principal", params.Principal.Name,
		"from", params.From,
		"until", params.Until,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to schedule recurring meetings", "created", len(created), "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "recurring meetings scheduled", "created", len(created))
	}()

	if !params.Principal.IsAdmin {
		return nil, ErrUnauthorized
	}

	vErr := &ValidationError{}
	from, ferr := time.Parse(DateLayout, strings.TrimSpace(params.From))
	if ferr != nil {
		vErr.add("from", "from must use YYYY-MM-DD")
	}
	until, uerr := time.Parse(DateLayout, strings.TrimSpace(params.Until))
	if uerr != nil {
		vErr.add("until", "until must use YYYY-MM-DD")
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	dates, rerr := s.engine.Dates(recurrence.Rule{
		Frequency: recurrence.FrequencyWeekly,
		Weekdays:  []time.Weekday{time.Wednesday, time.Saturday},
		StartsOn:  from,
		EndsOn:    until,
	})
	if rerr != nil {
		vErr.add("until", rerr.Error())
		return nil, vErr
	}

	existing := make(map[string]struct{})
	for _, m := range s.meetings.Snapshot() {
		existing[m.Date+"|"+string(m.Type)] = struct{}{}
	}

	for _, day := range dates {
		kind, _ := TypeFor(day.Weekday())
		date := day.Format(DateLayout)
		if _, ok := existing[date+"|"+string(kind)]; ok {
			continue
		}
		var m Meeting
		m, err = s.create(ctx, date, kind)
		if err != nil {
			break
		}
		created = append(created, m)
	}
	if len(created) > 0 {
		s.afterMutation(ctx)
	}
	return created, err
}

// Watch keeps the collection in sync with remote changes until ctx is done
// or stop is called. On a store without change events it returns a no-op.
func (s *LifecycleService) Watch(ctx context.Context) (stop func(), err error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("meeting store not configured")
	}
	return s.store.Subscribe(ctx, persistence.CollectionMeetings, func(e persistence.Event) {
		s.loggerWith(ctx, "Watch", "event", string(e.Type), "meeting_id", e.DocumentID).
			DebugContext(ctx, "meeting change received")
		_ = s.Refresh(ctx)
	})
}

// afterMutation re-reads the store when it cannot push change events, which
// is how local mode converges after every write.
func (s *LifecycleService) afterMutation(ctx context.Context) {
	if s.store.Realtime() {
		return
	}
	_ = s.Refresh(ctx)
}

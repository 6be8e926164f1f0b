package meeting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/meeting-coordinator/internal/assignment"
	"github.com/example/meeting-coordinator/internal/metrics"
	"github.com/example/meeting-coordinator/internal/persistence"
)

// Directory resolves roster names.
type Directory interface {
	Contains(name string) bool
}

// AssignmentService assigns roster members to positions and records their
// answers.
//
// Each call decodes the meeting's whole map, changes one position and writes
// the whole map back. Within this process calls on one meeting are
// serialised; across clients the last write wins.
type AssignmentService struct {
	store     persistence.Store
	meetings  *Collection
	directory Directory
	recorder  metrics.Recorder
	logger    *slog.Logger
}

// NewAssignmentService wires dependencies for assignment operations.
func NewAssignmentService(store persistence.Store, meetings *Collection, directory Directory, recorder metrics.Recorder) *AssignmentService {
	return NewAssignmentServiceWithLogger(store, meetings, directory, recorder, nil)
}

// NewAssignmentServiceWithLogger wires dependencies with a specified logger.
func NewAssignmentServiceWithLogger(store persistence.Store, meetings *Collection, directory Directory, recorder metrics.Recorder, logger *slog.Logger) *AssignmentService {
	if meetings == nil {
		meetings = NewCollection()
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &AssignmentService{
		store:     store,
		meetings:  meetings,
		directory: directory,
		recorder:  recorder,
		logger:    defaultLogger(logger),
	}
}

func (s *AssignmentService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AssignmentService", operation, attrs...)
}

// Assign puts name on the position with a pending confirmation, replacing
// any previous assignee and answer. An empty name clears the position.
func (s *AssignmentService) Assign(ctx context.Context, params AssignParams) (meeting Meeting, err error) {
	if s == nil || s.store == nil {
		err = fmt.Errorf("assignment store not configured")
		return
	}

	name := strings.TrimSpace(params.Name)
	logger := s.loggerWith(ctx, "Assign",
		"principal", params.Principal.Name,
		"meeting_id", params.MeetingID,
		"position", string(params.Position),
		"assignee", name,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to assign position", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "position assigned")
	}()

	if !params.Principal.IsAdmin {
		err = ErrUnauthorized
		return
	}

	vErr := &ValidationError{}
	if _, ok := assignment.ParsePosition(string(params.Position)); !ok {
		vErr.add("position", "unknown position")
	}
	if name != "" && s.directory != nil && !s.directory.Contains(name) {
		vErr.add("name", "name is not in the roster")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}
	pos, _ := assignment.ParsePosition(string(params.Position))

	meeting, err = s.apply(ctx, params.MeetingID, func(current assignment.Map) (bool, error) {
		a, exists := current[pos]
		switch {
		case name == "" && !exists:
			return false, nil
		case exists && a.Name == name && a.Pending():
			return false, nil
		}
		current.Assign(pos, name)
		return true, nil
	})
	if err != nil {
		return
	}

	if name == "" {
		s.recorder.RecordAssignmentChange("clear")
	} else {
		s.recorder.RecordAssignmentChange("assign")
	}
	return
}

// Confirm records the assignee's answer for a position. Only the assigned
// user or an admin may answer. A position without assignee is left
// untouched and no write is issued.
func (s *AssignmentService) Confirm(ctx context.Context, params ConfirmParams) (meeting Meeting, err error) {
	if s == nil || s.store == nil {
		err = fmt.Errorf("assignment store not configured")
		return
	}

	logger := s.loggerWith(ctx, "Confirm",
		"principal", params.Principal.Name,
		"meeting_id", params.MeetingID,
		"position", string(params.Position),
		"confirmed", params.Confirmed,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to record confirmation", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "confirmation recorded")
	}()

	pos, ok := assignment.ParsePosition(string(params.Position))
	if !ok {
		vErr := &ValidationError{}
		vErr.add("position", "unknown position")
		err = vErr
		return
	}

	meeting, err = s.apply(ctx, params.MeetingID, func(current assignment.Map) (bool, error) {
		a, ok := current[pos]
		if !ok {
			return false, nil
		}
		if !params.Principal.IsAdmin && a.Name != params.Principal.Name {
			return false, ErrUnauthorized
		}
		if a.Confirmed != nil && *a.Confirmed == params.Confirmed {
			return false, nil
		}
		return current.Confirm(pos, params.Confirmed), nil
	})
	if err != nil {
		return
	}

	if params.Confirmed {
		s.recorder.RecordAssignmentChange("confirm")
	} else {
		s.recorder.RecordAssignmentChange("reject")
	}
	return
}

// apply runs the read-decode-mutate-encode cycle on the in-memory meeting,
// then persists the encoded field. mutate reports whether it changed the map.
func (s *AssignmentService) apply(ctx context.Context, meetingID string, mutate func(assignment.Map) (bool, error)) (Meeting, error) {
	before, after, err := s.meetings.Update(meetingID, func(m *Meeting, _ []Meeting) error {
		current, derr := assignment.DecodeStrict(m.Assignments)
		if derr != nil {
			s.recorder.RecordDecodeFailure()
			s.loggerWith(ctx, "apply", "meeting_id", meetingID).
				WarnContext(ctx, "discarding undecodable assignments", "error", derr)
			current = assignment.Map{}
		}
		changed, merr := mutate(current)
		if merr != nil {
			return merr
		}
		if changed {
			m.Assignments = assignment.Encode(current)
		}
		return nil
	})
	if err != nil {
		return before, err
	}
	if before == after {
		return after, nil
	}

	err = s.store.Update(ctx, persistence.CollectionMeetings, meetingID, persistence.Fields{"assignments": after.Assignments})
	if err != nil {
		if s.meetings.restoreIf(meetingID, after, before, assignmentsOf, setAssignments) {
			s.recorder.RecordOptimisticRollback("assignments")
		}
		return before, mapStoreError(err)
	}

	if !s.store.Realtime() {
		if rerr := reload(ctx, s.store, s.meetings); rerr != nil {
			s.loggerWith(ctx, "reload").ErrorContext(ctx, "failed to list meetings", "error", rerr, "error_kind", ErrorKind(rerr))
		}
	}
	return after, nil
}

func assignmentsOf(m Meeting) string          { return m.Assignments }
func setAssignments(m *Meeting, value string) { m.Assignments = value }

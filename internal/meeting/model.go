// Package meeting owns the in-memory meeting collection and the services
// that mutate it: the lifecycle state machine and the assignment and
// confirmation workflow.
//
// Every mutation is applied to the collection before the store call returns
// (optimistic update). When the store rejects the write, the field is put
// back only if nobody changed it in the meantime. Writers on other clients
// are reconciled by re-listing the store; the last write wins.
package meeting

import (
	"time"

	"github.com/example/meeting-coordinator/internal/assignment"
	"github.com/example/meeting-coordinator/internal/persistence"
)

// DateLayout is the calendar date format of Meeting.Date.
const DateLayout = "2006-01-02"

// Status is the lifecycle state of a meeting.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// ParseStatus validates a status name.
func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusScheduled, StatusInProgress, StatusCompleted:
		return Status(value), true
	}
	return "", false
}

// CanTransition reports whether a meeting may move from s to next. Only
// scheduled to in-progress and in-progress to completed are allowed.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusScheduled:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusCompleted
	}
	return false
}

// Type labels the weekly meeting kind.
type Type string

const (
	TypeWednesday Type = "Miércoles"
	TypeSaturday  Type = "Sábado"
)

// Types returns the known meeting kinds.
func Types() []Type {
	return []Type{TypeWednesday, TypeSaturday}
}

// ParseType validates a meeting kind. An empty value selects Miércoles.
func ParseType(value string) (Type, bool) {
	switch Type(value) {
	case "":
		return TypeWednesday, true
	case TypeWednesday, TypeSaturday:
		return Type(value), true
	}
	return "", false
}

// TypeFor returns the meeting kind held on the given weekday.
func TypeFor(day time.Weekday) (Type, bool) {
	switch day {
	case time.Wednesday:
		return TypeWednesday, true
	case time.Saturday:
		return TypeSaturday, true
	}
	return "", false
}

// Meeting is one scheduled meeting. Assignments holds the encoded map.
type Meeting struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Type        Type   `json:"type"`
	Status      Status `json:"status"`
	Assignments string `json:"assignments"`
}

// DecodedAssignments decodes the stored assignment field. Malformed data
// yields an empty map.
func (m Meeting) DecodedAssignments() assignment.Map {
	return assignment.Decode(m.Assignments)
}

func (m Meeting) fields() persistence.Fields {
	return persistence.Fields{
		"date":        m.Date,
		"type":        string(m.Type),
		"status":      string(m.Status),
		"assignments": m.Assignments,
	}
}

// fromDocument maps a stored record. A missing status reads as scheduled and
// a non string assignment value is re-encoded.
func fromDocument(doc persistence.Document) Meeting {
	m := Meeting{
		ID:     doc.ID,
		Date:   doc.Fields.String("date"),
		Type:   Type(doc.Fields.String("type")),
		Status: Status(doc.Fields.String("status")),
	}
	if m.Status == "" {
		m.Status = StatusScheduled
	}
	switch raw := doc.Fields["assignments"].(type) {
	case string:
		m.Assignments = raw
	case nil:
		m.Assignments = assignment.EmptyEncoded
	default:
		m.Assignments = assignment.Encode(assignment.Decode(raw))
	}
	return m
}

// Principal is the user acting on the services.
type Principal struct {
	Name    string
	IsAdmin bool
}

// CreateParams wraps the data required to create a meeting.
type CreateParams struct {
	Principal Principal
	Date      string
	Type      string
}

// SetStatusParams wraps a status change request.
type SetStatusParams struct {
	Principal Principal
	MeetingID string
	Status    Status
}

// ScheduleRecurringParams asks for the weekly meetings between From and
// Until, both inclusive calendar dates.
type ScheduleRecurringParams struct {
	Principal Principal
	From      string
	Until     string
}

// AssignParams wraps an assignment of a roster name to a position. An empty
// Name clears the position.
type AssignParams struct {
	Principal Principal
	MeetingID string
	Position  assignment.Position
	Name      string
}

// ConfirmParams wraps the assignee's answer for a position.
type ConfirmParams struct {
	Principal Principal
	MeetingID string
	Position  assignment.Position
	Confirmed bool
}

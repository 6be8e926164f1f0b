package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/meeting-coordinator/internal/assignment"
	"github.com/example/meeting-coordinator/internal/meeting"
	"github.com/example/meeting-coordinator/internal/persistence"
	"github.com/example/meeting-coordinator/internal/roster"
)

var (
	meetingCounter uint64
	messageCounter uint64
)

var referenceTime = time.Date(2026, time.February, 4, 19, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Principals -----------------------------

// AdminPrincipal returns the admin "Ángel".
func AdminPrincipal() meeting.Principal {
	return meeting.Principal{Name: "Ángel", IsAdmin: true}
}

// UserPrincipal returns a non admin roster member.
func UserPrincipal(name string) meeting.Principal {
	return meeting.Principal{Name: name}
}

// Roster returns the default roster, failing the test run on error.
func Roster() *roster.Roster {
	return roster.Default()
}

// ---------------------------- Meeting fixtures ----------------------------

// MeetingFixture represents a deterministic meeting record that can be
// materialised for service or store tests.
type MeetingFixture struct {
	ID          string
	Date        string
	Type        meeting.Type
	Status      meeting.Status
	Assignments assignment.Map
}

// MeetingOption configures the generated meeting fixture.
type MeetingOption func(*MeetingFixture)

// NewMeetingFixture returns a scheduled Wednesday meeting one week apart
// from the previous fixture.
func NewMeetingFixture(opts ...MeetingOption) MeetingFixture {
	idx := atomic.AddUint64(&meetingCounter, 1)
	fixture := MeetingFixture{
		ID:          fmt.Sprintf("meeting-%03d", idx),
		Date:        referenceTime.AddDate(0, 0, 7*int(idx)).Format(meeting.DateLayout),
		Type:        meeting.TypeWednesday,
		Status:      meeting.StatusScheduled,
		Assignments: assignment.Map{},
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithMeetingID overrides the meeting identifier.
func WithMeetingID(id string) MeetingOption {
	return func(f *MeetingFixture) { f.ID = id }
}

// WithMeetingDate overrides the meeting date.
func WithMeetingDate(date string) MeetingOption {
	return func(f *MeetingFixture) { f.Date = date }
}

// WithMeetingType overrides the meeting kind.
func WithMeetingType(kind meeting.Type) MeetingOption {
	return func(f *MeetingFixture) { f.Type = kind }
}

// WithMeetingStatus overrides the lifecycle status.
func WithMeetingStatus(status meeting.Status) MeetingOption {
	return func(f *MeetingFixture) { f.Status = status }
}

// WithAssignment assigns name to pos with the given confirmation.
func WithAssignment(pos assignment.Position, name string, confirmed *bool) MeetingOption {
	return func(f *MeetingFixture) {
		f.Assignments[pos] = assignment.Assignment{Name: name, Confirmed: confirmed}
	}
}

// Meeting materialises the fixture as a domain meeting.
func (f MeetingFixture) Meeting() meeting.Meeting {
	return meeting.Meeting{
		ID:          f.ID,
		Date:        f.Date,
		Type:        f.Type,
		Status:      f.Status,
		Assignments: assignment.Encode(f.Assignments),
	}
}

// Document materialises the fixture as a stored record.
func (f MeetingFixture) Document() persistence.Document {
	return persistence.Document{
		ID: f.ID,
		Fields: persistence.Fields{
			"date":        f.Date,
			"type":        string(f.Type),
			"status":      string(f.Status),
			"assignments": assignment.Encode(f.Assignments),
		},
	}
}

// ---------------------------- Message fixtures ----------------------------

// MessageDocument returns a stored chat message for meetingID sent offset
// after ReferenceTime.
func MessageDocument(meetingID, sender, text string, offset time.Duration) persistence.Document {
	idx := atomic.AddUint64(&messageCounter, 1)
	return persistence.Document{
		ID: fmt.Sprintf("message-%03d", idx),
		Fields: persistence.Fields{
			"meetingId": meetingID,
			"text":      text,
			"sender":    sender,
			"timestamp": referenceTime.Add(offset).UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			"type":      "text",
		},
	}
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}

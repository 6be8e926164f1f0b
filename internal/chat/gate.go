package chat

import (
	"github.com/example/meeting-coordinator/internal/assignment"
	"github.com/example/meeting-coordinator/internal/meeting"
)

// IsAuthorized reports whether user may read and write the chat of m: admins
// always may, anyone else only when assigned to some position. Assignments
// that cannot be decoded count as nobody assigned.
func IsAuthorized(m meeting.Meeting, user meeting.Principal) bool {
	if user.IsAdmin {
		return true
	}
	if user.Name == "" {
		return false
	}
	assigned, err := assignment.DecodeStrict(m.Assignments)
	if err != nil {
		return false
	}
	return assigned.Has(user.Name)
}

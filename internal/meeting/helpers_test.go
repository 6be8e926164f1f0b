package meeting_test

import (
	"sync"

	"github.com/example/meeting-coordinator/internal/metrics"
)

type spyRecorder struct {
	metrics.Nop

	mu          sync.Mutex
	transitions []string
	changes     []string
	rollbacks   []string
	decodes     int
}

func (s *spyRecorder) RecordStatusTransition(from, to string) {
	s.mu.Lock()
	s.transitions = append(s.transitions, from+"->"+to)
	s.mu.Unlock()
}

func (s *spyRecorder) RecordAssignmentChange(action string) {
	s.mu.Lock()
	s.changes = append(s.changes, action)
	s.mu.Unlock()
}

func (s *spyRecorder) RecordOptimisticRollback(field string) {
	s.mu.Lock()
	s.rollbacks = append(s.rollbacks, field)
	s.mu.Unlock()
}

func (s *spyRecorder) RecordDecodeFailure() {
	s.mu.Lock()
	s.decodes++
	s.mu.Unlock()
}

package chat

import "sync"

const listenerBuffer = 32

// hub fans new messages out to the listeners of each meeting.
type hub struct {
	mu        sync.RWMutex
	listeners map[string]map[chan Message]struct{}
}

func newHub() *hub {
	return &hub{listeners: make(map[string]map[chan Message]struct{})}
}

func (h *hub) watch(meetingID string) (<-chan Message, func()) {
	ch := make(chan Message, listenerBuffer)
	h.mu.Lock()
	if h.listeners[meetingID] == nil {
		h.listeners[meetingID] = make(map[chan Message]struct{})
	}
	h.listeners[meetingID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners[meetingID], ch)
			if len(h.listeners[meetingID]) == 0 {
				delete(h.listeners, meetingID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// publish never blocks; a full listener misses the message.
func (h *hub) publish(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.listeners[msg.MeetingID] {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *hub) count(meetingID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[meetingID])
}

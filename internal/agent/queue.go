package agent

import "sync"

// MessageQueue buffers server-pushed messages for one session. Push never
// blocks (the upstream read loop delivers via callback); the consumer waits
// on Notify with an interval fallback and a bounded attempt count.
type MessageQueue struct {
	mu      sync.Mutex
	entries []ServerMessage
	notify  chan struct{}
}

func NewMessageQueue() *MessageQueue {
	return &MessageQueue{notify: make(chan struct{}, 1)}
}

func (q *MessageQueue) Push(m ServerMessage) {
	q.mu.Lock()
	q.entries = append(q.entries, m)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *MessageQueue) TryPop() (ServerMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil, false
	}
	m := q.entries[0]
	q.entries = q.entries[1:]
	return m, true
}

// Notify signals at least once after a Push. A receive does not guarantee a
// non-empty queue; callers must still TryPop.
func (q *MessageQueue) Notify() <-chan struct{} {
	return q.notify
}

func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

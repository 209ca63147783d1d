package gateway

import (
	"slices"
	"sync"

	"github.com/shohag/pushrelay/internal/models"
	"github.com/shohag/pushrelay/internal/wire"
)

// entry is a notification waiting for a successful write. seq correlates a
// write completion with the entry that was written.
type entry struct {
	seq          uint64
	notification *models.Notification
	frame        []byte
}

// encode caches the frame so replays after a reconnect reuse it.
func (e *entry) encode() ([]byte, error) {
	if e.frame != nil {
		return e.frame, nil
	}
	frame, err := wire.EncodeNotification(e.notification)
	if err != nil {
		return nil, err
	}
	e.frame = frame
	return frame, nil
}

// Queue is the FIFO of notifications not yet written successfully. It is
// safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	entries []*entry
	nextSeq uint64
	changed chan struct{}
}

func NewQueue() *Queue {
	return &Queue{changed: make(chan struct{})}
}

// Push appends n and wakes anything waiting on the queue.
func (q *Queue) Push(n *models.Notification) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextSeq++
	q.entries = append(q.entries, &entry{seq: q.nextSeq, notification: n})
	q.notifyLocked()
}

// head returns the oldest entry, or a channel that is closed the next time
// the queue changes when it is empty.
func (q *Queue) head() (*entry, <-chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil, q.changed
	}
	return q.entries[0], nil
}

// ack removes the entry with the given sequence number. It reports false if
// the entry is already gone, e.g. after Clear.
func (q *Queue) ack(seq uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.seq != seq {
			continue
		}
		if i == 0 {
			q.entries[0] = nil
			q.entries = q.entries[1:]
		} else {
			q.entries = slices.Delete(q.entries, i, i+1)
		}
		return true
	}
	return false
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot returns the pending notifications in queue order.
func (q *Queue) Snapshot() []*models.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*models.Notification, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.notification
	}
	return out
}

// Clear discards every pending entry and releases the backing array.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = nil
	q.notifyLocked()
}

func (q *Queue) notifyLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

package feedback

import (
	"sync"
	"sync/atomic"

	"github.com/shohag/pushrelay/internal/models"
)

// Listener receives every record decoded by a poll. An error or panic from
// one listener is logged and does not affect the others.
type Listener interface {
	Feedback(rec models.FeedbackRecord) error
}

// registry is a copy-on-write listener list: dispatch iterates a snapshot
// without holding the lock, so listeners may add or remove listeners.
type registry struct {
	mu        sync.Mutex
	listeners atomic.Pointer[[]Listener]
}

func (r *registry) add(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snapshot()
	next := make([]Listener, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, l)
	r.listeners.Store(&next)
}

// remove drops the first registration of l. Listeners are compared with ==,
// so they should be pointers.
func (r *registry) remove(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snapshot()
	for i, existing := range cur {
		if existing != l {
			continue
		}
		next := make([]Listener, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		r.listeners.Store(&next)
		return
	}
}

func (r *registry) snapshot() []Listener {
	if p := r.listeners.Load(); p != nil {
		return *p
	}
	return nil
}

func (r *registry) len() int {
	return len(r.snapshot())
}

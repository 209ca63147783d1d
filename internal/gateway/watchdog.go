package gateway

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/shohag/pushrelay/internal/metrics"
)

// MaxAttempts caps the reconnect counter, and so the backoff.
const MaxAttempts = 8

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Backoff is the reconnect delay after the given number of consecutive
// failed or lost connections: 2<<attempts milliseconds.
func Backoff(attempts int) time.Duration {
	if attempts > MaxAttempts {
		attempts = MaxAttempts
	}
	return time.Duration(2<<attempts) * time.Millisecond
}

// Watchdog tracks the gateway connection state and schedules a reconnect
// with exponential backoff whenever the connection goes away, until
// reconnecting is disabled.
type Watchdog struct {
	mu        sync.Mutex
	state     State
	attempts  int
	reconnect bool
	pending   clockwork.Timer

	clock   clockwork.Clock
	connect func()
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewWatchdog returns a watchdog that calls connect, on a timer goroutine,
// for each scheduled reconnect.
func NewWatchdog(clock clockwork.Clock, connect func(), m *metrics.Metrics, log zerolog.Logger) *Watchdog {
	return &Watchdog{
		reconnect: true,
		clock:     clock,
		connect:   connect,
		metrics:   m,
		log:       log.With().Str("component", "watchdog").Logger(),
	}
}

// Connecting records a connect attempt. It returns false once reconnecting
// has been disabled, in which case the caller must not dial.
func (w *Watchdog) Connecting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.reconnect {
		return false
	}
	w.state = Connecting
	return true
}

func (w *Watchdog) Connected(remote string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state = Connected
	w.attempts = 0
	w.metrics.Connects.Inc()
	w.log.Info().Str("remote", remote).Msg("connected")
}

// Disconnected records a lost or failed connection and, unless reconnecting
// is disabled, schedules the next attempt. It returns the delay and whether
// a reconnect was scheduled.
func (w *Watchdog) Disconnected(cause error) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state = Disconnected
	w.metrics.Disconnects.Inc()

	if !w.reconnect {
		w.log.Info().Msg("disconnected, reconnect disabled")
		return 0, false
	}

	if w.attempts < MaxAttempts {
		w.attempts++
	}
	delay := Backoff(w.attempts)

	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = w.clock.AfterFunc(delay, w.fire)
	w.metrics.Reconnects.Inc()

	w.log.Info().
		Err(cause).
		Int("attempt", w.attempts).
		Dur("delay", delay).
		Msg("disconnected, reconnecting")
	return delay, true
}

func (w *Watchdog) fire() {
	w.mu.Lock()
	w.pending = nil
	enabled := w.reconnect
	w.mu.Unlock()

	if enabled {
		w.connect()
	}
}

// Disable stops reconnecting and cancels a reconnect that has not fired yet.
func (w *Watchdog) Disable() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.reconnect = false
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
}

func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Watchdog) Attempts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts
}

func (w *Watchdog) Reconnecting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reconnect
}

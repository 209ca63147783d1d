// Package feedback polls the feedback service for device tokens that are no
// longer valid and hands them to registered listeners.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/shohag/pushrelay/internal/metrics"
	"github.com/shohag/pushrelay/internal/models"
	"github.com/shohag/pushrelay/internal/transport"
	"github.com/shohag/pushrelay/internal/wire"
)

const (
	DefaultInterval = 10 * time.Minute
	readBufferSize  = 4096
)

var ErrStopped = errors.New("feedback: poller stopped")

// Poller connects to the feedback service on a timer. The service sends
// everything it has and closes the connection, so each poll is a fresh
// connection read to EOF. Only one poll runs at a time, whether it was
// started by the timer or by PollOnce.
type Poller struct {
	addr        string
	dialTimeout time.Duration
	dialer      transport.Dialer
	clock       clockwork.Clock
	listeners   registry
	metrics     *metrics.Metrics
	log         zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	pollMu sync.Mutex
	ticks  conc.WaitGroup

	mu       sync.Mutex
	interval time.Duration
	pending  clockwork.Timer
	started  bool
	polling  bool
	stopped  bool
}

func NewPoller(addr string, interval, dialTimeout time.Duration, dialer transport.Dialer, clock clockwork.Clock, m *metrics.Metrics, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		addr:        addr,
		dialTimeout: dialTimeout,
		dialer:      dialer,
		clock:       clock,
		metrics:     m,
		log:         log.With().Str("component", "feedback").Str("addr", addr).Logger(),
		ctx:         ctx,
		cancel:      cancel,
		interval:    interval,
	}
}

// Start schedules the first poll one interval from now.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.stopped {
		return
	}
	p.started = true
	p.scheduleLocked()
}

// SetInterval cancels the pending poll and schedules the next one d from
// now. A poll already in progress is not interrupted; the new interval
// applies when it finishes.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.interval = d
	if p.started && !p.polling {
		p.scheduleLocked()
	}
	p.log.Info().Dur("interval", d).Msg("feedback interval changed")
}

func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

func (p *Poller) AddListener(l Listener) { p.listeners.add(l) }

func (p *Poller) RemoveListener(l Listener) { p.listeners.remove(l) }

func (p *Poller) Listeners() int { return p.listeners.len() }

// Stop cancels the pending poll, aborts one in progress and waits for it to
// return, so no listener is called once Stop has returned.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
	p.cancel()
	p.mu.Unlock()

	p.ticks.Wait()
	p.pollMu.Lock()
	p.pollMu.Unlock()
}

func (p *Poller) scheduleLocked() {
	if p.stopped {
		return
	}
	if p.pending != nil {
		p.pending.Stop()
	}
	p.pending = p.clock.AfterFunc(p.interval, p.tick)
}

func (p *Poller) tick() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	p.pending = nil
	p.polling = true

	p.ticks.Go(func() {
		p.run()

		p.mu.Lock()
		p.polling = false
		p.scheduleLocked()
		p.mu.Unlock()
	})
}

func (p *Poller) run() {
	if p.listeners.len() == 0 {
		p.metrics.FeedbackPolls.WithLabelValues("skipped").Inc()
		p.log.Debug().Msg("no feedback listeners, skipping poll")
		return
	}

	n, err := p.PollOnce(p.ctx)
	if err != nil {
		p.metrics.FeedbackPolls.WithLabelValues("error").Inc()
		p.log.Error().Err(err).Int("records", n).Msg("feedback poll failed")
		return
	}
	p.metrics.FeedbackPolls.WithLabelValues("ok").Inc()
	p.log.Info().Int("records", n).Msg("feedback poll completed")
}

// PollOnce connects to the feedback service, dispatches every record it
// sends and returns how many there were. It waits for a poll already in
// progress and is aborted by Stop.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	if p.ctx.Err() != nil {
		return 0, ErrStopped
	}
	ctx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()
	stopOnStop := context.AfterFunc(p.ctx, cancelPoll)
	defer stopOnStop()

	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	conn, err := p.dialer.DialContext(dialCtx, "tcp", p.addr)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("dial feedback service: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var (
		dec   wire.FeedbackDecoder
		buf   = make([]byte, readBufferSize)
		count int
	)
	for {
		n, err := conn.Read(buf)
		for _, rec := range dec.Feed(buf[:n]) {
			count++
			p.dispatch(rec)
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if dec.Buffered() > 0 {
				p.log.Warn().Int("bytes", dec.Buffered()).Msg("feedback stream ended mid-record")
			}
			return count, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return count, ctxErr
		}
		return count, fmt.Errorf("read feedback: %w", err)
	}
}

func (p *Poller) dispatch(rec models.FeedbackRecord) {
	p.metrics.FeedbackRecords.Inc()

	for _, l := range p.listeners.snapshot() {
		var err error
		if r := panics.Try(func() { err = l.Feedback(rec) }); r != nil {
			err = r.AsError()
		}
		if err != nil {
			p.metrics.FeedbackListenerFailures.Inc()
			p.log.Error().
				Err(err).
				Hex("token", rec.Token).
				Msg("feedback listener failed")
		}
	}
}

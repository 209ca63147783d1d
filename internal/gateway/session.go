package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/shohag/pushrelay/internal/metrics"
	"github.com/shohag/pushrelay/internal/models"
	"github.com/shohag/pushrelay/internal/transport"
	"github.com/shohag/pushrelay/internal/wire"
)

var (
	ErrClosed       = errors.New("gateway: session closed")
	ErrRemoteClosed = errors.New("gateway: connection closed by remote")
)

const readBufferSize = 512

// Session binds the delivery queue to whichever gateway connection is live.
// Every new connection starts writing from the head of the queue, so entries
// that were never written successfully are replayed after a reconnect.
//
// The gateway reports a rejected notification with an error response and
// then drops the connection. Notifications written after the rejected one
// were already removed from the queue and are not resent.
type Session struct {
	addr        string
	dialTimeout time.Duration
	dialer      transport.Dialer
	queue       *Queue
	watchdog    *Watchdog
	metrics     *metrics.Metrics
	log         zerolog.Logger

	mu       sync.Mutex
	conn     net.Conn
	closed   bool
	done     chan struct{}
	doneOnce sync.Once
}

func NewSession(addr string, dialTimeout time.Duration, dialer transport.Dialer, queue *Queue, clock clockwork.Clock, m *metrics.Metrics, log zerolog.Logger) *Session {
	s := &Session{
		addr:        addr,
		dialTimeout: dialTimeout,
		dialer:      dialer,
		queue:       queue,
		metrics:     m,
		log:         log.With().Str("component", "gateway").Str("addr", addr).Logger(),
		done:        make(chan struct{}),
	}
	s.watchdog = NewWatchdog(clock, s.connect, m, log)
	return s
}

// Start makes the first connection attempt in the background.
func (s *Session) Start() {
	go s.connect()
}

// Send queues n for delivery. It never blocks on the network: if a
// connection is live its writer picks the entry up, otherwise the next
// connection will.
func (s *Session) Send(n *models.Notification) {
	s.queue.Push(n)
	s.metrics.Enqueued.Inc()
	s.updateDepth()
}

// Close disables reconnecting, closes the live connection and, once that
// close has been observed, discards every pending notification. It is safe
// to call more than once; each call waits for the close or ctx.
func (s *Session) Close(ctx context.Context) error {
	s.watchdog.Disable()

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		conn := s.conn
		s.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		} else {
			s.finish()
		}
	} else {
		s.mu.Unlock()
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for gateway close: %w", ctx.Err())
	}
}

func (s *Session) Watchdog() *Watchdog { return s.watchdog }

func (s *Session) Queue() *Queue { return s.queue }

func (s *Session) finish() {
	s.doneOnce.Do(func() {
		s.queue.Clear()
		s.updateDepth()
		close(s.done)
		s.log.Info().Msg("gateway session closed")
	})
}

func (s *Session) connect() {
	if !s.watchdog.Connecting() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.dialTimeout)
	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
	cancel()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to connect to gateway")
		s.disconnected(err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		s.disconnected(ErrClosed)
		return
	}
	s.conn = conn
	s.mu.Unlock()

	s.watchdog.Connected(conn.RemoteAddr().String())
	s.log.Debug().Int("pending", s.queue.Len()).Msg("replaying pending notifications")

	err = s.serve(conn)

	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()

	s.disconnected(err)
}

func (s *Session) disconnected(cause error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	if closed {
		cause = ErrClosed
	} else if cause != nil {
		s.log.Warn().Err(cause).Msg("gateway connection lost")
	}
	s.watchdog.Disconnected(cause)

	if closed {
		s.finish()
	}
}

// serve runs the writer and reader for one connection until either fails.
// The failing side cancels the other and the connection is closed.
func (s *Session) serve(conn net.Conn) error {
	p := pool.New().
		WithContext(context.Background()).
		WithCancelOnError().
		WithFirstError()

	p.Go(func(ctx context.Context) error {
		return s.writeLoop(ctx, conn)
	})
	p.Go(func(ctx context.Context) error {
		return s.readLoop(conn)
	})
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		_ = conn.Close()
		return nil
	})

	return p.Wait()
}

func (s *Session) writeLoop(ctx context.Context, conn net.Conn) error {
	for {
		e, changed := s.queue.head()
		if e == nil {
			select {
			case <-changed:
				continue
			case <-ctx.Done():
				return nil
			}
		}

		frame, err := e.encode()
		if err != nil {
			s.log.Error().
				Err(err).
				Uint64("notification_id", e.notification.ID).
				Msg("failed to encode notification, dropping it")
			s.metrics.EncodeFailures.Inc()
			s.queue.ack(e.seq)
			s.updateDepth()
			continue
		}

		if ctx.Err() != nil {
			return nil
		}
		if _, err := conn.Write(frame); err != nil {
			return fmt.Errorf("write notification %d: %w", e.notification.ID, err)
		}

		s.queue.ack(e.seq)
		s.metrics.Written.Inc()
		s.updateDepth()
	}
}

func (s *Session) readLoop(conn net.Conn) error {
	var dec wire.ResponseDecoder
	buf := make([]byte, readBufferSize)

	for {
		n, err := conn.Read(buf)
		for _, resp := range dec.Feed(buf[:n]) {
			s.metrics.ErrorResponses.WithLabelValues(strconv.Itoa(int(resp.Status))).Inc()
			s.log.Error().
				Uint32("notification_id", resp.ID).
				Uint8("status", resp.Status).
				Str("reason", models.StatusText(resp.Status)).
				Msg("gateway rejected notification")
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrRemoteClosed
			}
			return fmt.Errorf("read: %w", err)
		}
	}
}

func (s *Session) updateDepth() {
	s.metrics.QueueDepth.Set(float64(s.queue.Len()))
}

// Package push is the entry point for sending notifications: it owns the
// gateway session, the feedback poller and the notification id counter.
package push

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/shohag/pushrelay/internal/config"
	"github.com/shohag/pushrelay/internal/feedback"
	"github.com/shohag/pushrelay/internal/gateway"
	"github.com/shohag/pushrelay/internal/metrics"
	"github.com/shohag/pushrelay/internal/models"
	"github.com/shohag/pushrelay/internal/transport"
)

var ErrShutdown = errors.New("push: client is shut down")

// DefaultDialTimeout applies when the gateway config leaves it unset.
const DefaultDialTimeout = 10 * time.Second

type Client struct {
	counter  atomic.Uint64
	shutdown atomic.Bool

	session *gateway.Session
	poller  *feedback.Poller
	log     zerolog.Logger
}

type Option func(*options)

type options struct {
	clock   clockwork.Clock
	metrics *metrics.Metrics
}

// WithClock replaces the clock used for reconnect and feedback timers.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Dial loads the TLS identity from cfg and starts a client. Bad TLS material
// or endpoints are reported here.
func Dial(cfg *config.Config, log zerolog.Logger, opts ...Option) (*Client, error) {
	dialer, err := transport.NewTLSDialer(cfg.TLS, cfg.Gateway.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to load tls identity: %w", err)
	}
	return New(cfg.Gateway, cfg.Feedback, dialer, log, opts...)
}

// New connects to the gateway in the background and, if enabled, starts
// polling the feedback service.
func New(gw config.GatewayConfig, fb config.FeedbackConfig, dialer transport.Dialer, log zerolog.Logger, opts ...Option) (*Client, error) {
	o := buildOptions(opts)
	gw = withDefaults(gw)

	gatewayAddr, feedbackAddr, err := gw.Endpoints()
	if err != nil {
		return nil, err
	}

	c := &Client{
		session: gateway.NewSession(gatewayAddr, gw.DialTimeout, dialer, gateway.NewQueue(), o.clock, o.metrics, log),
		poller:  feedback.NewPoller(feedbackAddr, fb.Interval, gw.DialTimeout, dialer, o.clock, o.metrics, log),
		log:     log.With().Str("component", "client").Logger(),
	}

	c.session.Start()
	if fb.Enabled {
		c.poller.Start()
	}

	c.log.Info().
		Str("gateway", gatewayAddr).
		Str("feedback", feedbackAddr).
		Bool("feedback_enabled", fb.Enabled).
		Msg("push client started")
	return c, nil
}

// NewFeedbackPoller returns a poller for the feedback service alone, without
// a gateway session. It is not started; use PollOnce or Start.
func NewFeedbackPoller(gw config.GatewayConfig, fb config.FeedbackConfig, dialer transport.Dialer, log zerolog.Logger, opts ...Option) (*feedback.Poller, error) {
	o := buildOptions(opts)
	gw = withDefaults(gw)

	_, feedbackAddr, err := gw.Endpoints()
	if err != nil {
		return nil, err
	}
	return feedback.NewPoller(feedbackAddr, fb.Interval, gw.DialTimeout, dialer, o.clock, o.metrics, log), nil
}

// DialFeedback is NewFeedbackPoller with the TLS identity from cfg.
func DialFeedback(cfg *config.Config, log zerolog.Logger, opts ...Option) (*feedback.Poller, error) {
	dialer, err := transport.NewTLSDialer(cfg.TLS, cfg.Gateway.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to load tls identity: %w", err)
	}
	return NewFeedbackPoller(cfg.Gateway, cfg.Feedback, dialer, log, opts...)
}

func buildOptions(opts []Option) options {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New(nil)
	}
	return o
}

func withDefaults(gw config.GatewayConfig) config.GatewayConfig {
	if gw.DialTimeout <= 0 {
		gw.DialTimeout = DefaultDialTimeout
	}
	return gw
}

// Create returns a notification for token with the next id. Ids start at 1
// and only the low 32 bits are sent on the wire.
func (c *Client) Create(token []byte) *models.Notification {
	return models.NewNotification(c.counter.Add(1), token)
}

// Send queues n for delivery and returns immediately.
func (c *Client) Send(n *models.Notification) error {
	if c.shutdown.Load() {
		return ErrShutdown
	}
	c.session.Send(n)
	return nil
}

func (c *Client) SetFeedbackInterval(d time.Duration) {
	c.poller.SetInterval(d)
}

func (c *Client) AddFeedbackListener(l feedback.Listener) {
	c.poller.AddListener(l)
}

func (c *Client) RemoveFeedbackListener(l feedback.Listener) {
	c.poller.RemoveListener(l)
}

// PollFeedback runs one feedback poll right away.
func (c *Client) PollFeedback(ctx context.Context) (int, error) {
	return c.poller.PollOnce(ctx)
}

// WaitIdle blocks until every queued notification has been written or ctx
// is done.
func (c *Client) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for c.session.Queue().Len() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d notifications still pending: %w", c.session.Queue().Len(), ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Shutdown stops feedback polling, closes the gateway connection and drops
// anything still queued. The client cannot be used afterwards.
func (c *Client) Shutdown(ctx context.Context) error {
	if !c.shutdown.Swap(true) {
		c.log.Info().Msg("shutting down push client")
		c.poller.Stop()
	}
	return c.session.Close(ctx)
}

type Status struct {
	State             string        `json:"state"`
	Attempts          int           `json:"attempts"`
	Pending           int           `json:"pending"`
	FeedbackListeners int           `json:"feedback_listeners"`
	FeedbackInterval  time.Duration `json:"feedback_interval"`
	Shutdown          bool          `json:"shutdown"`
}

func (c *Client) Status() Status {
	w := c.session.Watchdog()
	return Status{
		State:             w.State().String(),
		Attempts:          w.Attempts(),
		Pending:           c.session.Queue().Len(),
		FeedbackListeners: c.poller.Listeners(),
		FeedbackInterval:  c.poller.Interval(),
		Shutdown:          c.shutdown.Load(),
	}
}

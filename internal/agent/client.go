// Package agent implements one Agent's TCP client state machine: connect and
// reconnect, stream reassembly, and request/response correlation under a
// wire protocol that carries no correlation IDs.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ampiolux/lcs-gateway/internal/lcsframe"
	"github.com/ampiolux/lcs-gateway/internal/logging"
	"github.com/ampiolux/lcs-gateway/internal/metrics"
	"github.com/ampiolux/lcs-gateway/internal/response"
)

const (
	defaultRequestTimeout = 5 * time.Second
	defaultDialTimeout    = 5 * time.Second
	queueCapacity         = 256
)

// StatusEvent reports a Client's connection-state transition.
type StatusEvent struct {
	AgentID string
	State   State
	Time    time.Time
	Err     error
}

// DialFunc opens a TCP connection to addr; overridable for tests.
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

func defaultDial(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: defaultDialTimeout}
	return d.DialContext(ctx, "tcp", addr)
}

type pendingRequest struct {
	frame         []byte
	frameResolved chan response.Typed
	resultCh      chan sendResult
}

type sendResult struct {
	resp response.Typed
	err  error
}

// Client owns a single TCP connection to one backend Agent plus a
// single-flight request queue. It is safe for concurrent use.
type Client struct {
	id   string
	addr string

	dial           DialFunc
	requestTimeout time.Duration
	logger         *slog.Logger
	onStatus       func(StatusEvent)

	mu    sync.RWMutex
	state State
	conn  net.Conn

	curMu    sync.Mutex
	current  *pendingRequest
	connLost chan struct{}

	queue chan *pendingRequest

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// Option configures a Client at construction.
type Option func(*Client)

// WithDialFunc overrides how Connect opens the TCP socket (for tests).
func WithDialFunc(d DialFunc) Option { return func(c *Client) { c.dial = d } }

// WithRequestTimeout overrides the default 5s per-request deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithStatusListener registers a callback invoked on every state transition.
func WithStatusListener(fn func(StatusEvent)) Option { return func(c *Client) { c.onStatus = fn } }

// WithLogger overrides the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New constructs a Client for the Agent reachable at host:port. Connect must
// be called to start it.
func New(id, host string, port int, opts ...Option) *Client {
	c := &Client{
		id:             id,
		addr:           fmt.Sprintf("%s:%d", host, port),
		dial:           defaultDial,
		requestTimeout: defaultRequestTimeout,
		logger:         logging.L(),
		state:          StateDisconnected,
		queue:          make(chan *pendingRequest, queueCapacity),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) ID() string { return c.id }

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State, err error) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.onStatus != nil {
		c.onStatus(StatusEvent{AgentID: c.id, State: s, Time: time.Now(), Err: err})
	}
}

// Connect starts the connect/reconnect lifecycle in the background. It is
// idempotent; calling it twice on the same Client has no additional effect.
func (c *Client) Connect() {
	c.startOnce.Do(func() {
		c.ctx, c.cancel = context.WithCancel(context.Background())
		c.wg.Add(2)
		go func() { defer c.wg.Done(); c.run(c.ctx) }()
		go func() { defer c.wg.Done(); c.dispatch(c.ctx) }()
	})
}

// Disconnect cancels all pending requests with ErrCancelled, drops the
// socket, and stops the background goroutines. Idempotent.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		c.wg.Wait()
		c.setState(StateDisconnected, nil)
	})
}

// Send transmits frame and waits for the correlated response (the next
// frame read from the wire), or fails with ErrNotConnected, ErrTimeout,
// ErrConnectionLost, or ErrCancelled.
func (c *Client) Send(ctx context.Context, frame []byte) (response.Typed, error) {
	if c.State() != StateConnected {
		return response.Typed{}, ErrNotConnected
	}
	req := &pendingRequest{
		frame:         frame,
		frameResolved: make(chan response.Typed, 1),
		resultCh:      make(chan sendResult, 1),
	}
	select {
	case c.queue <- req:
	case <-ctx.Done():
		return response.Typed{}, ctx.Err()
	}
	select {
	case res := <-req.resultCh:
		return res.resp, res.err
	case <-ctx.Done():
		return response.Typed{}, ctx.Err()
	}
}

// run owns the connect/reconnect lifecycle: dial, serve one connection until
// it breaks, back off, repeat.
func (c *Client) run(ctx context.Context) {
	bo := newReconnectBackoff()
	for {
		if ctx.Err() != nil {
			return
		}
		c.setState(StateConnecting, nil)
		conn, err := c.dial(ctx, c.addr)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.IncAgentReconnect(c.id)
			c.setState(StateReconnecting, err)
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				wait = 30 * time.Second
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			continue
		}
		bo.Reset()
		connLost := make(chan struct{})
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.curMu.Lock()
		c.connLost = connLost
		c.curMu.Unlock()
		c.setState(StateConnected, nil)
		metrics.SetAgentConnected(c.id, true)
		c.serveConn(ctx, conn, connLost)
		metrics.SetAgentConnected(c.id, false)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		c.setState(StateReconnecting, nil)
	}
}

// serveConn reads frames from conn until it errors or ctx is cancelled, then
// fails the in-flight request (if any) with ErrConnectionLost.
func (c *Client) serveConn(ctx context.Context, conn net.Conn, connLost chan struct{}) {
	defer close(connLost)

	reasm := lcsframe.NewReassembler()
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		n, err := conn.Read(buf)
		if n > 0 {
			reasm.Feed(buf[:n], func(fr lcsframe.Frame) {
				c.deliverFrame(fr)
			}, func() {
				c.logger.Warn("frame_corrupt", "agent_id", c.id)
			})
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			c.logger.Warn("agent_conn_read_error", "agent_id", c.id, "error", err)
			_ = conn.Close()
			return
		}
	}
}

func (c *Client) deliverFrame(fr lcsframe.Frame) {
	typed := response.Interpret(fr)
	c.curMu.Lock()
	cur := c.current
	c.curMu.Unlock()
	if cur == nil {
		c.logger.Debug("spurious_frame_dropped", "agent_id", c.id, "opcode", fmt.Sprintf("0x%04X", fr.Opcode()))
		return
	}
	select {
	case cur.frameResolved <- typed:
	default:
	}
}

// dispatch is the single-flight lane: it processes queued requests one at a
// time, writing each to the wire and awaiting exactly one decoded response.
func (c *Client) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.drainAll(ErrCancelled)
			return
		case req := <-c.queue:
			c.handleOne(ctx, req)
		}
	}
}

func (c *Client) handleOne(ctx context.Context, req *pendingRequest) {
	c.mu.RLock()
	state := c.state
	conn := c.conn
	c.mu.RUnlock()

	if ctx.Err() != nil {
		// Disconnect was called while req was still queued.
		req.resultCh <- sendResult{err: ErrCancelled}
		return
	}
	if state != StateConnected || conn == nil {
		// Send() only enqueues while Connected, so anything reaching here
		// with a down connection was already pending when it dropped.
		req.resultCh <- sendResult{err: ErrConnectionLost}
		return
	}

	c.curMu.Lock()
	c.current = req
	connLost := c.connLost
	c.curMu.Unlock()

	if _, err := conn.Write(req.frame); err != nil {
		c.curMu.Lock()
		if c.current == req {
			c.current = nil
		}
		c.curMu.Unlock()
		if ctx.Err() != nil {
			req.resultCh <- sendResult{err: ErrCancelled}
			return
		}
		req.resultCh <- sendResult{err: fmt.Errorf("%w: %v", ErrConnectionLost, err)}
		return
	}
	metrics.IncFramesEncoded()

	timer := time.NewTimer(c.requestTimeout)
	defer timer.Stop()

	clearCurrent := func() {
		c.curMu.Lock()
		if c.current == req {
			c.current = nil
		}
		c.curMu.Unlock()
	}

	select {
	case typed := <-req.frameResolved:
		clearCurrent()
		req.resultCh <- sendResult{resp: typed}
	case <-timer.C:
		clearCurrent()
		metrics.IncRequestTimeout(c.id)
		req.resultCh <- sendResult{err: ErrTimeout}
	case <-connLost:
		clearCurrent()
		if ctx.Err() != nil {
			req.resultCh <- sendResult{err: ErrCancelled}
			return
		}
		req.resultCh <- sendResult{err: ErrConnectionLost}
	case <-ctx.Done():
		clearCurrent()
		req.resultCh <- sendResult{err: ErrCancelled}
	}
}

func (c *Client) drainAll(err error) {
	for {
		select {
		case req := <-c.queue:
			req.resultCh <- sendResult{err: err}
		default:
			return
		}
	}
}

func newReconnectBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // retry forever; Disconnect() is the only way out
	return b
}

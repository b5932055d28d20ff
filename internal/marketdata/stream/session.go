// Package stream maintains a live candle subscription against the venue's
// websocket endpoints. A Session owns exactly one subscription target, the
// connection state machine, the endpoint rotation cursor, and the series
// buffer it feeds; the Manager above it swaps sessions when the target
// changes. All state mutation happens on the session loop goroutine — socket
// reads are delivered as generation-tagged events so a superseded socket's
// late frames are inert.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"market-feedv1/internal/marketdata/codec"
	"market-feedv1/internal/marketdata/decode"
	"market-feedv1/internal/model"
	"market-feedv1/internal/seriesbuf"
	"market-feedv1/internal/sink"
)

// ErrRetriesExhausted is returned by Run when the optional max-attempt
// ceiling is reached. Ingestion stops until a new session is started.
var ErrRetriesExhausted = errors.New("stream: reconnect attempts exhausted")

// errEndpointRejected forces a close + rotate after a classified
// subscribe-error frame.
var errEndpointRejected = errors.New("stream: endpoint rejected subscription")

// Conn is the transport surface a session uses. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v interface{}) error
	Close() error
}

// Dialer opens a transport connection to one endpoint URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Seeder fetches the raw historical-candles response body for a target.
type Seeder interface {
	Fetch(ctx context.Context, target model.SubscriptionTarget) ([]byte, error)
}

// wsDialer is the production Dialer over gorilla/websocket.
type wsDialer struct {
	timeout time.Duration
}

func (d wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

// Config holds session policy knobs.
type Config struct {
	// Endpoints is the ordered failover list. Empty selects the venue
	// defaults.
	Endpoints []model.Endpoint

	// MaxAttempts is the number of full endpoint-list wraps before the
	// session reports ErrRetriesExhausted. 0 retries forever.
	MaxAttempts int

	DialTimeout       time.Duration // default 5s
	HeartbeatInterval time.Duration // default 25s
}

func (c *Config) applyDefaults() {
	if len(c.Endpoints) == 0 {
		c.Endpoints = model.DefaultEndpoints()
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
}

// genCounter issues connection generations. Global so generations stay
// unique across sessions sharing one decode worker; a stale result can then
// never match a live connection.
var genCounter atomic.Uint64

func nextGen() uint64 { return genCounter.Add(1) }

// frameEvent is one socket read delivered to the session loop.
type frameEvent struct {
	gen  uint64
	data []byte
	err  error
}

// Session is one live subscription: create, Run, discard. It is not
// restartable; target changes go through the Manager.
type Session struct {
	cfg    Config
	target model.SubscriptionTarget
	buf    *seriesbuf.Buffer
	out    sink.Sink

	// Collaborators, settable before Run. Dialer defaults to the websocket
	// dialer; a nil Seeder skips historical seeding; a nil Worker decodes
	// synchronously on the session loop.
	Dialer Dialer
	Seeder Seeder
	Worker *decode.Worker

	// Observability hooks, all optional.
	OnState   func(State)
	OnStatus  func(string)
	OnRotate  func(endpointIndex int)
	OnCandles func(n int)
	OnDropped func()
	OnBuffer  func(length int)
	OnSeed    func(ok bool)

	state   atomic.Int32
	retry   RetryState
	gen     uint64
	frames  chan frameEvent
	delayFn func(attempt int) time.Duration
}

// NewSession creates a session for one target feeding one buffer.
func NewSession(cfg Config, target model.SubscriptionTarget, buf *seriesbuf.Buffer, out sink.Sink) (*Session, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if buf == nil || out == nil {
		return nil, errors.New("stream: nil buffer or sink")
	}
	cfg.applyDefaults()
	return &Session{
		cfg:    cfg,
		target: target,
		buf:    buf,
		out:    out,
		Dialer:  wsDialer{timeout: cfg.DialTimeout},
		frames:  make(chan frameEvent, 256),
		delayFn: Delay,
	}, nil
}

// State returns the current connection state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Retry returns a copy of the retry state, for tests and health reporting.
func (s *Session) Retry() RetryState {
	return s.retry
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	if s.OnState != nil {
		s.OnState(st)
	}
}

func (s *Session) statusf(format string, args ...interface{}) {
	if s.OnStatus != nil {
		s.OnStatus(fmt.Sprintf(format, args...))
	}
}

// results returns the worker reply channel, or nil (blocking forever in a
// select) when decoding runs synchronously.
func (s *Session) results() <-chan decode.Result {
	if s.Worker == nil {
		return nil
	}
	return s.Worker.Results()
}

// Run seeds the buffer, then drives the connect/subscribe/stream cycle until
// ctx is cancelled (clean disconnect, returns nil) or the attempt ceiling is
// reached (returns ErrRetriesExhausted).
func (s *Session) Run(ctx context.Context) error {
	defer func() {
		s.setState(StateClosing)
		s.setState(StateDisconnected)
		s.statusf("disconnected")
	}()

	s.seed(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}

		ep := s.cfg.Endpoints[s.retry.EndpointIndex]
		s.setState(StateConnecting)
		s.statusf("connecting to %s", ep.URL)

		conn, err := s.Dialer.Dial(ctx, ep.URL)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[stream] dial %s failed: %v", ep.URL, err)
			if rerr := s.rotateAndWait(ctx); rerr != nil {
				return s.mapExit(ctx, rerr)
			}
			continue
		}

		err = s.streamConn(ctx, conn, ep)
		conn.Close()
		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Printf("[stream] connection to %s ended: %v", ep.URL, err)
		}
		s.statusf("disconnected from %s", ep.URL)

		if rerr := s.rotateAndWait(ctx); rerr != nil {
			return s.mapExit(ctx, rerr)
		}
	}
}

func (s *Session) mapExit(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// seed fetches historical candles, bulk-loads the buffer and initializes the
// sink with the seeded series. Failures degrade to an empty buffer; the
// streamed feed still runs.
func (s *Session) seed(ctx context.Context) {
	if s.Seeder != nil {
		s.statusf("loading historical data for %s", s.target)
		raw, err := s.Seeder.Fetch(ctx, s.target)
		if err == nil {
			res := s.decodeSeed(ctx, raw)
			if res.Err != nil {
				err = res.Err
			} else {
				s.buf.BulkLoad(res.Seed.OHLC)
			}
		}
		if err != nil {
			log.Printf("[stream] historical seed failed: %v", err)
			s.statusf("historical data unavailable: %v", err)
		}
		if s.OnSeed != nil {
			s.OnSeed(err == nil)
		}
	}

	snap := s.buf.Snapshot()
	s.out.Initialize(snap.Candles(), snap.VolumeBars())
	if s.OnBuffer != nil {
		s.OnBuffer(s.buf.Len())
	}
}

func (s *Session) decodeSeed(ctx context.Context, raw []byte) decode.Result {
	req := decode.Request{Kind: decode.KindHistorical, Raw: raw, Gen: nextGen()}
	if s.Worker != nil && s.Worker.Post(req) {
		for {
			select {
			case res := <-s.Worker.Results():
				if res.Gen == req.Gen {
					return res
				}
				// Leftover result from a previous connection.
			case <-ctx.Done():
				return decode.Result{Kind: req.Kind, Err: ctx.Err()}
			}
		}
	}
	return decode.Do(req)
}

// streamConn runs the subscribe handshake and the event loop for one socket.
func (s *Session) streamConn(ctx context.Context, conn Conn, ep model.Endpoint) error {
	gen := nextGen()
	s.gen = gen
	go s.reader(ctx, conn, gen)

	s.setState(StateSubscribing)
	s.statusf("subscribing to %s on %s", s.target, ep.URL)
	if err := conn.WriteJSON(newSubscribeRequest(s.target, ep.Variant)); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-heartbeat.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				return fmt.Errorf("heartbeat: %w", err)
			}

		case res := <-s.results():
			s.apply(res)

		case ev := <-s.frames:
			if ev.gen != gen {
				// Late event from a superseded socket.
				continue
			}
			if ev.err != nil {
				return ev.err
			}
			if err := s.handleFrame(conn, gen, ev.data); err != nil {
				return err
			}
		}
	}
}

// reader pumps socket reads into the event channel until the socket dies.
func (s *Session) reader(ctx context.Context, conn Conn, gen uint64) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case s.frames <- frameEvent{gen: gen, err: err}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case s.frames <- frameEvent{gen: gen, data: msg}:
		case <-ctx.Done():
			return
		}
	}
}

// handleFrame dispatches one received frame on the current socket.
func (s *Session) handleFrame(conn Conn, gen uint64, raw []byte) error {
	// The venue sends plain text ping frames, not protocol pings.
	if string(raw) == "ping" {
		return conn.WriteMessage(websocket.TextMessage, []byte("pong"))
	}

	if ctrl := codec.DecodeControl(raw); ctrl != nil {
		return s.handleControl(ctrl)
	}

	req := decode.Request{Kind: decode.KindFrame, Raw: raw, Gen: gen}
	if s.Worker != nil && s.Worker.Post(req) {
		return nil
	}
	s.apply(decode.Do(req))
	return nil
}

func (s *Session) handleControl(ctrl *codec.ControlFrame) error {
	switch {
	case ctrl.IsAck():
		s.retry.ResetAttempts()
		s.setState(StateStreaming)
		s.statusf("streaming %s", s.target)
		return nil

	case ctrl.IsError():
		if isEndpointError(ctrl.Code, ctrl.Msg) {
			s.statusf("endpoint rejected subscription (code %s), rotating", ctrl.Code)
			return fmt.Errorf("%w: code=%s msg=%q", errEndpointRejected, ctrl.Code, ctrl.Msg)
		}
		// Unrecognized protocol error: log it and leave the session to the
		// normal close/reconnect path.
		log.Printf("[stream] subscribe error (ignored): code=%s msg=%q", ctrl.Code, ctrl.Msg)
		return nil

	default:
		return nil
	}
}

// apply folds a decoded candle batch into the buffer and notifies the sink.
// Results from superseded connections are discarded.
func (s *Session) apply(res decode.Result) {
	if res.Gen != s.gen || res.Kind != decode.KindFrame {
		return
	}
	applied := 0
	for _, c := range res.Candles {
		if err := s.buf.Append(c); err != nil {
			log.Printf("[stream] dropping candle: %v", err)
			if s.OnDropped != nil {
				s.OnDropped()
			}
			continue
		}
		s.out.PushUpdate(c, c.VolumeBar())
		applied++
	}
	if applied > 0 {
		if s.OnCandles != nil {
			s.OnCandles(applied)
		}
		if s.OnBuffer != nil {
			s.OnBuffer(s.buf.Len())
		}
	}
}

// rotateAndWait advances the endpoint cursor and sleeps out the backoff
// delay. While waiting it keeps draining decode results for the connection
// that just ended. Returns ErrRetriesExhausted at the attempt ceiling or the
// context error on cancellation.
func (s *Session) rotateAndWait(ctx context.Context) error {
	s.retry.Rotate(len(s.cfg.Endpoints))
	if s.OnRotate != nil {
		s.OnRotate(s.retry.EndpointIndex)
	}

	if s.cfg.MaxAttempts > 0 && s.retry.AttemptCount >= s.cfg.MaxAttempts {
		s.statusf("giving up after %d full endpoint rotations", s.retry.AttemptCount)
		return ErrRetriesExhausted
	}

	d := s.delayFn(s.retry.AttemptCount)
	s.statusf("reconnecting in %s (attempt %d)", d.Round(time.Millisecond), s.retry.AttemptCount)

	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case res := <-s.results():
			s.apply(res)
		}
	}
}

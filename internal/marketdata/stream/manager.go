package stream

import (
	"context"

	"market-feedv1/internal/marketdata/decode"
	"market-feedv1/internal/model"
	"market-feedv1/internal/seriesbuf"
	"market-feedv1/internal/sink"
)

// Manager runs one Session at a time and performs a full teardown/rebuild
// when the subscription target changes: the old session is cancelled and
// drained, then a fresh session starts with a fresh series buffer. The sink
// is shared across sessions; each new session re-initializes it.
type Manager struct {
	cfg    Config
	target model.SubscriptionTarget
	out    sink.Sink

	// Collaborators forwarded onto each session.
	Dialer Dialer
	Seeder Seeder
	Worker *decode.Worker

	// Hooks forwarded onto each session.
	OnState   func(State)
	OnStatus  func(string)
	OnRotate  func(endpointIndex int)
	OnCandles func(n int)
	OnDropped func()
	OnBuffer  func(length int)
	OnSeed    func(ok bool)

	// OnTarget fires after a target switch, before the new session starts.
	OnTarget func(model.SubscriptionTarget)
}

// NewManager creates a manager starting from the given target.
func NewManager(cfg Config, target model.SubscriptionTarget, out sink.Sink) (*Manager, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &Manager{cfg: cfg, target: target, out: out}, nil
}

// Run drives sessions until ctx is cancelled. Values on targets switch the
// live subscription; invalid targets are ignored. A closed targets channel
// pins the current target. Returns the session's terminal error, if any.
func (m *Manager) Run(ctx context.Context, targets <-chan model.SubscriptionTarget) error {
	target := m.target
	for {
		sess, err := m.newSession(target)
		if err != nil {
			return err
		}

		sctx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- sess.Run(sctx) }()

	wait:
		for {
			select {
			case t, ok := <-targets:
				if !ok {
					targets = nil
					continue
				}
				if t.Validate() != nil || t == target {
					continue
				}
				cancel()
				<-done
				target = t
				if m.OnTarget != nil {
					m.OnTarget(t)
				}
				break wait

			case err := <-done:
				cancel()
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func (m *Manager) newSession(target model.SubscriptionTarget) (*Session, error) {
	sess, err := NewSession(m.cfg, target, seriesbuf.New(0), m.out)
	if err != nil {
		return nil, err
	}
	if m.Dialer != nil {
		sess.Dialer = m.Dialer
	}
	sess.Seeder = m.Seeder
	sess.Worker = m.Worker
	sess.OnState = m.OnState
	sess.OnStatus = m.OnStatus
	sess.OnRotate = m.OnRotate
	sess.OnCandles = m.OnCandles
	sess.OnDropped = m.OnDropped
	sess.OnBuffer = m.OnBuffer
	sess.OnSeed = m.OnSeed
	return sess, nil
}

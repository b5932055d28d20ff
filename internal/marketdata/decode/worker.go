// Package decode moves frame parsing off the session loop. The session posts
// raw payloads and receives decoded results asynchronously on a single reply
// channel; the posting side never blocks, and for one worker instance reply
// order matches post order. When the worker is unavailable the caller runs
// the same pure decode synchronously via Do.
package decode

import (
	"context"
	"log"
	"time"

	"market-feedv1/internal/marketdata/codec"
	"market-feedv1/internal/model"
)

// Kind selects the decode variant for a request.
type Kind int

const (
	// KindFrame decodes a live data frame into a candle batch.
	KindFrame Kind = iota
	// KindHistorical decodes a history-candles REST body into a seed.
	KindHistorical
)

// Request is one raw payload to decode. Gen is opaque to the worker and
// echoed back so the session can discard results from superseded connections.
type Request struct {
	Kind Kind
	Raw  []byte
	Gen  uint64
}

// Result carries the decoded payload for a request.
type Result struct {
	Kind    Kind
	Gen     uint64
	Candles []model.Candle // KindFrame
	Seed    codec.Seed     // KindHistorical
	Err     error          // KindHistorical envelope/venue failures
}

// Do performs the decode synchronously. This is the fallback path and the
// worker's own implementation; both produce identical results.
func Do(req Request) Result {
	res := Result{Kind: req.Kind, Gen: req.Gen}
	switch req.Kind {
	case KindHistorical:
		res.Seed, res.Err = codec.ParseSeed(req.Raw)
	default:
		res.Candles = codec.DecodeData(req.Raw)
	}
	return res
}

// Worker runs decodes in one background goroutine.
type Worker struct {
	reqCh chan Request
	resCh chan Result

	// OnDecode, when set, receives the latency of each decode.
	OnDecode func(time.Duration)
}

// NewWorker creates a worker with the given queue depth per direction.
func NewWorker(depth int) *Worker {
	if depth <= 0 {
		depth = 64
	}
	return &Worker{
		reqCh: make(chan Request, depth),
		resCh: make(chan Result, depth),
	}
}

// Run consumes requests until ctx is cancelled. Single consumer: results are
// emitted in post order.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-w.reqCh:
			if !ok {
				return
			}
			start := time.Now()
			res := Do(req)
			if w.OnDecode != nil {
				w.OnDecode(time.Since(start))
			}
			select {
			case w.resCh <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Post hands a request to the worker without blocking. Returns false when
// the queue is full; the caller must then decode synchronously via Do.
func (w *Worker) Post(req Request) bool {
	select {
	case w.reqCh <- req:
		return true
	default:
		log.Printf("[decode] request queue full, falling back to synchronous decode")
		return false
	}
}

// Results returns the reply channel.
func (w *Worker) Results() <-chan Result {
	return w.resCh
}

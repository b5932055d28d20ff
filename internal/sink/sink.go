// Package sink defines the boundary between the ingestion pipeline and the
// presentation layer, plus adapters that shape the update stream before it
// crosses that boundary.
package sink

import "market-feedv1/internal/model"

// Sink receives "latest state" notifications from the pipeline.
// Initialize is called once per session with the seeded series; PushUpdate
// delivers subsequent streamed mutations.
type Sink interface {
	Initialize(candles []model.Candle, volumes []model.VolumeBar)
	PushUpdate(candle model.Candle, volume model.VolumeBar)
}

// Tee fans every call out to all wrapped sinks, in order.
type Tee struct {
	sinks []Sink
}

// NewTee creates a Tee over the given sinks. Nil entries are skipped.
func NewTee(sinks ...Sink) *Tee {
	t := &Tee{}
	for _, s := range sinks {
		if s != nil {
			t.sinks = append(t.sinks, s)
		}
	}
	return t
}

func (t *Tee) Initialize(candles []model.Candle, volumes []model.VolumeBar) {
	for _, s := range t.sinks {
		s.Initialize(candles, volumes)
	}
}

func (t *Tee) PushUpdate(candle model.Candle, volume model.VolumeBar) {
	for _, s := range t.sinks {
		s.PushUpdate(candle, volume)
	}
}

// Package seriesbuf provides a growable columnar store for candle series.
// The buffer keeps one backing array per field, grows by doubling for
// amortized O(1) appends, and supports the venue's update-in-place semantics:
// a candle carrying the last stored timestamp overwrites the final record
// instead of appending.
package seriesbuf

import (
	"errors"
	"fmt"

	"market-feedv1/internal/model"
)

// ErrOutOfOrder is returned when a genuinely new record (not an update of the
// last one) does not advance the time column.
var ErrOutOfOrder = errors.New("seriesbuf: timestamp not after last record")

const defaultCapacity = 64

// Buffer is an append-or-update columnar candle store. It is not
// goroutine-safe: the ingestion pipeline is its sole owner and mutator, and
// consumers only ever see read-only snapshots.
type Buffer struct {
	times   []int64
	opens   []float64
	highs   []float64
	lows    []float64
	closes  []float64
	volumes []float64

	length   int
	capacity int
}

// New creates an empty buffer with the given initial capacity.
// capacity <= 0 selects the default.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	b := &Buffer{}
	b.alloc(capacity)
	return b
}

func (b *Buffer) alloc(capacity int) {
	b.times = make([]int64, capacity)
	b.opens = make([]float64, capacity)
	b.highs = make([]float64, capacity)
	b.lows = make([]float64, capacity)
	b.closes = make([]float64, capacity)
	b.volumes = make([]float64, capacity)
	b.capacity = capacity
}

// Len returns the logical number of records.
func (b *Buffer) Len() int { return b.length }

// Cap returns the current physical capacity.
func (b *Buffer) Cap() int { return b.capacity }

// LastTime returns the timestamp of the newest record, or 0 when empty.
func (b *Buffer) LastTime() int64 {
	if b.length == 0 {
		return 0
	}
	return b.times[b.length-1]
}

// Append stores a candle. A candle whose time equals the last stored time
// overwrites the final record in place and leaves the length unchanged; a
// strictly greater time appends, doubling capacity when full. Anything else
// is a caller error and the buffer is left untouched.
func (b *Buffer) Append(c model.Candle) error {
	if b.length > 0 {
		last := b.times[b.length-1]
		if c.Time == last {
			b.set(b.length-1, c)
			return nil
		}
		if c.Time < last {
			return fmt.Errorf("%w: got %d, last %d", ErrOutOfOrder, c.Time, last)
		}
	}

	if b.length == b.capacity {
		b.grow(b.capacity * 2)
	}
	b.set(b.length, c)
	b.length++
	return nil
}

// BulkLoad replaces the buffer contents with an already-ordered sequence,
// establishing capacity of at least len(candles). Used for historical seeding
// before streaming starts.
func (b *Buffer) BulkLoad(candles []model.Candle) {
	capacity := b.capacity
	for capacity < len(candles) {
		capacity *= 2
	}
	b.alloc(capacity)
	for i, c := range candles {
		b.set(i, c)
	}
	b.length = len(candles)
}

// grow copies all columns into larger backing arrays. Capacity never shrinks.
func (b *Buffer) grow(capacity int) {
	old := *b
	b.alloc(capacity)
	copy(b.times, old.times[:old.length])
	copy(b.opens, old.opens[:old.length])
	copy(b.highs, old.highs[:old.length])
	copy(b.lows, old.lows[:old.length])
	copy(b.closes, old.closes[:old.length])
	copy(b.volumes, old.volumes[:old.length])
}

func (b *Buffer) set(i int, c model.Candle) {
	b.times[i] = c.Time
	b.opens[i] = c.Open
	b.highs[i] = c.High
	b.lows[i] = c.Low
	b.closes[i] = c.Close
	b.volumes[i] = c.Volume
}

// Snapshot exposes the logical [0, length) window without copying the
// backing storage. The view is invalidated by the next mutation; callers
// that need to keep data across mutations must copy via Candles.
func (b *Buffer) Snapshot() Snapshot {
	return Snapshot{
		times:   b.times[:b.length],
		opens:   b.opens[:b.length],
		highs:   b.highs[:b.length],
		lows:    b.lows[:b.length],
		closes:  b.closes[:b.length],
		volumes: b.volumes[:b.length],
	}
}

// Snapshot is a read-only view over a buffer's logical window.
type Snapshot struct {
	times   []int64
	opens   []float64
	highs   []float64
	lows    []float64
	closes  []float64
	volumes []float64
}

// Len returns the number of records in the view.
func (s Snapshot) Len() int { return len(s.times) }

// At returns the i-th candle of the view.
func (s Snapshot) At(i int) model.Candle {
	return model.Candle{
		Time:   s.times[i],
		Open:   s.opens[i],
		High:   s.highs[i],
		Low:    s.lows[i],
		Close:  s.closes[i],
		Volume: s.volumes[i],
	}
}

// Candles copies the view into a freshly allocated slice.
func (s Snapshot) Candles() []model.Candle {
	out := make([]model.Candle, s.Len())
	for i := range out {
		out[i] = s.At(i)
	}
	return out
}

// VolumeBars copies the volume column into histogram points.
func (s Snapshot) VolumeBars() []model.VolumeBar {
	out := make([]model.VolumeBar, s.Len())
	for i := range out {
		out[i] = model.VolumeBar{Time: s.times[i], Value: s.volumes[i]}
	}
	return out
}

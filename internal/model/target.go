package model

import "fmt"

// Interval is a supported bar width, in the venue's suffixed notation
// (lowercase m for minutes, uppercase H/D for hours/days).
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1H  Interval = "1H"
	Interval4H  Interval = "4H"
	Interval1D  Interval = "1D"
)

var supportedIntervals = map[Interval]bool{
	Interval1m:  true,
	Interval5m:  true,
	Interval15m: true,
	Interval1H:  true,
	Interval4H:  true,
	Interval1D:  true,
}

// Valid reports whether the interval is one of the supported bar widths.
func (iv Interval) Valid() bool {
	return supportedIntervals[iv]
}

// Channel returns the venue's subscription channel name for this interval.
func (iv Interval) Channel() string {
	return "candle" + string(iv)
}

// SubscriptionTarget is the (symbol, interval) pair a session streams.
// Immutable for the lifetime of one connection session: a new target requires
// tearing the session down and establishing a new one.
type SubscriptionTarget struct {
	Symbol   string
	Interval Interval
}

// Validate checks the target fields before a session is created.
func (t SubscriptionTarget) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("target: empty symbol")
	}
	if !t.Interval.Valid() {
		return fmt.Errorf("target: unsupported interval %q", t.Interval)
	}
	return nil
}

func (t SubscriptionTarget) String() string {
	return t.Symbol + "/" + string(t.Interval)
}

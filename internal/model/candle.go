package model

import "encoding/json"

// Candle is one OHLCV bar for a fixed interval.
// Time is the bucket open time in Unix seconds (the venue sends milliseconds;
// the codec divides down before a Candle is ever constructed).
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// VolumeBar is the volume histogram point paired with a candle.
type VolumeBar struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// VolumeBar returns the volume point for this candle.
func (c *Candle) VolumeBar() VolumeBar {
	return VolumeBar{Time: c.Time, Value: c.Volume}
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

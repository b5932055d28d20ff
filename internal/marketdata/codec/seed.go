package codec

import (
	"encoding/json"
	"fmt"
	"log"

	"market-feedv1/internal/model"
)

// Seed holds historical data used to populate a series buffer before
// streaming starts. Both slices are chronological.
type Seed struct {
	OHLC   []model.Candle
	Volume []model.VolumeBar
}

// restEnvelope is the venue's history-candles response:
// {"code":"0","msg":"","data":[[ts,o,h,l,c,vol,...],...]} with rows
// newest-first.
type restEnvelope struct {
	Code string            `json:"code"`
	Msg  string            `json:"msg"`
	Data []json.RawMessage `json:"data"`
}

// ParseSeed decodes a history-candles response body. The venue returns rows
// newest-first; the result is reversed to chronological order. A malformed
// row is dropped and logged, matching DecodeData.
func ParseSeed(raw []byte) (Seed, error) {
	var env restEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Seed{}, fmt.Errorf("seed: decode envelope: %w", err)
	}
	if env.Code != "0" {
		return Seed{}, fmt.Errorf("seed: venue error %s: %s", env.Code, env.Msg)
	}

	candles := make([]model.Candle, 0, len(env.Data))
	for i, row := range env.Data {
		c, err := decodeRow(row)
		if err != nil {
			log.Printf("[codec] dropping seed row %d: %v", i, err)
			continue
		}
		candles = append(candles, c)
	}

	// Newest-first to chronological.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	volumes := make([]model.VolumeBar, len(candles))
	for i := range candles {
		volumes[i] = candles[i].VolumeBar()
	}
	return Seed{OHLC: candles, Volume: volumes}, nil
}

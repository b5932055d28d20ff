// Package codec parses raw venue frames into control messages or candle
// batches. All functions are pure: no shared state, safe to call from the
// session loop or from a decode worker.
package codec

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strconv"

	"market-feedv1/internal/model"
)

// ControlFrame is a subscribe acknowledgment or subscribe error.
// The venue sets Event to "subscribe" or "error".
type ControlFrame struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
}

// IsAck reports whether the frame acknowledges a subscription.
func (f *ControlFrame) IsAck() bool { return f.Event == "subscribe" }

// IsError reports whether the frame is a subscribe error.
func (f *ControlFrame) IsError() bool { return f.Event == "error" }

// dataFrame is the envelope of a candle data frame:
// {"data":[[tsMillis, open, high, low, close, volume, ...], ...]}.
// Fields arrive as strings on the live venue but tests and older gateways
// use bare numbers, so rows are coerced element-wise.
type dataFrame struct {
	Event string            `json:"event"`
	Data  []json.RawMessage `json:"data"`
}

// DecodeControl recognizes subscribe-ack and subscribe-error shapes.
// Returns nil for data frames and anything else that is not a control frame.
func DecodeControl(raw []byte) *ControlFrame {
	var f ControlFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	if f.Event == "" {
		return nil
	}
	return &f
}

// DecodeData maps each raw bar tuple of a data frame to a Candle, converting
// the millisecond timestamp to whole seconds. A tuple with a malformed or
// non-finite numeric field is dropped and logged; the rest of the batch is
// still returned.
func DecodeData(raw []byte) []model.Candle {
	var f dataFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		log.Printf("[codec] unparseable data frame: %v", err)
		return nil
	}
	if f.Event != "" || len(f.Data) == 0 {
		return nil
	}

	out := make([]model.Candle, 0, len(f.Data))
	for i, row := range f.Data {
		c, err := decodeRow(row)
		if err != nil {
			log.Printf("[codec] dropping bar %d: %v", i, err)
			continue
		}
		out = append(out, c)
	}
	return out
}

// decodeRow converts one [ts, o, h, l, c, vol, ...] tuple.
func decodeRow(row json.RawMessage) (model.Candle, error) {
	var fields []any
	if err := json.Unmarshal(row, &fields); err != nil {
		return model.Candle{}, fmt.Errorf("bad tuple: %w", err)
	}
	if len(fields) < 6 {
		return model.Candle{}, fmt.Errorf("tuple has %d fields, want >=6", len(fields))
	}

	tsMillis, err := toInt64(fields[0])
	if err != nil {
		return model.Candle{}, fmt.Errorf("timestamp: %w", err)
	}

	vals := make([]float64, 5)
	names := [5]string{"open", "high", "low", "close", "volume"}
	for i := 0; i < 5; i++ {
		v, err := toFloat(fields[i+1])
		if err != nil {
			return model.Candle{}, fmt.Errorf("%s: %w", names[i], err)
		}
		vals[i] = v
	}

	return model.Candle{
		Time:   tsMillis / 1000,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func toFloat(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		var err error
		f, err = strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", t)
		}
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value")
	}
	return f, nil
}

package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"market-feedv1/internal/model"
)

func dialTestHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelopes reads one frame and splits the newline-batched envelopes.
func readEnvelopes(t *testing.T, conn *websocket.Conn) []map[string]json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out []map[string]json.RawMessage
	for _, part := range strings.Split(string(msg), "\n") {
		var env map[string]json.RawMessage
		if err := json.Unmarshal([]byte(part), &env); err != nil {
			t.Fatalf("bad envelope %q: %v", part, err)
		}
		out = append(out, env)
	}
	return out
}

// collectTypes keeps reading until all wanted envelope types were seen.
func collectTypes(t *testing.T, conn *websocket.Conn, want ...string) map[string]json.RawMessage {
	t.Helper()
	seen := make(map[string]json.RawMessage)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, env := range readEnvelopes(t, conn) {
			var typ string
			json.Unmarshal(env["type"], &typ)
			seen[typ] = env["type"]
			remaining := false
			for _, w := range want {
				if _, ok := seen[w]; !ok {
					remaining = true
				}
			}
			if !remaining {
				return seen
			}
		}
	}
	t.Fatalf("did not observe envelopes %v, saw %v", want, seen)
	return nil
}

func seedBars() ([]model.Candle, []model.VolumeBar) {
	candles := []model.Candle{
		{Time: 100, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Time: 160, Open: 1.5, High: 3, Low: 1, Close: 2, Volume: 20},
	}
	volumes := []model.VolumeBar{{Time: 100, Value: 10}, {Time: 160, Value: 20}}
	return candles, volumes
}

func TestConnectReceivesSnapshot(t *testing.T) {
	h := NewHub(model.SubscriptionTarget{Symbol: "BTC-USDT", Interval: model.Interval1m}, nil)
	h.Initialize(seedBars())

	conn := dialTestHub(t, h)

	var init initEnvelope
	found := false
	deadline := time.Now().Add(2 * time.Second)
	for !found && time.Now().Before(deadline) {
		for _, env := range readEnvelopes(t, conn) {
			var typ string
			json.Unmarshal(env["type"], &typ)
			if typ != "init" {
				continue
			}
			found = true
			json.Unmarshal(env["target"], &init.Target)
			json.Unmarshal(env["ohlc"], &init.OHLC)
			json.Unmarshal(env["volume"], &init.Volume)
		}
	}
	if !found {
		t.Fatal("no init envelope received")
	}
	if init.Target != "BTC-USDT/1m" {
		t.Errorf("snapshot target = %q", init.Target)
	}
	if len(init.OHLC) != 2 || len(init.Volume) != 2 {
		t.Fatalf("snapshot has %d bars / %d volumes, want 2/2", len(init.OHLC), len(init.Volume))
	}
	if init.OHLC[1].Close != 2 {
		t.Errorf("snapshot last close = %v, want 2", init.OHLC[1].Close)
	}
}

func TestUpdateBroadcastAndCache(t *testing.T) {
	h := NewHub(model.SubscriptionTarget{Symbol: "BTC-USDT", Interval: model.Interval1m}, nil)
	h.Initialize(seedBars())

	conn := dialTestHub(t, h)
	// Wait until registration completed before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// Same-bucket update: cache must replace the last bar, not append.
	h.PushUpdate(model.Candle{Time: 160, Open: 1.5, High: 3.5, Low: 1, Close: 3, Volume: 25},
		model.VolumeBar{Time: 160, Value: 25})
	// New bucket: cache appends.
	h.PushUpdate(model.Candle{Time: 220, Open: 3, High: 4, Low: 3, Close: 3.5, Volume: 5},
		model.VolumeBar{Time: 220, Value: 5})

	collectTypes(t, conn, "update")

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.candles) != 3 {
		t.Fatalf("cached series has %d bars, want 3", len(h.candles))
	}
	if h.candles[1].Close != 3 {
		t.Errorf("same-bucket update not applied in place, close = %v", h.candles[1].Close)
	}
	if h.candles[2].Time != 220 {
		t.Errorf("new bucket not appended, last time = %d", h.candles[2].Time)
	}
}

func TestClientTargetSwitchForwarded(t *testing.T) {
	targets := make(chan model.SubscriptionTarget, 1)
	h := NewHub(model.SubscriptionTarget{Symbol: "BTC-USDT", Interval: model.Interval1m}, targets)

	conn := dialTestHub(t, h)
	err := conn.WriteJSON(map[string]string{
		"type": "SET_TARGET", "symbol": "ETH-USDT", "interval": "5m",
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-targets:
		if got.Symbol != "ETH-USDT" || got.Interval != model.Interval5m {
			t.Fatalf("forwarded target = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("target switch never forwarded")
	}

	// Invalid targets are dropped at the hub.
	conn.WriteJSON(map[string]string{"type": "SET_TARGET", "symbol": "", "interval": "7m"})
	select {
	case got := <-targets:
		t.Fatalf("invalid target forwarded: %+v", got)
	case <-time.After(200 * time.Millisecond):
	}
}

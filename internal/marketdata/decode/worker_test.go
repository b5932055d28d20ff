package decode

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestWorker_PreservesPostOrder(t *testing.T) {
	w := NewWorker(32)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	const n = 20
	for i := 0; i < n; i++ {
		ts := (i + 1) * 60000
		raw := []byte(fmt.Sprintf(`{"data":[["%d","1","2","0.5","1.5","10"]]}`, ts))
		if !w.Post(Request{Kind: KindFrame, Raw: raw, Gen: uint64(i)}) {
			t.Fatalf("post %d rejected", i)
		}
	}

	for i := 0; i < n; i++ {
		select {
		case res := <-w.Results():
			if res.Gen != uint64(i) {
				t.Fatalf("result %d has gen %d, replies out of order", i, res.Gen)
			}
			if len(res.Candles) != 1 || res.Candles[0].Time != int64((i+1)*60) {
				t.Fatalf("result %d decoded wrong: %+v", i, res.Candles)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for result %d", i)
		}
	}
}

func TestWorker_PostNeverBlocksWhenFull(t *testing.T) {
	w := NewWorker(2) // no Run: queue fills up
	raw := []byte(`{"data":[["60000","1","2","0.5","1.5","10"]]}`)

	if !w.Post(Request{Raw: raw}) || !w.Post(Request{Raw: raw}) {
		t.Fatal("posts within queue depth should succeed")
	}

	done := make(chan bool, 1)
	go func() { done <- w.Post(Request{Raw: raw}) }()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("post to full queue reported success")
		}
	case <-time.After(time.Second):
		t.Fatal("post blocked on a full queue")
	}
}

func TestDo_FallbackMatchesWorker(t *testing.T) {
	raw := []byte(`{"data":[["120000","1","2","0.5","1.5","10"],["180000","1.5","3","1","2","20"]]}`)
	req := Request{Kind: KindFrame, Raw: raw, Gen: 7}

	sync := Do(req)

	w := NewWorker(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	w.Post(req)

	select {
	case async := <-w.Results():
		if async.Gen != sync.Gen || len(async.Candles) != len(sync.Candles) {
			t.Fatalf("worker result differs from synchronous: %+v vs %+v", async, sync)
		}
		for i := range sync.Candles {
			if async.Candles[i] != sync.Candles[i] {
				t.Errorf("candle %d differs: %+v vs %+v", i, async.Candles[i], sync.Candles[i])
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker result")
	}
}

func TestDo_Historical(t *testing.T) {
	raw := []byte(`{"code":"0","msg":"","data":[["120000","1","2","0.5","1.5","10"]]}`)
	res := Do(Request{Kind: KindHistorical, Raw: raw, Gen: 3})
	if res.Err != nil {
		t.Fatalf("historical decode: %v", res.Err)
	}
	if len(res.Seed.OHLC) != 1 || res.Seed.OHLC[0].Time != 120 {
		t.Fatalf("unexpected seed: %+v", res.Seed)
	}

	bad := Do(Request{Kind: KindHistorical, Raw: []byte(`{"code":"51001","msg":"boom"}`)})
	if bad.Err == nil {
		t.Fatal("expected venue error to propagate")
	}
}

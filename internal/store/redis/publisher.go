// Package redis publishes the live candle feed into Redis so downstream
// consumers (dashboards, strategy processes) can read the latest bar or
// subscribe to updates without touching the venue connection.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"market-feedv1/internal/model"
)

const (
	// Stream trimming: a few chart windows worth of bars.
	streamMaxLen     = 2000
	defaultLatestTTL = 30 * time.Minute
	publishTimeout   = 2 * time.Second
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	// Key namespace inputs.
	Symbol   string
	Interval string
}

// Publisher mirrors the candle feed into Redis: SET of the latest bar,
// XADD onto a trimmed stream, and PUBLISH for live subscribers. Write
// failures are absorbed by a circuit breaker so a Redis outage never stalls
// ingestion.
type Publisher struct {
	client  *goredis.Client
	breaker *Breaker

	latestKey string
	streamKey string
	pubsubCh  string

	// ObserveWrite, when set, receives the latency of each successful
	// pipeline execution.
	ObserveWrite func(time.Duration)
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// NewPublisher connects to Redis and verifies the connection.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{
		client:    client,
		breaker:   NewBreaker(5, 10*time.Second),
		latestKey: "candle:" + cfg.Interval + ":latest:" + cfg.Symbol,
		streamKey: "candle:" + cfg.Interval + ":" + cfg.Symbol,
		pubsubCh:  "pub:candle:" + cfg.Interval + ":" + cfg.Symbol,
	}, nil
}

// Initialize replaces the stored series with the seeded history: the stream
// is reset to the seed bars and the latest key points at the newest one.
func (p *Publisher) Initialize(candles []model.Candle, volumes []model.VolumeBar) {
	err := p.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		pipe := p.client.Pipeline()
		pipe.Del(ctx, p.streamKey)
		for i := range candles {
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: p.streamKey,
				MaxLen: streamMaxLen,
				Approx: true,
				Values: map[string]interface{}{"data": string(candles[i].JSON())},
			})
		}
		if n := len(candles); n > 0 {
			pipe.Set(ctx, p.latestKey, string(candles[n-1].JSON()), defaultLatestTTL)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		log.Printf("[redis] series init failed (%d bars): %v", len(candles), err)
	}
}

// PushUpdate mirrors one bar update: SET latest + XADD + PUBLISH in a single
// pipeline.
func (p *Publisher) PushUpdate(candle model.Candle, volume model.VolumeBar) {
	start := time.Now()
	err := p.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		jsonData := string(candle.JSON())
		pipe := p.client.Pipeline()
		pipe.Set(ctx, p.latestKey, jsonData, defaultLatestTTL)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: p.streamKey,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		pipe.Publish(ctx, p.pubsubCh, jsonData)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		if err != ErrBreakerOpen {
			log.Printf("[redis] publish error for %s: %v", p.pubsubCh, err)
		}
		return
	}
	if p.ObserveWrite != nil {
		p.ObserveWrite(time.Since(start))
	}
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

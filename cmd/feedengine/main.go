package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-feedv1/config"
	"market-feedv1/internal/gateway"
	"market-feedv1/internal/logger"
	"market-feedv1/internal/marketdata/decode"
	"market-feedv1/internal/marketdata/history"
	"market-feedv1/internal/marketdata/stream"
	"market-feedv1/internal/metrics"
	"market-feedv1/internal/model"
	"market-feedv1/internal/sink"
	redisstore "market-feedv1/internal/store/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[feedengine] starting...")

	// ---- Load config from env ----
	cfg := config.Load()
	logger.Init("feedengine", logger.ParseLevel(cfg.LogLevel))

	target := cfg.Target()
	if err := target.Validate(); err != nil {
		log.Fatalf("[feedengine] invalid target %s/%s: %v", cfg.Symbol, cfg.Interval, err)
	}
	endpoints := cfg.Endpoints()
	log.Printf("[feedengine] target %s, %d endpoints in rotation", target, len(endpoints))

	// ---- Setup metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetTarget(target.String())
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Optional Redis publisher ----
	var redisPub *redisstore.Publisher
	if cfg.RedisEnabled {
		var err error
		redisPub, err = redisstore.NewPublisher(redisstore.PublisherConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Symbol:   cfg.Symbol,
			Interval: cfg.Interval,
		})
		if err != nil {
			log.Printf("[feedengine] WARNING: redis init failed: %v (continuing without redis)", err)
		} else {
			redisPub.ObserveWrite = func(d time.Duration) {
				prom.RedisWriteDur.Observe(d.Seconds())
			}
			health.SetRedisEnabled(true)
			health.StartLivenessChecker(ctx, redisPub.Client(), 10*time.Second)
			defer redisPub.Close()
			log.Println("[feedengine] redis publisher ready")
		}
	}

	// ---- Gateway hub for frontend clients ----
	targets := make(chan model.SubscriptionTarget, 1)
	hub := gateway.NewHub(target, targets)
	hub.OnClientCount = func(n int) { prom.GatewayClients.Set(float64(n)) }
	hub.OnDrop = func(client string) { prom.GatewayDrops.WithLabelValues(client).Inc() }

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	gwSrv := &http.Server{Addr: cfg.GatewayAddr, Handler: mux}
	go func() {
		log.Printf("[feedengine] gateway listening on %s", cfg.GatewayAddr)
		if err := gwSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[feedengine] gateway error: %v", err)
		}
	}()

	// ---- Compose the sink chain: throttle → tee(gateway, redis) ----
	var fan sink.Sink = hub
	if redisPub != nil {
		fan = sink.NewTee(hub, redisPub)
	}
	throttled := sink.NewThrottle(fan, cfg.ThrottleWindow())
	throttled.OnFlush = func() { prom.FlushesTotal.Inc() }
	throttled.OnCoalesce = func() { prom.CoalescedUpdates.Inc() }
	defer throttled.Close()

	// ---- Decode worker (off the session loop) ----
	worker := decode.NewWorker(cfg.WorkerDepth)
	worker.OnDecode = func(d time.Duration) {
		prom.FramesTotal.Inc()
		prom.DecodeDur.Observe(d.Seconds())
	}
	go worker.Run(ctx)

	// ---- Session manager ----
	mgr, err := stream.NewManager(stream.Config{
		Endpoints:   endpoints,
		MaxAttempts: cfg.MaxReconnectAttempts,
	}, target, throttled)
	if err != nil {
		log.Fatalf("[feedengine] manager init failed: %v", err)
	}
	mgr.Seeder = history.NewClient(cfg.RESTBaseURL).WithLimit(cfg.SeedLimit)
	mgr.Worker = worker
	mgr.OnState = func(st stream.State) {
		prom.ConnState.Set(float64(st))
		health.SetStreamState(st.String())
	}
	mgr.OnStatus = func(msg string) {
		health.SetStreamStatus(msg)
		hub.PushStatus(health.GetStreamState(), msg)
	}
	mgr.OnRotate = func(endpointIndex int) {
		prom.Rotations.Inc()
		prom.Reconnects.Inc()
	}
	mgr.OnCandles = func(n int) {
		prom.CandlesTotal.Add(float64(n))
		health.SetLastCandleTime(time.Now())
	}
	mgr.OnDropped = func() { prom.DroppedBars.Inc() }
	mgr.OnBuffer = func(length int) { prom.BufferLen.Set(float64(length)) }
	mgr.OnSeed = func(ok bool) {
		if ok {
			prom.SeedLoads.Inc()
		} else {
			prom.SeedFailures.Inc()
		}
	}
	mgr.OnTarget = func(t model.SubscriptionTarget) {
		hub.SetTarget(t)
		health.SetTarget(t.String())
		log.Printf("[feedengine] switched target to %s", t)
	}

	mgrDone := make(chan error, 1)
	go func() { mgrDone <- mgr.Run(ctx, targets) }()

	log.Println("[feedengine] pipeline ready")
	log.Printf("[feedengine] [venue WS] -> [decode worker] -> [series buffer] -> [throttle %v] -> [gateway%s]",
		cfg.ThrottleWindow(), redisLabel(redisPub))

	// ---- Wait for shutdown signal or terminal manager error ----
	select {
	case <-sigCh:
		log.Println("[feedengine] shutdown signal received, cleaning up...")
	case err := <-mgrDone:
		if err != nil {
			log.Printf("[feedengine] session manager stopped: %v", err)
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	gwSrv.Shutdown(shutdownCtx)

	log.Println("[feedengine] shutdown complete.")
}

func redisLabel(p *redisstore.Publisher) string {
	if p == nil {
		return ""
	}
	return " + redis"
}

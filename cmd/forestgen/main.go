package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ryan-organically/roanoke-engine/internal/config"
	"github.com/ryan-organically/roanoke-engine/internal/diagnostics"
	"github.com/ryan-organically/roanoke-engine/internal/forest"
	"github.com/ryan-organically/roanoke-engine/internal/species"
	"github.com/ryan-organically/roanoke-engine/internal/stream"
)

func main() {
	var (
		cfgPath     string
		catalogPath string
		radius      int
		wsAddr      string
		focusX      float64
		focusZ      float64
		walk        int
	)
	flag.StringVar(&cfgPath, "config", "", "path to configuration file (.json, .yaml)")
	flag.StringVar(&catalogPath, "catalog", "", "path to species catalog overrides (.yaml)")
	flag.IntVar(&radius, "radius", -1, "override stream load radius")
	flag.StringVar(&wsAddr, "ws", "", "listen address for the diagnostics websocket")
	flag.Float64Var(&focusX, "x", 0, "focus x in world units")
	flag.Float64Var(&focusZ, "z", 0, "focus z in world units")
	flag.IntVar(&walk, "walk", 0, "move the focus this many chunks east, one chunk per settle")
	flag.Parse()

	if _, err := writeConfigFromEnv(cfgPath); err != nil {
		log.Fatalf("sync config from environment: %v", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if catalogPath == "" {
		catalogPath = cfg.Generation.Catalog
	}
	if radius >= 0 {
		cfg.Stream.LoadRadius = radius
		if cfg.Stream.UnloadRadius <= radius {
			cfg.Stream.UnloadRadius = radius + 1
		}
	}
	if wsAddr != "" {
		cfg.Diagnostics.WebSocketAddr = wsAddr
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: diagnostics.ParseLevel(cfg.Diagnostics.LogLevel),
	}))
	diagnostics.SetLogger(logger)

	ctx, cancel := signalContext()
	defer cancel()

	if err := run(ctx, cfg, catalogPath, focusX, focusZ, walk); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("forestgen exited with error: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, catalogPath string, x, z float64, walk int) error {
	logger := diagnostics.Logger()

	var catalog *species.Catalog
	if catalogPath != "" {
		var err error
		catalog, err = species.LoadCatalog(catalogPath)
		if catalog == nil {
			return err
		}
		if err != nil {
			logger.Warn("catalog entries rejected", slog.Any("err", err))
		}
	}

	recorder := &diagnostics.Recorder{}
	sinks := []diagnostics.Sink{recorder}
	if addr := cfg.Diagnostics.WebSocketAddr; addr != "" {
		ws := diagnostics.NewWebSocketSink(cfg.Diagnostics.EventBuffer)
		defer ws.Close()
		sinks = append(sinks, ws)

		mux := http.NewServeMux()
		mux.Handle("/events", ws)
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("diagnostics server stopped", slog.Any("err", err))
			}
		}()
		defer srv.Close()
		logger.Info("diagnostics stream listening", slog.String("addr", addr))
	}
	sink := diagnostics.Multi(sinks...)

	gen, err := forest.New(cfg, catalog, nil, sink)
	if err != nil {
		return err
	}

	workers := cfg.Generation.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	dispatcher := stream.NewDispatcher(gen, workers, cfg.Stream.QueueDepth, sink)
	workCtx, stop := context.WithCancel(ctx)
	defer func() {
		stop()
		dispatcher.Wait()
	}()
	dispatcher.Start(workCtx)

	session := stream.NewSession(cfg.Stream, gen.ChunkSize(), dispatcher, nil)
	ticker := time.NewTicker(cfg.Stream.FrameInterval.Duration())
	defer ticker.Stop()

	started := time.Now()
	for step := 0; step <= walk; step++ {
		session.Focus(x+float64(step)*gen.ChunkSize(), z)
		if err := settle(ctx, session, ticker.C); err != nil {
			return err
		}
		instances, totals := session.Totals()
		loaded, _ := session.Loader().Stats()
		logger.Info("focus settled",
			slog.String("chunk", session.Loader().Focus().String()),
			slog.Int("chunks", loaded),
			slog.Int("instances", instances),
			slog.Int64("vertices", totals.Vertices))
	}

	printSummary(session, recorder, time.Since(started))
	return nil
}

// settle runs the frame loop until every requested chunk has arrived.
func settle(ctx context.Context, session *stream.Session, frames <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-frames:
			stats := session.Frame()
			if stats.Accepted > 0 || stats.Failed > 0 {
				diagnostics.Logger().Debug("frame",
					slog.Int("accepted", stats.Accepted),
					slog.Int("discarded", stats.Discarded),
					slog.Int("failed", stats.Failed),
					slog.Int("pending", stats.Pending))
			}
			if _, loading := session.Loader().Stats(); loading == 0 && stats.Pending == 0 {
				return nil
			}
		}
	}
}

func printSummary(session *stream.Session, recorder *diagnostics.Recorder, elapsed time.Duration) {
	for _, coord := range session.Coords() {
		c, _ := session.Chunk(coord)
		fmt.Printf("chunk %-8s instances=%-4d skipped=%-3d vertices=%-8d indices=%-8d truncated=%t\n",
			coord, len(c.Instances), c.Skipped, c.Totals.Vertices, c.Totals.Indices, c.Truncated)
	}
	instances, totals := session.Totals()
	fmt.Printf("total: %d chunks, %d instances, %d vertices, %d indices, %d bytes in %s\n",
		len(session.Coords()), instances, totals.Vertices, totals.Indices, totals.Bytes, elapsed.Round(time.Millisecond))
	for _, kind := range []diagnostics.Kind{
		diagnostics.KindGrammarClamped,
		diagnostics.KindMalformedGrammar,
		diagnostics.KindInstanceTruncated,
		diagnostics.KindChunkTruncated,
		diagnostics.KindChunkFailed,
	} {
		if n := recorder.Count(kind); n > 0 {
			fmt.Printf("diagnostics %s: %d\n", kind, n)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			return
		}

		// Ensure the process terminates if shutdown stalls.
		time.AfterFunc(10*time.Second, func() {
			log.Printf("forced shutdown after timeout")
			os.Exit(1)
		})
	}()

	return ctx, cancel
}

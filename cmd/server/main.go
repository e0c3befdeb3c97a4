package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"arena-server/internal/api"
	"arena-server/internal/config"
	"arena-server/internal/game"
	"arena-server/internal/logging"
	"arena-server/internal/render"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "arena-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env from the parent directory, then the current one
	envErr := godotenv.Load("../.env")
	if envErr != nil {
		envErr = godotenv.Load(".env")
	}

	// Load centralized configuration (SSOT - Single Source of Truth)
	appConfig := config.Load()
	serverCfg := appConfig.Server
	worldCfg := appConfig.World
	limits := appConfig.Limits

	log, closeLog, err := logging.New(logging.Options{
		File:  appConfig.Log.File,
		Level: appConfig.Log.Level,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	if envErr != nil {
		log.Info("💡 No .env file found, using environment variables only")
	}

	log.Info("🎮 ================================")
	log.Info("🎮  ARENA - GO SERVER")
	log.Info("🎮 ================================")
	log.Infof("🎮 Config: %d FPS, %.0fx%.0f world, hit radius %.0f", worldCfg.FPS, worldCfg.Width, worldCfg.Height, worldCfg.HitRadius)
	log.Infof("🛡️ Resource limits: %d connections (%d per IP), %d projectiles, %.0f msg/s",
		limits.MaxConnections, limits.MaxConnectionsPerIP, limits.MaxProjectiles, limits.MessagesPerSecond)

	hub := api.NewHub(api.HubConfig{
		MaxConnections:      limits.MaxConnections,
		MaxConnectionsPerIP: limits.MaxConnectionsPerIP,
		MessagesPerSecond:   limits.MessagesPerSecond,
		MessageBurst:        limits.MessageBurst,
		AllowedOrigins:      serverCfg.AllowedOrigins,
		TrustedProxies:      serverCfg.TrustedProxies,
		Logger:              log.Named("ws"),
	})

	world := game.NewWorld(game.Config{
		FPS:            worldCfg.FPS,
		Bounds:         game.Bounds{Min: worldCfg.MinCoord, MaxX: worldCfg.Width, MaxY: worldCfg.Height},
		HitRadius:      worldCfg.HitRadius,
		MaxProjectiles: limits.MaxProjectiles,
	}, hub, log.Named("world"))

	// Start event journal
	var journal *game.EventLog
	if path := appConfig.Log.EventFile; path != "" {
		journal = game.NewEventLog()
		journal.Start(logging.NewRotatingWriter(path))
		world.SetEventLog(journal)
		log.Infof("📝 Event log: %s", path)
	}

	world.OnTick = func(elapsed time.Duration, players, projectiles int) {
		api.RecordTick(elapsed, players, projectiles)
		if journal != nil {
			api.UpdateEventLogStats(journal.GetDroppedCount())
		}
	}
	world.OnHit = func(victimID, ownerID string) {
		api.RecordHit()
	}

	// Start debug server
	debugSrv := api.StartDebugServer(api.ObservabilityFromConfig(appConfig.Debug, log.Named("debug")))

	rateLimitCfg := api.DefaultRateLimitConfig
	rateLimitCfg.TrustedProxies = serverCfg.TrustedProxies
	if len(serverCfg.TrustedProxies) > 0 {
		log.Infof("🛡️ Trusting forwarding headers from %v", serverCfg.TrustedProxies)
	}

	server := api.NewServer(world, hub, api.RouterConfig{
		Minimap: render.NewMinimap(render.MinimapConfig{
			Size:      render.DefaultMinimapConfig().Size,
			HitRadius: worldCfg.HitRadius,
		}),
		RateLimitConfig: &rateLimitCfg,
		CORSOrigins:     serverCfg.AllowedOrigins,
		StaticDir:       serverCfg.StaticDir,
		Logger:          log.Named("http"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(serverCfg.Port)
		log.Infof("🌐 Game page: http://localhost%s/", addr)
		serveErr <- server.Start(addr)
	}()

	log.Info("✅ Server ready! Press Ctrl+C to stop.")

	select {
	case <-ctx.Done():
		log.Info("🛑 Shutting down...")
	case err = <-serveErr:
		if err != nil {
			log.Errorw("server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if stopErr := server.Stop(shutdownCtx); stopErr != nil {
		log.Warnw("shutdown", "error", stopErr)
	}
	if debugSrv != nil {
		debugSrv.Shutdown(shutdownCtx)
	}
	if journal != nil {
		journal.Stop()
		log.Infof("📝 Event log closed (%v)", journal.GetStats())
	}

	log.Info("👋 Goodbye!")
	return err
}

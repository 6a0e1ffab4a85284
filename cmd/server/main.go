package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/kiliankoe/buzzer/internal/config"
	"github.com/kiliankoe/buzzer/internal/eventsink"
	"github.com/kiliankoe/buzzer/internal/game"
	"github.com/kiliankoe/buzzer/internal/httpapi"
	"github.com/kiliankoe/buzzer/internal/ws"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var version = "dev" // Set at build time via -ldflags

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`Buzzer - live multi-player buzzer rooms

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 8080 or PORT env var)

Environment Variables:
  CONFIG_PATH       Optional YAML config file (env vars override it)
  PORT              Port to listen on (default: 8080)
  LOG_LEVEL         debug, info, warn or error (default: info)
  LOG_FORMAT        console or json (default: console)
  EVICT_GRACE       How long an empty room is kept, e.g. 30s; 0 removes it at once
  MAX_ROOMS         Live room limit (default: 10000)
  HOST_USER         Host API username for basic auth
  HOST_PASS         Host API password for basic auth
  HOST_KEY          Shared key required by start_game / reset_round socket events
  ALLOWED_ORIGINS   Comma separated CORS origins (default: *)
  NATS_URL          Mirror room events to NATS (optional)
  NATS_SUBJECT      Subject prefix for mirrored events (default: buzzer.rooms)
  EXPORT_FILE       Append round results to this file (optional)

Examples:
  %s                  Start server with default settings
  %s --port 3000      Start server on port 3000
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("Buzzer %s\n", version)
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *portFlag != "" {
		cfg.Port = *portFlag
	}
	setupLogging(cfg.Log)

	sinks, closeSinks := setupSinks(cfg)
	defer closeSinks()

	rooms := game.NewRegistry(game.Options{
		EvictGrace: cfg.Rooms.EvictGrace,
		MaxRooms:   cfg.Rooms.MaxRooms,
		Sinks:      sinks,
	})

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	httpapi.Register(r, rooms, cfg)
	io := ws.New(rooms, cfg).Mount(r)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("port", cfg.Port).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := io.Close(); err != nil {
		log.Error().Err(err).Msg("socket.io close")
	}
	rooms.Stop()
}

func setupLogging(cfg config.Log) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Format == "console" {
		cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = log.Output(cw)
		return
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func setupSinks(cfg config.Config) ([]game.Sink, func()) {
	var sinks []game.Sink
	var closers []func() error

	if cfg.NATS.URL != "" {
		n, err := eventsink.ConnectNATS(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			log.Error().Err(err).Msg("NATS event mirror disabled")
		} else {
			sinks = append(sinks, n)
			closers = append(closers, n.Close)
		}
	}
	if cfg.Export.File != "" {
		f, err := eventsink.NewFile(cfg.Export.File)
		if err != nil {
			log.Error().Err(err).Msg("results export disabled")
		} else {
			sinks = append(sinks, f)
			log.Info().Str("file", cfg.Export.File).Msg("exporting round results")
		}
	}
	return sinks, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Error().Err(err).Msg("closing event sink")
			}
		}
	}
}

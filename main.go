package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	ginGzip "github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"
	"golang.org/x/time/rate"

	"ludoteko/internal/remote"
	"ludoteko/internal/session"
	sig "ludoteko/internal/signal"
)

// App holds the wired service: per-user session bundles, the remote
// record client, the signal hub and the rate limiters.
type App struct {
	Config   Config
	Logger   zerolog.Logger
	Sessions *session.Manager
	Hub      *sig.Hub
	Record   *remote.RedisRecord

	LimiterMap   map[string]*rate.Limiter
	LimiterMutex sync.Mutex
	Upgrader     websocket.Upgrader
	StartTime    time.Time
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := newLogger(cfg)
	logger.Info().Str("env", cfg.Env).Msg("starting ludoteko")

	// The record store is optional: when Redis is absent or down the
	// games stay fully playable, progress just does not survive a reload.
	var record remote.Record
	var redisRecord *remote.RedisRecord
	if cfg.RedisAddr != "" {
		redisRecord, err = remote.NewRedisRecord(remote.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("remote record unavailable, running memory-only")
		} else {
			record = redisRecord
		}
	} else {
		logger.Warn().Msg("REDIS_ADDR not set, running memory-only")
	}

	hub := sig.NewHub(logger)
	mailer := session.LogMailer{Logger: logger}
	sessions := session.NewManager(record, hub, mailer, cfg.FlagWindow, cfg.AdvanceDelay, logger)

	app := &App{
		Config:     cfg,
		Logger:     logger,
		Sessions:   sessions,
		Hub:        hub,
		Record:     redisRecord,
		LimiterMap: make(map[string]*rate.Limiter),
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		StartTime: time.Now(),
	}

	stopCleanup := make(chan struct{})
	go app.cleanupLoop(stopCleanup)

	app.startServer(app.newRouter())

	close(stopCleanup)
	app.Hub.Close()
	app.Sessions.Close()
	if app.Record != nil {
		if err := app.Record.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing remote record")
		}
	}
	logger.Info().Msg("shutdown complete")
}

// newLogger builds the process logger; development mode gets the console
// writer.
func newLogger(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	if !cfg.production() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}

// newRouter wires the HTTP surface.
func (app *App) newRouter() *gin.Engine {
	if app.Config.production() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(ginGzip.Gzip(ginGzip.DefaultCompression))

	// Session state is always fresh; nothing served here is cacheable.
	router.Use(cachecontrol.New(cachecontrol.Config{
		NoStore:        true,
		NoCache:        true,
		MustRevalidate: true,
	}))

	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		app.Logger.Warn().Err(err).Msg("failed to set trusted proxies")
	}

	limited := app.rateLimitMiddleware()
	router.POST("/guess", limited, app.guessLetterHandler)
	router.POST("/match", limited, app.matchCardsHandler)
	router.POST("/piece", limited, app.pieceFittedHandler)
	router.POST("/mistake", limited, app.mistakeHandler)
	router.POST("/fail", limited, app.failRoundHandler)
	router.POST("/progress", limited, app.progressHandler)
	router.POST("/reset-round", limited, app.resetRoundHandler)
	router.POST("/round-config", limited, app.roundConfigHandler)
	router.POST("/results", limited, app.resultsHandler)
	router.GET("/state/:game", app.stateHandler)
	router.GET("/ws", app.signalsHandler)
	router.GET("/healthz", app.healthzHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

// cleanupLoop periodically evicts idle session bundles.
func (app *App) cleanupLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(app.Config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			app.Sessions.Cleanup(app.Config.SessionTimeout)
		case <-stop:
			return
		}
	}
}

// startServer runs the HTTP server until a shutdown signal arrives.
func (app *App) startServer(router *gin.Engine) {
	srv := &http.Server{
		Addr:              ":" + app.Config.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint
		app.Logger.Info().Msg("shutdown signal received, shutting down gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			app.Logger.Warn().Err(err).Msg("HTTP server shutdown")
		}
		close(idleConnsClosed)
	}()

	app.Logger.Info().Str("port", app.Config.Port).Msg("server starting")
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		app.Logger.Fatal().Err(err).Msg("server failed to start")
	}
	<-idleConnsClosed
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tracketl/api/config"
	"tracketl/api/database"
	"tracketl/api/handlers"
	"tracketl/api/jobs"
	"tracketl/api/middleware"
	"tracketl/api/models"
	"tracketl/api/sessions"
	"tracketl/api/store"
	"tracketl/api/utils"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// Operator accounts
	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	dbClient, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer dbClient.Close()

	// Tracking events and sessions
	chClient, err := database.NewClickHouseDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to clickhouse")
	}
	defer chClient.Close()

	ctx, cancel = context.WithTimeout(context.Background(), config.ClickHousePingTimeout)
	err = chClient.EnsureSchema(ctx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create clickhouse schema")
	}

	ctx, cancel = context.WithTimeout(context.Background(), config.DBPingTimeout)
	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	userStore := store.NewUserStore(dbClient.DB)
	eventStore := store.NewEventStore(chClient)
	sessionStore := store.NewSessionStore(chClient)
	sessionCache := store.NewSessionCache(redisClient, cfg.SessionCacheTTL)

	builder := sessions.NewBuilder(cfg.SessionPeriod, cfg.SessionSplitOnDateChange)
	processor := jobs.NewProcessor(
		eventStore, sessionStore, sessionCache, builder,
		cfg.ProcessWorkers, cfg.ProcessQueueDepth, cfg.ProcessScheduleInterval,
	)
	processor.Start()
	defer processor.Stop()

	tokens := utils.NewTokenIssuer(cfg.JWTSecretKey, config.JWTTTL)

	authHandlers := handlers.NewAuthHandlers(userStore, tokens)
	trackHandlers := handlers.NewTrackHandlers(eventStore)
	sessionHandlers := handlers.NewSessionHandlers(processor)
	statsHandlers := handlers.NewStatsHandlers(sessionStore)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORSMiddleware(cfg.FEOrigin))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UnixMilli()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.POST("/signup", authHandlers.Signup)
		api.POST("/login", authHandlers.Login)
		api.POST("/logout", authHandlers.Logout)

		protected := api.Group("/")
		protected.Use(middleware.AuthRequired(tokens, cfg.AuthDefault))
		{
			protected.POST("/track", trackHandlers.TrackEvent)

			protected.GET("/profile", func(c *gin.Context) {
				c.JSON(http.StatusOK, models.Profile{
					UserID:    c.GetInt(middleware.ContextUserID),
					Email:     c.GetString(middleware.ContextUserEmail),
					IPAddress: c.ClientIP(),
				})
			})

			sessionsGroup := protected.Group("/sessions")
			{
				sessionsGroup.POST("/build", sessionHandlers.BuildSessions)
				sessionsGroup.POST("/process", sessionHandlers.ProcessDate)
				sessionsGroup.GET("/:userID", sessionHandlers.GetUserSessions)
			}

			statsGroup := protected.Group("/stats")
			{
				statsGroup.GET("/landings", statsHandlers.GetTopLandings)
				statsGroup.GET("/conversions", statsHandlers.GetConversionStats)
				statsGroup.GET("/sessions", statsHandlers.GetSessionCounts)
			}
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: config.ServerReadTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	if err := serve(srv, quit); err != nil {
		log.Error().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

// serve runs srv until a signal arrives on quit or the listener fails, then
// shuts it down. It always returns, so deferred cleanup in main runs.
func serve(srv *http.Server, quit <-chan os.Signal) error {
	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-quit:
		log.Info().Msg("shutting down server")
	case runErr = <-serverErr:
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	return runErr
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

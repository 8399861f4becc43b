package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"burnlink/internal/auth"
	"burnlink/internal/clicklog"
	"burnlink/internal/db"
	"burnlink/internal/gate"
	"burnlink/internal/handler"
	"burnlink/internal/logger"
	"burnlink/internal/repo"
	"burnlink/internal/resolver"
	"burnlink/internal/shortcode"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

type Config struct {
	Host          string
	Port          string
	DBPath        string
	AdminCreds    string
	JWTSecret     string
	SessionSecret string
	GeoIPDBPath   string
	LogLevel      string
	Debug         bool
}

func newConfigFromEnv() (Config, error) {
	cfg := Config{
		Host:          cmp.Or(os.Getenv("HOST"), "localhost"),
		Port:          cmp.Or(os.Getenv("PORT"), "8080"),
		DBPath:        cmp.Or(os.Getenv("DB_PATH"), "burnlink.db"),
		AdminCreds:    os.Getenv("ADMIN_CREDENTIALS"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		GeoIPDBPath:   os.Getenv("GEOIP_DB"),
		LogLevel:      cmp.Or(os.Getenv("LOG_LEVEL"), "info"),
		Debug:         os.Getenv("DEBUG") == "1",
	}

	if cfg.AdminCreds == "" {
		cfg.AdminCreds = "admin:admin"
		log.Warn().Msg("using default admin credentials - set ADMIN_CREDENTIALS for production")
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = cfg.AdminCreds
		log.Warn().Msg("using ADMIN_CREDENTIALS as JWT_SECRET - set JWT_SECRET for production")
	}

	if cfg.SessionSecret == "" {
		cfg.SessionSecret = cfg.JWTSecret
		log.Warn().Msg("using JWT_SECRET as SESSION_SECRET - set SESSION_SECRET for production")
	}

	return cfg, nil
}

func main() {
	cfg, err := newConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse configuration from environment")
	}

	if err := logger.Setup(cfg.LogLevel, cfg.Debug); err != nil {
		log.Fatal().Err(err).Str("level", cfg.LogLevel).Msg("failed to configure logging")
	}

	ctx := context.Background()
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}
}

func run(ctx context.Context, cfg Config) error {
	log.Info().
		Str("version", version).
		Str("build_time", buildTime).
		Msg("starting application")

	credentials, err := auth.NewCredentials(cfg.AdminCreds)
	if err != nil {
		return fmt.Errorf("failed to parse admin credentials: %w", err)
	}

	dbInstance, err := db.Init(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbInstance.Close()

	linksRepo := repo.NewLinksRepo(dbInstance)
	clicksRepo := repo.NewClicksRepo(dbInstance)

	var geo clicklog.GeoResolver
	if cfg.GeoIPDBPath != "" {
		maxmind, err := clicklog.NewMaxMindResolver(cfg.GeoIPDBPath)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.GeoIPDBPath).Msg("geoip database unavailable, clicks will not be geolocated")
		} else {
			defer maxmind.Close()
			geo = maxmind
		}
	}

	clickLogger := clicklog.New(clicksRepo, geo)
	defer clickLogger.Close()

	res := resolver.New(linksRepo, clickLogger, nil)
	gateSessions := gate.NewSessions(cfg.SessionSecret)
	generator := shortcode.NewGenerator(linksRepo)

	e := echo.New()
	defer e.Close()

	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = customErrorHandler

	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	authenticator := auth.NewAuthenticator(credentials, cfg.JWTSecret)
	authHandler := handler.NewAuthHandler(authenticator)

	e.POST("/login", authHandler.Login)
	e.POST("/logout", authHandler.Logout)

	api := e.Group("/api")
	api.Use(auth.NewAuthMiddleware(authenticator))

	linkHandler := handler.NewLinkHandler(linksRepo, clicksRepo, generator)
	api.POST("/links", linkHandler.CreateLink)
	api.GET("/links", linkHandler.ListLinks)
	api.GET("/links/:id", linkHandler.GetLink)
	api.PATCH("/links/:id", linkHandler.UpdateLink)
	api.DELETE("/links/:id", linkHandler.DeleteLink)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// Public redirect surface, addressed at the path root (must be last)
	redirectHandler := handler.NewRedirectHandler(res, gateSessions)
	e.HEAD("/:shortCode", redirectHandler.Head)
	e.GET("/:shortCode", redirectHandler.Redirect)
	e.POST("/:shortCode/password", redirectHandler.SubmitPassword)

	log.Info().Str("address", cfg.Host+":"+cfg.Port).Msg("server starting")

	// Run server and handle graceful shutdown
	runServer(ctx, e, cfg.Port)

	return nil
}

func runServer(ctx context.Context, e *echo.Echo, port string) {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- e.Start(":" + port)
	}()

	// Wait for context cancellation (Ctrl+C or SIGTERM)
	<-ctx.Done()

	log.Info().Msg("shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during graceful shutdown")
	}

	if err := <-serverErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("server stopped")
}

func customErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	message := "internal server error"

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		}
	}

	log.Error().
		Int("code", code).
		Str("method", c.Request().Method).
		Str("path", c.Request().URL.Path).
		Err(err).
		Msg("http error")

	if c.Response().Committed {
		return
	}

	c.JSON(code, map[string]any{
		"error": message,
	})
}

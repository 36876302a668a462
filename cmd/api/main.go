package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/background"
	"github.com/BradenHooton/gatekeeper/internal/config"
	"github.com/BradenHooton/gatekeeper/internal/handlers"
	middlewareCustom "github.com/BradenHooton/gatekeeper/internal/middleware"
	"github.com/BradenHooton/gatekeeper/internal/routes"
	"github.com/BradenHooton/gatekeeper/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const alertTimeout = 5 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store_backend", cfg.StoreBackend))

	// Storage backend
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := openStores(startupCtx, cfg, logger)
	if err != nil {
		startupCancel()
		logger.Error("failed to open defense store", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.close()

	// Escalation alerts
	var notifier services.AlertNotifier = services.NoopAlertNotifier{}
	if cfg.Alert.Enabled() {
		sesNotifier, err := services.NewSESAlertNotifier(startupCtx, cfg.Alert.SESRegion, cfg.Alert.FromAddress, cfg.Alert.ToAddress, logger)
		if err != nil {
			startupCancel()
			logger.Error("failed to initialize alert notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}
	startupCancel()

	// Defense engine
	events := services.NewSecurityEventLog(st.events, logger)
	blocks := services.NewBlockList(st.blocks, events, notifier, services.BlockListConfig{
		BlockDuration: cfg.Defense.BlockDuration,
		AlertTimeout:  alertTimeout,
	}, logger)
	ledger := services.NewAttemptLedger(st.attempts, blocks, events, services.AttemptLedgerConfig{
		MaxAttempts:     cfg.Defense.MaxAttempts,
		LockoutDuration: cfg.Defense.LockoutDuration,
	}, logger)
	csrfManager := services.NewCSRFTokenManager(st.csrf, events, logger)
	gate := services.NewAccessGate(ledger, blocks, csrfManager, events, services.AccessGateConfig{
		FailClosed:    cfg.Defense.FailClosed,
		LogPageAccess: cfg.Defense.LogPageAccess,
	}, logger)

	// Admin sessions and credentials
	sessionManager := auth.NewSessionManager(cfg.Session.Secret, cfg.Session.Timeout)
	sessionService := services.NewSessionService(sessionManager, st.revocations, csrfManager, events, logger)
	adminService := services.NewAdminService(events, blocks, ledger, cfg.Defense.RecentAttemptWindow, logger)

	totp := auth.NewTOTPVerifier(cfg.Admin.TOTPSecret, cfg.Admin.TOTPIssuer, cfg.Admin.Email)
	credentials := auth.NewAdminCredentials(cfg.Admin.Email, cfg.Admin.PasswordHash, totp)
	if !credentials.Configured() {
		logger.Warn("ADMIN_EMAIL or ADMIN_PASSWORD_HASH not set; every login will fail")
	}

	cookies := auth.CookieConfig{
		Secure:   cfg.Session.CookieSecure,
		SameSite: cfg.Session.CookieSameSite,
	}
	sessionMiddleware := auth.NewSessionMiddleware(sessionManager, sessionService, sessionService, cookies,
		auth.RevocationConfig{FailClosed: cfg.Defense.FailClosed})

	// Handlers
	h := routes.Handlers{
		Auth: handlers.NewAuthHandler(gate, credentials, sessionService,
			auth.NewTimingDelayMs(cfg.Defense.TimingDelayBaseMs, cfg.Defense.TimingDelayRandomMs),
			handlers.AuthHandlerConfig{Cookies: cookies, SessionTimeout: cfg.Session.Timeout, Env: cfg.Server.Env},
			logger),
		Admin:  handlers.NewAdminHandler(adminService, blocks, gate, totp, logger),
		Health: handlers.NewHealthHandler(st.health, cfg.StoreBackend, logger),
	}

	// Setup router. chi's RealIP is not installed: identity resolution
	// reads the forwarding headers itself.
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(middlewareCustom.Admission(gate, logger))

	routes.RegisterRoutes(router, h, sessionMiddleware, gate,
		middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.LoginRequestsPerMinute}, logger)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(background.CleanupStores{
		Blocks:      st.blocks,
		Revocations: st.revocations,
		CSRFTokens:  st.csrf,
		SecurityLog: st.events,
	}, background.CleanupConfig{
		Interval:       cfg.Cleanup.Interval,
		SessionTimeout: cfg.Session.Timeout,
		LogRetention:   cfg.Cleanup.SecurityLogRetention,
	}, logger)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// newLogger builds the JSON logger at the configured level, defaulting to info
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"solana-ledger-gateway/internal/config"
	"solana-ledger-gateway/internal/handlers"
	"solana-ledger-gateway/internal/middleware"
	"solana-ledger-gateway/internal/services"
	"solana-ledger-gateway/pkg/logger"
	"solana-ledger-gateway/pkg/metrics"
	"solana-ledger-gateway/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Server represents the main application server
type Server struct {
	config        *config.Config
	solanaClient  *services.SolanaClient
	ledgerService *services.LedgerService
	metrics       *metrics.MetricsCollector
	rateLimiter   *ratelimiter.RateLimiter
	router        *handlers.Router

	handler      http.Handler
	adminHandler http.Handler

	httpServer    *http.Server
	adminServer   *http.Server
	listener      net.Listener
	adminListener net.Listener

	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := &logger.Config{
		Level:       cfg.Logging.Level,
		Environment: cfg.Logging.Environment,
		OutputPaths: cfg.Logging.OutputPaths,
	}

	if err := logger.Initialize(loggerConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log := logger.GetLogger()

	log.Info("Starting Solana ledger gateway",
		zap.String("address", cfg.Server.Addr()),
		zap.String("admin_address", cfg.Server.AdminAddr),
		zap.String("rpc_endpoint", cfg.RPC.Endpoint),
		zap.Duration("rpc_timeout", cfg.RPC.Timeout),
		zap.String("rpc_commitment", cfg.RPC.Commitment),
		zap.Int("rate_limit_rpm", cfg.RateLimit.RequestsPerMinute),
		zap.String("log_level", cfg.Logging.Level),
		zap.String("environment", cfg.Logging.Environment),
	)

	server, err := NewServer(cfg)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	if err := server.Start(); err != nil {
		log.Fatal("Server failed", zap.Error(err))
	}
}

// NewServer creates a new server instance with all dependencies. No sockets are opened.
func NewServer(cfg *config.Config) (*Server, error) {
	log := logger.GetLogger()

	log.Info("Initializing server components")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Debug("Initializing Solana RPC client")
	solanaClient := services.NewSolanaClient(&cfg.RPC)

	collector := metrics.NewMetricsCollector()
	ledgerService := services.NewLedgerService(solanaClient, collector)

	healthChecker := services.NewRPCHealthChecker(solanaClient, cfg.RPC.Endpoint)
	healthHandler := handlers.NewHealthHandler(healthChecker, collector)

	s := &Server{
		config:        cfg,
		solanaClient:  solanaClient,
		ledgerService: ledgerService,
		metrics:       collector,
		router:        handlers.NewRouter(ledgerService, healthHandler),
		stopCleanup:   make(chan struct{}),
	}

	if cfg.RateLimit.Enabled() {
		log.Debug("Initializing rate limiter")
		s.rateLimiter = ratelimiter.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
	}

	engine := gin.New()
	// Client IPs key the rate limiter, so forwarding headers count only from configured proxies
	if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid server.trusted_proxies: %w", err)
	}
	s.setupMiddleware(engine)
	s.router.SetupRoutes(engine)
	s.handler = s.corsPolicy().Handler(engine)

	if cfg.Server.AdminAddr != "" {
		admin := gin.New()
		admin.Use(logger.RecoveryMiddleware())
		s.router.SetupAdminRoutes(admin, collector)
		s.adminHandler = admin
	}

	log.Info("Server components initialized successfully")
	return s, nil
}

// Handler returns the public handler: CORS policy around the gin engine
func (s *Server) Handler() http.Handler {
	return s.handler
}

// AdminHandler returns the admin handler, or nil when no admin address is configured
func (s *Server) AdminHandler() http.Handler {
	return s.adminHandler
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware(engine *gin.Engine) {
	log := logger.GetLogger()

	log.Debug("Setting up middleware stack")

	// Recovery middleware with structured logging (should be first)
	engine.Use(logger.RecoveryMiddleware())
	engine.Use(logger.LoggingMiddleware())

	engine.Use(middleware.MetricsMiddleware(s.metrics))
	engine.Use(middleware.PerformanceMiddleware())

	if s.rateLimiter != nil {
		engine.Use(s.rateLimiter.Middleware())
	}

	log.Debug("Middleware stack configured")
}

// corsPolicy answers preflights before gin routing, so OPTIONS never needs a route of its own
func (s *Server) corsPolicy() *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: s.config.CORS.AllowedOrigins,
		AllowedMethods: s.config.CORS.AllowedMethods,
		AllowedHeaders: s.config.CORS.AllowedHeaders,
	})
}

// Listen binds the public socket and, when configured, the admin socket
func (s *Server) Listen() error {
	log := logger.GetLogger()

	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.config.Server.Addr(), err)
	}
	s.listener = ln

	if s.adminHandler != nil {
		adminLn, err := net.Listen("tcp", s.config.Server.AdminAddr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("failed to bind admin address %s: %w", s.config.Server.AdminAddr, err)
		}
		s.adminListener = adminLn
	}

	log.Info("Listening", zap.String("address", ln.Addr().String()))
	return nil
}

// Addr returns the bound public address, or nil before Listen
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// AdminAddr returns the bound admin address, or nil when the admin listener is off
func (s *Server) AdminAddr() net.Addr {
	if s.adminListener == nil {
		return nil
	}
	return s.adminListener.Addr()
}

// Start binds, serves, and blocks until SIGINT or SIGTERM
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.checkUpstream()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return s.Serve(ctx)
}

// checkUpstream logs whether the ledger node answers. It never blocks startup.
func (s *Server) checkUpstream() {
	log := logger.GetLogger()

	log.Debug("Testing RPC connection health")
	if err := s.solanaClient.IsHealthy(context.Background()); err != nil {
		log.Warn("Solana RPC health check failed", zap.Error(err))
	} else {
		log.Info("Solana RPC connection healthy")
	}
}

// Serve runs the HTTP servers on the bound listeners until ctx is done, then shuts down gracefully
func (s *Server) Serve(ctx context.Context) error {
	log := logger.GetLogger()

	if s.listener == nil {
		return errors.New("server is not listening")
	}

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.config.Server.ReadTimeout,
		WriteTimeout:      s.config.Server.WriteTimeout,
		IdleTimeout:       s.config.Server.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	log.Info("HTTP server configured",
		zap.String("address", s.listener.Addr().String()),
		zap.Duration("read_timeout", s.config.Server.ReadTimeout),
		zap.Duration("write_timeout", s.config.Server.WriteTimeout),
		zap.Duration("idle_timeout", s.config.Server.IdleTimeout),
	)

	s.startCleanupRoutines()

	errCh := make(chan error, 2)
	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("public server: %w", err)
		}
	}()

	if s.adminListener != nil {
		s.adminServer = &http.Server{
			Handler:           s.adminHandler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info("Starting admin server", zap.String("address", s.adminListener.Addr().String()))
		go func() {
			if err := s.adminServer.Serve(s.adminListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("admin server: %w", err)
			}
		}()
	}

	return s.waitForShutdown(ctx, errCh)
}

// startCleanupRoutines starts background cleanup tasks
func (s *Server) startCleanupRoutines() {
	if s.rateLimiter == nil {
		return
	}

	interval := s.config.RateLimit.IdleTTL
	if interval <= 0 {
		interval = time.Minute
	}

	logger.GetLogger().Debug("Starting rate limiter cleanup routine", zap.Duration("interval", interval))
	go s.rateLimiter.Run(interval, s.stopCleanup)
}

// waitForShutdown waits for ctx or a server failure and performs graceful shutdown
func (s *Server) waitForShutdown(ctx context.Context, errCh <-chan error) error {
	log := logger.GetLogger()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	case serveErr = <-errCh:
		log.Error("HTTP server stopped unexpectedly", zap.Error(serveErr))
	}

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Info("Shutting down HTTP server", zap.Duration("timeout", timeout))

	var shutdownErr error
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		shutdownErr = err
	}
	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Admin server forced to shutdown", zap.Error(err))
			shutdownErr = errors.Join(shutdownErr, err)
		}
	}

	s.cleanup()

	if serveErr != nil {
		return serveErr
	}
	if shutdownErr == nil {
		log.Info("Server gracefully stopped")
	}
	return shutdownErr
}

// cleanup performs cleanup of all services
func (s *Server) cleanup() {
	s.cleanupOnce.Do(func() {
		log := logger.GetLogger()

		log.Info("Cleaning up services...")

		close(s.stopCleanup)

		if s.solanaClient != nil {
			log.Debug("Closing Solana RPC client")
			if err := s.solanaClient.Close(); err != nil {
				log.Warn("Error closing Solana RPC client", zap.Error(err))
			}
		}

		log.Info("Cleanup completed")

		// Sync errors on stdout/stderr are expected and not worth reporting
		_ = log.Sync()
	})
}

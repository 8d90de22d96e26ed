package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	apihttp "github.com/GriffinCanCode/AgentOS/terminals/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/project"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/settings"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/worktree"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/grpc/remote"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/tracing"
)

const shutdownTimeout = 5 * time.Second

// HostProjectID is the project id served when host mode has none configured.
const HostProjectID = 1

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	project  *project.Project
	handlers *apihttp.Handlers
	host     *remote.Host
	client   *remote.Client
	tracer   *tracing.Tracer
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	logger.Info("Initializing terminal service",
		zap.String("port", cfg.Server.Port),
		zap.Bool("guest", cfg.Remote.IsGuest()),
		zap.String("remote_listen", cfg.Remote.Listen),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("termd", logger.Logger)

	worktrees, store, err := loadWorkspace(ctx, cfg.Terminal, logger.Component("settings"))
	if err != nil {
		tracer.Close()
		return nil, err
	}

	opts := project.Options{
		ID:          cfg.Remote.ProjectID,
		Worktrees:   worktrees,
		Settings:    store,
		CallTimeout: cfg.Remote.CallTimeout,
		Cols:        cfg.Terminal.DefaultCols,
		Rows:        cfg.Terminal.DefaultRows,
		Logger:      logger.Component("project"),
		Metrics:     metrics,
	}

	var client *remote.Client
	if cfg.Remote.IsGuest() {
		client, err = remote.Dial(cfg.Remote.Address, remote.ClientOptions{
			Compression: cfg.Remote.Compression,
			Logger:      logger.Component("remote"),
			DialOptions: []grpc.DialOption{
				grpc.WithChainUnaryInterceptor(tracing.GRPCClientInterceptor(tracer)),
				grpc.WithChainStreamInterceptor(tracing.GRPCStreamClientInterceptor(tracer)),
			},
		})
		if err != nil {
			tracer.Close()
			return nil, fmt.Errorf("failed to dial remote host: %w", err)
		}
		opts.Remote = client
		logger.Info("Joined remote project",
			zap.String("addr", cfg.Remote.Address),
			logging.ProjectID(cfg.Remote.ProjectID),
		)
	} else if cfg.Remote.Listen != "" && opts.ID == 0 {
		opts.ID = HostProjectID
	}

	p := project.New(opts)

	var host *remote.Host
	if cfg.Remote.Listen != "" {
		host = remote.NewHost(logger.Component("host"), metrics)
		if err := host.AddProject(p); err != nil {
			p.Close()
			tracer.Close()
			return nil, fmt.Errorf("failed to host project: %w", err)
		}
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers := apihttp.NewHandlers(p, logger.Logger)
	router := newRouter(cfg, handlers, metrics, tracer, logger)

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		project:  p,
		handlers: handlers,
		host:     host,
		client:   client,
		tracer:   tracer,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

func newRouter(cfg *config.Config, handlers *apihttp.Handlers, metrics *monitoring.Metrics, tracer *tracing.Tracer, logger *logging.Logger) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORS.Origins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	wsHandler := ws.NewHandler(handlers, metrics, logger.Logger, middleware.OriginChecker(cfg.CORS.Origins))

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	terminals := router.Group("/terminals")
	terminals.POST("", handlers.CreateTerminal)
	terminals.GET("", handlers.ListTerminals)
	terminals.GET("/:id", handlers.GetTerminal)
	terminals.POST("/:id/input", handlers.Input)
	terminals.POST("/:id/resize", handlers.Resize)
	terminals.GET("/:id/history", handlers.History)
	terminals.DELETE("/:id", handlers.DeleteTerminal)
	terminals.GET("/:id/attach", wsHandler.Attach)

	return router
}

// loadWorkspace registers the configured worktrees and their settings files.
func loadWorkspace(ctx context.Context, cfg config.TerminalConfig, log *zap.Logger) (*worktree.Set, *settings.Store, error) {
	worktrees := worktree.NewSet()
	store := settings.NewStore()

	if cfg.SettingsFile != "" {
		if err := store.LoadGlobalFile(cfg.SettingsFile); err != nil {
			return nil, nil, fmt.Errorf("failed to load %s: %w", cfg.SettingsFile, err)
		}
		log.Info("Loaded global settings", zap.String("file", cfg.SettingsFile))
	}

	for _, root := range cfg.Worktrees {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid worktree %q: %w", root, err)
		}
		wt, err := worktrees.Add(abs)
		if err != nil {
			return nil, nil, err
		}
		if err := store.LoadWorktree(ctx, wt.ID, wt.Root); err != nil {
			// Unreadable trees keep the global settings.
			log.Warn("Failed to load worktree settings", zap.String("root", wt.Root), zap.Error(err))
		}
	}
	return worktrees, store, nil
}

// Router exposes the HTTP handler.
func (s *Server) Router() *gin.Engine { return s.router }

// Project is the project served.
func (s *Server) Project() *project.Project { return s.project }

// Run serves HTTP, and the remote host when enabled, until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if s.host != nil {
		g.Go(func() error {
			return remote.Serve(ctx, s.config.Remote.Listen, s.host, s.logger.Component("host"),
				grpc.ChainUnaryInterceptor(tracing.GRPCUnaryInterceptor(s.tracer)),
				grpc.ChainStreamInterceptor(tracing.GRPCStreamInterceptor(s.tracer)),
			)
		})
	}
	return g.Wait()
}

// Close gracefully shuts down the server
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	s.handlers.Close()
	if s.host != nil {
		s.host.Close()
	}
	s.project.Close()

	var closeErr error
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Error("Failed to close remote client", zap.Error(err))
			closeErr = fmt.Errorf("failed to close remote client: %w", err)
		} else {
			s.logger.Info("Closed remote connection")
		}
	}

	s.tracer.Close()
	_ = s.logger.Sync()
	return closeErr
}

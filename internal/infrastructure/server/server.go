package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/tabwall/internal/api/http"
	"github.com/GriffinCanCode/tabwall/internal/api/middleware"
	"github.com/GriffinCanCode/tabwall/internal/api/ws"
	"github.com/GriffinCanCode/tabwall/internal/infrastructure/config"
	"github.com/GriffinCanCode/tabwall/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tabwall/internal/logging"
)

// Server wraps the HTTP server and its push hub.
type Server struct {
	router  *gin.Engine
	http    *http.Server
	hub     *ws.Hub
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// Deps are the collaborators the routes drive.
type Deps struct {
	Host    apihttp.Host
	Hub     *ws.Hub
	Metrics *monitoring.Metrics
	Logger  *logging.Logger
	Version string
}

// NewServer builds the router: recovery, request ids, metrics, CORS and
// the optional rate limit, then the command routes, /ws and /metrics.
// Responses are gzip-compressed when the client accepts it.
func NewServer(cfg *config.Config, deps Deps) *Server {
	logger := logging.OrNop(deps.Logger).Named("server")

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Logger))
	router.Use(monitoring.Middleware(deps.Metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins...)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	apihttp.NewHandlers(deps.Host, deps.Version, deps.Logger).Register(router)
	if deps.Hub != nil {
		router.GET("/ws", deps.Hub.HandleConnection)
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	return &Server{
		router: router,
		http: &http.Server{
			Addr:              addr,
			Handler:           compress(router),
			ReadHeaderTimeout: 10 * time.Second,
		},
		hub:     deps.Hub,
		logger:  logger,
		metrics: deps.Metrics,
	}
}

// compress gzips responses except websocket upgrades, which must reach
// the hijacking handler untouched.
func compress(next http.Handler) http.Handler {
	gz := gzhttp.GzipHandler(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.http.Addr }

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve serves on an existing listener until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", l.Addr().String()))
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown disconnects websocket clients and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.hub != nil {
		s.hub.Close()
	}
	return s.http.Shutdown(ctx)
}

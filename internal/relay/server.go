package relay

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/pkarr/internal/config"
)

// Server is the relay HTTP server.
//
// Security note: publishing is open by design; only the stats endpoint can
// be protected with an API key.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// NewServer wires the relay endpoints into a gin engine and prepares the
// underlying HTTP server. It does not start listening.
func NewServer(cfg *config.Config, store *Store, logger *slog.Logger) *Server {
	if cfg == nil {
		panic("relay.NewServer: cfg is nil")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(slogRequestLogger(logger))

	h := NewHandler(store, logger)
	registerRoutes(engine, h, cfg)

	addr := net.JoinHostPort(cfg.Relay.Host, strconv.Itoa(cfg.Relay.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{cfg: cfg, logger: logger, engine: engine, httpServer: httpServer}
}

func registerRoutes(r *gin.Engine, h *Handler, cfg *config.Config) {
	r.GET("/healthz", h.Health)

	stats := r.Group("/stats")
	if cfg.Relay.APIKey != "" {
		stats.Use(requireAPIKey(cfg.Relay.APIKey))
	}
	stats.GET("", h.Stats)

	// The relay wire protocol: one resource per public key.
	r.GET("/:key", h.GetPacket)
	r.PUT("/:key", h.PutPacket)
}

func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

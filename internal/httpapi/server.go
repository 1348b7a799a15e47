package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"transcription-studio/internal/bootstrap"
)

// Config holds HTTP-only settings; everything else comes from the services' settings.
type Config struct {
	Port           string
	MaxUploadBytes int64
	AllowedOrigins []string
}

// Server exposes the studio services over HTTP and a websocket event stream.
type Server struct {
	engine *gin.Engine
	cfg    Config
	http   *http.Server
}

// NewServer builds the gin engine with middleware and routes.
func NewServer(cfg Config, services *bootstrap.Services) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(services.Logger))
	engine.Use(MaxBodySize(cfg.MaxUploadBytes))
	engine.Use(CORS(cfg.AllowedOrigins))

	api := NewAPI(services)
	registerRoutes(engine, api)

	return &Server{engine: engine, cfg: cfg}
}

// Handler returns the routed engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%s", s.cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

package ops

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

// NewRouter builds the ops router: probes and the metrics endpoint behind
// the tracing/logging/recovery middleware chain.
//
// Endpoints:
//   - GET /healthz  liveness; always 200 while the process runs
//   - GET /readyz   readiness; 503 until the database answers a ping
//   - GET /metrics  Prometheus scrape endpoint
func NewRouter(db *gorm.DB, serviceName, version string) *gin.Engine {
	r := gin.New()
	r.Use(otelgin.Middleware(serviceName))
	r.Use(RequestID())
	r.Use(Logger())
	r.Use(Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version})
	})

	r.GET("/readyz", func(c *gin.Context) {
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
				defer cancel()
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// Server wraps the ops HTTP listener with start/shutdown plumbing.
type Server struct {
	srv *http.Server
	log zerolog.Logger
}

// NewServer constructs an ops Server listening on :port. An empty port is
// allowed and yields a Server whose Start is a no-op, so callers can pass
// configuration through unconditionally.
func NewServer(port string, db *gorm.DB, serviceName, version string, log zerolog.Logger) *Server {
	s := &Server{log: log.With().Str("component", "ops").Logger()}
	if port == "" {
		return s
	}
	s.srv = &http.Server{
		Addr:              ":" + port,
		Handler:           NewRouter(db, serviceName, version),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine. Listener errors other
// than graceful closure are logged, not returned: the ops surface failing
// must not take the bot down.
func (s *Server) Start() {
	if s.srv == nil {
		s.log.Info().Msg("ops listener disabled")
		return
	}
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("ops listener starting")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("ops listener failed")
		}
	}()
}

// Shutdown drains the listener within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

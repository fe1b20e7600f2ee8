// Package server exposes the hooks over HTTP for the hookd daemon.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/magicctl/internal/auth"
	"github.com/danmuck/magicctl/internal/hooks"
	"github.com/danmuck/magicctl/internal/observability"
	"github.com/danmuck/magicctl/internal/wiki"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

// Publisher sends a recent change to the IRC feeds.
type Publisher interface {
	Publish(ctx context.Context, rc wiki.RecentChange, actionComment string) (int, error)
}

// Config is the HTTP side of hookd.
type Config struct {
	Name           string
	Token          string
	CORSOrigins    []string
	TrustedProxies []string
}

// Server routes hook requests to a hooks.Handler.
type Server struct {
	name      string
	hooks     *hooks.Handler
	publisher Publisher
	validator auth.Validator
	router    *gin.Engine
	started   time.Time
}

// New builds the engine and registers every route. A nil publisher skips the
// IRC feed on recent changes.
func New(h *hooks.Handler, publisher Publisher, cfg Config) *Server {
	name := cfg.Name
	if name == "" {
		name = "hookd"
	}
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(name))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}))
	}
	proxies := cfg.TrustedProxies
	if len(proxies) == 0 {
		proxies = []string{"127.0.0.1", "::1"}
	}
	_ = r.SetTrustedProxies(proxies)

	s := &Server{
		name:      name,
		hooks:     h,
		publisher: publisher,
		validator: auth.StaticToken{Token: cfg.Token},
		router:    r,
		started:   time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Run serves addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("node", s.name).Msg("hookd listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info().Str("node", s.name).Msg("hookd shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// requireToken rejects requests without a valid bearer token.
func requireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.FromHeader(c.GetHeader("Authorization"))
		if err == nil {
			err = v.Validate(token)
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

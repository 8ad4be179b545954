// Package admin serves the daemon's HTTP side channel: health, readiness,
// Prometheus metrics, and read-only views of the registered services and the
// backend state.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"syscontrol/observability"
	"syscontrol/store"
)

// Target is the RPC server the admin surface reports on.
type Target interface {
	Services() []string
	Addr() net.Addr // nil until the server is accepting
}

type Admin struct {
	node     string
	target   Target
	backend  *store.Backend // optional
	router   *gin.Engine
	appeared time.Time
	server   *http.Server
}

func New(node string, target Target, backend *store.Backend) *Admin {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(node))

	a := &Admin{
		node:     node,
		target:   target,
		backend:  backend,
		router:   r,
		appeared: time.Now(),
	}
	a.registerRoutes()
	return a
}

func (a *Admin) Handler() http.Handler {
	return a.router
}

func (a *Admin) registerRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(a.appeared).String(),
			"node":   a.node,
		})
	})

	a.router.GET("/ready", func(c *gin.Context) {
		addr := a.target.Addr()
		if addr == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "node": a.node})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"addr":   addr.String(),
			"uptime": time.Since(a.appeared).String(),
			"node":   a.node,
		})
	})

	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router.GET("/services", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"services": a.target.Services()})
	})

	a.router.GET("/properties", func(c *gin.Context) {
		if a.backend == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no backend"})
			return
		}
		props := a.backend.Properties()
		keys, err := props.Keys()
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		out := make(map[string]string, len(keys))
		for _, k := range keys {
			if v, ok := props.Get(k); ok {
				out[k] = v
			}
		}
		c.JSON(http.StatusOK, gin.H{"properties": out})
	})

	a.router.GET("/properties/:key", func(c *gin.Context) {
		if a.backend == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no backend"})
			return
		}
		key := c.Param("key")
		v, ok := a.backend.Properties().Get(key)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "property not found", "key": key})
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": key, "value": v})
	})

	a.router.GET("/bootenv", func(c *gin.Context) {
		if a.backend == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no backend"})
			return
		}
		env := a.backend.BootEnv()
		out := make(map[string]string)
		for _, k := range env.Keys() {
			if v, ok := env.Get(k); ok {
				out[k] = v
			}
		}
		c.JSON(http.StatusOK, gin.H{"bootenv": out})
	})
}

// ListenAndServe serves the admin surface on addr until Shutdown.
func (a *Admin) ListenAndServe(addr string) error {
	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("addr", addr).Msg("admin: listening")
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *Admin) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

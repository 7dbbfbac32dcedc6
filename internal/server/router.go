// Package server exposes a small HTTP surface over one supervised instance
// for the foreground `tinypg run` session: status, stop, and Prometheus
// metrics.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinypg/tinypg/internal/lifecycle"
	"github.com/tinypg/tinypg/internal/metrics"
)

// Router provides embeddable HTTP handlers for one lifecycle guard.
// Endpoints:
//
//	GET  {basePath}/status   current server snapshot
//	POST {basePath}/stop     release the instance (stop-or-kill + cleanup)
//	GET  {basePath}/metrics  Prometheus metrics
type Router struct {
	guard    *lifecycle.Guard
	basePath string
	// onStop lets the run command shut its own loop down after a remote stop.
	onStop func()
}

// NewRouter constructs a Router with a configurable basePath, e.g. "/v1".
func NewRouter(guard *lifecycle.Guard, basePath string, onStop func()) *Router {
	return &Router{guard: guard, basePath: sanitizeBase(basePath), onStop: onStop}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server or mux.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/stop", r.handleStop)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer runs a standalone HTTP server on addr using this router. The
// caller shuts it down via the returned *http.Server.
func NewServer(addr, basePath string, guard *lifecycle.Guard, onStop func()) *http.Server {
	r := NewRouter(guard, basePath, onStop)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

type errorResp struct {
	Error string `json:"error"`
}

func (r *Router) handleStatus(c *gin.Context) {
	st, err := r.guard.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (r *Router) handleStop(c *gin.Context) {
	// Release on a fresh context: the HTTP request may be gone before
	// teardown finishes.
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := r.guard.Release(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": r.guard.State().String()})
	if r.onStop != nil {
		r.onStop()
	}
}

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimSuffix(bp, "/")
}

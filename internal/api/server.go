// Package api serves the version ledger over a read-only HTTP API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fsv-go/internal/fsv"
)

// Reader is the part of fsv.Service the API reads from.
type Reader interface {
	Runs(ctx context.Context, limit int) ([]*fsv.Run, error)
	PathHistory(ctx context.Context, path string) ([]*fsv.VersionRecord, error)
	TreeAsOf(ctx context.Context, t time.Time) ([]*fsv.VersionRecord, error)
}

const (
	defaultRunLimit = 20
	maxRunLimit     = 1000
)

// Server routes API requests to a Reader.
type Server struct {
	reader Reader
	clock  fsv.Clock
	logger fsv.Logger
	engine *gin.Engine
}

// NewServer builds the router. Relative as_of values resolve against clock.
func NewServer(reader Reader, clock fsv.Clock, logger fsv.Logger) *Server {
	s := &Server{reader: reader, clock: clock, logger: logger}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())

	g := engine.Group("/api")
	g.GET("/healthz", s.healthz)
	g.GET("/runs", s.runs)
	g.GET("/versions", s.versions)
	g.GET("/tree", s.tree)

	s.engine = engine
	return s
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("api listening", "addr", addr)

	select {
	case err := <-errc:
		return fmt.Errorf("serving on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down api: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("api request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) healthz(c *gin.Context) {
	success(c, gin.H{"status": "ok"}, "ok")
}

func (s *Server) runs(c *gin.Context) {
	limit := defaultRunLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			fail(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := s.reader.Runs(c.Request.Context(), limit)
	if err != nil {
		s.internalError(c, err)
		return
	}
	success(c, fsv.RunViews(runs), "")
}

func (s *Server) versions(c *gin.Context) {
	path := c.Query("path")
	if fsv.CanonicalPath(path) == "" {
		fail(c, http.StatusBadRequest, "path must be absolute")
		return
	}

	records, err := s.reader.PathHistory(c.Request.Context(), path)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if len(records) == 0 {
		fail(c, http.StatusNotFound, fmt.Sprintf("no history for %s", path))
		return
	}
	success(c, fsv.VersionViews(records), "")
}

func (s *Server) tree(c *gin.Context) {
	at, err := fsv.ParseInstant(c.Query("as_of"), s.clock.Now())
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.reader.TreeAsOf(c.Request.Context(), at)
	if err != nil {
		s.internalError(c, err)
		return
	}
	success(c, gin.H{"as_of": at, "entries": fsv.VersionViews(records)}, "")
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.logger.Error("api request failed", "path", c.Request.URL.Path, "error", err)
	fail(c, http.StatusInternalServerError, "internal error")
}

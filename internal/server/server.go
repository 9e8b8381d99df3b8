// Package server publishes the feed over HTTP and keeps it fresh on a cron
// schedule.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/oklog/run"

	"github.com/barcelona-calendar/barca-ics/internal/logger"
	"github.com/barcelona-calendar/barca-ics/internal/pipeline"
	"github.com/barcelona-calendar/barca-ics/internal/schedule"
)

// FeedService is the part of pipeline.Service the handlers need.
type FeedService interface {
	Feed(ctx context.Context) ([]byte, pipeline.Source, error)
	LastRefresh(ctx context.Context) time.Time
}

type (
	// Server serves the feed, a health probe and the metrics snapshot.
	Server struct {
		*http.Server

		service         FeedService
		scheduler       *schedule.Scheduler
		feedName        string
		shutdownTimeout time.Duration
		started         time.Time
		now             func() time.Time
	}

	// Config configures a Server.
	Config struct {
		Listen   string
		FeedPath string
		// FeedName is the download filename offered to clients.
		FeedName        string
		ShutdownTimeout time.Duration
	}
)

// New creates a Server. scheduler may be nil, in which case the feed is
// only refreshed on request.
func New(cfg Config, service FeedService, scheduler *schedule.Scheduler) *Server {
	if cfg.FeedPath == "" {
		cfg.FeedPath = "/barcelona.ics"
	}
	if cfg.FeedName == "" {
		cfg.FeedName = "barcelona.ics"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		service:         service,
		scheduler:       scheduler,
		feedName:        cfg.FeedName,
		shutdownTimeout: cfg.ShutdownTimeout,
		started:         time.Now(),
		now:             time.Now,
	}

	r := errRouter{Router: mux.NewRouter()}
	r.HandleFuncE(cfg.FeedPath, s.handleFeed).Methods(http.MethodGet, http.MethodHead)
	r.HandleFuncE("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFuncE("/metrics", s.handleMetrics).Methods(http.MethodGet)

	var h http.Handler = r
	h = handlers.CompressHandler(h)
	h = handlers.CustomLoggingHandler(io.Discard, h, accessLog)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{}),
		handlers.PrintRecoveryStack(false),
	)(h)

	s.Server = &http.Server{
		Addr:              cfg.Listen,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		// A cold request runs the whole pipeline, fetch included.
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Run serves HTTP and runs the scheduler until ctx is cancelled, SIGINT or
// SIGTERM arrives, or one of them fails. A clean shutdown returns nil.
func (s *Server) Run(ctx context.Context) error {
	var g run.Group

	{
		execute, interrupt := run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM)
		g.Add(func() error {
			err := execute()
			logger.Info("Shutting down", logger.Fields{"cause": err.Error()})
			return nil
		}, interrupt)
	}

	{
		g.Add(func() error {
			logger.Info("HTTP server listening", logger.Fields{"addr": s.Addr})
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "serving http")
			}
			return nil
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP shutdown failed", nil, err)
			}
		})
	}

	if s.scheduler != nil {
		schedCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return s.scheduler.Run(schedCtx)
		}, func(error) {
			cancel()
		})
	}

	return g.Run()
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) error {
	feed, source, err := s.service.Feed(r.Context())
	if err != nil {
		return err
	}

	modified := s.service.LastRefresh(r.Context())
	if modified.IsZero() || source != pipeline.SourceCache {
		modified = s.now()
	}

	h := w.Header()
	h.Set("Content-Type", "text/calendar; charset=utf-8")
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.feedName))
	h.Set("Cache-Control", "public, max-age=3600")
	h.Set("Last-Modified", modified.UTC().Format(http.TimeFormat))
	h.Set("X-Feed-Source", string(source))
	w.WriteHeader(http.StatusOK)

	logger.IncrCounter("server.feed." + string(source))
	if r.Method == http.MethodHead {
		return nil
	}
	_, err = w.Write(feed)
	if err != nil {
		logger.Warn("Writing feed response failed", logger.Fields{"error": err.Error()})
	}
	return nil
}

type healthResp struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	LastRefresh string `json:"last_refresh,omitempty"`
	NextRefresh string `json:"next_refresh,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) error {
	now := s.now()
	resp := healthResp{
		Status: "ok",
		Uptime: now.Sub(s.started).Round(time.Second).String(),
	}
	if last := s.service.LastRefresh(r.Context()); !last.IsZero() {
		resp.LastRefresh = last.UTC().Format(time.RFC3339)
	}
	if s.scheduler != nil {
		resp.NextRefresh = s.scheduler.Next(now).Format(time.RFC3339)
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, http.StatusOK, logger.GetMetricsSnapshot())
}

func writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "encoding json response")
	}
	return nil
}

// handlerFuncE is an http.HandlerFunc that returns an error. Errors become
// a 500 with a JSON body.
type handlerFuncE func(w http.ResponseWriter, r *http.Request) error

func (f handlerFuncE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := f(w, r)
	if err == nil {
		return
	}

	logger.Error("Request failed", logger.Fields{"path": r.URL.Path}, err)
	logger.IncrCounter("server.errors")
	body := map[string]string{"error": "internal error: " + err.Error()}
	if err := writeJSON(w, http.StatusInternalServerError, body); err != nil {
		logger.Error("Writing error response failed", nil, err)
	}
}

// errRouter lets handlers return errors.
type errRouter struct {
	*mux.Router
}

func (r errRouter) HandleFuncE(path string, f handlerFuncE) *mux.Route {
	return r.Handle(path, f)
}

func accessLog(_ io.Writer, p handlers.LogFormatterParams) {
	logger.Info("Request completed", logger.Fields{
		"method":      p.Request.Method,
		"url":         p.URL.String(),
		"status_code": p.StatusCode,
		"size":        p.Size,
		"duration":    time.Since(p.TimeStamp),
	})
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	logger.Error("Handler panicked", logger.Fields{"panic": fmt.Sprint(v...)}, nil)
}

// Package api exposes the dubbing pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"video-dubber/internal/limiter"
	"video-dubber/internal/logger"
	"video-dubber/models"
	"video-dubber/services"
)

// Runner executes the dubbing pipeline for one job.
type Runner interface {
	Process(ctx context.Context, job *models.DubbingJob) (*services.Result, error)
}

// Muxer produces a fresh muxed video for download.
type Muxer interface {
	Mux(ctx context.Context, videoPath, audioPath string) (string, error)
}

// Prober reads the duration of an uploaded container.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	cfg       *models.Config
	runner    Runner
	muxer     Muxer
	prober    Prober
	admission *limiter.Admission
}

// NewServer creates a server. Uploads and outputs live in cfg.Paths.
func NewServer(cfg *models.Config, runner Runner, muxer Muxer, prober Prober) *Server {
	return &Server{
		cfg:       cfg,
		runner:    runner,
		muxer:     muxer,
		prober:    prober,
		admission: limiter.NewAdmission(cfg.Server.MaxConcurrentJobs),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /dub-video", s.handleDub)
	mux.HandleFunc("POST /api/dub-video", s.handleDub)
	mux.HandleFunc("GET /download-dubbed-video", s.handleDownload)
	mux.HandleFunc("GET /api/download-dubbed-video", s.handleDownload)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", staticFiles(s.cfg.Paths.UploadsDir, nil)))
	mux.Handle("GET /output/", http.StripPrefix("/output/", staticFiles(s.cfg.Paths.OutputDir, isPublishedOutput)))
	return withRequestLog(withCORS(mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       s.cfg.SocketTimeout(),
		WriteTimeout:      s.cfg.SocketTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Dubbing server listening on %s (max %d concurrent jobs)", srv.Addr, s.admission.Capacity())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"jobsRunning": s.admission.InUse(),
		"maxJobs":     s.admission.Capacity(),
	})
}

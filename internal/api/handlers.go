package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"video-dubber/internal/apperr"
	"video-dubber/internal/logger"
	"video-dubber/internal/media"
	"video-dubber/internal/text"
	"video-dubber/models"
	"video-dubber/services"
)

// multipart fields other than the video are small
const formOverhead = 1 << 20

type dubResponse struct {
	Success          bool                `json:"success"`
	RequestID        string              `json:"requestId,omitempty"`
	ProcessingTime   float64             `json:"processingTime"`
	Subtitles        models.SubtitleList `json:"subtitles"`
	AudioURL         string              `json:"audioUrl"`
	OriginalVideoURL string              `json:"originalVideoUrl"`
	SubtitlesURL     string              `json:"subtitlesUrl,omitempty"`
	Speakers         int                 `json:"speakers"`
}

type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) handleDub(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(requestIDHeader)
	started := time.Now()

	if err := s.admission.TryAcquire(); err != nil {
		s.fail(w, requestID, err)
		return
	}
	defer s.admission.Release()

	job, err := s.acceptUpload(w, r)
	if err != nil {
		extendWriteDeadline(w, responseGrace(s.cfg.SocketTimeout()))
		s.fail(w, requestID, err)
		return
	}
	job.RequestID = requestID

	// A started job runs to completion even if the client goes away, but it
	// must finish early enough for the response to fit in the socket timeout.
	timeout := s.cfg.SocketTimeout()
	grace := responseGrace(timeout)
	ctx, cancel := context.WithDeadline(context.WithoutCancel(r.Context()), started.Add(timeout-grace))
	defer cancel()

	result, err := s.runner.Process(ctx, job)
	extendWriteDeadline(w, grace)
	if err != nil {
		if rmErr := media.RemoveIfExists(job.VideoPath); rmErr != nil {
			logger.Warn("Failed to remove upload %s: %v", filepath.Base(job.VideoPath), rmErr)
		}
		s.fail(w, requestID, err)
		return
	}

	resp := dubResponse{
		Success:          true,
		RequestID:        requestID,
		ProcessingTime:   time.Since(started).Seconds(),
		Subtitles:        result.Subtitles,
		AudioURL:         "/output/" + filepath.Base(result.AudioPath),
		OriginalVideoURL: "/uploads/" + filepath.Base(job.VideoPath),
		Speakers:         result.Speakers,
	}
	if result.SRTPath != "" {
		resp.SubtitlesURL = "/output/" + filepath.Base(result.SRTPath)
	}
	writeJSON(w, http.StatusOK, resp)
}

// responseGrace is the share of the socket timeout reserved for writing the
// terminal response after the pipeline stops.
func responseGrace(timeout time.Duration) time.Duration {
	return min(5*time.Second, timeout/4)
}

// extendWriteDeadline gives the response grace time past now. The server's
// WriteTimeout runs from the start of the request.
func extendWriteDeadline(w http.ResponseWriter, grace time.Duration) {
	err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(grace))
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Debug("Failed to extend write deadline: %v", err)
	}
}

// acceptUpload validates the multipart request, stores the video in the
// uploads directory and returns a new job for it. Nothing is left on disk
// when validation fails.
func (s *Server) acceptUpload(w http.ResponseWriter, r *http.Request) (*models.DubbingJob, error) {
	maxBytes := s.cfg.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, fmt.Errorf("%w: limit is %d MB", apperr.ErrTooLarge, s.cfg.Server.MaxUploadMB)
		}
		return nil, fmt.Errorf("%w: invalid multipart form: %v", apperr.ErrValidation, err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("video")
	if err != nil {
		return nil, fmt.Errorf("%w: no video file provided", apperr.ErrValidation)
	}
	defer file.Close()

	if header.Size > maxBytes {
		return nil, fmt.Errorf("%w: limit is %d MB", apperr.ErrTooLarge, s.cfg.Server.MaxUploadMB)
	}
	mediaType, _, _ := mime.ParseMediaType(header.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "video/") {
		return nil, fmt.Errorf("%w: only video files are allowed (got %q)", apperr.ErrUnsupportedMedia, mediaType)
	}

	multiSpeaker, err := parseBoolField(r, "multiSpeaker", "hasMultipleSpeakers")
	if err != nil {
		return nil, err
	}
	sourceLang := formValue(r, "sourceLanguage", s.cfg.Pipeline.SourceLang)
	targetLang := formValue(r, "targetLanguage", s.cfg.Pipeline.TargetLang)
	for _, lang := range []string{sourceLang, targetLang} {
		if !text.IsValid(lang) {
			return nil, fmt.Errorf("%w: unsupported language %q", apperr.ErrValidation, lang)
		}
	}

	job := models.NewDubbingJob("", header.Filename, sourceLang, targetLang, multiSpeaker)
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".mp4"
	}
	job.VideoPath = filepath.Join(s.cfg.Paths.UploadsDir, fmt.Sprintf("%d%s", job.StartTime, ext))

	if err := saveUpload(file, job.VideoPath); err != nil {
		return nil, err
	}

	duration, err := s.prober.Duration(r.Context(), job.VideoPath)
	if err != nil {
		_ = media.RemoveIfExists(job.VideoPath)
		return nil, fmt.Errorf("%w: could not read video duration: %v", apperr.ErrValidation, apperr.PublicMessage(err))
	}
	if limit := s.cfg.MaxVideoDuration(); duration > limit {
		_ = media.RemoveIfExists(job.VideoPath)
		return nil, fmt.Errorf("%w: video is %.0fs long, the limit is %.0fs",
			apperr.ErrValidation, duration.Seconds(), limit.Seconds())
	}
	logger.Info("Accepted upload %s (%s, %.1fs) as job %d", header.Filename, mediaType, duration.Seconds(), job.StartTime)
	return job, nil
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(requestIDHeader)
	q := r.URL.Query()

	videoPath, err := resolveArtifact(q.Get("videoUrl"), "/uploads/", s.cfg.Paths.UploadsDir)
	if err != nil {
		s.fail(w, requestID, err)
		return
	}
	audioPath, err := resolveArtifact(q.Get("audioUrl"), "/output/", s.cfg.Paths.OutputDir)
	if err != nil {
		s.fail(w, requestID, err)
		return
	}

	muxed, err := s.muxer.Mux(r.Context(), videoPath, audioPath)
	if err != nil {
		s.fail(w, requestID, err)
		return
	}
	defer func() {
		if err := media.RemoveIfExists(muxed); err != nil {
			logger.Warn("Failed to remove muxed file %s: %v", filepath.Base(muxed), err)
		}
	}()

	f, err := os.Open(muxed)
	if err != nil {
		s.fail(w, requestID, apperr.Wrap(apperr.ErrMediaTool, "mux", "open output", "", err))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.fail(w, requestID, apperr.Wrap(apperr.ErrMediaTool, "mux", "stat output", "", err))
		return
	}

	name := services.DownloadName(videoPath)
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// resolveArtifact maps a public URL such as "/output/dubbed_1.wav" (or a full
// URL with that path) to a file directly inside dir.
func resolveArtifact(raw, prefix, dir string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: missing %s artifact url", apperr.ErrValidation, strings.Trim(prefix, "/"))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: invalid artifact url", apperr.ErrValidation)
	}
	p := u.Path
	if !strings.HasPrefix(p, prefix) {
		if strings.HasPrefix(p, "/api"+prefix) {
			p = strings.TrimPrefix(p, "/api")
		} else {
			return "", fmt.Errorf("%w: artifact url must start with %s", apperr.ErrValidation, prefix)
		}
	}
	name := strings.TrimPrefix(p, prefix)
	if name == "" || name != path.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: invalid artifact name", apperr.ErrValidation)
	}
	return filepath.Join(dir, name), nil
}

func saveUpload(src io.Reader, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return apperr.Wrap(apperr.ErrMediaTool, "upload", "prepare uploads dir", "", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return apperr.Wrap(apperr.ErrMediaTool, "upload", "create file", "", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return apperr.Wrap(apperr.ErrMediaTool, "upload", "write file", "", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return apperr.Wrap(apperr.ErrMediaTool, "upload", "close file", "", err)
	}
	return nil
}

func parseBoolField(r *http.Request, names ...string) (bool, error) {
	for _, name := range names {
		v := strings.TrimSpace(r.FormValue(name))
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%w: %s must be a boolean", apperr.ErrValidation, name)
		}
		return b, nil
	}
	return false, nil
}

func formValue(r *http.Request, name, fallback string) string {
	if v := strings.TrimSpace(r.FormValue(name)); v != "" {
		return strings.ToLower(v)
	}
	return fallback
}

func (s *Server) fail(w http.ResponseWriter, requestID string, err error) {
	status := apperr.HTTPStatus(err)
	msg := apperr.PublicMessage(err)
	if status >= 500 {
		logger.With("request_id", requestID).Error("request failed", "status", status, "error", err)
	} else {
		logger.With("request_id", requestID).Warn("request rejected", "status", status, "error", msg)
	}
	writeJSON(w, status, errorResponse{Success: false, Error: msg, RequestID: requestID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response: %v", err)
	}
}

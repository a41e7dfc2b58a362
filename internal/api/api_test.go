package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"video-dubber/internal/apperr"
	"video-dubber/models"
	"video-dubber/services"
)

type fakeRunner struct {
	mu      sync.Mutex
	jobs    []*models.DubbingJob
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeRunner) Process(ctx context.Context, job *models.DubbingJob) (*services.Result, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	subs := models.SubtitleList{{Start: 0, End: 1, SpeakerTag: 1, OriginalEN: "Hello.", Twi: "Agoo."}}
	return &services.Result{
		Job:       job,
		Subtitles: subs,
		AudioPath: fmt.Sprintf("/srv/output/dubbed_%d.wav", job.StartTime),
		SRTPath:   fmt.Sprintf("/srv/output/dubbed_%d.srt", job.StartTime),
		Speakers:  1,
	}, nil
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

type fakeProber struct{ d time.Duration }

func (f fakeProber) Duration(ctx context.Context, path string) (time.Duration, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	return f.d, nil
}

type fakeMuxer struct {
	dir      string
	gotVideo string
	gotAudio string
	lastOut  string
}

func (f *fakeMuxer) Mux(ctx context.Context, videoPath, audioPath string) (string, error) {
	f.gotVideo, f.gotAudio = videoPath, audioPath
	for _, p := range []string{videoPath, audioPath} {
		if _, err := os.Stat(p); err != nil {
			return "", apperr.Wrap(apperr.ErrNotFound, "mux", "open input", filepath.Base(p), err)
		}
	}
	f.lastOut = filepath.Join(f.dir, "muxed_1.mp4")
	return f.lastOut, os.WriteFile(f.lastOut, []byte("muxed-video"), 0o644)
}

type testServer struct {
	cfg    *models.Config
	runner *fakeRunner
	muxer  *fakeMuxer
	srv    *Server
}

func newTestServer(t *testing.T, probe time.Duration) *testServer {
	t.Helper()
	cfg := models.DefaultConfig()
	cfg.Paths.UploadsDir = t.TempDir()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Server.MaxConcurrentJobs = 1
	ts := &testServer{cfg: cfg, runner: &fakeRunner{}, muxer: &fakeMuxer{dir: t.TempDir()}}
	ts.srv = NewServer(cfg, ts.runner, ts.muxer, fakeProber{d: probe})
	return ts
}

type upload struct {
	contentType string
	size        int
	fields      map[string]string
	omitVideo   bool
}

func newUploadRequest(t *testing.T, u upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range u.fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if !u.omitVideo {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="video"; filename="clip.MP4"`)
		h.Set("Content-Type", u.contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(bytes.Repeat([]byte{0x42}, u.size)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/dub-video", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func uploadsCount(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestDubVideo_Success(t *testing.T) {
	ts := newTestServer(t, 30*time.Second)
	req := newUploadRequest(t, upload{
		contentType: "video/mp4",
		size:        1024,
		fields:      map[string]string{"sourceLanguage": "en", "hasMultipleSpeakers": "true"},
	})
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode[dubResponse](t, rec)
	if !resp.Success || len(resp.Subtitles) != 1 || resp.Subtitles[0].Twi != "Agoo." {
		t.Errorf("unexpected response %+v", resp)
	}
	job := ts.runner.jobs[0]
	if !job.MultiSpeaker || job.TargetLang != "twi" || job.SourceLang != "en" || job.RequestID != "req-42" {
		t.Errorf("unexpected job %+v", job)
	}
	if resp.OriginalVideoURL != fmt.Sprintf("/uploads/%d.mp4", job.StartTime) {
		t.Errorf("originalVideoUrl = %s", resp.OriginalVideoURL)
	}
	if resp.AudioURL != fmt.Sprintf("/output/dubbed_%d.wav", job.StartTime) {
		t.Errorf("audioUrl = %s", resp.AudioURL)
	}
	if !strings.HasSuffix(resp.SubtitlesURL, ".srt") {
		t.Errorf("subtitlesUrl = %s", resp.SubtitlesURL)
	}
	if _, err := os.Stat(job.VideoPath); err != nil {
		t.Errorf("upload not stored: %v", err)
	}
	if rec.Header().Get(requestIDHeader) != "req-42" {
		t.Error("request id not echoed")
	}
}

func TestDubVideo_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		probe  time.Duration
		upload upload
		status int
	}{
		{
			name:   "too long",
			probe:  70 * time.Second,
			upload: upload{contentType: "video/mp4", size: 512},
			status: http.StatusBadRequest,
		},
		{
			name:   "not a video",
			probe:  10 * time.Second,
			upload: upload{contentType: "audio/mpeg", size: 512},
			status: http.StatusUnsupportedMediaType,
		},
		{
			name:   "missing video",
			probe:  10 * time.Second,
			upload: upload{omitVideo: true, fields: map[string]string{"sourceLanguage": "en"}},
			status: http.StatusBadRequest,
		},
		{
			name:   "bad multiSpeaker",
			probe:  10 * time.Second,
			upload: upload{contentType: "video/mp4", size: 512, fields: map[string]string{"multiSpeaker": "maybe"}},
			status: http.StatusBadRequest,
		},
		{
			name:   "bad language",
			probe:  10 * time.Second,
			upload: upload{contentType: "video/mp4", size: 512, fields: map[string]string{"targetLanguage": "not a language!"}},
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.probe)
			rec := httptest.NewRecorder()
			ts.srv.Handler().ServeHTTP(rec, newUploadRequest(t, tt.upload))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			resp := decode[errorResponse](t, rec)
			if resp.Success || resp.Error == "" {
				t.Errorf("unexpected error body %+v", resp)
			}
			if ts.runner.calls() != 0 {
				t.Error("no pipeline stage should run for a rejected upload")
			}
			if n := uploadsCount(t, ts.cfg.Paths.UploadsDir); n != 0 {
				t.Errorf("%d files left in uploads", n)
			}
		})
	}
}

func TestDubVideo_TooLarge(t *testing.T) {
	ts := newTestServer(t, 10*time.Second)
	ts.cfg.Server.MaxUploadMB = 1
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, newUploadRequest(t, upload{contentType: "video/mp4", size: 1536 * 1024}))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if ts.runner.calls() != 0 {
		t.Error("runner should not be called")
	}
}

func TestDubVideo_PipelineFailure(t *testing.T) {
	ts := newTestServer(t, 10*time.Second)
	ts.runner.err = apperr.Wrap(apperr.ErrTranscription, "transcribe", "assemblyai", "status error", errors.New("line one\nffmpeg noise"))
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, newUploadRequest(t, upload{contentType: "video/mp4", size: 256}))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if strings.Contains(resp.Error, "ffmpeg noise") {
		t.Errorf("internal detail leaked: %q", resp.Error)
	}
	if n := uploadsCount(t, ts.cfg.Paths.UploadsDir); n != 0 {
		t.Errorf("failed job left %d uploads", n)
	}
}

func TestDubVideo_Overloaded(t *testing.T) {
	ts := newTestServer(t, 10*time.Second)
	ts.runner.block = make(chan struct{})
	ts.runner.started = make(chan struct{}, 1)
	h := ts.srv.Handler()

	done := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, newUploadRequest(t, upload{contentType: "video/mp4", size: 128}))
		done <- rec.Code
	}()
	<-ts.runner.started

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newUploadRequest(t, upload{contentType: "video/mp4", size: 128}))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("second request status = %d, want 503", rec.Code)
	}

	close(ts.runner.block)
	if code := <-done; code != http.StatusOK {
		t.Errorf("first request status = %d", code)
	}
}

func TestDownload(t *testing.T) {
	ts := newTestServer(t, 10*time.Second)
	video := filepath.Join(ts.cfg.Paths.UploadsDir, "1700.mp4")
	audio := filepath.Join(ts.cfg.Paths.OutputDir, "dubbed_1700.wav")
	for _, p := range []string{video, audio} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/download-dubbed-video?videoUrl=%2Fuploads%2F1700.mp4&audioUrl=http%3A%2F%2Flocalhost%3A5000%2Foutput%2Fdubbed_1700.wav", nil)
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got, _ := io.ReadAll(rec.Body); string(got) != "muxed-video" {
		t.Errorf("body = %q", got)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") || !strings.Contains(cd, "1700_dubbed.mp4") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if ts.muxer.gotVideo != video || ts.muxer.gotAudio != audio {
		t.Errorf("muxer got %s, %s", ts.muxer.gotVideo, ts.muxer.gotAudio)
	}
	if _, err := os.Stat(ts.muxer.lastOut); !os.IsNotExist(err) {
		t.Error("muxed file should be removed after streaming")
	}
}

func TestDownload_Errors(t *testing.T) {
	ts := newTestServer(t, 10*time.Second)
	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing params", "", http.StatusBadRequest},
		{"traversal", "videoUrl=/uploads/..%2F..%2Fetc%2Fpasswd&audioUrl=/output/a.wav", http.StatusBadRequest},
		{"wrong prefix", "videoUrl=/etc/passwd&audioUrl=/output/a.wav", http.StatusBadRequest},
		{"not found", "videoUrl=/uploads/gone.mp4&audioUrl=/output/gone.wav", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ts.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download-dubbed-video?"+tt.query, nil))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestResolveArtifact(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"/output/a.wav", "/srv/out/a.wav", true},
		{"/api/output/a.wav", "/srv/out/a.wav", true},
		{"https://host/output/a.wav?x=1", "/srv/out/a.wav", true},
		{"/output/../secret", "", false},
		{"/output/sub/a.wav", "", false},
		{"/output/", "", false},
		{"/uploads/a.mp4", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := resolveArtifact(tt.raw, "/output/", "/srv/out")
		if (err == nil) != tt.ok {
			t.Errorf("resolveArtifact(%q) err = %v", tt.raw, err)
			continue
		}
		if tt.ok && got != tt.want {
			t.Errorf("resolveArtifact(%q) = %q, want %q", tt.raw, got, tt.want)
		}
		if !tt.ok && !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("resolveArtifact(%q) error %v is not a validation error", tt.raw, err)
		}
	}
}

func TestHealthAndStatic(t *testing.T) {
	ts := newTestServer(t, 10*time.Second)
	if err := os.WriteFile(filepath.Join(ts.cfg.Paths.OutputDir, "dubbed_1.wav"), []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := ts.srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
	if strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Errorf("health payload = %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"maxJobs":1`) {
		t.Errorf("status = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/output/dubbed_1.wav", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "RIFF" {
		t.Errorf("static = %d %q", rec.Code, rec.Body.String())
	}

	for _, name := range []string{"extracted_1.wav", "dubbed_1.concat.txt", "clip_1_0.wav"} {
		if err := os.WriteFile(filepath.Join(ts.cfg.Paths.OutputDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/output/"+name, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("/output/%s status = %d, want 404", name, rec.Code)
		}
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/output/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("directory listing status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dub-video", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /dub-video status = %d", rec.Code)
	}
}

type deadlineRunner struct{}

func (deadlineRunner) Process(ctx context.Context, job *models.DubbingJob) (*services.Result, error) {
	<-ctx.Done()
	return nil, apperr.Wrap(apperr.ErrTranscription, "transcribe", "", "", ctx.Err())
}

func TestDubVideo_SlowJobStillGetsJSON(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.Paths.UploadsDir = t.TempDir()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Server.SocketTimeoutSec = 2
	srv := NewServer(cfg, deadlineRunner{}, &fakeMuxer{dir: t.TempDir()}, fakeProber{d: 10 * time.Second})

	hs := httptest.NewUnstartedServer(srv.Handler())
	hs.Config.ReadTimeout = cfg.SocketTimeout()
	hs.Config.WriteTimeout = cfg.SocketTimeout()
	hs.Start()
	defer hs.Close()

	// The body trickles in so the pipeline starts well after the request.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	contentType := mw.FormDataContentType()
	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="video"; filename="clip.mp4"`)
		h.Set("Content-Type", "video/mp4")
		part, err := mw.CreatePart(h)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := part.Write([]byte("head")); err != nil {
			pw.CloseWithError(err)
			return
		}
		time.Sleep(1200 * time.Millisecond)
		if _, err := part.Write(bytes.Repeat([]byte{0x42}, 1024)); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequest(http.MethodPost, hs.URL+"/dub-video", pr)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := hs.Client().Do(req)
	if err != nil {
		t.Fatalf("no response: %v", err)
	}
	defer resp.Body.Close()

	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError || body.Success || body.Error == "" {
		t.Errorf("got %d %+v", resp.StatusCode, body)
	}
	if elapsed := time.Since(start); elapsed > cfg.SocketTimeout() {
		t.Errorf("response took %v, socket timeout is %v", elapsed, cfg.SocketTimeout())
	}
	if n := uploadsCount(t, cfg.Paths.UploadsDir); n != 0 {
		t.Errorf("uploads left behind: %d", n)
	}
}

func TestResponseGrace(t *testing.T) {
	tests := []struct {
		timeout, want time.Duration
	}{
		{2 * time.Second, 500 * time.Millisecond},
		{10 * time.Minute, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := responseGrace(tt.timeout); got != tt.want {
			t.Errorf("responseGrace(%v) = %v, want %v", tt.timeout, got, tt.want)
		}
	}
}

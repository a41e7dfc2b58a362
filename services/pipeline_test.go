package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"video-dubber/internal/apperr"
	"video-dubber/internal/limiter"
	"video-dubber/internal/media"
	"video-dubber/internal/subtitle"
	"video-dubber/internal/transcription"
	"video-dubber/internal/translation"
	"video-dubber/internal/tts"
	"video-dubber/models"
)

type fakeExtractor struct{ err error }

func (f *fakeExtractor) ExtractAudio(ctx context.Context, videoPath, outputPath string, channels int) error {
	if f.err != nil {
		return f.err
	}
	return media.WriteSilentWAV(outputPath, 100*time.Millisecond, 16000)
}

type fakeTranscriber struct {
	words   []models.Word
	err     error
	gotPath string
	gotOpts transcription.Options
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath, language string, opts transcription.Options) (transcription.Result, error) {
	f.gotPath = audioPath
	f.gotOpts = opts
	if _, err := os.Stat(audioPath); err != nil {
		return transcription.Result{}, err
	}
	return transcription.Result{Words: f.words}, f.err
}

type fakeTranslator struct{ calls int }

func (f *fakeTranslator) TranslateBatch(ctx context.Context, chunks []models.SentenceChunk, targetLang string) ([]models.TranslatedLine, translation.Report, error) {
	f.calls++
	lines := make([]models.TranslatedLine, len(chunks))
	for i, c := range chunks {
		lines[i] = models.TranslatedLine{SentenceChunk: c, TranslatedText: "tw:" + c.Text}
	}
	return lines, translation.Report{Translated: len(chunks)}, nil
}

type fakeSynthesizer struct {
	dir string
	err error
}

func (f *fakeSynthesizer) SynthesizeAll(ctx context.Context, jobStart int64, lines []models.TranslatedLine, onProgress tts.ProgressCallback) ([]tts.Clip, error) {
	if f.err != nil {
		return nil, f.err
	}
	clips := make([]tts.Clip, len(lines))
	for i := range lines {
		path := tts.ClipPath(f.dir, jobStart, i)
		if err := media.WriteSilentWAV(path, 100*time.Millisecond, 16000); err != nil {
			return nil, err
		}
		clips[i] = tts.Clip{Index: i, Path: path, Placeholder: i == 0}
		if onProgress != nil {
			onProgress(i+1, len(lines))
		}
	}
	return clips, nil
}

type fakeStitcher struct {
	got    []string
	called bool
}

func (f *fakeStitcher) Stitch(ctx context.Context, clips []string, outputPath string) error {
	f.called = true
	f.got = append([]string(nil), clips...)
	return os.WriteFile(outputPath, []byte("RIFF"), 0o644)
}

type memRecorder struct {
	mu     sync.Mutex
	states []models.JobState
}

func (m *memRecorder) Save(ctx context.Context, job *models.DubbingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, job.State)
	return nil
}

type pipelineFixture struct {
	work, out   string
	extractor   *fakeExtractor
	transcriber *fakeTranscriber
	translator  *fakeTranslator
	synthesizer *fakeSynthesizer
	stitcher    *fakeStitcher
	recorder    *memRecorder
	pipeline    *Pipeline
}

func newFixture(t *testing.T, words []models.Word) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		work:        t.TempDir(),
		out:         t.TempDir(),
		extractor:   &fakeExtractor{},
		transcriber: &fakeTranscriber{words: words},
		translator:  &fakeTranslator{},
		stitcher:    &fakeStitcher{},
		recorder:    &memRecorder{},
	}
	f.synthesizer = &fakeSynthesizer{dir: f.work}
	f.pipeline = NewPipeline(f.extractor, f.transcriber, f.translator, f.synthesizer, f.stitcher,
		Options{WorkDir: f.work, OutputDir: f.out, Mode: models.ModeBestEffort})
	f.pipeline.SetRecorder(f.recorder)
	f.pipeline.SetMediaLimiter(limiter.NewSemaphore(1))
	return f
}

func sampleWords() []models.Word {
	return []models.Word{
		{Text: "Hello.", Start: 0, End: 0.5, SpeakerTag: 1},
		{Text: "How", Start: 0.6, End: 0.8, SpeakerTag: 2},
		{Text: "are", Start: 0.8, End: 0.9, SpeakerTag: 2},
		{Text: "you?", Start: 0.9, End: 1.2, SpeakerTag: 2},
	}
}

func newJob() *models.DubbingJob {
	job := models.NewDubbingJob("/uploads/in.mp4", "in.mp4", "en", "twi", true)
	job.RequestID = "req-test"
	return job
}

func TestPipeline_Process_Success(t *testing.T) {
	f := newFixture(t, sampleWords())
	var messages []string
	f.pipeline.SetProgressCallback(func(job *models.DubbingJob, message string) {
		messages = append(messages, message)
	})

	job := newJob()
	res, err := f.pipeline.Process(context.Background(), job)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if job.State != models.StateReady {
		t.Errorf("state = %s", job.State)
	}
	if len(job.Timings) != 5 {
		t.Errorf("timings = %d, want one per stage", len(job.Timings))
	}
	if len(res.Subtitles) != 2 {
		t.Fatalf("subtitles = %d", len(res.Subtitles))
	}
	if res.Subtitles[1].OriginalEN != "How are you?" || res.Subtitles[1].Twi != "tw:How are you?" || res.Subtitles[1].SpeakerTag != 2 {
		t.Errorf("unexpected subtitle %+v", res.Subtitles[1])
	}
	if res.Speakers != 2 || res.Alternated {
		t.Errorf("speakers=%d alternated=%v", res.Speakers, res.Alternated)
	}
	if res.Placeholders != 1 {
		t.Errorf("placeholders = %d", res.Placeholders)
	}
	if res.AudioPath != filepath.Join(f.out, "dubbed_"+itoa(job.StartTime)+".wav") {
		t.Errorf("audio path = %s", res.AudioPath)
	}

	// Clips reach the stitcher in sentence order.
	for i, c := range f.stitcher.got {
		if c != tts.ClipPath(f.work, job.StartTime, i) {
			t.Errorf("clip %d = %s", i, c)
		}
	}

	// Extracted audio is removed after the run.
	if _, err := os.Stat(f.transcriber.gotPath); !os.IsNotExist(err) {
		t.Errorf("extracted audio not cleaned up: %v", err)
	}
	if !f.transcriber.gotOpts.EnableDiarization {
		t.Error("diarization should follow the multi-speaker flag")
	}

	srt, err := subtitle.ParseSRTFile(res.SRTPath)
	if err != nil {
		t.Fatalf("read srt: %v", err)
	}
	if len(srt) != 2 || !strings.HasPrefix(srt[1].Text, "[S2] ") {
		t.Errorf("unexpected srt %+v", srt)
	}

	last := f.recorder.states[len(f.recorder.states)-1]
	if last != models.StateReady {
		t.Errorf("last recorded state = %s", last)
	}
	if len(messages) == 0 || messages[len(messages)-1] != "Ready" {
		t.Errorf("progress messages = %v", messages)
	}
}

func TestPipeline_Process_AlternatesSingleSpeaker(t *testing.T) {
	words := []models.Word{
		{Text: "One.", SpeakerTag: 1},
		{Text: "Two.", SpeakerTag: 1},
		{Text: "Three.", SpeakerTag: 1},
	}
	f := newFixture(t, words)
	res, err := f.pipeline.Process(context.Background(), newJob())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Alternated {
		t.Error("expected alternation fallback")
	}
	for i, s := range res.Subtitles {
		if want := i%2 + 1; s.SpeakerTag != want {
			t.Errorf("subtitle %d tag = %d, want %d", i, s.SpeakerTag, want)
		}
	}
}

func TestPipeline_Process_Failures(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(f *pipelineFixture)
		marker        error
		wantTranslate bool
		wantStitch    bool
	}{
		{
			name:   "extraction",
			setup:  func(f *pipelineFixture) { f.extractor.err = errors.New("corrupt container") },
			marker: apperr.ErrExtraction,
		},
		{
			name:   "transcription",
			setup:  func(f *pipelineFixture) { f.transcriber.err = errors.New("upstream 500") },
			marker: apperr.ErrTranscription,
		},
		{
			name:   "no speech",
			setup:  func(f *pipelineFixture) { f.transcriber.words = nil },
			marker: apperr.ErrTranscription,
		},
		{
			name: "synthesis",
			setup: func(f *pipelineFixture) {
				f.synthesizer.err = apperr.Wrap(apperr.ErrSynthesis, "synthesize", "", "2 of 2 clips failed", nil)
			},
			marker:        apperr.ErrSynthesis,
			wantTranslate: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, sampleWords())
			tt.setup(f)

			job := newJob()
			res, err := f.pipeline.Process(context.Background(), job)
			if res != nil {
				t.Error("no partial result expected on failure")
			}
			if !errors.Is(err, tt.marker) {
				t.Fatalf("error %v does not carry %v", err, tt.marker)
			}
			if job.State != models.StateFailed || job.Error == nil {
				t.Errorf("job state = %s err = %v", job.State, job.Error)
			}
			if (f.translator.calls > 0) != tt.wantTranslate {
				t.Errorf("translator calls = %d", f.translator.calls)
			}
			if f.stitcher.called != tt.wantStitch {
				t.Errorf("stitcher called = %v", f.stitcher.called)
			}
			if apperr.HTTPStatus(err) != 500 {
				t.Errorf("status = %d", apperr.HTTPStatus(err))
			}
			last := f.recorder.states[len(f.recorder.states)-1]
			if last != models.StateFailed {
				t.Errorf("last recorded state = %s", last)
			}
			entries, _ := os.ReadDir(f.work)
			for _, e := range entries {
				if strings.HasPrefix(e.Name(), "extracted_") {
					t.Errorf("extracted audio left behind: %s", e.Name())
				}
			}
		})
	}
}

func TestPipeline_Process_Cancelled(t *testing.T) {
	f := newFixture(t, sampleWords())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := newJob()
	if _, err := f.pipeline.Process(ctx, job); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if job.State != models.StateFailed {
		t.Errorf("state = %s", job.State)
	}
}

type fakeMuxTool struct{ err error }

func (f *fakeMuxTool) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	if err := os.WriteFile(outputPath, []byte("muxed"), 0o644); err != nil {
		return err
	}
	return f.err
}

func TestMuxer(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "in.MP4")
	audio := filepath.Join(dir, "dubbed.wav")
	for _, p := range []string{video, audio} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	m := NewMuxer(&fakeMuxTool{}, dir, limiter.NewSemaphore(1))
	first, err := m.Mux(context.Background(), video, audio)
	if err != nil {
		t.Fatalf("Mux: %v", err)
	}
	second, err := m.Mux(context.Background(), video, audio)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("each mux should produce a fresh file")
	}
	if filepath.Ext(first) != ".mp4" {
		t.Errorf("ext = %s", filepath.Ext(first))
	}

	if _, err := m.Mux(context.Background(), filepath.Join(dir, "gone.mp4"), audio); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.Mux(context.Background(), video, ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty path, got %v", err)
	}

	failing := NewMuxer(&fakeMuxTool{err: errors.New("boom")}, dir, nil)
	before, _ := os.ReadDir(dir)
	if _, err := failing.Mux(context.Background(), video, audio); err == nil {
		t.Fatal("expected error")
	}
	after, _ := os.ReadDir(dir)
	if len(after) != len(before) {
		t.Errorf("failed mux left output behind: %d -> %d entries", len(before), len(after))
	}
}

func TestMuxer_OutputNameIsNotATimestamp(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "in.mp4")
	audio := filepath.Join(dir, "dubbed.wav")
	for _, p := range []string{video, audio} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	m := NewMuxer(&fakeMuxTool{}, dir, nil)

	out, err := m.Mux(context.Background(), video, audio)
	if err != nil {
		t.Fatal(err)
	}
	name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(out), "muxed_"), ".mp4")
	if _, err := strconv.ParseInt(name, 10, 64); err == nil {
		t.Errorf("muxed file name %q is keyed like a job start time", name)
	}
}

func TestDownloadName(t *testing.T) {
	if got := DownloadName("/uploads/1700_clip.mp4"); got != "1700_clip_dubbed.mp4" {
		t.Errorf("got %q", got)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

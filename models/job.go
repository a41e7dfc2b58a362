package models

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type JobState string

const (
	StateUploaded     JobState = "uploaded"
	StateTranscribing JobState = "transcribing"
	StateSegmenting   JobState = "segmenting"
	StateTranslating  JobState = "translating"
	StateSynthesizing JobState = "synthesizing"
	StateStitching    JobState = "stitching"
	StateReady        JobState = "ready"
	StateFailed       JobState = "failed"
)

// stateOrder is the only legal forward path through the pipeline.
var stateOrder = []JobState{
	StateUploaded,
	StateTranscribing,
	StateSegmenting,
	StateTranslating,
	StateSynthesizing,
	StateStitching,
	StateReady,
}

// StageTiming records how long one stage took.
type StageTiming struct {
	Stage   JobState      `json:"stage"`
	Elapsed time.Duration `json:"elapsed"`
}

// DubbingJob is the unit of work for one uploaded video.
type DubbingJob struct {
	ID           string
	RequestID    string
	StartTime    int64 // unique, monotonically increasing; keys temp files
	VideoPath    string
	FileName     string
	SourceLang   string
	TargetLang   string
	MultiSpeaker bool

	State   JobState
	Timings []StageTiming
	Error   error

	Chunks    []SentenceChunk
	Lines     []TranslatedLine
	Clips     []string
	AudioPath string
	SRTPath   string
	Subtitles SubtitleList

	CreatedAt   time.Time
	CompletedAt *time.Time

	stageStarted time.Time
}

var lastStartTime atomic.Int64

// NextStartTime returns a millisecond timestamp strictly greater than any
// previously returned value in this process.
func NextStartTime() int64 {
	for {
		now := time.Now().UnixMilli()
		prev := lastStartTime.Load()
		if now <= prev {
			now = prev + 1
		}
		if lastStartTime.CompareAndSwap(prev, now) {
			return now
		}
	}
}

func NewDubbingJob(videoPath, fileName, sourceLang, targetLang string, multiSpeaker bool) *DubbingJob {
	now := time.Now()
	return &DubbingJob{
		ID:           uuid.NewString(),
		StartTime:    NextStartTime(),
		VideoPath:    videoPath,
		FileName:     fileName,
		SourceLang:   sourceLang,
		TargetLang:   targetLang,
		MultiSpeaker: multiSpeaker,
		State:        StateUploaded,
		CreatedAt:    now,
		stageStarted: now,
	}
}

// Advance moves the job to the next stage, recording the elapsed time of the
// stage being left. Only the immediate successor of the current state is
// accepted.
func (j *DubbingJob) Advance(next JobState) error {
	if j.IsTerminal() {
		return fmt.Errorf("job %d is %s and cannot advance", j.StartTime, j.State)
	}
	cur := indexOf(j.State)
	if cur < 0 || cur+1 >= len(stateOrder) || stateOrder[cur+1] != next {
		return fmt.Errorf("illegal transition %s -> %s", j.State, next)
	}
	j.closeStage()
	j.State = next
	return nil
}

// Complete marks the job ready.
func (j *DubbingJob) Complete(audioPath string, subs SubtitleList) error {
	if err := j.Advance(StateReady); err != nil {
		return err
	}
	j.AudioPath = audioPath
	j.Subtitles = subs
	now := time.Now()
	j.CompletedAt = &now
	return nil
}

// Fail moves the job to the terminal failed state from any non-terminal state.
func (j *DubbingJob) Fail(err error) {
	if j.IsTerminal() {
		return
	}
	j.closeStage()
	j.State = StateFailed
	j.Error = err
	now := time.Now()
	j.CompletedAt = &now
}

func (j *DubbingJob) IsTerminal() bool {
	return j.State == StateReady || j.State == StateFailed
}

// Elapsed returns the time since the job was created.
func (j *DubbingJob) Elapsed() time.Duration {
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(j.CreatedAt)
	}
	return time.Since(j.CreatedAt)
}

func (j *DubbingJob) StatusText() string {
	switch j.State {
	case StateUploaded:
		return "Uploaded"
	case StateTranscribing:
		return "Transcribing..."
	case StateSegmenting:
		return "Segmenting sentences..."
	case StateTranslating:
		return "Translating..."
	case StateSynthesizing:
		return "Generating speech..."
	case StateStitching:
		return "Stitching audio..."
	case StateReady:
		return "Ready"
	case StateFailed:
		if j.Error != nil {
			return "Failed: " + j.Error.Error()
		}
		return "Failed"
	default:
		return string(j.State)
	}
}

func (j *DubbingJob) closeStage() {
	now := time.Now()
	if j.State != StateUploaded {
		j.Timings = append(j.Timings, StageTiming{Stage: j.State, Elapsed: now.Sub(j.stageStarted)})
	}
	j.stageStarted = now
}

func indexOf(state JobState) int {
	for i, s := range stateOrder {
		if s == state {
			return i
		}
	}
	return -1
}

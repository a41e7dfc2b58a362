// Package store records dubbing jobs in SQLite so artifacts can be listed
// and expired after the retention window.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"video-dubber/internal/apperr"
	"video-dubber/models"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes incompatibly.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by another schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Record is the persisted view of a job.
type Record struct {
	StartTime    int64
	JobID        string
	RequestID    string
	State        models.JobState
	FileName     string
	SourceLang   string
	TargetLang   string
	MultiSpeaker bool
	VideoPath    string
	AudioPath    string
	SRTPath      string
	Timings      []models.StageTiming
	ErrorMessage string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// Artifacts returns the on-disk files owned by the job.
func (r Record) Artifacts() []string {
	var paths []string
	for _, p := range []string{r.VideoPath, r.AudioPath, r.SRTPath} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the job database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Save inserts or replaces the record for job.
func (s *Store) Save(ctx context.Context, job *models.DubbingJob) error {
	timings, err := json.Marshal(job.Timings)
	if err != nil {
		return fmt.Errorf("encode timings: %w", err)
	}
	var errMsg sql.NullString
	if job.Error != nil {
		errMsg = sql.NullString{String: apperr.PublicMessage(job.Error), Valid: true}
	}
	var completed sql.NullString
	if job.CompletedAt != nil {
		completed = sql.NullString{String: formatTime(*job.CompletedAt), Valid: true}
	}

	return s.execWithRetry(ctx,
		`INSERT INTO jobs (
            start_time, job_id, request_id, state, file_name, source_lang, target_lang,
            multi_speaker, video_path, audio_path, srt_path, timings_json, error_message,
            created_at, completed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(start_time) DO UPDATE SET
            state = excluded.state,
            audio_path = excluded.audio_path,
            srt_path = excluded.srt_path,
            timings_json = excluded.timings_json,
            error_message = excluded.error_message,
            completed_at = excluded.completed_at`,
		job.StartTime, job.ID, job.RequestID, string(job.State), job.FileName,
		job.SourceLang, job.TargetLang, boolToInt(job.MultiSpeaker),
		job.VideoPath, job.AudioPath, job.SRTPath, string(timings), errMsg,
		formatTime(job.CreatedAt), completed,
	)
}

// Get returns the record keyed by startTime.
func (s *Store) Get(ctx context.Context, startTime int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM jobs WHERE start_time = ?", startTime)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: job %d", apperr.ErrNotFound, startTime)
	}
	return rec, err
}

// List returns the most recent jobs first. A limit of zero or less returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := "SELECT " + recordColumns + " FROM jobs ORDER BY start_time DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryRecords(ctx, query, args...)
}

// ExpiredBefore returns terminal jobs completed before cutoff.
func (s *Store) ExpiredBefore(ctx context.Context, cutoff time.Time) ([]Record, error) {
	return s.queryRecords(ctx,
		"SELECT "+recordColumns+" FROM jobs WHERE completed_at IS NOT NULL AND completed_at < ? ORDER BY start_time",
		formatTime(cutoff),
	)
}

// Delete removes the record keyed by startTime. Missing records are not an error.
func (s *Store) Delete(ctx context.Context, startTime int64) error {
	return s.execWithRetry(ctx, "DELETE FROM jobs WHERE start_time = ?", startTime)
}

const recordColumns = "start_time, job_id, request_id, state, file_name, source_lang, target_lang, multi_speaker, video_path, audio_path, srt_path, timings_json, error_message, created_at, completed_at"

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec          Record
		requestID    sql.NullString
		state        string
		fileName     sql.NullString
		sourceLang   sql.NullString
		targetLang   sql.NullString
		multiSpeaker int
		videoPath    sql.NullString
		audioPath    sql.NullString
		srtPath      sql.NullString
		timings      sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&rec.StartTime, &rec.JobID, &requestID, &state, &fileName, &sourceLang, &targetLang,
		&multiSpeaker, &videoPath, &audioPath, &srtPath, &timings, &errorMessage,
		&createdRaw, &completedRaw,
	); err != nil {
		return nil, err
	}

	rec.RequestID = requestID.String
	rec.State = models.JobState(state)
	rec.FileName = fileName.String
	rec.SourceLang = sourceLang.String
	rec.TargetLang = targetLang.String
	rec.MultiSpeaker = multiSpeaker != 0
	rec.VideoPath = videoPath.String
	rec.AudioPath = audioPath.String
	rec.SRTPath = srtPath.String
	rec.ErrorMessage = errorMessage.String
	if timings.Valid && timings.String != "" && timings.String != "null" {
		if err := json.Unmarshal([]byte(timings.String), &rec.Timings); err != nil {
			return nil, fmt.Errorf("decode timings for job %d: %w", rec.StartTime, err)
		}
	}
	rec.CreatedAt = parseTime(createdRaw)
	if completedRaw.Valid && completedRaw.String != "" {
		t := parseTime(completedRaw.String)
		rec.CompletedAt = &t
	}
	return &rec, nil
}

// Fixed-width UTC timestamps so completed_at compares correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, raw)
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		_, lastErr = s.db.ExecContext(ctx, query, args...)
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

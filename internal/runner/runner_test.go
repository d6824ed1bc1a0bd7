package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hunght/gograb/internal/domain"
	"github.com/hunght/gograb/internal/logger"
)

// memStore is the minimal Store slice the runner touches, backed by a single
// in-memory job row.
type memStore struct {
	mu      sync.Mutex
	status  domain.JobStatus
	percent float64
	flushes int
}

func (s *memStore) UpdateProgress(id string, percent float64, speed string, etaSeconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.percent = percent
	s.flushes++
	return nil
}

func (s *memStore) Transition(id string, from, to domain.JobStatus, fields *domain.TransitionFields) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != from {
		return false, nil
	}
	s.status = to
	return true, nil
}

func (s *memStore) snapshot() (domain.JobStatus, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.percent
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(filepath.Join(t.TempDir(), "test.log"), logger.LevelError, false)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

// installFakeYtDlp puts a shell script named yt-dlp at the front of PATH so
// the runner execs it instead of the real binary.
func installFakeYtDlp(t *testing.T, script string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "yt-dlp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func queuedJob(id, url string) *domain.DownloadJob {
	return &domain.DownloadJob{ID: id, SourceURL: url, Status: domain.StatusQueued}
}

func TestRun_SuccessfulDownload(t *testing.T) {
	outDir := t.TempDir()
	outFile := filepath.Join(outDir, "video.mp4")
	t.Setenv("FAKE_OUTPUT", outFile)

	installFakeYtDlp(t, `
echo "[download] Destination: $FAKE_OUTPUT"
echo "[download]  50.0% of 10.00MiB at 2.00MiB/s ETA 00:05"
echo "[download] 100% of 10.00MiB in 00:05"
printf 'data' > "$FAKE_OUTPUT"
exit 0
`)

	store := &memStore{status: domain.StatusQueued}
	r := New(store, newTestLogger(t), Options{OutDir: outDir, ProgressInterval: time.Millisecond})

	outcome := r.Run(context.Background(), queuedJob("job-1", "https://example.com/v/1"))

	if outcome.Kind != OutcomeCompleted {
		t.Fatalf("kind: got %v, want completed (%+v)", outcome.Kind, outcome)
	}
	if outcome.FilePath != outFile {
		t.Fatalf("file path: got %q, want %q", outcome.FilePath, outFile)
	}
	if outcome.FileSizeBytes != 4 {
		t.Fatalf("file size: got %d, want 4", outcome.FileSizeBytes)
	}

	status, percent := store.snapshot()
	if status != domain.StatusDownloading {
		t.Fatalf("status after run: got %q, want downloading", status)
	}
	if percent != 100 {
		t.Fatalf("final progress: got %.1f, want 100", percent)
	}
}

func TestRun_RestrictedFailure(t *testing.T) {
	installFakeYtDlp(t, `
echo "ERROR: Private video. Sign in if you've been granted access to this video" >&2
exit 1
`)

	store := &memStore{status: domain.StatusQueued}
	r := New(store, newTestLogger(t), Options{OutDir: t.TempDir()})

	outcome := r.Run(context.Background(), queuedJob("job-2", "https://example.com/v/2"))

	if outcome.Kind != OutcomeFailed {
		t.Fatalf("kind: got %v, want failed", outcome.Kind)
	}
	if outcome.ErrorKind != domain.ErrorKindRestricted {
		t.Fatalf("error kind: got %q, want restricted", outcome.ErrorKind)
	}
	if outcome.Retryable {
		t.Fatal("restricted failure must not be retryable")
	}
	if !strings.Contains(outcome.ErrorMessage, "Private video") {
		t.Fatalf("error message should carry stderr, got %q", outcome.ErrorMessage)
	}
}

func TestRun_ZeroExitWithoutOutputFileFails(t *testing.T) {
	installFakeYtDlp(t, `exit 0`)

	store := &memStore{status: domain.StatusQueued}
	r := New(store, newTestLogger(t), Options{OutDir: t.TempDir()})

	outcome := r.Run(context.Background(), queuedJob("job-3", "https://example.com/v/3"))

	if outcome.Kind != OutcomeFailed {
		t.Fatalf("kind: got %v, want failed", outcome.Kind)
	}
	if outcome.ErrorKind != domain.ErrorKindFormat {
		t.Fatalf("error kind: got %q, want format", outcome.ErrorKind)
	}
	if !outcome.Retryable {
		t.Fatal("zero-exit-no-file should stay retryable")
	}
}

func TestRun_CancellationTerminatesProcess(t *testing.T) {
	installFakeYtDlp(t, `exec sleep 30`)

	store := &memStore{status: domain.StatusQueued}
	r := New(store, newTestLogger(t), Options{OutDir: t.TempDir()})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(150*time.Millisecond, cancel)

	start := time.Now()
	outcome := r.Run(ctx, queuedJob("job-4", "https://example.com/v/4"))

	if outcome.Kind != OutcomeCancelled {
		t.Fatalf("kind: got %v, want cancelled (%+v)", outcome.Kind, outcome)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("cancel took %s, process was not terminated promptly", elapsed)
	}
}

func TestRun_IdleTimeoutKillsStuckProcess(t *testing.T) {
	installFakeYtDlp(t, `exec sleep 30`)

	store := &memStore{status: domain.StatusQueued}
	r := New(store, newTestLogger(t), Options{
		OutDir:      t.TempDir(),
		IdleTimeout: 300 * time.Millisecond,
	})

	start := time.Now()
	outcome := r.Run(context.Background(), queuedJob("job-5", "https://example.com/v/5"))

	if outcome.Kind != OutcomeFailed {
		t.Fatalf("kind: got %v, want failed (%+v)", outcome.Kind, outcome)
	}
	if outcome.ErrorKind != domain.ErrorKindNetwork {
		t.Fatalf("error kind: got %q, want network", outcome.ErrorKind)
	}
	if !outcome.Retryable {
		t.Fatal("idle timeout should be retryable")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("watchdog took %s to fire", elapsed)
	}
}

func TestRun_LostClaimAbandonsRun(t *testing.T) {
	installFakeYtDlp(t, `exit 0`)

	// Another actor already moved the job off queued; the CAS must lose and
	// the runner must not act on the job's behalf.
	store := &memStore{status: domain.StatusCancelled}
	r := New(store, newTestLogger(t), Options{OutDir: t.TempDir()})

	outcome := r.Run(context.Background(), queuedJob("job-6", "https://example.com/v/6"))

	if outcome.Kind != OutcomeCancelled {
		t.Fatalf("kind: got %v, want cancelled", outcome.Kind)
	}
	if status, _ := store.snapshot(); status != domain.StatusCancelled {
		t.Fatalf("status: got %q, want untouched cancelled", status)
	}
}

func TestRun_MissingBinaryFailsRetryable(t *testing.T) {
	store := &memStore{status: domain.StatusQueued}
	r := New(store, newTestLogger(t), Options{
		Binary: "gograb-test-binary-that-does-not-exist",
		OutDir: t.TempDir(),
	})

	outcome := r.Run(context.Background(), queuedJob("job-7", "https://example.com/v/7"))

	if outcome.Kind != OutcomeFailed {
		t.Fatalf("kind: got %v, want failed", outcome.Kind)
	}
	if outcome.ErrorKind != domain.ErrorKindUnknown {
		t.Fatalf("error kind: got %q, want unknown", outcome.ErrorKind)
	}
	// Unknown stays retryable so the job can run again once the binary is
	// installed; the retry cap bounds the automatic attempts.
	if !outcome.Retryable {
		t.Fatal("spawn failure must stay retryable")
	}
	if status, _ := store.snapshot(); status != domain.StatusQueued {
		t.Fatalf("status: got %q, want still queued", status)
	}
}

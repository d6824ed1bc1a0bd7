package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hunght/gograb/internal/domain"
)

func newTestStore(t *testing.T) *PersistentStore {
	t.Helper()
	s, err := New(DriverSQLite, filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedJob(t *testing.T, s *PersistentStore, id string, status domain.JobStatus, createdAt time.Time) *domain.DownloadJob {
	t.Helper()
	job := &domain.DownloadJob{
		ID:        id,
		SourceURL: "https://example.com/v/" + id,
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := s.CreateJob(job); err != nil {
		t.Fatalf("seed job %s: %v", id, err)
	}
	return job
}

func TestCreateAndGetJob(t *testing.T) {
	s := newTestStore(t)

	created := time.Now().Truncate(time.Microsecond)
	job := &domain.DownloadJob{
		ID:                     "j1",
		SourceURL:              "https://example.com/v/j1",
		Status:                 domain.StatusPending,
		Format:                 "best",
		OutputFormat:           "mp4",
		OutputPath:             "/music",
		OutputFilenameTemplate: "%(title)s.%(ext)s",
		CreatedAt:              created,
		UpdatedAt:              created,
	}
	if err := s.CreateJob(job); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetJob("j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected job, got nil")
	}
	if got.SourceURL != job.SourceURL || got.Status != domain.StatusPending {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Format != "best" || got.OutputFormat != "mp4" || got.OutputPath != "/music" {
		t.Fatalf("download params lost: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("created_at: got %v, want %v", got.CreatedAt, created)
	}
}

func TestGetJob_NotFoundIsNilNil(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetJob("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestTransition_CASAllowsExactlyOneWinner(t *testing.T) {
	s := newTestStore(t)
	seedJob(t, s, "j1", domain.StatusPending, time.Now())

	ok, err := s.Transition("j1", domain.StatusPending, domain.StatusQueued, nil)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%t err=%v", ok, err)
	}

	// Second claimant must lose without an error
	ok, err = s.Transition("j1", domain.StatusPending, domain.StatusQueued, nil)
	if err != nil {
		t.Fatalf("second claim errored: %v", err)
	}
	if ok {
		t.Fatal("second claim must lose the swap")
	}

	got, _ := s.GetJob("j1")
	if got.Status != domain.StatusQueued {
		t.Fatalf("status: got %q, want queued", got.Status)
	}
}

func TestTransition_RejectsInvalidPath(t *testing.T) {
	s := newTestStore(t)
	seedJob(t, s, "j1", domain.StatusPending, time.Now())

	if _, err := s.Transition("j1", domain.StatusPending, domain.StatusCompleted, nil); err == nil {
		t.Fatal("expected invalid transition error")
	}

	got, _ := s.GetJob("j1")
	if got.Status != domain.StatusPending {
		t.Fatalf("row changed despite rejection: %q", got.Status)
	}
}

func TestTransition_CompletionWritesFileFields(t *testing.T) {
	s := newTestStore(t)
	seedJob(t, s, "j1", domain.StatusDownloading, time.Now())

	ok, err := s.Transition("j1", domain.StatusDownloading, domain.StatusCompleted,
		domain.CompletionFields("/tmp/out/video.mp4", 126303928))
	if err != nil || !ok {
		t.Fatalf("complete: ok=%t err=%v", ok, err)
	}

	got, _ := s.GetJob("j1")
	if got.Status != domain.StatusCompleted {
		t.Fatalf("status: got %q", got.Status)
	}
	if got.FilePath != "/tmp/out/video.mp4" || got.FileSizeBytes != 126303928 {
		t.Fatalf("file fields: %q %d", got.FilePath, got.FileSizeBytes)
	}
	if got.ProgressPercent != 100 {
		t.Fatalf("progress: got %.1f, want 100", got.ProgressPercent)
	}
}

func TestTransition_FailureWritesErrorTriple(t *testing.T) {
	s := newTestStore(t)
	seedJob(t, s, "j1", domain.StatusDownloading, time.Now())

	ok, err := s.Transition("j1", domain.StatusDownloading, domain.StatusFailed,
		domain.FailureFields("ERROR: HTTP Error 429", domain.ErrorKindNetwork, true))
	if err != nil || !ok {
		t.Fatalf("fail: ok=%t err=%v", ok, err)
	}

	got, _ := s.GetJob("j1")
	if got.ErrorMessage != "ERROR: HTTP Error 429" {
		t.Fatalf("error message: %q", got.ErrorMessage)
	}
	if got.ErrorKind != domain.ErrorKindNetwork || !got.IsRetryable {
		t.Fatalf("classification: %q retryable=%t", got.ErrorKind, got.IsRetryable)
	}
}

func TestTransition_RequeueResetsProgressAndCountsRetry(t *testing.T) {
	s := newTestStore(t)
	seedJob(t, s, "j1", domain.StatusDownloading, time.Now())

	if err := s.UpdateProgress("j1", 42.5, "2.00MiB/s", 30); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if ok, err := s.Transition("j1", domain.StatusDownloading, domain.StatusFailed,
		domain.FailureFields("boom", domain.ErrorKindNetwork, true)); err != nil || !ok {
		t.Fatalf("fail: ok=%t err=%v", ok, err)
	}

	ok, err := s.Transition("j1", domain.StatusFailed, domain.StatusPending, domain.RequeueFields())
	if err != nil || !ok {
		t.Fatalf("requeue: ok=%t err=%v", ok, err)
	}

	got, _ := s.GetJob("j1")
	if got.Status != domain.StatusPending {
		t.Fatalf("status: got %q", got.Status)
	}
	if got.ProgressPercent != 0 || got.Speed != "" || got.ETASeconds != 0 {
		t.Fatalf("stale progress survived requeue: %.1f %q %d", got.ProgressPercent, got.Speed, got.ETASeconds)
	}
	if got.ErrorMessage != "" || got.ErrorKind != "" || got.IsRetryable {
		t.Fatalf("error triple survived requeue: %+v", got)
	}
	if got.RetryCount != 1 {
		t.Fatalf("retry count: got %d, want 1", got.RetryCount)
	}
}

func TestListJobsByStatus_OldestFirst(t *testing.T) {
	s := newTestStore(t)

	base := time.Now()
	// Insert out of chronological order to prove the sort does the work
	seedJob(t, s, "newest", domain.StatusPending, base.Add(2*time.Microsecond))
	seedJob(t, s, "oldest", domain.StatusPending, base)
	seedJob(t, s, "middle", domain.StatusPending, base.Add(time.Microsecond))
	seedJob(t, s, "other", domain.StatusCompleted, base)

	jobs, err := s.ListJobsByStatus(domain.StatusPending)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	want := []string{"oldest", "middle", "newest"}
	if len(jobs) != len(want) {
		t.Fatalf("count: got %d, want %d", len(jobs), len(want))
	}
	for i, id := range want {
		if jobs[i].ID != id {
			t.Fatalf("order[%d]: got %q, want %q", i, jobs[i].ID, id)
		}
	}
}

func TestListJobs_FilterAndPagination(t *testing.T) {
	s := newTestStore(t)

	base := time.Now()
	for i, id := range []string{"a", "b", "c", "d"} {
		seedJob(t, s, id, domain.StatusCompleted, base.Add(time.Duration(i)*time.Microsecond))
	}
	seedJob(t, s, "p", domain.StatusPending, base)

	jobs, err := s.ListJobs(domain.JobFilter{Status: domain.StatusCompleted, Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("count: got %d, want 2", len(jobs))
	}
	// Newest first, so the page after "d" is "c", "b"
	if jobs[0].ID != "c" || jobs[1].ID != "b" {
		t.Fatalf("page: got %q, %q", jobs[0].ID, jobs[1].ID)
	}
}

func TestDeleteJob(t *testing.T) {
	s := newTestStore(t)
	seedJob(t, s, "j1", domain.StatusCompleted, time.Now())

	if err := s.DeleteJob("j1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := s.GetJob("j1"); got != nil {
		t.Fatalf("row survived delete: %+v", got)
	}

	// Deleting an absent row is not an error
	if err := s.DeleteJob("j1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)

	now := time.Now()
	seedJob(t, s, "p1", domain.StatusPending, now)
	seedJob(t, s, "p2", domain.StatusPending, now)
	seedJob(t, s, "d1", domain.StatusDownloading, now)
	seedJob(t, s, "f1", domain.StatusFailed, now)

	c := seedJob(t, s, "c1", domain.StatusDownloading, now)
	if ok, err := s.Transition(c.ID, domain.StatusDownloading, domain.StatusCompleted,
		domain.CompletionFields("/tmp/a.mp4", 1000)); err != nil || !ok {
		t.Fatalf("complete: ok=%t err=%v", ok, err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 5 {
		t.Fatalf("total: got %d, want 5", stats.Total)
	}
	if stats.Pending != 2 || stats.Downloading != 1 || stats.Failed != 1 || stats.Completed != 1 {
		t.Fatalf("per-status counts wrong: %+v", stats)
	}
	if stats.TotalBytesOnDisk != 1000 {
		t.Fatalf("bytes on disk: got %d, want 1000", stats.TotalBytesOnDisk)
	}
}

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hunght/gograb/internal/domain"
)

const jobColumns = `id, source_url, status, progress_percent, speed, eta_seconds,
	format, output_format, output_path, output_filename_template,
	file_path, file_size_bytes, title, duration_seconds,
	error_message, error_kind, is_retryable, retry_count, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (*domain.DownloadJob, error) {
	var dbo jobDBO
	err := row.Scan(
		&dbo.ID, &dbo.SourceURL, &dbo.Status, &dbo.ProgressPercent, &dbo.Speed, &dbo.ETASeconds,
		&dbo.Format, &dbo.OutputFormat, &dbo.OutputPath, &dbo.OutputFilenameTemplate,
		&dbo.FilePath, &dbo.FileSizeBytes, &dbo.Title, &dbo.DurationSeconds,
		&dbo.ErrorMessage, &dbo.ErrorKind, &dbo.IsRetryable, &dbo.RetryCount, &dbo.CreatedAt, &dbo.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return dbo.ToDomain(), nil
}

// CreateJob inserts a new row. The caller assigns the id and timestamps.
func (s *PersistentStore) CreateJob(job *domain.DownloadJob) error {
	var dbo jobDBO
	dbo.FromDomain(job)

	query := s.rebind(`INSERT INTO download_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.Exec(query,
		dbo.ID, dbo.SourceURL, dbo.Status, dbo.ProgressPercent, dbo.Speed, dbo.ETASeconds,
		dbo.Format, dbo.OutputFormat, dbo.OutputPath, dbo.OutputFilenameTemplate,
		dbo.FilePath, dbo.FileSizeBytes, dbo.Title, dbo.DurationSeconds,
		dbo.ErrorMessage, dbo.ErrorKind, dbo.IsRetryable, dbo.RetryCount, dbo.CreatedAt, dbo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob fetches a single job. Returns nil, nil when the id does not exist.
func (s *PersistentStore) GetJob(id string) (*domain.DownloadJob, error) {
	query := s.rebind(`SELECT ` + jobColumns + ` FROM download_jobs WHERE id = ? LIMIT 1`)

	job, err := scanJob(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to fetch job %s: %w", id, err)
	}
	return job, nil
}

// ListJobsByStatus returns every job in the given status, oldest first.
// This is the scheduler's dispatch order; the id tiebreak is stable because
// ksuids sort chronologically.
func (s *PersistentStore) ListJobsByStatus(status domain.JobStatus) ([]*domain.DownloadJob, error) {
	query := s.rebind(`SELECT ` + jobColumns + ` FROM download_jobs
		WHERE status = ? ORDER BY created_at ASC, id ASC`)

	rows, err := s.db.Query(query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s jobs: %w", status, err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListJobs is the display-facing listing: optional status filter, newest
// first, limit/offset pagination.
func (s *PersistentStore) ListJobs(filter domain.JobFilter) ([]*domain.DownloadJob, error) {
	query := `SELECT ` + jobColumns + ` FROM download_jobs`
	args := []any{}

	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}

	query += ` ORDER BY created_at DESC, id DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.Query(s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func collectJobs(rows *sql.Rows) ([]*domain.DownloadJob, error) {
	var jobs []*domain.DownloadJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateProgress writes the latest observed progress for one job. The runner
// throttles how often this is called; the write itself is unconditional.
func (s *PersistentStore) UpdateProgress(id string, percent float64, speed string, etaSeconds int64) error {
	query := s.rebind(`UPDATE download_jobs
		SET progress_percent = ?, speed = ?, eta_seconds = ?, updated_at = ?
		WHERE id = ?`)

	_, err := s.db.Exec(query, percent, speed, etaSeconds, time.Now().UnixMicro(), id)
	if err != nil {
		return fmt.Errorf("failed to update progress for %s: %w", id, err)
	}
	return nil
}

// UpdateMetadata records best-effort title/duration enrichment.
func (s *PersistentStore) UpdateMetadata(id string, title string, durationSeconds int64) error {
	query := s.rebind(`UPDATE download_jobs
		SET title = ?, duration_seconds = ?, updated_at = ?
		WHERE id = ?`)

	_, err := s.db.Exec(query, title, durationSeconds, time.Now().UnixMicro(), id)
	if err != nil {
		return fmt.Errorf("failed to update metadata for %s: %w", id, err)
	}
	return nil
}

// Transition is the compare-and-swap status change. The row only moves when
// its current status still equals 'from', so a scheduler and a stale runner
// racing on the same job cannot both win. Returns false (no error) when the
// swap lost; this also holds across a crash-restart boundary because the
// check runs inside the UPDATE itself.
//
// An empty 'from' skips the guard and matches any current status.
func (s *PersistentStore) Transition(id string, from, to domain.JobStatus, fields *domain.TransitionFields) (bool, error) {
	if from != "" && !domain.CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	set := []string{"status = ?", "updated_at = ?"}
	args := []any{string(to), time.Now().UnixMicro()}

	if fields != nil {
		if fields.ProgressPercent != nil {
			set = append(set, "progress_percent = ?")
			args = append(args, *fields.ProgressPercent)

			// A progress reset also clears the stale speed/ETA readouts
			if *fields.ProgressPercent == 0 {
				set = append(set, "speed = ?", "eta_seconds = ?")
				args = append(args, "", int64(0))
			}
		}
		if fields.FilePath != nil {
			set = append(set, "file_path = ?")
			args = append(args, *fields.FilePath)
		}
		if fields.FileSizeBytes != nil {
			set = append(set, "file_size_bytes = ?")
			args = append(args, *fields.FileSizeBytes)
		}
		if fields.ErrorMessage != nil {
			set = append(set, "error_message = ?")
			args = append(args, *fields.ErrorMessage)
		}
		if fields.ErrorKind != nil {
			set = append(set, "error_kind = ?")
			args = append(args, string(*fields.ErrorKind))
		}
		if fields.IsRetryable != nil {
			retryable := int64(0)
			if *fields.IsRetryable {
				retryable = 1
			}
			set = append(set, "is_retryable = ?")
			args = append(args, retryable)
		}
		if fields.ClearError {
			set = append(set, "error_message = ?", "error_kind = ?", "is_retryable = ?")
			args = append(args, "", "", int64(0))
		}
		if fields.IncrementRetry {
			set = append(set, "retry_count = retry_count + 1")
		}
	}

	query := `UPDATE download_jobs SET ` + strings.Join(set, ", ") + ` WHERE id = ?`
	args = append(args, id)

	if from != "" {
		query += ` AND status = ?`
		args = append(args, string(from))
	}

	res, err := s.db.Exec(s.rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition job %s to %s: %w", id, to, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// DeleteJob removes a row. Refusing deletion while the job is active is the
// engine's responsibility, not the store's.
func (s *PersistentStore) DeleteJob(id string) error {
	query := s.rebind(`DELETE FROM download_jobs WHERE id = ?`)

	if _, err := s.db.Exec(query, id); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	return nil
}

// Stats aggregates per-status counts plus bytes on disk across completed jobs.
func (s *PersistentStore) Stats() (*domain.QueueStats, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*), COALESCE(SUM(file_size_bytes), 0)
		FROM download_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}
	defer rows.Close()

	stats := &domain.QueueStats{}
	for rows.Next() {
		var status string
		var count int
		var bytes int64
		if err := rows.Scan(&status, &count, &bytes); err != nil {
			return nil, err
		}

		stats.Total += count
		switch domain.JobStatus(status) {
		case domain.StatusPending:
			stats.Pending = count
		case domain.StatusQueued:
			stats.Queued = count
		case domain.StatusDownloading:
			stats.Downloading = count
		case domain.StatusPaused:
			stats.Paused = count
		case domain.StatusCompleted:
			stats.Completed = count
			stats.TotalBytesOnDisk = bytes
		case domain.StatusFailed:
			stats.Failed = count
		case domain.StatusCancelled:
			stats.Cancelled = count
		}
	}

	return stats, rows.Err()
}

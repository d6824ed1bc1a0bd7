package store

import (
	"time"

	"github.com/hunght/gograb/internal/domain"
)

// jobDBO maps to the download_jobs table
type jobDBO struct {
	ID                     string  `db:"id"`
	SourceURL              string  `db:"source_url"`
	Status                 string  `db:"status"`
	ProgressPercent        float64 `db:"progress_percent"`
	Speed                  string  `db:"speed"`
	ETASeconds             int64   `db:"eta_seconds"`
	Format                 string  `db:"format"`
	OutputFormat           string  `db:"output_format"`
	OutputPath             string  `db:"output_path"`
	OutputFilenameTemplate string  `db:"output_filename_template"`
	FilePath               string  `db:"file_path"`
	FileSizeBytes          int64   `db:"file_size_bytes"`
	Title                  string  `db:"title"`
	DurationSeconds        int64   `db:"duration_seconds"`
	ErrorMessage           string  `db:"error_message"`
	ErrorKind              string  `db:"error_kind"`
	IsRetryable            int64   `db:"is_retryable"`
	RetryCount             int64   `db:"retry_count"`
	CreatedAt              int64   `db:"created_at"`
	UpdatedAt              int64   `db:"updated_at"`
}

// Mapper: DBO to Domain DownloadJob
func (j *jobDBO) ToDomain() *domain.DownloadJob {
	return &domain.DownloadJob{
		ID:                     j.ID,
		SourceURL:              j.SourceURL,
		Status:                 domain.JobStatus(j.Status),
		ProgressPercent:        j.ProgressPercent,
		Speed:                  j.Speed,
		ETASeconds:             j.ETASeconds,
		Format:                 j.Format,
		OutputFormat:           j.OutputFormat,
		OutputPath:             j.OutputPath,
		OutputFilenameTemplate: j.OutputFilenameTemplate,
		FilePath:               j.FilePath,
		FileSizeBytes:          j.FileSizeBytes,
		Title:                  j.Title,
		DurationSeconds:        j.DurationSeconds,
		ErrorMessage:           j.ErrorMessage,
		ErrorKind:              domain.ErrorKind(j.ErrorKind),
		IsRetryable:            j.IsRetryable != 0,
		RetryCount:             int(j.RetryCount),
		CreatedAt:              time.UnixMicro(j.CreatedAt),
		UpdatedAt:              time.UnixMicro(j.UpdatedAt),
	}
}

// Mapper: Domain DownloadJob to DBO
func (j *jobDBO) FromDomain(job *domain.DownloadJob) {
	j.ID = job.ID
	j.SourceURL = job.SourceURL
	j.Status = string(job.Status)
	j.ProgressPercent = job.ProgressPercent
	j.Speed = job.Speed
	j.ETASeconds = job.ETASeconds
	j.Format = job.Format
	j.OutputFormat = job.OutputFormat
	j.OutputPath = job.OutputPath
	j.OutputFilenameTemplate = job.OutputFilenameTemplate
	j.FilePath = job.FilePath
	j.FileSizeBytes = job.FileSizeBytes
	j.Title = job.Title
	j.DurationSeconds = job.DurationSeconds
	j.ErrorMessage = job.ErrorMessage
	j.ErrorKind = string(job.ErrorKind)

	j.IsRetryable = 0
	if job.IsRetryable {
		j.IsRetryable = 1
	}

	j.RetryCount = int64(job.RetryCount)
	// Microsecond timestamps keep batch enqueues distinguishable for the
	// created_at FIFO ordering.
	j.CreatedAt = job.CreatedAt.UnixMicro()
	j.UpdatedAt = job.UpdatedAt.UnixMicro()
}

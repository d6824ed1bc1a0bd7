package domain

import "time"

type JobStatus string

const (
	StatusPending     JobStatus = "pending"
	StatusQueued      JobStatus = "queued"
	StatusDownloading JobStatus = "downloading"
	StatusPaused      JobStatus = "paused"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
	StatusCancelled   JobStatus = "cancelled"
)

type ErrorKind string

const (
	ErrorKindNetwork    ErrorKind = "network"
	ErrorKindRestricted ErrorKind = "restricted"
	ErrorKindFormat     ErrorKind = "format"
	ErrorKindUnknown    ErrorKind = "unknown"
)

// DownloadJob represents one requested download across its whole lifecycle.
// The scheduler owns status transitions; the runner owns progress and
// terminal fields while it holds the job.
type DownloadJob struct {
	ID        string    `json:"id"`
	SourceURL string    `json:"source_url"`
	Status    JobStatus `json:"status"`

	// 0-100, monotonic while downloading. Stays at 100 on completed,
	// reset to 0 when the job is re-queued after a failure.
	ProgressPercent float64 `json:"progress_percent"`
	Speed           string  `json:"speed,omitempty"`
	ETASeconds      int64   `json:"eta_seconds,omitempty"`

	Format                 string `json:"format,omitempty"`
	OutputFormat           string `json:"output_format,omitempty"`
	OutputPath             string `json:"output_path,omitempty"`
	OutputFilenameTemplate string `json:"output_filename_template,omitempty"`

	FilePath      string `json:"file_path,omitempty"`
	FileSizeBytes int64  `json:"file_size_bytes,omitempty"`

	Title           string `json:"title,omitempty"`
	DurationSeconds int64  `json:"duration_seconds,omitempty"`

	ErrorMessage string    `json:"error_message,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	IsRetryable  bool      `json:"is_retryable"`

	RetryCount int `json:"retry_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether no further automatic transition applies.
// A failed job is only terminal for good when it is not retryable.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// QueueStats is the aggregate view exposed to callers.
type QueueStats struct {
	Total            int   `json:"total"`
	Pending          int   `json:"pending"`
	Queued           int   `json:"queued"`
	Downloading      int   `json:"downloading"`
	Paused           int   `json:"paused"`
	Completed        int   `json:"completed"`
	Failed           int   `json:"failed"`
	Cancelled        int   `json:"cancelled"`
	TotalBytesOnDisk int64 `json:"total_bytes_on_disk"`
}

// JobFilter narrows ListJobs results. Zero value means "everything".
type JobFilter struct {
	Status JobStatus
	Limit  int
	Offset int
}

// EnqueueParams is one enqueue request: any number of source URLs sharing
// the same download-selection parameters.
type EnqueueParams struct {
	URLs                   []string
	Format                 string
	OutputFormat           string
	OutputPath             string
	OutputFilenameTemplate string
}

// MediaInfo is best-effort metadata resolved after a completed download.
type MediaInfo struct {
	Title           string
	DurationSeconds int64
}

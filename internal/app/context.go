package app

import (
	"context"

	"github.com/hunght/gograb/internal/config"
	"github.com/hunght/gograb/internal/domain"
	"github.com/hunght/gograb/internal/logger"
)

// Store is the durable job table: the single source of truth for status,
// progress, and error metadata. Transition is compare-and-swap; it is the
// only synchronization primitive between the scheduler and a runner racing
// to change the same job's status.
type Store interface {
	CreateJob(job *domain.DownloadJob) error
	GetJob(id string) (*domain.DownloadJob, error)
	ListJobsByStatus(status domain.JobStatus) ([]*domain.DownloadJob, error)
	ListJobs(filter domain.JobFilter) ([]*domain.DownloadJob, error)
	UpdateProgress(id string, percent float64, speed string, etaSeconds int64) error
	UpdateMetadata(id string, title string, durationSeconds int64) error
	Transition(id string, from, to domain.JobStatus, fields *domain.TransitionFields) (bool, error)
	DeleteJob(id string) error
	Stats() (*domain.QueueStats, error)
	Close() error
}

// Engine is the queue surface the API layer talks to, so controllers don't
// import the engine package directly.
type Engine interface {
	Enqueue(params domain.EnqueueParams) ([]string, error)
	Cancel(id string) bool
	Pause(id string) bool
	Resume(id string) bool
	Retry(id string) bool
	Delete(id string) error
	GetJob(id string) (*domain.DownloadJob, error)
	ListJobs(filter domain.JobFilter) ([]*domain.DownloadJob, error)
	Stats() (*domain.QueueStats, error)
}

// MetadataResolver enriches a completed job, best-effort only.
type MetadataResolver interface {
	Resolve(ctx context.Context, url, filePath string) (*domain.MediaInfo, error)
}

// Context holds the core environment and shared resources for GoGrab.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	Store  Store
	Engine Engine
}

// NewContext initializes the base environment.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
	}
}

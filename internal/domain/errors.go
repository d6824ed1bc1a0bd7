package domain

import "errors"

// ErrJobNotFound indicates the requested job id does not exist in the store
var ErrJobNotFound = errors.New("job not found")

// ErrNotRetryable indicates a retry was requested for a permanent failure
var ErrNotRetryable = errors.New("job is not retryable")

// ErrJobActive indicates an operation that is illegal while a runner owns the job
var ErrJobActive = errors.New("job is currently active")

// ErrEmptyBatch indicates an enqueue request without any URLs
var ErrEmptyBatch = errors.New("no URLs to enqueue")

// ErrInvalidTransition indicates a status change the state machine forbids
var ErrInvalidTransition = errors.New("invalid status transition")

package domain

// TransitionFields carries the row columns written atomically alongside a
// status change. Nil pointers leave the column untouched.
type TransitionFields struct {
	ProgressPercent *float64
	FilePath        *string
	FileSizeBytes   *int64
	ErrorMessage    *string
	ErrorKind       *ErrorKind
	IsRetryable     *bool
	IncrementRetry  bool
	ClearError      bool
}

// CompletionFields marks a verified successful download.
func CompletionFields(filePath string, sizeBytes int64) *TransitionFields {
	full := 100.0
	return &TransitionFields{
		ProgressPercent: &full,
		FilePath:        &filePath,
		FileSizeBytes:   &sizeBytes,
	}
}

// FailureFields records the classified error triple on a failed job.
func FailureFields(message string, kind ErrorKind, retryable bool) *TransitionFields {
	return &TransitionFields{
		ErrorMessage: &message,
		ErrorKind:    &kind,
		IsRetryable:  &retryable,
	}
}

// RequeueFields resets a failed job for another attempt: error fields
// cleared, progress back to 0, retry counter bumped.
func RequeueFields() *TransitionFields {
	zero := 0.0
	return &TransitionFields{
		ProgressPercent: &zero,
		ClearError:      true,
		IncrementRetry:  true,
	}
}

// RecoveryFields resets a job stranded by an unclean shutdown. Unlike a
// retry this does not count as an attempt.
func RecoveryFields() *TransitionFields {
	zero := 0.0
	return &TransitionFields{
		ProgressPercent: &zero,
	}
}

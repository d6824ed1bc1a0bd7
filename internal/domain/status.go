package domain

// allowedTransitions is the full legal state machine for a job. The store's
// compare-and-swap update enforces the expected-prior-status half of this at
// the row level; this table is the single place the legality itself lives.
var allowedTransitions = map[JobStatus]map[JobStatus]bool{
	StatusPending: {
		StatusQueued:    true,
		StatusCancelled: true,
	},
	StatusQueued: {
		StatusDownloading: true,
		StatusFailed:      true, // spawn failure before the subprocess ever ran
		StatusCancelled:   true,
		StatusPending:     true, // startup recovery
	},
	StatusDownloading: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
		StatusPaused:    true,
		StatusPending:   true, // startup recovery
	},
	StatusPaused: {
		StatusPending:   true, // resume re-enters the queue
		StatusCancelled: true,
	},
	StatusFailed: {
		StatusPending: true, // retry, only when retryable
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

func IsKnownStatus(s JobStatus) bool {
	_, ok := allowedTransitions[s]
	return ok
}

func CanTransition(from, to JobStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

package domain

import "testing"

func TestCanTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from JobStatus
		to   JobStatus
	}{
		{StatusPending, StatusQueued},
		{StatusPending, StatusCancelled},
		{StatusQueued, StatusDownloading},
		{StatusQueued, StatusFailed},
		{StatusQueued, StatusPending},
		{StatusDownloading, StatusCompleted},
		{StatusDownloading, StatusFailed},
		{StatusDownloading, StatusCancelled},
		{StatusDownloading, StatusPaused},
		{StatusDownloading, StatusPending},
		{StatusPaused, StatusPending},
		{StatusFailed, StatusPending},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from JobStatus
		to   JobStatus
	}{
		{StatusPending, StatusDownloading},
		{StatusPending, StatusCompleted},
		{StatusQueued, StatusCompleted},
		{StatusCompleted, StatusPending},
		{StatusCompleted, StatusDownloading},
		{StatusCancelled, StatusPending},
		{StatusFailed, StatusDownloading},
		{StatusPaused, StatusDownloading},
		{"not_a_state", StatusPending},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []JobStatus{StatusCompleted, StatusFailed, StatusCancelled} {
		if !s.IsTerminal() {
			t.Fatalf("expected %q to be terminal", s)
		}
	}
	for _, s := range []JobStatus{StatusPending, StatusQueued, StatusDownloading, StatusPaused} {
		if s.IsTerminal() {
			t.Fatalf("expected %q to be non-terminal", s)
		}
	}
}

// Package metadata resolves title and duration for a finished download.
// Everything here is best-effort: a resolver failure never changes a job's
// terminal status.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hunght/gograb/internal/domain"
)

type Resolver struct {
	Binary  string // yt-dlp
	Timeout time.Duration
}

func NewResolver(binary string) *Resolver {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &Resolver{Binary: binary, Timeout: 30 * time.Second}
}

// Resolve asks yt-dlp for the media metadata of a URL. When that fails and
// the downloaded file is on disk, an ffprobe duration probe is the fallback.
func (r *Resolver) Resolve(ctx context.Context, url, filePath string) (*domain.MediaInfo, error) {
	info, err := r.fromYTDLP(ctx, url)
	if err == nil {
		return info, nil
	}

	if filePath != "" {
		if probe, probeErr := NewCLIFFProbe(); probeErr == nil {
			if duration, durErr := probe.Duration(ctx, filePath); durErr == nil {
				return &domain.MediaInfo{DurationSeconds: duration}, nil
			}
		}
	}

	return nil, err
}

func (r *Resolver) fromYTDLP(ctx context.Context, url string) (*domain.MediaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	binPath, err := exec.LookPath(r.Binary)
	if err != nil {
		return nil, fmt.Errorf("%s binary not found in PATH: %w", r.Binary, err)
	}

	cmd := exec.CommandContext(ctx, binPath, "-J", "--no-playlist", url)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("metadata probe failed: %w", err)
	}

	var payload struct {
		Title    string  `json:"title"`
		Duration float64 `json:"duration"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode metadata JSON: %w", err)
	}

	return &domain.MediaInfo{
		Title:           payload.Title,
		DurationSeconds: int64(payload.Duration),
	}, nil
}

type CLIFFProbe struct {
	BinaryPath string
}

func NewCLIFFProbe() (*CLIFFProbe, error) {
	path, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe binary not found in PATH: %w", err)
	}
	return &CLIFFProbe{BinaryPath: path}, nil
}

// Duration reads the container duration of a local media file in seconds.
func (p *CLIFFProbe) Duration(ctx context.Context, filePath string) (int64, error) {
	cmd := exec.CommandContext(ctx, p.BinaryPath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		filePath,
	)

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", filePath, err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe output %q: %w", strings.TrimSpace(string(out)), err)
	}

	return int64(seconds), nil
}

package runner

import (
	"strings"

	"github.com/hunght/gograb/internal/domain"
)

// audioFormats are output formats that require yt-dlp's extract-audio mode
// instead of a container merge.
var audioFormats = map[string]bool{
	"mp3":  true,
	"m4a":  true,
	"opus": true,
	"aac":  true,
	"flac": true,
	"wav":  true,
}

// containerFormats get remuxed into the requested container after download.
var containerFormats = map[string]bool{
	"mp4":  true,
	"mkv":  true,
	"webm": true,
	"mov":  true,
}

// buildArgs translates a job's download parameters into the yt-dlp argument
// vector. --newline forces one progress report per line so the line reader
// sees clean events, --no-colors keeps ANSI noise out of the parser.
func buildArgs(job *domain.DownloadJob, outDir, template string, extra []string) []string {
	args := []string{
		"--newline",
		"--no-playlist",
		"--no-colors",
	}

	if job.OutputPath != "" {
		outDir = job.OutputPath
	}
	if job.OutputFilenameTemplate != "" {
		template = job.OutputFilenameTemplate
	}

	args = append(args, "-P", outDir, "-o", template)

	if job.Format != "" {
		args = append(args, "-f", job.Format)
	}

	switch format := strings.ToLower(strings.TrimSpace(job.OutputFormat)); {
	case format == "":
		// default: whatever yt-dlp picks
	case audioFormats[format]:
		args = append(args, "-x", "--audio-format", format)
	case containerFormats[format]:
		args = append(args, "--merge-output-format", format)
	}

	args = append(args, extra...)
	args = append(args, job.SourceURL)

	return args
}

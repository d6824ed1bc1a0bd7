// Package parser turns raw yt-dlp output lines into structured progress
// events. It is pure: no I/O, no state, so it can be tested against a corpus
// of recorded lines. Line splitting (including the \r rewrites yt-dlp uses
// for its progress bar) is the runner's job, not this package's.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Event is what one recognized output line carries. Fields are only
// meaningful when their Has* flag (or non-zero value) says so.
type Event struct {
	Percent    float64
	HasPercent bool

	Speed      string
	ETASeconds int64
	TotalBytes int64

	// DownloadedBytes is derived from percent and total size; yt-dlp does
	// not report it directly on progress lines.
	DownloadedBytes int64

	// Destination is the output file path announced by yt-dlp. The merger
	// and audio extractor announce it again with the final container, so
	// later destinations supersede earlier ones.
	Destination string

	AlreadyDownloaded bool
}

var (
	rePct   = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)%`)
	reSpeed = regexp.MustCompile(`\bat\s+(~?[^\s]+)`) // [download] ... at X
	reETA   = regexp.MustCompile(`\bETA\s+([0-9:]+)`)
	reOf    = regexp.MustCompile(`\bof\s+~?\s*([^\s]+)`)
	reDest  = regexp.MustCompile(`^\[(?:download|ExtractAudio)\] Destination:\s+(.+)$`)
	reMerge = regexp.MustCompile(`^\[Merger\] Merging formats into "(.+)"$`)
	reDone  = regexp.MustCompile(`^\[download\]\s+(.+?) has already been downloaded`)
)

// ParseLine translates one raw subprocess output line. Lines that match no
// known yt-dlp convention yield nil and are ignored by the caller.
func ParseLine(line string) *Event {
	l := strings.TrimSpace(line)
	if l == "" {
		return nil
	}

	if m := reDest.FindStringSubmatch(l); len(m) > 1 {
		return &Event{Destination: strings.TrimSpace(m[1])}
	}

	if m := reMerge.FindStringSubmatch(l); len(m) > 1 {
		return &Event{Destination: strings.TrimSpace(m[1])}
	}

	if m := reDone.FindStringSubmatch(l); len(m) > 1 {
		return &Event{
			Destination:       strings.TrimSpace(m[1]),
			AlreadyDownloaded: true,
			Percent:           100,
			HasPercent:        true,
		}
	}

	if !strings.HasPrefix(l, "[download]") {
		return nil
	}

	ev := &Event{}

	if m := rePct.FindStringSubmatch(l); len(m) > 1 {
		if pct, err := strconv.ParseFloat(m[1], 64); err == nil && pct >= 0 && pct <= 100 {
			ev.Percent = pct
			ev.HasPercent = true
		}
	}

	if m := reSpeed.FindStringSubmatch(l); len(m) > 1 {
		if v := strings.TrimPrefix(m[1], "~"); looksLikeRate(v) {
			ev.Speed = v
		}
	}

	if m := reETA.FindStringSubmatch(l); len(m) > 1 {
		ev.ETASeconds = parseClock(m[1])
	}

	if m := reOf.FindStringSubmatch(l); len(m) > 1 {
		if b, err := humanize.ParseBytes(strings.TrimSuffix(m[1], ",")); err == nil {
			ev.TotalBytes = int64(b)
		}
	}

	if !ev.HasPercent && ev.Speed == "" && ev.ETASeconds == 0 && ev.TotalBytes == 0 {
		return nil
	}

	if ev.HasPercent && ev.TotalBytes > 0 {
		ev.DownloadedBytes = int64(ev.Percent / 100 * float64(ev.TotalBytes))
	}

	return ev
}

// looksLikeRate filters out "at" matches that are not throughput values,
// e.g. prose or the "Unknown B/s" placeholder yt-dlp prints before it has
// a measurement.
func looksLikeRate(v string) bool {
	return strings.HasSuffix(strings.ToLower(v), "b/s")
}

// parseClock converts yt-dlp's mm:ss or hh:mm:ss ETA into seconds.
func parseClock(v string) int64 {
	parts := strings.Split(v, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}

	var total int64
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}

package runner

import (
	"strings"

	"github.com/hunght/gograb/internal/domain"
)

// Rules are the lowercase substring hints that sort a failed download into
// an error kind. yt-dlp's phrasing shifts between releases, so deployments
// can override these from config without a rebuild.
type Rules struct {
	Restricted []string
	Network    []string
	Format     []string
}

func DefaultRules() Rules {
	return Rules{
		Restricted: []string{
			"private video",
			"video unavailable",
			"removed by the uploader",
			"account associated with this video has been terminated",
			"blocked in your country",
			"geo restriction",
			"available in your country",
			"sign in to confirm",
			"members-only",
			"drm protected",
		},
		Network: []string{
			"connection reset",
			"connection refused",
			"timed out",
			"timeout",
			"temporary failure in name resolution",
			"getaddrinfo failed",
			"network is unreachable",
			"429",
			"too many requests",
			"rate limit",
			"temporarily unavailable",
			"http error 5",
			"service unavailable",
			"unable to connect",
		},
		Format: []string{
			"requested format is not available",
			"no video formats found",
			"format is not available",
			"ffmpeg exited with code",
			"postprocessing",
		},
	}
}

// Merge overlays non-empty override lists onto r.
func (r Rules) Merge(restricted, network, format []string) Rules {
	if len(restricted) > 0 {
		r.Restricted = restricted
	}
	if len(network) > 0 {
		r.Network = network
	}
	if len(format) > 0 {
		r.Format = format
	}
	return r
}

// Classify decides the error kind and retryability of a terminal failure.
// It is the single place that decides whether the scheduler will ever offer
// the job for automatic retry.
//
// Order matters: restricted phrases are checked first because they are the
// only non-retryable verdict, then network, then format. A zero exit with a
// missing output file is a format problem (a different selection might
// produce a real file). Anything unrecognized stays retryable so an unknown
// failure mode never permanently blocks a user.
func Classify(exitCode int, stderrText string, outputFileExists bool, rules Rules) (domain.ErrorKind, bool) {
	text := strings.ToLower(stderrText)

	if matchAny(text, rules.Restricted) {
		return domain.ErrorKindRestricted, false
	}

	if matchAny(text, rules.Network) {
		return domain.ErrorKindNetwork, true
	}

	if matchAny(text, rules.Format) {
		return domain.ErrorKindFormat, true
	}

	if exitCode == 0 && !outputFileExists {
		return domain.ErrorKindFormat, true
	}

	return domain.ErrorKindUnknown, true
}

func matchAny(text string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(text, strings.ToLower(h)) {
			return true
		}
	}
	return false
}

package platform

import (
	"fmt"
	"os/exec"
)

// RequiredBinaries lists external system binaries the app needs to function
var RequiredBinaries = []string{
	"yt-dlp",
}

// OptionalBinaries degrade features when absent instead of blocking startup
var OptionalBinaries = map[string]string{
	"ffmpeg":  "merging and audio extraction",
	"ffprobe": "duration probing",
}

func ValidateDependencies() error {
	for _, bin := range RequiredBinaries {
		_, err := exec.LookPath(bin)
		if err != nil {
			return fmt.Errorf("required dependency: '%s' not found in PATH", bin)
		}
	}

	// Check optional helpers
	for bin, feature := range OptionalBinaries {
		if _, err := exec.LookPath(bin); err != nil {
			fmt.Printf("Info: %s not found. %s will be degraded.\n", bin, feature)
		}
	}

	return nil
}

// Package ffmpeg wraps every invocation of the external ffmpeg binary:
// locating it, probing its encoders, building full-screen capture commands,
// and extracting single frames.
package ffmpeg

import (
	"errors"
	"os"
	"os/exec"
)

var (
	ErrNotFound            = errors.New("ffmpeg not found on PATH")
	ErrUnsupportedPlatform = errors.New("full-screen capture not supported on this platform")
)

// homebrewPath is checked when PATH lookup fails (common on macOS launchd
// environments that drop /opt/homebrew/bin).
const homebrewPath = "/opt/homebrew/bin/ffmpeg"

// Locate resolves the ffmpeg binary.
func Locate() (string, error) {
	if p, err := exec.LookPath("ffmpeg"); err == nil {
		return p, nil
	}
	if _, err := os.Stat(homebrewPath); err == nil {
		return homebrewPath, nil
	}
	return "", ErrNotFound
}

// Package session names one capture run and resolves its artifact paths. The
// video, encoder log, and event log all share the "{basename}_{created}" stem.
package session

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Session identifies one end-to-end capture run.
type Session struct {
	Basename  string
	CreatedAt int64 // epoch seconds
}

// New generates a fresh session identity.
func New() Session {
	return Session{
		Basename:  uuid.NewString()[:8],
		CreatedAt: time.Now().Unix(),
	}
}

// Stem is the shared naming stem for all three session artifacts.
func (s Session) Stem() string {
	return fmt.Sprintf("%s_%d", s.Basename, s.CreatedAt)
}

// Paths resolves artifact locations for a session stem.
type Paths struct {
	LogsDir   string
	VideosDir string
	ImagesDir string
}

func (p Paths) Events(stem string) string     { return filepath.Join(p.LogsDir, stem+".jsonl") }
func (p Paths) EncoderLog(stem string) string { return filepath.Join(p.VideosDir, stem+".log") }
func (p Paths) Video(stem string) string      { return filepath.Join(p.VideosDir, stem+".mp4") }

// Frames is the per-session image subdirectory.
func (p Paths) Frames(stem string) string { return filepath.Join(p.ImagesDir, stem) }

// AugmentedEvents is the default reconciliation output path.
func (p Paths) AugmentedEvents(stem string) string {
	return filepath.Join(p.LogsDir, stem+"_frames.jsonl")
}

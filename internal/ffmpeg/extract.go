package ffmpeg

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ExtractFrame writes the single frame nearest tSec of video to outPath.
// The returned error carries ffmpeg's stderr for diagnosis; callers treat a
// failure as skippable.
func ExtractFrame(bin, video string, tSec float64, outPath, ext string, quality int) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}

	args := extractArgs(video, tSec, outPath, ext, quality)
	cmd := exec.Command(bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("extract frame at %.6fs: %w: %s", tSec, err, strings.TrimSpace(string(out)))
	}

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("extract frame at %.6fs: empty output %s", tSec, outPath)
	}
	return nil
}

func extractArgs(video string, tSec float64, outPath, ext string, quality int) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-y",
		"-i", video,
		"-ss", fmt.Sprintf("%.6f", tSec),
		"-frames:v", "1",
	}
	switch ext {
	case "jpg", "jpeg":
		args = append(args, "-q:v", strconv.Itoa(quality))
	case "png":
		args = append(args, "-c:v", "png")
	case "webp":
		args = append(args, "-c:v", "libwebp")
	}
	return append(args, outPath)
}

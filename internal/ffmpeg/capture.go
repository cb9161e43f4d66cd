package ffmpeg

import (
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

// CaptureOptions configure the full-screen recording command. Audio is never
// captured and the cursor is always included.
type CaptureOptions struct {
	FPS         int
	Bitrate     string // e.g. "8M"
	Preset      string // software encoders only
	PixFmt      string
	Codec       string // "h264" or "hevc"
	ScreenIndex int    // darwin only; -1 = auto-detect
	ExtraFilter string // optional, e.g. "scale=1920:1080"
	OutPath     string
}

// BuildCaptureArgs constructs the platform-specific ffmpeg argument list for
// the current OS. The encoder is chosen by capability probe.
func BuildCaptureArgs(bin string, o CaptureOptions) ([]string, error) {
	screen := o.ScreenIndex
	if runtime.GOOS == "darwin" && screen < 0 {
		idx, err := detectScreenIndex(bin)
		if err != nil {
			return nil, err
		}
		screen = idx
	}
	return buildCaptureArgs(runtime.GOOS, PickEncoder(bin, o.Codec), screen, o)
}

func buildCaptureArgs(goos, vcodec string, screen int, o CaptureOptions) ([]string, error) {
	fps := strconv.Itoa(o.FPS)

	var input, vf []string
	switch goos {
	case "windows":
		input = []string{
			"-f", "gdigrab",
			"-framerate", fps,
			"-draw_mouse", "1",
			"-rtbufsize", "200M",
			"-probesize", "10M",
			"-use_wallclock_as_timestamps", "1",
			"-i", "desktop",
			"-fps_mode", "cfr",
		}
	case "darwin":
		// avfoundation needs ":none" to avoid opening an audio device.
		input = []string{
			"-f", "avfoundation",
			"-framerate", fps,
			"-capture_cursor", "1",
			"-capture_mouse_clicks", "0",
			"-i", fmt.Sprintf("%d:none", screen),
			"-fps_mode", "cfr",
		}
		// Hardware encoders reject odd dimensions.
		vf = []string{"scale=trunc(iw/2)*2:trunc(ih/2)*2"}
	case "linux":
		input = []string{
			"-f", "x11grab",
			"-framerate", fps,
			"-draw_mouse", "1",
			"-i", ":0.0",
			"-fps_mode", "cfr",
		}
		vf = []string{"scale=trunc(iw/2)*2:trunc(ih/2)*2"}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, goos)
	}

	if o.ExtraFilter != "" {
		vf = append(vf, o.ExtraFilter)
	}

	out := []string{"-fflags", "+genpts", "-r", fps, "-c:v", vcodec}
	if vcodec == "libx264" || vcodec == "libx265" {
		out = append(out, "-preset", o.Preset)
	}
	out = append(out, "-b:v", o.Bitrate, "-pix_fmt", o.PixFmt)
	if len(vf) > 0 {
		out = append(out, "-vf", strings.Join(vf, ","))
	}
	out = append(out, "-movflags", "+faststart", o.OutPath)

	args := append([]string{"-y"}, input...)
	return append(args, out...), nil
}

var screenDeviceRE = regexp.MustCompile(`(?i)\[(\d+)\]\s+Capture\s+screen\s+(\d+)`)

// detectScreenIndex asks avfoundation for its device list and picks the
// device index of "Capture screen 0" (or the first screen found).
func detectScreenIndex(bin string) (int, error) {
	// The listing command exits non-zero by design; only the output matters.
	out, _ := exec.Command(bin,
		"-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", "").CombinedOutput()
	return parseScreenIndex(string(out))
}

func parseScreenIndex(listing string) (int, error) {
	// Restrict to the video device section; audio devices reuse the
	// bracketed-index format.
	section := listing
	if i := strings.Index(listing, "AVFoundation video devices:"); i >= 0 {
		section = listing[i:]
	}
	if i := strings.Index(section, "AVFoundation audio devices:"); i >= 0 {
		section = section[:i]
	}

	type match struct{ device, screen int }
	var found []match
	for _, m := range screenDeviceRE.FindAllStringSubmatch(section, -1) {
		dev, _ := strconv.Atoi(m[1])
		scr, _ := strconv.Atoi(m[2])
		found = append(found, match{dev, scr})
	}
	if len(found) == 0 {
		return 0, fmt.Errorf("no avfoundation screen capture device found")
	}
	for _, m := range found {
		if m.screen == 0 {
			return m.device, nil
		}
	}
	return found[0].device, nil
}

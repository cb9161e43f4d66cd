package ffmpeg

import (
	"os/exec"
	"strings"
)

// Hardware encoders are preferred in vendor order; the libx* software
// implementations are the guaranteed fallback.
var encoderOrder = map[string][]string{
	"hevc": {"hevc_nvenc", "hevc_qsv", "hevc_amf", "hevc_videotoolbox", "libx265"},
	"h264": {"h264_nvenc", "h264_qsv", "h264_amf", "h264_videotoolbox", "libx264"},
}

// PickEncoder queries the binary's encoder list and returns the best
// available encoder for the codec family ("h264" or "hevc"). A failed probe
// falls back to the software encoder.
func PickEncoder(bin, family string) string {
	out, err := exec.Command(bin, "-hide_banner", "-encoders").CombinedOutput()
	list := ""
	if err == nil {
		list = string(out)
	}
	return pickFrom(list, family)
}

func pickFrom(list, family string) string {
	order, ok := encoderOrder[strings.ToLower(family)]
	if !ok {
		order = encoderOrder["h264"]
	}
	for _, name := range order {
		if strings.Contains(list, name) {
			return name
		}
	}
	return order[len(order)-1]
}

//go:build linux

package clock

import "golang.org/x/sys/unix"

// ffmpeg stamps its start against CLOCK_MONOTONIC on Linux.
func hostSeconds() float64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return float64(ts.Sec) + float64(ts.Nsec)/1e9
}

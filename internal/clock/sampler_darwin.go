//go:build darwin

package clock

import "golang.org/x/sys/unix"

// CLOCK_UPTIME_RAW matches mach_absolute_time, the domain AVFoundation and
// ffmpeg report capture start times in.
func hostSeconds() float64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_UPTIME_RAW, &ts); err != nil {
		return 0
	}
	return float64(ts.Sec) + float64(ts.Nsec)/1e9
}

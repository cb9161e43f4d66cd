//go:build windows

package clock

import "golang.org/x/sys/windows"

// QPC is the host monotonic domain ffmpeg uses on Windows.
func hostSeconds() float64 {
	counter := windows.QueryPerformanceCounter()
	freq := windows.QueryPerformanceFrequency()
	if freq == 0 {
		return 0
	}
	return float64(counter) / float64(freq)
}

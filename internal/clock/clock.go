// Package clock derives the correlation anchor: the wall-clock epoch instant
// corresponding to video-relative time zero.
//
// ffmpeg's diagnostic log reports its internal start as "start: <seconds>" on
// the host monotonic clock, whose zero reference is arbitrary. The anchor is
// recovered by sampling both clocks now and amortizing the offset:
//
//	anchor = wall_now - host_now + marker
package clock

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"
)

// ErrAnchorNotFound means the encoder log carries no start marker, typically
// because ffmpeg crashed before stream negotiation.
var ErrAnchorNotFound = errors.New("no start marker found in encoder log")

// Policy selects which marker wins when initialization emits several
// provisional ones. Last is the default: the final marker reflects the
// negotiated stream.
type Policy string

const (
	PolicyFirst Policy = "first"
	PolicyLast  Policy = "last"
)

var startMarkerRE = regexp.MustCompile(`\bstart:\s*([0-9]+(?:\.[0-9]+)?)`)

// StartMarker extracts the host-monotonic start value from encoder log text.
func StartMarker(logText string, p Policy) (float64, error) {
	matches := startMarkerRE.FindAllStringSubmatch(logText, -1)
	if len(matches) == 0 {
		return 0, ErrAnchorNotFound
	}
	m := matches[len(matches)-1]
	if p == PolicyFirst {
		m = matches[0]
	}
	return strconv.ParseFloat(m[1], 64)
}

// StartMarkerFromFile reads the log file and extracts the marker.
func StartMarkerFromFile(path string, p Policy) (float64, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read encoder log: %w", err)
	}
	return StartMarker(string(text), p)
}

// Sampler supplies paired readings of the wall clock and the host monotonic
// clock. It is injected as a capability so anchor math is testable without a
// real OS clock.
type Sampler interface {
	Wall() float64 // epoch seconds
	Host() float64 // host monotonic seconds, same domain as ffmpeg's marker
}

// Anchor converts a host-monotonic marker value to epoch seconds. Pure given
// the sampler; repeated calls against the same readings are identical.
func Anchor(marker float64, s Sampler) float64 {
	return s.Wall() - s.Host() + marker
}

// AnchorFromLog is the full derivation: marker extraction plus conversion.
func AnchorFromLog(path string, p Policy, s Sampler) (float64, error) {
	marker, err := StartMarkerFromFile(path, p)
	if err != nil {
		return 0, err
	}
	return Anchor(marker, s), nil
}

type systemSampler struct{}

// SystemSampler reads the real OS clocks.
func SystemSampler() Sampler { return systemSampler{} }

func (systemSampler) Wall() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func (systemSampler) Host() float64 {
	return hostSeconds()
}

// Package reconcile maps the persisted event log onto the recorded video: it
// derives the correlation anchor from the encoder log, computes a per-event
// video offset, extracts one still frame per retained event, and writes the
// augmented event log.
package reconcile

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"tracecap/internal/clock"
	"tracecap/internal/ffmpeg"
	"tracecap/internal/session"
	"tracecap/pkg/models"
)

// ErrMissingInputs means one of the three session artifacts is absent.
var ErrMissingInputs = errors.New("missing required session file(s)")

// Options configure one reconciliation run.
type Options struct {
	Stem      string // session stem, e.g. "a1b2c3d4_1700000000"
	LogsDir   string
	VideosDir string
	ImagesDir string
	OutPath   string // optional; defaults to <logs>/<stem>_frames.jsonl

	IncludeTypes []string // empty = all types
	OffsetMS     float64  // systematic action-to-pixels lag correction
	MinGapMS     float64  // dedup: minimum gap between retained events
	Ext          string   // jpg|jpeg|png|webp
	Quality      int      // jpeg -q:v
	Prefer       clock.Policy

	// ClampNegative maps events in the small negative-offset window (anchor
	// estimation error, at most clampWindow) to video time 0 instead of
	// dropping them. Events earlier than that are dropped either way.
	ClampNegative bool
}

// clampWindow bounds how far before the anchor an event may fall and still be
// clamped to offset 0.
const clampWindow = 1.0

// Result summarizes a run for the operator.
type Result struct {
	Frames    int     `json:"frames"`
	Skipped   int     `json:"skipped"`
	HostStart float64 `json:"host_start"`
	Anchor    float64 `json:"anchor"`
	OutPath   string  `json:"out_path"`
	ImagesDir string  `json:"images_dir"`
}

// Extractor pulls one frame; injected so the engine is testable without
// video files. The default shells out to ffmpeg.
type Extractor func(video string, tSec float64, outPath, ext string, quality int) error

// Engine runs the single-threaded batch pass. Frame extraction failures are
// per-event and never abort the batch; a missing anchor aborts everything.
type Engine struct {
	opts    Options
	paths   session.Paths
	extract Extractor
	sampler clock.Sampler
	log     *zap.Logger

	onExtracted func()
	onFailed    func()
}

// New validates options and wires the real extractor and clock sampler.
func New(opts Options, log *zap.Logger) (*Engine, error) {
	bin, err := ffmpeg.Locate()
	if err != nil {
		return nil, err
	}
	e := newEngine(opts, log)
	e.extract = func(video string, tSec float64, outPath, ext string, quality int) error {
		return ffmpeg.ExtractFrame(bin, video, tSec, outPath, ext, quality)
	}
	e.sampler = clock.SystemSampler()
	return e, nil
}

func newEngine(opts Options, log *zap.Logger) *Engine {
	if opts.Ext == "" {
		opts.Ext = "jpg"
	}
	if opts.Prefer == "" {
		opts.Prefer = clock.PolicyLast
	}
	return &Engine{
		opts: opts,
		paths: session.Paths{
			LogsDir:   opts.LogsDir,
			VideosDir: opts.VideosDir,
			ImagesDir: opts.ImagesDir,
		},
		log: log,
	}
}

// SetMetricHooks attaches optional per-frame counters.
func (e *Engine) SetMetricHooks(onExtracted, onFailed func()) {
	e.onExtracted = onExtracted
	e.onFailed = onFailed
}

// Run executes the pass. The output log preserves input order: events are
// processed strictly in file order, which is capture order.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	stem := e.opts.Stem
	eventsPath := e.paths.Events(stem)
	encoderLog := e.paths.EncoderLog(stem)
	videoPath := e.paths.Video(stem)

	if missing := missingFiles(eventsPath, encoderLog, videoPath); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingInputs, strings.Join(missing, ", "))
	}

	// Anchor first: without it nothing can be placed on the video timeline.
	hostStart, err := clock.StartMarkerFromFile(encoderLog, e.opts.Prefer)
	if err != nil {
		return nil, err
	}
	anchor := clock.Anchor(hostStart, e.sampler)

	framesDir := e.paths.Frames(stem)
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}

	outPath := e.opts.OutPath
	if outPath == "" {
		outPath = e.paths.AugmentedEvents(stem)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("open output log: %w", err)
	}
	defer out.Close()

	in, err := os.Open(eventsPath)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer in.Close()

	include := make(map[string]struct{}, len(e.opts.IncludeTypes))
	for _, t := range e.opts.IncludeTypes {
		include[t] = struct{}{}
	}

	res := &Result{HostStart: hostStart, Anchor: anchor, OutPath: outPath, ImagesDir: framesDir}
	offset := e.opts.OffsetMS / 1000.0
	minGap := math.Max(e.opts.MinGapMS, 0) / 1000.0
	counter := 1
	lastRel := math.Inf(-1)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var ev models.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			res.Skipped++
			continue
		}
		if ev.TS == 0 {
			res.Skipped++
			continue
		}
		if ev.TS < anchor && (!e.opts.ClampNegative || anchor-ev.TS > clampWindow) {
			// Pre-recording noise under the original policy.
			res.Skipped++
			continue
		}
		evType := ev.Type
		if evType == "" {
			evType = "event"
		}
		if len(include) > 0 {
			if _, ok := include[evType]; !ok {
				res.Skipped++
				continue
			}
		}

		rel := (ev.TS - anchor) + offset
		if rel < 0 {
			if !e.opts.ClampNegative || rel < -clampWindow {
				res.Skipped++
				continue
			}
			rel = 0
		}
		if rel-lastRel < minGap {
			res.Skipped++
			continue
		}

		name := fmt.Sprintf("%06d_%s_%d.%s", counter, evType, int64(ev.TS*1000), e.opts.Ext)
		framePath, err := filepath.Abs(filepath.Join(framesDir, name))
		if err != nil {
			framePath = filepath.Join(framesDir, name)
		}

		if err := e.extract(videoPath, rel, framePath, e.opts.Ext, e.opts.Quality); err != nil {
			e.log.Warn("frame extraction failed, skipping event",
				zap.String("type", evType),
				zap.Float64("rel", rel),
				zap.Error(err))
			if e.onFailed != nil {
				e.onFailed()
			}
			res.Skipped++
			continue
		}
		if e.onExtracted != nil {
			e.onExtracted()
		}

		augmented, err := json.Marshal(models.ReconciledEvent{Event: ev, FramePath: framePath})
		if err != nil {
			res.Skipped++
			continue
		}
		if _, err := out.Write(append(augmented, '\n')); err != nil {
			return nil, fmt.Errorf("write output log: %w", err)
		}

		counter++
		lastRel = rel
		res.Frames++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return res, nil
}

func missingFiles(paths ...string) []string {
	var missing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	return missing
}

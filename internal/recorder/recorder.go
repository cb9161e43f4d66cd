// Package recorder supervises one external full-screen ffmpeg capture
// process for the lifetime of a session.
package recorder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"tracecap/internal/ffmpeg"
)

// State tracks the supervisor lifecycle. Start and Stop are the only legal
// transitions; anything else is a usage error.
type State int

const (
	StateNotStarted State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

var (
	ErrAlreadyStarted     = errors.New("recorder already started")
	ErrNotRunning         = errors.New("recorder is not running")
	ErrStartup            = errors.New("recorder failed to start")
	ErrIncompleteArtifact = errors.New("recorded video missing or empty")
)

// Options configure one capture run.
type Options struct {
	OutDir      string
	Stem        string // artifact name stem, e.g. "a1b2c3d4_1700000000"
	FPS         int
	Codec       string // "h264" or "hevc"
	Bitrate     string
	Preset      string
	PixFmt      string
	ScreenIndex int // darwin; -1 = auto

	// Binary overrides PATH lookup; empty means probe.
	Binary string
}

// Supervisor owns the ffmpeg process. Its stderr log doubles as the source of
// the clock-correlation anchor: the first line is a wall-clock stamp written
// at launch, and ffmpeg's own diagnostics later report its monotonic start.
type Supervisor struct {
	OutPath string
	LogPath string

	opts    Options
	bin     string
	log     *zap.Logger
	logFile *os.File
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	waitCh  chan error

	mu    sync.Mutex
	state State

	// test seams
	readyDelay time.Duration
	buildArgs  func() ([]string, error)
	now        func() time.Time
}

// New resolves the binary and artifact paths. The process is not launched
// until Start.
func New(opts Options, log *zap.Logger) (*Supervisor, error) {
	bin := opts.Binary
	if bin == "" {
		var err error
		bin, err = ffmpeg.Locate()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStartup, err)
		}
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create video dir: %w", ErrStartup, err)
	}
	outPath, err := filepath.Abs(filepath.Join(opts.OutDir, opts.Stem+".mp4"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStartup, err)
	}
	logPath, err := filepath.Abs(filepath.Join(opts.OutDir, opts.Stem+".log"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStartup, err)
	}

	s := &Supervisor{
		OutPath:    outPath,
		LogPath:    logPath,
		opts:       opts,
		bin:        bin,
		log:        log,
		state:      StateNotStarted,
		readyDelay: 500 * time.Millisecond,
		now:        time.Now,
	}
	s.buildArgs = func() ([]string, error) {
		return ffmpeg.BuildCaptureArgs(bin, ffmpeg.CaptureOptions{
			FPS:         opts.FPS,
			Bitrate:     opts.Bitrate,
			Preset:      opts.Preset,
			PixFmt:      opts.PixFmt,
			Codec:       opts.Codec,
			ScreenIndex: opts.ScreenIndex,
			OutPath:     outPath,
		})
	}
	return s, nil
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start launches the capture process, writes the wall-clock stamp as the
// log's first line, and verifies the process survives its warm-up window.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if s.state != StateNotStarted {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrAlreadyStarted, st)
	}
	// Claim the transition before releasing the lock so a concurrent Start
	// cannot pass the gate and launch a second process.
	s.state = StateStarting
	s.mu.Unlock()

	args, err := s.buildArgs()
	if err != nil {
		s.fail()
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	logFile, err := os.Create(s.LogPath)
	if err != nil {
		s.fail()
		return fmt.Errorf("%w: open encoder log: %w", ErrStartup, err)
	}
	s.logFile = logFile

	cmd := exec.Command(s.bin, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = logFile
	cmd.SysProcAttr = sysProcAttr()
	stdin, err := cmd.StdinPipe()
	if err != nil {
		logFile.Close()
		s.fail()
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		s.fail()
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}
	s.cmd = cmd
	s.stdin = stdin

	// Host wall-clock stamp as the log's first write, immediately after
	// launch. Correlation tooling relies on the stamp and ffmpeg's own
	// "start:" marker living in the same file.
	fmt.Fprintf(logFile, "%.6f\n", float64(s.now().UnixNano())/1e9)

	s.waitCh = make(chan error, 1)
	go func() { s.waitCh <- cmd.Wait() }()

	// Readiness: the process must outlive its init window.
	select {
	case waitErr := <-s.waitCh:
		logFile.Close()
		s.fail()
		return fmt.Errorf("%w: ffmpeg exited during startup (%v), see log %s",
			ErrStartup, waitErr, s.LogPath)
	case <-time.After(s.readyDelay):
	}

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()
	s.log.Info("screen recording started",
		zap.String("out", s.OutPath),
		zap.Int("fps", s.opts.FPS))
	return nil
}

// Stop requests a graceful quit ("q" on stdin), escalates to a kill after the
// timeout, always closes the log handle, and verifies the artifact. Returns
// the artifact path on success.
func (s *Supervisor) Stop(timeout time.Duration) (string, error) {
	s.mu.Lock()
	if s.state != StateRunning {
		st := s.state
		s.mu.Unlock()
		return "", fmt.Errorf("%w (state %s)", ErrNotRunning, st)
	}
	s.state = StateStopping
	s.mu.Unlock()

	if _, err := io.WriteString(s.stdin, "q"); err != nil {
		s.log.Warn("graceful stop request failed, terminating", zap.Error(err))
		_ = s.cmd.Process.Kill()
	}
	_ = s.stdin.Close()

	select {
	case <-s.waitCh:
	case <-time.After(timeout):
		// Interrupt first (CTRL_BREAK on windows, SIGINT elsewhere) so ffmpeg
		// still gets a chance to finalize the mp4 index, then kill.
		s.log.Warn("ffmpeg ignored quit, interrupting", zap.Duration("timeout", timeout))
		if err := interrupt(s.cmd); err != nil {
			_ = s.cmd.Process.Kill()
		}
		select {
		case <-s.waitCh:
		case <-time.After(2 * time.Second):
			s.log.Warn("ffmpeg ignored interrupt, killing")
			_ = s.cmd.Process.Kill()
			select {
			case <-s.waitCh:
			case <-time.After(2 * time.Second):
			}
		}
	}

	_ = s.logFile.Close()

	info, err := os.Stat(s.OutPath)
	if err != nil || info.Size() == 0 {
		s.fail()
		return "", fmt.Errorf("%w: %s (log: %s)", ErrIncompleteArtifact, s.OutPath, s.LogPath)
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	s.log.Info("screen recording stopped",
		zap.String("out", s.OutPath),
		zap.Int64("bytes", info.Size()))
	return s.OutPath, nil
}

func (s *Supervisor) fail() {
	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()
}

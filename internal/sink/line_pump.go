package sink

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// LinePump writes console lines from a background goroutine so the session's
// event loop never waits on a slow terminal.
type LinePump struct {
	sink *Sink[string]
}

// NewLinePump builds a pump targeting out (normally os.Stdout).
func NewLinePump(out io.Writer, log *zap.Logger, onDrop func()) *LinePump {
	p := &LinePump{}
	p.sink = New("lines", DefaultCapacity, func(line string) error {
		_, err := fmt.Fprintln(out, line)
		return err
	}, log, onDrop)
	return p
}

func (p *LinePump) Start() error { return p.sink.Start() }

// Put enqueues one line without blocking.
func (p *LinePump) Put(line string) bool { return p.sink.Put(line) }

func (p *LinePump) Stop(timeout time.Duration) error { return p.sink.Stop(timeout) }

func (p *LinePump) Dropped() uint64 { return p.sink.Dropped() }

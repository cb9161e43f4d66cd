package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"tracecap/pkg/models"
)

// RecordWriter appends events as compact JSONL to <dir>/<stem>.jsonl. Every
// line is flushed and fsynced so an abnormal shutdown loses at most the
// in-flight record.
type RecordWriter struct {
	sink *Sink[models.Event]
	file *os.File
	Path string
}

// NewRecordWriter opens the log file (creating the directory as needed) and
// prepares the sink. Start must still be called.
func NewRecordWriter(dir, stem string, log *zap.Logger, onDrop func()) (*RecordWriter, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	path := filepath.Join(dir, stem+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	w := &RecordWriter{file: f, Path: path}
	w.sink = New("records", DefaultCapacity, w.write, log, onDrop)
	return w, nil
}

func (w *RecordWriter) write(e models.Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := w.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return w.file.Sync()
}

func (w *RecordWriter) Start() error { return w.sink.Start() }

// Put hands an event to the background writer without blocking.
func (w *RecordWriter) Put(e models.Event) bool { return w.sink.Put(e) }

// Stop joins the writer and closes the file, even if the join timed out.
func (w *RecordWriter) Stop(timeout time.Duration) error {
	stopErr := w.sink.Stop(timeout)
	if err := w.file.Close(); err != nil && stopErr == nil {
		stopErr = err
	}
	return stopErr
}

func (w *RecordWriter) Dropped() uint64 { return w.sink.Dropped() }

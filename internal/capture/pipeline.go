// Package capture bridges per-page notifications from the instrumented
// browser session to the record and console sinks. It filters, normalizes,
// and redacts; it never blocks and never retries.
package capture

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tracecap/pkg/models"
)

// recMarker distinguishes pipeline-emitted records from incidental console
// text. The injected script sets "__rec": 1 on every structured record.
const recMarker = "__rec"

// ConsoleMessage is one console notification from a page.
type ConsoleMessage struct {
	Kind string // console level: log, warning, error, ...
	Text string
}

// Page is the minimal surface the pipeline needs from the browser-automation
// layer: console messages and popup discovery.
type Page interface {
	OnConsole(fn func(ConsoleMessage))
	OnPopup(fn func(Page))
}

// RecordSink receives accepted events; LineSink receives console lines. Both
// must be non-blocking.
type RecordSink interface {
	Put(models.Event) bool
}

type LineSink interface {
	Put(string) bool
}

// Options configure filtering and diagnostics.
type Options struct {
	AllowTypes []string
	Debug      bool // forward rejected input to the console sink, tagged
}

// Pipeline fans accepted events out to both sinks. The page-identity map is
// append-only for the session's lifetime; the pipeline is its sole writer.
// Session callbacks arrive one at a time, but the HTTP intake does not give
// that guarantee, so the map is still guarded.
type Pipeline struct {
	allow   map[string]struct{}
	debug   bool
	records RecordSink
	lines   LineSink
	log     *zap.Logger

	mu      sync.Mutex
	pageIDs map[any]string

	onAccept func()
	onReject func()
}

// New builds a pipeline. onAccept/onReject are optional metric hooks.
func New(opts Options, records RecordSink, lines LineSink, log *zap.Logger, onAccept, onReject func()) *Pipeline {
	allow := make(map[string]struct{}, len(opts.AllowTypes))
	for _, t := range opts.AllowTypes {
		allow[t] = struct{}{}
	}
	return &Pipeline{
		allow:    allow,
		debug:    opts.Debug,
		records:  records,
		lines:    lines,
		log:      log,
		pageIDs:  make(map[any]string),
		onAccept: onAccept,
		onReject: onReject,
	}
}

// Wire subscribes a page (and, recursively, every popup it spawns) to the
// pipeline.
func (p *Pipeline) Wire(pg Page) {
	pid := p.pageID(pg)
	pg.OnConsole(func(msg ConsoleMessage) {
		p.handleConsole(pid, msg)
	})
	pg.OnPopup(func(child Page) {
		p.Wire(child)
	})
}

// Notify feeds a raw notification attributed to an arbitrary stable page key.
// Transports without page objects (the HTTP intake) use this entry point.
func (p *Pipeline) Notify(pageKey string, text string) {
	p.handleConsole(p.pageID("intake:"+pageKey), ConsoleMessage{Kind: "log", Text: text})
}

// PageID returns the generated identifier for a page key, minting one on
// first sight. Identifiers are stable for the session's lifetime.
func (p *Pipeline) pageID(key any) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.pageIDs[key]; ok {
		return id
	}
	id := uuid.NewString()[:8]
	p.pageIDs[key] = id
	return id
}

// Pages reports how many distinct pages have been wired.
func (p *Pipeline) Pages() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pageIDs)
}

func (p *Pipeline) handleConsole(pid string, msg ConsoleMessage) {
	text := msg.Text
	if text == "" || text[0] != '{' {
		p.reject()
		if p.debug {
			p.lines.Put("[BROWSER_" + strings.ToUpper(msg.Kind) + "] [" + pid + "] " + text)
		}
		return
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		p.reject()
		if p.debug {
			p.lines.Put("[BROWSER_PARSE_ERR] [" + pid + "] " + text)
		}
		return
	}

	marker, _ := raw[recMarker].(float64)
	evType, _ := raw["type"].(string)
	_, allowed := p.allow[evType]
	if marker != 1 || !allowed {
		p.reject()
		if p.debug {
			p.lines.Put("[BROWSER_OTHER] [" + pid + "] " + text)
		}
		return
	}
	delete(raw, recMarker)

	ev := models.EventFromMap(raw)
	ev.NormalizeTS()
	if ev.PageID == "" {
		ev.PageID = pid
	}
	if ev.Type == models.EventType || ev.Type == models.EventTypeCommit {
		ev.TruncateValue()
	}

	p.emit(pid, ev)
}

// emit fans one accepted event out to both sinks. Each sink receives an
// independent copy so neither aliasing nor sink ordering matters.
func (p *Pipeline) emit(pid string, ev models.Event) {
	p.records.Put(ev.Clone())

	if line, err := json.Marshal(ev); err == nil {
		p.lines.Put("[BROWSER_LOG] [" + pid + "] " + string(line))
	} else {
		p.log.Debug("event line marshal failed", zap.Error(err))
	}

	if p.onAccept != nil {
		p.onAccept()
	}
}

func (p *Pipeline) reject() {
	if p.onReject != nil {
		p.onReject()
	}
}

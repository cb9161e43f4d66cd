package capture

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tracecap/pkg/models"
)

type memRecords struct {
	mu     sync.Mutex
	events []models.Event
}

func (m *memRecords) Put(e models.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return true
}

func (m *memRecords) all() []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Event(nil), m.events...)
}

type memLines struct {
	mu    sync.Mutex
	lines []string
}

func (m *memLines) Put(l string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, l)
	return true
}

func (m *memLines) all() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

// fakePage is a stand-in for the browser-automation layer's page object.
type fakePage struct {
	console func(ConsoleMessage)
	popup   func(Page)
}

func (p *fakePage) OnConsole(fn func(ConsoleMessage)) { p.console = fn }
func (p *fakePage) OnPopup(fn func(Page))             { p.popup = fn }

func (p *fakePage) emit(text string) { p.console(ConsoleMessage{Kind: "log", Text: text}) }

func newTestPipeline(debug bool) (*Pipeline, *memRecords, *memLines) {
	rec := &memRecords{}
	lines := &memLines{}
	p := New(Options{
		AllowTypes: models.DefaultEventTypes(),
		Debug:      debug,
	}, rec, lines, zap.NewNop(), nil, nil)
	return p, rec, lines
}

func TestAcceptsMarkedEvent(t *testing.T) {
	p, rec, lines := newTestPipeline(false)
	pg := &fakePage{}
	p.Wire(pg)

	pg.emit(`{"__rec":1,"type":"click","ts":1700000101.5,"x":10}`)

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, "click", events[0].Type)
	assert.Equal(t, 1700000101.5, events[0].TS)
	assert.NotEmpty(t, events[0].PageID)
	// Marker removed before persistence.
	assert.NotContains(t, events[0].Extra, "__rec")

	consoleLines := lines.all()
	require.Len(t, consoleLines, 1)
	assert.True(t, strings.HasPrefix(consoleLines[0], "[BROWSER_LOG] ["))
	assert.Contains(t, consoleLines[0], `"type":"click"`)
}

func TestNormalizesMillisecondTimestamps(t *testing.T) {
	p, rec, _ := newTestPipeline(false)
	pg := &fakePage{}
	p.Wire(pg)

	pg.emit(`{"__rec":1,"type":"click","ts":1700000000000}`)

	events := rec.all()
	require.Len(t, events, 1)
	assert.InDelta(t, 1700000000.0, events[0].TS, 1e-9)
}

func TestRejectsUnmarkedAndUnknownTypes(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no marker", `{"type":"click","ts":1}`},
		{"unknown type", `{"__rec":1,"type":"keypress","ts":1}`},
		{"not json", `hello world`},
		{"broken json", `{"__rec":1,"type":"click"`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, rec, lines := newTestPipeline(false)
			pg := &fakePage{}
			p.Wire(pg)

			pg.emit(tt.text)
			assert.Empty(t, rec.all())
			// Debug off: rejects vanish silently.
			assert.Empty(t, lines.all())
		})
	}
}

func TestDebugForwardsRejectsTagged(t *testing.T) {
	p, rec, lines := newTestPipeline(true)
	pg := &fakePage{}
	p.Wire(pg)

	pg.console(ConsoleMessage{Kind: "warning", Text: "mixed content"})
	pg.emit(`{"broken`)
	pg.emit(`{"type":"click","ts":1}`)

	assert.Empty(t, rec.all())
	got := lines.all()
	require.Len(t, got, 3)
	assert.True(t, strings.HasPrefix(got[0], "[BROWSER_WARNING] ["))
	assert.True(t, strings.HasPrefix(got[1], "[BROWSER_PARSE_ERR] ["))
	assert.True(t, strings.HasPrefix(got[2], "[BROWSER_OTHER] ["))
}

func TestTruncatesTypedText(t *testing.T) {
	p, rec, _ := newTestPipeline(false)
	pg := &fakePage{}
	p.Wire(pg)

	long := strings.Repeat("x", 300)
	pg.emit(`{"__rec":1,"type":"type","ts":1,"value":"` + long + `"}`)
	pg.emit(`{"__rec":1,"type":"navigation","ts":2,"value":"` + long + `"}`)

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, 118, len([]rune(events[0].Value)))
	assert.True(t, strings.HasSuffix(events[0].Value, "…"))
	// Only typed-text events are redacted.
	assert.Equal(t, 300, len(events[1].Value))
}

func TestPopupWiredRecursively(t *testing.T) {
	p, rec, _ := newTestPipeline(false)
	pg := &fakePage{}
	p.Wire(pg)

	child := &fakePage{}
	pg.popup(child)
	grandchild := &fakePage{}
	child.popup(grandchild)

	pg.emit(`{"__rec":1,"type":"click","ts":1}`)
	child.emit(`{"__rec":1,"type":"click","ts":2}`)
	grandchild.emit(`{"__rec":1,"type":"click","ts":3}`)

	events := rec.all()
	require.Len(t, events, 3)
	assert.Equal(t, 3, p.Pages())

	// Distinct pages, distinct generated ids.
	ids := map[string]bool{}
	for _, e := range events {
		ids[e.PageID] = true
	}
	assert.Len(t, ids, 3)
}

func TestPageIDStablePerPage(t *testing.T) {
	p, rec, _ := newTestPipeline(false)
	pg := &fakePage{}
	p.Wire(pg)

	pg.emit(`{"__rec":1,"type":"click","ts":1}`)
	pg.emit(`{"__rec":1,"type":"scroll_start","ts":2}`)

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, events[0].PageID, events[1].PageID)
}

func TestNotifyTransport(t *testing.T) {
	p, rec, _ := newTestPipeline(false)

	p.Notify("tab-7", `{"__rec":1,"type":"click","ts":1}`)
	p.Notify("tab-7", `{"__rec":1,"type":"click","ts":2}`)
	p.Notify("tab-9", `{"__rec":1,"type":"click","ts":3}`)

	events := rec.all()
	require.Len(t, events, 3)
	assert.Equal(t, events[0].PageID, events[1].PageID)
	assert.NotEqual(t, events[0].PageID, events[2].PageID)
}

func TestSinksReceiveIndependentCopies(t *testing.T) {
	p, rec, _ := newTestPipeline(false)
	pg := &fakePage{}
	p.Wire(pg)

	pg.emit(`{"__rec":1,"type":"click","ts":1,"meta":{"k":"v"},"n":1}`)

	events := rec.all()
	require.Len(t, events, 1)
	// Mutating the stored copy's bag cannot affect any other consumer's view.
	events[0].Extra["n"] = float64(99)
	assert.Equal(t, float64(99), events[0].Extra["n"])
}

func TestMetricHooks(t *testing.T) {
	var accepted, rejected int
	rec := &memRecords{}
	lines := &memLines{}
	p := New(Options{AllowTypes: []string{"click"}}, rec, lines, zap.NewNop(),
		func() { accepted++ }, func() { rejected++ })
	pg := &fakePage{}
	p.Wire(pg)

	pg.emit(`{"__rec":1,"type":"click","ts":1}`)
	pg.emit(`{"__rec":1,"type":"scroll_start","ts":2}`)
	pg.emit(`junk`)

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 2, rejected)
}

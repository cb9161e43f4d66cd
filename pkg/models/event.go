package models

import (
	"encoding/json"
	"math"
)

// Event types emitted by the injected page script.
const (
	EventMouseMove    = "mouse_move"    // Cursor moved; throttled (~100 ms)
	EventClick        = "click"         // User click (with nearest <a href> if present)
	EventScrollStart  = "scroll_start"  // Scroll began
	EventScrollEnd    = "scroll_end"    // Scroll ended (delta + duration)
	EventType         = "type"          // Text entry into non-password inputs/textarea
	EventTypeCommit   = "type_commit"   // Commit of text (Enter or blur)
	EventWindowFocus  = "window_focus"  // Window gained focus (page active)
	EventWindowBlur   = "window_blur"   // Window lost focus (page inactive)
	EventTabHidden    = "tab_hidden"    // Page became hidden (tab/backgrounded)
	EventTabVisible   = "tab_visible"   // Page became visible (tab/foregrounded)
	EventNavigation   = "navigation"    // SPA/history navigation (from → to)
	EventRecorderInit = "recorder_init" // Recorder attached; logs UA/viewport
	EventLogError     = "log_error"     // Fallback when in-page logging fails
)

// DefaultEventTypes is the allow-set applied when no configuration overrides it.
func DefaultEventTypes() []string {
	return []string{
		EventMouseMove, EventClick, EventScrollStart, EventScrollEnd,
		EventType, EventTypeCommit, EventWindowFocus, EventWindowBlur,
		EventTabHidden, EventTabVisible, EventNavigation,
		EventRecorderInit, EventLogError,
	}
}

// msEpochThreshold: ts values above this are epoch milliseconds, not seconds.
const msEpochThreshold = 1e10

// valueLimit is the maximum length kept for free-text payload fields.
const valueLimit = 120

// Event is one user/browser action. Known fields are typed; anything else the
// page script sends rides along in Extra so unrecognized payloads survive a
// round trip unchanged.
type Event struct {
	Type   string
	TS     float64
	PageID string
	URL    string
	Value  string
	Extra  map[string]any
}

// EventFromMap builds an Event from a decoded JSON object, pulling out the
// well-known keys and keeping the rest in Extra.
func EventFromMap(m map[string]any) Event {
	e := Event{Extra: make(map[string]any)}
	for k, v := range m {
		switch k {
		case "type":
			if s, ok := v.(string); ok {
				e.Type = s
				continue
			}
		case "ts":
			if f, ok := toFloat(v); ok {
				e.TS = f
				continue
			}
		case "page_id":
			if s, ok := v.(string); ok {
				e.PageID = s
				continue
			}
		case "url":
			if s, ok := v.(string); ok {
				e.URL = s
				continue
			}
		case "value":
			if s, ok := v.(string); ok {
				e.Value = s
				continue
			}
		}
		e.Extra[k] = v
	}
	return e
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// NormalizeTS converts an epoch-millisecond timestamp to epoch seconds,
// rounded to microsecond precision. Values already in seconds pass through.
func (e *Event) NormalizeTS() {
	if e.TS > msEpochThreshold {
		e.TS = math.Round(e.TS/1000.0*1e6) / 1e6
	}
}

// TruncateValue caps the free-text value field, marking the cut with an
// ellipsis. Only type/type_commit events carry user-typed text.
func (e *Event) TruncateValue() {
	r := []rune(e.Value)
	if len(r) > valueLimit {
		e.Value = string(r[:valueLimit-3]) + "…"
	}
}

// Clone returns an independent shallow copy. The Extra map is copied so two
// sinks never share mutable state.
func (e Event) Clone() Event {
	c := e
	if e.Extra != nil {
		c.Extra = make(map[string]any, len(e.Extra))
		for k, v := range e.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// ToMap flattens the event back into a single JSON object.
func (e Event) ToMap() map[string]any {
	m := make(map[string]any, len(e.Extra)+5)
	for k, v := range e.Extra {
		m[k] = v
	}
	m["type"] = e.Type
	m["ts"] = e.TS
	if e.PageID != "" {
		m["page_id"] = e.PageID
	}
	if e.URL != "" {
		m["url"] = e.URL
	}
	if e.Value != "" {
		m["value"] = e.Value
	}
	return m
}

// MarshalJSON emits the compact single-object form used on the wire and in
// the JSONL log. Keys come out sorted, which keeps output reproducible.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToMap())
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*e = EventFromMap(m)
	return nil
}

// ReconciledEvent is an Event plus the still frame extracted for it. It only
// exists in reconciliation output; the original record is never mutated.
type ReconciledEvent struct {
	Event
	FramePath string
}

func (r ReconciledEvent) MarshalJSON() ([]byte, error) {
	m := r.ToMap()
	m["frame_path"] = r.FramePath
	return json.Marshal(m)
}

func (r *ReconciledEvent) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	r.FramePath, _ = m["frame_path"].(string)
	delete(m, "frame_path")
	r.Event = EventFromMap(m)
	return nil
}

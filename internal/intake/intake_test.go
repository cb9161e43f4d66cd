package intake

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tracecap/internal/capture"
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

type nopLines struct{}

func (nopLines) Put(string) bool { return true }

func newTestServer(t *testing.T) (*Server, *memRecords) {
	t.Helper()
	rec := &memRecords{}
	p := capture.New(capture.Options{AllowTypes: models.DefaultEventTypes()},
		rec, nopLines{}, zap.NewNop(), nil, nil)
	return New("127.0.0.1:0", p, zap.NewNop()), rec
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestPostEventsBatch(t *testing.T) {
	s, rec := newTestServer(t)

	w := post(t, s.Handler(), `{
		"page": "tab-1",
		"entries": [
			{"__rec":1,"type":"click","ts":1700000101.5},
			{"__rec":1,"type":"scroll_start","ts":1700000102.0},
			{"not":"an event"}
		]
	}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, "click", events[0].Type)
	assert.Equal(t, "scroll_start", events[1].Type)
	// Same page key, same generated page id.
	assert.Equal(t, events[0].PageID, events[1].PageID)
}

func TestPostBadJSON(t *testing.T) {
	s, rec := newTestServer(t)
	w := post(t, s.Handler(), `{"page": "tab-1", "entries": [`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, rec.all())
}

func TestPostMissingPageKey(t *testing.T) {
	s, rec := newTestServer(t)
	w := post(t, s.Handler(), `{"entries": [{"__rec":1,"type":"click","ts":1}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, rec.all())
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/events", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

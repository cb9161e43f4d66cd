// Package notify posts session summaries to an optional operator webhook.
// Delivery is best-effort: failures are logged, never propagated.
package notify

import (
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type Notifier struct {
	url  string
	http *resty.Client
	log  *zap.Logger
}

// New builds a notifier. An empty URL disables it.
func New(url string, log *zap.Logger) *Notifier {
	r := resty.New()
	r.SetTimeout(5 * time.Second)
	r.SetHeader("Content-Type", "application/json")
	return &Notifier{url: url, http: r, log: log}
}

// Send posts one named event with an arbitrary payload.
func (n *Notifier) Send(event string, payload map[string]any) {
	if n.url == "" {
		return
	}
	body := map[string]any{"event": event, "payload": payload}
	resp, err := n.http.R().SetBody(body).Post(n.url)
	if err != nil {
		n.log.Warn("webhook delivery failed", zap.String("event", event), zap.Error(err))
		return
	}
	if resp.IsError() {
		n.log.Warn("webhook rejected",
			zap.String("event", event),
			zap.Int("status", resp.StatusCode()))
	}
}

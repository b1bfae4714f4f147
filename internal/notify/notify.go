// Package notify delivers fire-and-forget event notifications to the memory
// service. Delivery is best-effort: failures are logged and dropped, never
// surfaced to the caller.
package notify

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// timeout bounds every notification attempt. A slow or absent service must
// never block a session hook.
const timeout = 2 * time.Second

// Notifier posts JSON events to a base URL.
type Notifier struct {
	baseURL string
	client  *http.Client
}

// New creates a notifier for the given service base URL.
func New(baseURL string) *Notifier {
	return &Notifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Send posts one event to path. Always returns quickly; the result only says
// whether the service acknowledged, and callers are free to ignore it.
func (n *Notifier) Send(path string, payload any) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[notify] marshal failed: %v", err)
		return false
	}
	resp, err := n.client.Post(n.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[notify] send failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		log.Printf("[notify] service returned %d for %s", resp.StatusCode, path)
		return false
	}
	return true
}

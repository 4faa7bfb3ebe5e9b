package notify

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/quantfold/signal-engine/internal/observ"
)

// Webhook posts messages to a chat webhook through a bounded queue. Repeats
// of the same message within the dedupe window are suppressed; a full queue
// drops the message and bumps a counter rather than blocking the caller.
type Webhook struct {
	url        string
	httpClient *http.Client
	queue      chan payload

	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration

	cancel context.CancelFunc
}

type payload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	TsUTC   string `json:"ts_utc"`
}

func NewWebhook(url string) *Webhook {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		queue:      make(chan payload, 256),
		seen:       map[string]time.Time{},
		window:     60 * time.Second,
		cancel:     cancel,
	}
	go w.worker(ctx)
	go w.cleanup(ctx)
	return w
}

func (w *Webhook) Notify(title, message string) {
	if w.url == "" {
		return
	}
	h := sha256.Sum256([]byte(title + "|" + message))
	key := hex.EncodeToString(h[:8])

	w.mu.Lock()
	if at, ok := w.seen[key]; ok && time.Since(at) < w.window {
		w.mu.Unlock()
		return
	}
	w.seen[key] = time.Now()
	w.mu.Unlock()

	select {
	case w.queue <- payload{Title: title, Message: message, TsUTC: time.Now().UTC().Format(time.RFC3339)}:
	default:
		observ.IncNotifyDropped()
	}
}

func (w *Webhook) Close() {
	w.cancel()
}

func (w *Webhook) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-w.queue:
			w.post(ctx, p)
		}
	}
}

func (w *Webhook) post(ctx context.Context, p payload) {
	b, err := json.Marshal(p)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(b))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.httpClient.Do(req)
	if err != nil {
		observ.Log("notify_error", map[string]any{"error": err.Error()})
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		observ.Log("notify_error", map[string]any{"status": resp.StatusCode})
	}
}

func (w *Webhook) cleanup(ctx context.Context) {
	ticker := time.NewTicker(w.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-w.window)
			w.mu.Lock()
			for k, at := range w.seen {
				if at.Before(cutoff) {
					delete(w.seen, k)
				}
			}
			w.mu.Unlock()
		}
	}
}

package gateway

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Audit appends admitted events to a JSONL trail. Write failures are logged
// by the caller; the trail is visibility, not a ledger.
type Audit struct {
	mu   sync.Mutex
	path string
}

type auditEntry struct {
	ID      string    `json:"id"`
	Alert   Alert     `json:"alert"`
	Outcome string    `json:"outcome"`
	At      time.Time `json:"at"`
}

func NewAudit(path string) (*Audit, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return &Audit{path: path}, nil
}

func (a *Audit) Append(id string, alert Alert, outcome string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(auditEntry{ID: id, Alert: alert, Outcome: outcome, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = f.Write(b)
	return err
}

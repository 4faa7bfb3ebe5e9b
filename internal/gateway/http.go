package gateway

import (
	"encoding/json"
	"io"
	"net/http"
)

// maxPayloadBytes bounds one inbound alert body.
const maxPayloadBytes = 64 << 10

// Handler serves POST /alert. The response completes at enqueue time; it
// never blocks on downstream execution.
func (g *Gateway) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		outcome := g.Admit(body)

		w.Header().Set("Content-Type", "application/json")
		// Admission failures are acknowledged with 200: the sender must not
		// retry a parse failure or a dropped event.
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(outcome)
	})
}

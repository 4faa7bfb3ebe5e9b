package params

import (
	"encoding/json"
	"net/http"
)

// Handler serves the runtime configuration surface: GET returns the
// effective parameter map, POST merge-sets a patch and returns the accepted
// subset. Unknown keys are ignored, not errors.
func (s *Store) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(s.GetAll())
		case http.MethodPost:
			var patch map[string]string
			if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid patch"})
				return
			}
			accepted, err := s.Set(patch)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"accepted": accepted})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

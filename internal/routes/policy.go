package routes

import (
	"encoding/json"
	"net/http"

	"sql-guard/internal/config"
)

// PolicyHandler reports the active limits and list sizes. List contents,
// the PII denylist in particular, are not exposed.
func PolicyHandler(store *config.PolicyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(store.Policy().Summary())
	}
}

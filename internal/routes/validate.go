package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"sql-guard/internal/gate"
)

type ValidateRequest struct {
	TenantID string `json:"tenant_id"`
	SQL      string `json:"sql"`
}

// ValidateHandler answers 200 for accepted SQL and 403 for rejected SQL.
// The response carries the report but never the SQL text.
func ValidateHandler(g *gate.Gate, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

		var req ValidateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if strings.TrimSpace(req.SQL) == "" {
			writeError(w, http.StatusBadRequest, "sql is required")
			return
		}

		decision, err := g.Check(r.Context(), req.TenantID, req.SQL)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		status := http.StatusOK
		if !decision.Passed {
			status = http.StatusForbidden
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(decision)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

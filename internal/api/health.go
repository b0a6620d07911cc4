package api

import "net/http"

type healthBody struct {
	Status          string `json:"status"`
	SQLiteConnected bool   `json:"sqlite_connected"`
	Error           string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := healthBody{Status: "ok", SQLiteConnected: true}

	if err := s.store.HealthCheck(r.Context()); err != nil {
		body.SQLiteConnected = false
		body.Error = err.Error()
	}

	writeJSON(w, http.StatusOK, body)
}

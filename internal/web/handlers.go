package web

import (
	"encoding/json"
	"net/http"

	"stemprep/internal/metadata"
	"stemprep/internal/pipeline"
)

type ReportResponse struct {
	Status RunStatus             `json:"status"`
	Report *pipeline.BatchReport `json:"report"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, status := s.mon.Snapshot()
	s.writeJSON(w, ReportResponse{Status: status, Report: report})
}

// handleFiles lists finished files, optionally filtered by ?outcome=.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	outcome := metadata.Outcome(r.URL.Query().Get("outcome"))
	switch outcome {
	case "", metadata.Success, metadata.Partial, metadata.Failed:
	default:
		http.Error(w, "Unknown outcome", http.StatusBadRequest)
		return
	}

	files := []pipeline.FileReport{}
	if report, _ := s.mon.Snapshot(); report != nil {
		for _, f := range report.Files {
			if outcome == "" || f.Outcome == outcome {
				files = append(files, f)
			}
		}
	}
	s.writeJSON(w, files)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, status := s.mon.Snapshot()
	s.writeJSON(w, map[string]RunStatus{"status": status})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

package api

import (
	"net/http"
	"strconv"

	"wallet-fleet/internal/domain"
	"wallet-fleet/internal/reporting"
)

type reportResponse struct {
	JobID         string       `json:"job_id"`
	Kind          string       `json:"kind"`
	Total         int          `json:"total"`
	Confirmed     int          `json:"confirmed"`
	Sent          int          `json:"sent"`
	Unconfirmed   int          `json:"unconfirmed"`
	Failed        int          `json:"failed"`
	LamportsMoved string       `json:"lamports_moved"`
	Transfers     []recordView `json:"transfers"`
}

type recordView struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Lamports    uint64 `json:"lamports,string"`
	Signature   string `json:"signature,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// handleJobReport renders a job ledger as JSON, CSV or Markdown (?format=json|csv|md).
func (s *Server) handleJobReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.Generate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, viewReport(report))
	case "csv":
		out, err := reporting.RenderCSV(report)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(out))
	case "md":
		w.Header().Set("Content-Type", "text/markdown")
		_, _ = w.Write([]byte(reporting.RenderMarkdown(report)))
	default:
		writeError(w, r, domain.Usagef("unknown format %q", format), nil)
	}
}

func viewReport(r *reporting.JobReport) reportResponse {
	s := r.Summary
	resp := reportResponse{
		JobID:         r.JobID,
		Kind:          string(r.Kind),
		Total:         s.Total,
		Confirmed:     s.Confirmed,
		Sent:          s.Sent,
		Unconfirmed:   s.Unconfirmed,
		Failed:        s.Failed,
		LamportsMoved: strconv.FormatUint(s.LamportsMoved, 10),
		Transfers:     make([]recordView, len(r.Transfers)),
	}
	for i, t := range r.Transfers {
		resp.Transfers[i] = recordView{
			From:        t.From,
			To:          t.To,
			Lamports:    t.Lamports,
			Signature:   t.Signature,
			Status:      string(t.Status),
			Error:       t.Error,
			TimestampMs: t.Timestamp,
		}
	}
	return resp
}

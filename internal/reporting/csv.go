package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
)

var csvHeader = []string{"job_id", "kind", "from", "to", "lamports", "signature", "status", "error", "timestamp_ms"}

// RenderCSV renders the report's transfers as CSV string.
func RenderCSV(r *JobReport) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write(csvHeader); err != nil {
		return "", err
	}
	for _, t := range r.Transfers {
		row := []string{
			t.JobID,
			string(t.Kind),
			t.From,
			t.To,
			strconv.FormatUint(t.Lamports, 10),
			t.Signature,
			string(t.Status),
			t.Error,
			strconv.FormatInt(t.Timestamp, 10),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	w.Flush()
	return sb.String(), w.Error()
}

package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *JobReport) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# %s Job %s\n\n", r.Kind, r.JobID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Summary
	s := r.Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Transfers | %d |\n", s.Total))
	sb.WriteString(fmt.Sprintf("| Confirmed | %d |\n", s.Confirmed))
	sb.WriteString(fmt.Sprintf("| Sent | %d |\n", s.Sent))
	sb.WriteString(fmt.Sprintf("| Unconfirmed | %d |\n", s.Unconfirmed))
	sb.WriteString(fmt.Sprintf("| Failed | %d |\n", s.Failed))
	sb.WriteString(fmt.Sprintf("| Lamports Moved | %d |\n", s.LamportsMoved))
	sb.WriteString(fmt.Sprintf("| First Transfer | %s |\n", time.UnixMilli(s.FirstAt).UTC().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("| Last Transfer | %s |\n", time.UnixMilli(s.LastAt).UTC().Format(time.RFC3339)))
	sb.WriteString("\n")

	if s.Unconfirmed > 0 {
		sb.WriteString("**Some transfers are unconfirmed.** Check recipient balances before retrying.\n\n")
	}

	// Transfers
	sb.WriteString("## Transfers\n\n")
	sb.WriteString("| From | To | Lamports | Status | Signature | Error |\n")
	sb.WriteString("|------|----|----------|--------|-----------|-------|\n")
	for _, t := range r.Transfers {
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %s | %s | %s |\n",
			t.From, t.To, t.Lamports, t.Status, t.Signature, escapeCell(t.Error)))
	}

	return sb.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

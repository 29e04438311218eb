package reporting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"wallet-fleet/internal/domain"
	"wallet-fleet/internal/storage"
	"wallet-fleet/internal/storage/memory"
)

func setupTestLedger(t *testing.T) *memory.TransferLogStore {
	ctx := context.Background()
	ledger := memory.NewTransferLogStore()

	records := []*domain.TransferRecord{
		{JobID: "job-1", Kind: domain.JobKindFunding, From: "dist", To: "w1", Lamports: 1000, Signature: "sig1", Status: domain.TransferConfirmed, Timestamp: 1_700_000_000_000},
		{JobID: "job-1", Kind: domain.JobKindFunding, From: "dist", To: "w2", Lamports: 1000, Signature: "sig2", Status: domain.TransferUnconfirmed, Error: "timed out", Timestamp: 1_700_000_000_000},
		{JobID: "job-1", Kind: domain.JobKindFunding, From: "dist", To: "w3", Lamports: 1000, Signature: "sig3", Status: domain.TransferFailed, Error: "rejected | bad, blockhash", Timestamp: 1_700_000_060_000},
		{JobID: "job-2", Kind: domain.JobKindCollection, From: "w1", To: "dest", Lamports: 50, Signature: "sig4", Status: domain.TransferSent, Timestamp: 1_700_000_100_000},
	}
	if err := ledger.InsertBulk(ctx, records); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	return ledger
}

func fixedClock() time.Time {
	return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
}

func TestGenerator_Generate(t *testing.T) {
	gen := NewGenerator(setupTestLedger(t)).WithClock(fixedClock)

	report, err := gen.Generate(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if report.Kind != domain.JobKindFunding {
		t.Errorf("expected FUNDING kind, got %s", report.Kind)
	}
	if !report.GeneratedAt.Equal(fixedClock()) {
		t.Errorf("expected fixed clock, got %v", report.GeneratedAt)
	}

	s := report.Summary
	if s.Total != 3 || s.Confirmed != 1 || s.Unconfirmed != 1 || s.Failed != 1 || s.Sent != 0 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if s.LamportsMoved != 1000 {
		t.Errorf("expected 1000 lamports moved, got %d", s.LamportsMoved)
	}
	if s.FirstAt != 1_700_000_000_000 || s.LastAt != 1_700_000_060_000 {
		t.Errorf("unexpected window: %d..%d", s.FirstAt, s.LastAt)
	}
}

func TestGenerator_SentCountsAsMoved(t *testing.T) {
	gen := NewGenerator(setupTestLedger(t))

	report, err := gen.Generate(context.Background(), "job-2")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if report.Summary.Sent != 1 || report.Summary.LamportsMoved != 50 {
		t.Errorf("unexpected summary: %+v", report.Summary)
	}
}

func TestGenerator_NotFound(t *testing.T) {
	gen := NewGenerator(setupTestLedger(t))

	_, err := gen.Generate(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_, err = gen.Generate(context.Background(), "")
	if !errors.Is(err, domain.ErrUsage) {
		t.Errorf("expected ErrUsage, got %v", err)
	}
}

func TestRenderMarkdown(t *testing.T) {
	report, err := NewGenerator(setupTestLedger(t)).WithClock(fixedClock).Generate(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	md := RenderMarkdown(report)

	for _, want := range []string{
		"# FUNDING Job job-1",
		"Generated: 2024-01-15T12:00:00Z",
		"| Transfers | 3 |",
		"| Lamports Moved | 1000 |",
		"**Some transfers are unconfirmed.**",
		`rejected \| bad, blockhash`,
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderCSV(t *testing.T) {
	report, err := NewGenerator(setupTestLedger(t)).Generate(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	out, err := RenderCSV(report)
	if err != nil {
		t.Fatalf("RenderCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %d lines", len(lines))
	}
	if lines[0] != "job_id,kind,from,to,lamports,signature,status,error,timestamp_ms" {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(out, `"rejected | bad, blockhash"`) {
		t.Errorf("error with comma must be quoted: %s", out)
	}
}

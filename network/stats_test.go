package network

import (
	"strings"
	"testing"
)

func TestPredictionStatsSummary(t *testing.T) {
	var s PredictionStats
	s.Record(Correction{Error: 0, Measured: true, Replayed: 2})
	s.Record(Correction{Error: 4, Measured: true, Replayed: 1})
	s.Record(Correction{Error: 2, Measured: true})
	s.Record(Correction{Replayed: 3}) // prediction already evicted

	got := s.Summary()
	if got.Corrections != 4 || got.Measured != 3 || got.Replayed != 6 {
		t.Fatalf("counts = %+v", got)
	}
	if got.AvgError != 2 || got.MaxError != 4 || got.Mispredicted != 2 {
		t.Fatalf("errors = %+v", got)
	}

	s.Reset()
	if s.Summary() != (PredictionSummary{}) {
		t.Fatalf("reset left %+v", s.Summary())
	}
}

func TestWriteReport(t *testing.T) {
	var b strings.Builder
	err := WriteReport(&b, []ReportRow{
		{Name: "lossy", Latency: 100, Summary: PredictionSummary{AvgError: 1.5, MaxError: 6, Corrections: 40, Mispredicted: 3}},
		{Name: "ideal"},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	out := b.String()
	for _, want := range []string{"# Prediction Report", "| lossy ", "1.50", "6.00", "100 ms", "| ideal "} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines != 6 {
		t.Fatalf("report has %d lines, want 6:\n%s", lines, out)
	}
}

package network

import (
	"fmt"
	"io"
	"sync"
)

// PredictionSummary aggregates prediction error over a run.
type PredictionSummary struct {
	Corrections  int     // reconciliations applied
	Measured     int     // corrections whose earlier prediction was still retained
	Replayed     int     // inputs re-applied in total
	AvgError     float64 // mean over measured corrections
	MaxError     float64
	Mispredicted int // measured corrections with a non-zero error
}

// PredictionStats records corrections. It is safe for concurrent use so a
// reporter can read while the client loop writes.
type PredictionStats struct {
	mu  sync.Mutex
	sum float64
	s   PredictionSummary
}

// Record adds one correction.
func (p *PredictionStats) Record(c Correction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.s.Corrections++
	p.s.Replayed += c.Replayed
	if !c.Measured {
		return
	}
	p.s.Measured++
	p.sum += c.Error
	if c.Error > p.s.MaxError {
		p.s.MaxError = c.Error
	}
	if c.Error > 0 {
		p.s.Mispredicted++
	}
}

// Summary returns the totals so far.
func (p *PredictionStats) Summary() PredictionSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.s
	if s.Measured > 0 {
		s.AvgError = p.sum / float64(s.Measured)
	}
	return s
}

// Reset clears every total.
func (p *PredictionStats) Reset() {
	p.mu.Lock()
	p.sum = 0
	p.s = PredictionSummary{}
	p.mu.Unlock()
}

// ReportRow is one line of a report.
type ReportRow struct {
	Name    string
	Latency int // one-way, milliseconds
	Summary PredictionSummary
}

// WriteReport renders rows as a markdown table.
func WriteReport(w io.Writer, rows []ReportRow) error {
	if _, err := fmt.Fprint(w, "# Prediction Report\n\n"+
		"| Network Condition | Avg Error | Max Error | Corrections | Mispredicted | Input Lag |\n"+
		"|-------------------|-----------|-----------|-------------|--------------|-----------|\n"); err != nil {
		return err
	}
	for _, r := range rows {
		_, err := fmt.Fprintf(w, "| %-17s | %9.2f | %9.2f | %11d | %12d | %6d ms |\n",
			r.Name, r.Summary.AvgError, r.Summary.MaxError, r.Summary.Corrections, r.Summary.Mispredicted, r.Latency)
		if err != nil {
			return err
		}
	}
	return nil
}

package ui

import (
	"fmt"
	"strings"
	"time"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
	barWidth      = 20
)

// Status labels for one processed article
const (
	StatusCaptured = "captured"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
)

// StatusTracker keeps track of batch progress
type StatusTracker struct {
	Total     int
	Processed int
	Captured  int
	Skipped   int
	Failed    int
	StartTime time.Time
}

// NewStatusTracker creates a tracker for total articles
func NewStatusTracker(total int) *StatusTracker {
	return &StatusTracker{
		Total:     total,
		StartTime: time.Now(),
	}
}

// Record counts one processed article and prints its line
func (st *StatusTracker) Record(status, title, detail string) {
	st.Processed++
	switch status {
	case StatusCaptured:
		st.Captured++
	case StatusSkipped:
		st.Skipped++
	case StatusFailed:
		st.Failed++
	}

	if title == "" {
		title = Dim("(untitled)")
	}
	line := fmt.Sprintf("%s %s %s", st.Bar(), statusTag(status), title)
	if detail != "" {
		line += " " + Dim(detail)
	}

	if status == StatusFailed {
		emit(true, line)
		return
	}
	emit(false, line)
}

// Bar renders the share of processed articles
func (st *StatusTracker) Bar() string {
	return RenderBar(st.Processed, st.Total, barWidth)
}

// GetElapsedTime returns the elapsed time since tracking started
func (st *StatusTracker) GetElapsedTime() time.Duration {
	return time.Since(st.StartTime)
}

// RenderBar draws a fixed-width bar with a done/total counter
func RenderBar(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	if filled > width {
		filled = width
	}
	bar := strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, width-filled)
	return fmt.Sprintf("[%s] %d/%d", bar, done, total)
}

func statusTag(status string) string {
	switch status {
	case StatusCaptured:
		return Green("[OK]  ")
	case StatusSkipped:
		return Dim("[SKIP]")
	case StatusFailed:
		return Red("[FAIL]")
	}
	return "[" + strings.ToUpper(status) + "]"
}

// PrintSummary prints the aggregate counters of a run
func PrintSummary(total, succeeded, skipped, failed int, elapsed time.Duration) {
	PrintHighlight("\nSummary")
	PrintInfo("Total", fmt.Sprintf("%d", total))
	PrintInfo("Captured", fmt.Sprintf("%d", succeeded))
	PrintInfo("Skipped", fmt.Sprintf("%d", skipped))
	if failed > 0 {
		PrintWarning(fmt.Sprintf("Failed: %d (see the failure log, then run retry-failed)", failed))
	} else {
		PrintInfo("Failed", "0")
	}
	PrintInfo("Elapsed", elapsed.Round(time.Second).String())
}

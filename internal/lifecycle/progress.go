package lifecycle

import (
	"fmt"
	"io"
	"strings"
)

// ProgressBar renders a single-line download bar.
type ProgressBar struct {
	w     io.Writer
	width int
}

// NewProgressBar creates a bar; width <= 0 means 40 cells.
func NewProgressBar(w io.Writer, width int) *ProgressBar {
	if width <= 0 {
		width = 40
	}
	return &ProgressBar{w: w, width: width}
}

// Update redraws the bar in place.
func (p *ProgressBar) Update(percent float64, message string) {
	filled := min(max(int(percent/100*float64(p.width)), 0), p.width)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)
	_, _ = fmt.Fprintf(p.w, "\r[%s] %.0f%% %s", bar, percent, message)
}

// Finish ends the bar's line.
func (p *ProgressBar) Finish() {
	_, _ = fmt.Fprintln(p.w)
}

// FormatBytes formats a byte count for humans.
func FormatBytes(n int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case n >= GB:
		return fmt.Sprintf("%.1f GB", float64(n)/GB)
	case n >= MB:
		return fmt.Sprintf("%.1f MB", float64(n)/MB)
	case n >= KB:
		return fmt.Sprintf("%.1f KB", float64(n)/KB)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// PullProgressPrinter returns a PullModel callback that draws layer downloads
// as a bar and other status changes as text.
func PullProgressPrinter(w io.Writer) func(PullProgress) {
	bar := NewProgressBar(w, 40)
	last := ""
	return func(p PullProgress) {
		if p.Total > 0 {
			bar.Update(p.Percent, FormatBytes(p.Completed)+"/"+FormatBytes(p.Total))
			return
		}
		if p.Status != last {
			last = p.Status
			_, _ = fmt.Fprintf(w, "\r%s...", p.Status)
		}
	}
}

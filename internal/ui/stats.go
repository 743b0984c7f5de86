package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Aman-CERP/chatmydocs/internal/telemetry"
)

// StatsRenderer displays answer statistics.
type StatsRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatsRenderer creates a stats renderer.
func NewStatsRenderer(out io.Writer, noColor bool) *StatsRenderer {
	return &StatsRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

var (
	outcomeOrder = []telemetry.Outcome{
		telemetry.OutcomeGrounded,
		telemetry.OutcomeRefusal,
		telemetry.OutcomeGreeting,
		telemetry.OutcomeError,
	}
	bucketLabels = []struct {
		bucket telemetry.LatencyBucket
		label  string
	}{
		{telemetry.BucketP500, "< 0.5s"},
		{telemetry.BucketP1000, "0.5-1s"},
		{telemetry.BucketP2000, "1-2s"},
		{telemetry.BucketP5000, "2-5s"},
		{telemetry.BucketP10000, ">= 5s"},
	}
)

// Render displays the snapshot to terminal.
func (r *StatsRenderer) Render(snap *telemetry.Snapshot) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Answer Statistics"))

	if !snap.Since.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Since:        %s\n", formatTime(snap.Since))
	}
	_, _ = fmt.Fprintf(r.out, "  Questions:    %d\n", snap.Total)
	if snap.Total == 0 {
		return nil
	}
	_, _ = fmt.Fprintf(r.out, "  Refusal rate: %s\n\n", r.renderRate(snap.RefusalRate()))

	_, _ = fmt.Fprintln(r.out, "  Outcomes:")
	for _, o := range outcomeOrder {
		_, _ = fmt.Fprintf(r.out, "    %-9s %d\n", string(o)+":", snap.Outcomes[o])
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Latency:")
	for _, b := range bucketLabels {
		_, _ = fmt.Fprintf(r.out, "    %-7s %d\n", b.label, snap.LatencyDistribution[b.bucket])
	}

	if len(snap.TopTerms) > 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "  Top terms:")
		for _, tc := range snap.TopTerms {
			_, _ = fmt.Fprintf(r.out, "    %-16s %d\n", tc.Term, tc.Count)
		}
	}

	if len(snap.RefusedQuestions) > 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "  Recently refused:")
		for _, q := range snap.RefusedQuestions {
			_, _ = fmt.Fprintf(r.out, "    %s\n", r.styles.Dim.Render(q))
		}
	}
	return nil
}

// RenderJSON outputs the snapshot as JSON.
func (r *StatsRenderer) RenderJSON(snap *telemetry.Snapshot) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(snap)
}

func (r *StatsRenderer) renderRate(rate float64) string {
	s := fmt.Sprintf("%.1f%%", rate*100)
	switch {
	case rate >= 0.5:
		return r.styles.Error.Render(s)
	case rate >= 0.2:
		return r.styles.Warning.Render(s)
	default:
		return r.styles.Success.Render(s)
	}
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

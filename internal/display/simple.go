// Package display provides output rendering for path MTU discovery results.
package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hervehildenbrand/pmtud/pkg/pathmtu"
)

// SimpleRenderer renders discovery progress in plain text, one line per probe.
type SimpleRenderer struct {
	ShowHostname bool
	ShowErrors   bool
}

// NewSimpleRenderer creates a new SimpleRenderer with default settings.
func NewSimpleRenderer() *SimpleRenderer {
	return &SimpleRenderer{
		ShowHostname: true,
		ShowErrors:   true,
	}
}

// FormatRTT formats a duration as milliseconds.
func (r *SimpleRenderer) FormatRTT(d time.Duration) string {
	ms := float64(d) / float64(time.Millisecond)
	return fmt.Sprintf("%.2fms", ms)
}

// RenderHeader renders the line printed before the first probe.
func (r *SimpleRenderer) RenderHeader(target, targetIP string, firstSize, step int) string {
	return fmt.Sprintf("pmtud to %s (%s), %d byte first probe, step %d",
		target, targetIP, firstSize, step)
}

// RenderProbe renders a single probe as a text line.
func (r *SimpleRenderer) RenderProbe(attempt int, p pathmtu.Probe) string {
	parts := []string{
		fmt.Sprintf("%2d", attempt),
		fmt.Sprintf("%5d bytes", p.Size),
		fmt.Sprintf("%-13s", p.Outcome),
	}

	if p.From != nil {
		parts = append(parts, "from "+p.From.String())
	}

	if p.NextHopMTU > 0 {
		parts = append(parts, fmt.Sprintf("[MTU:%d]", p.NextHopMTU))
	}

	if p.RTT > 0 {
		parts = append(parts, r.FormatRTT(p.RTT))
	} else if p.From == nil && p.Outcome == "no-response" {
		parts = append(parts, "*")
	}

	if r.ShowErrors && p.Error != "" {
		parts = append(parts, fmt.Sprintf("(%s)", p.Error))
	}

	return strings.TrimRight(strings.Join(parts, "  "), " ")
}

// RenderSummary renders the final line of a run.
func (r *SimpleRenderer) RenderSummary(res *pathmtu.Result) string {
	if !res.Discovered {
		return fmt.Sprintf("No path MTU to %s: %s", res.Target, res.Failure)
	}

	reporter := ""
	if res.Reporter != nil {
		reporter = res.Reporter.String()
		if r.ShowHostname && res.ReporterHostname != "" {
			reporter = fmt.Sprintf("%s (%s)", res.ReporterHostname, reporter)
		}
		if res.ReporterASN > 0 {
			reporter += fmt.Sprintf(" [AS%d]", res.ReporterASN)
		}
	}

	how := "confirmed by echo reply from " + reporter
	if res.Authoritative {
		how = "reported by " + reporter
	}

	line := fmt.Sprintf("Path MTU to %s: %d bytes, %s", res.Target, res.MTU, how)
	switch {
	case res.IsJumbo():
		line += " [jumbo]"
	case res.IsReduced():
		line += " [reduced]"
	}
	return line
}

// RenderResult renders a complete result to the writer.
func (r *SimpleRenderer) RenderResult(w io.Writer, res *pathmtu.Result) {
	ip := ""
	if res.TargetIP != nil {
		ip = res.TargetIP.String()
	}
	fmt.Fprintf(w, "pmtud to %s (%s)\n", res.Target, ip)

	for i, p := range res.Probes {
		fmt.Fprintln(w, r.RenderProbe(i+1, p))
	}

	fmt.Fprintln(w, r.RenderSummary(res))
}

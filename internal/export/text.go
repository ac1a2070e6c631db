package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hervehildenbrand/pmtud/pkg/pathmtu"
)

// TextExporter exports discovery results to human-readable text format.
type TextExporter struct{}

// NewTextExporter creates a new text exporter.
func NewTextExporter() *TextExporter {
	return &TextExporter{}
}

// Export writes the results as text to the writer.
func (e *TextExporter) Export(w io.Writer, results []*pathmtu.Result) error {
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		e.writeResult(w, r)
	}
	return nil
}

func (e *TextExporter) writeResult(w io.Writer, r *pathmtu.Result) {
	fmt.Fprintf(w, "Path MTU discovery to %s (%s)\n", r.Target, ipString(r.TargetIP))
	fmt.Fprintf(w, "Run: %s\n", r.ID)
	if r.Source != nil {
		fmt.Fprintf(w, "Source: %s\n", r.Source)
	}
	fmt.Fprintln(w, strings.Repeat("=", 70))

	for i, p := range r.Probes {
		e.writeProbe(w, i+1, p)
	}

	fmt.Fprintln(w, strings.Repeat("=", 70))
	if r.Discovered {
		how := "echo reply"
		if r.Authoritative {
			how = "router report"
		}
		fmt.Fprintf(w, "Path MTU: %d bytes (max ICMP payload %d, via %s from %s", r.MTU, r.MaxPayload(), how, ipString(r.Reporter))
		if r.ReporterHostname != "" {
			fmt.Fprintf(w, " %s", r.ReporterHostname)
		}
		if r.ReporterASN > 0 {
			fmt.Fprintf(w, " AS%d", r.ReporterASN)
		}
		fmt.Fprintln(w, ")")
	} else {
		fmt.Fprintf(w, "No path MTU found: %s\n", r.Failure)
	}
	if d := r.Duration(); d > 0 {
		fmt.Fprintf(w, "Duration: %v\n", d.Round(time.Millisecond))
	}
}

func (e *TextExporter) writeProbe(w io.Writer, attempt int, p pathmtu.Probe) {
	line := fmt.Sprintf("%2d  %5d bytes  %s", attempt, p.Size, p.Outcome)
	if p.From != nil {
		line += " from " + p.From.String()
	}
	if p.NextHopMTU > 0 {
		line += fmt.Sprintf(" next-hop MTU %d", p.NextHopMTU)
	}
	if p.RTT > 0 {
		line += fmt.Sprintf(" %.2fms", float64(p.RTT)/float64(time.Millisecond))
	}
	fmt.Fprintln(w, line)
	if p.Error != "" {
		fmt.Fprintf(w, "    %s\n", p.Error)
	}
}

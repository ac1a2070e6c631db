package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/hervehildenbrand/pmtud/pkg/pathmtu"
)

// CSVExporter exports discovery results to CSV format, one row per target.
type CSVExporter struct{}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Export writes the results as CSV to the writer.
func (e *CSVExporter) Export(w io.Writer, results []*pathmtu.Result) error {
	writer := csv.NewWriter(w)

	header := []string{
		"id", "target", "target_ip", "mtu", "max_payload", "authoritative",
		"reporter", "reporter_hostname", "reporter_asn", "probes", "duration_ms", "failure",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range results {
		if err := writer.Write(e.resultToRow(r)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// resultToRow converts a result to a CSV row.
func (e *CSVExporter) resultToRow(r *pathmtu.Result) []string {
	mtu := ""
	maxPayload := ""
	asn := ""
	if r.ReporterASN > 0 {
		asn = strconv.FormatUint(uint64(r.ReporterASN), 10)
	}
	if r.Discovered {
		mtu = strconv.Itoa(r.MTU)
		maxPayload = strconv.Itoa(r.MaxPayload())
	}

	return []string{
		r.ID,
		r.Target,
		ipString(r.TargetIP),
		mtu,
		maxPayload,
		strconv.FormatBool(r.Authoritative),
		ipString(r.Reporter),
		r.ReporterHostname,
		asn,
		strconv.Itoa(r.TotalProbes()),
		fmt.Sprintf("%.2f", float64(r.Duration().Microseconds())/1000),
		r.Failure,
	}
}

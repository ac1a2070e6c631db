// Package export provides functionality to export discovery results to various formats.
package export

import (
	"encoding/json"
	"io"
	"time"

	"github.com/hervehildenbrand/pmtud/pkg/pathmtu"
)

// ExportedResult is the JSON representation of a discovery result.
type ExportedResult struct {
	ID               string          `json:"id"`
	Target           string          `json:"target"`
	TargetIP         string          `json:"targetIP"`
	Source           string          `json:"source,omitempty"`
	Discovered       bool            `json:"discovered"`
	MTU              int             `json:"mtu,omitempty"`
	MaxPayload       int             `json:"maxPayload,omitempty"`
	Authoritative    bool            `json:"authoritative"`
	Reporter         string          `json:"reporter,omitempty"`
	ReporterHostname string          `json:"reporterHostname,omitempty"`
	ReporterASN      uint32          `json:"reporterAsn,omitempty"`
	ReporterASName   string          `json:"reporterAsName,omitempty"`
	Failure          string          `json:"failure,omitempty"`
	StartTime        time.Time       `json:"startTime,omitempty"`
	EndTime          time.Time       `json:"endTime,omitempty"`
	Probes           []ExportedProbe `json:"probes"`
}

// ExportedProbe is the JSON representation of a single probe.
type ExportedProbe struct {
	Seq         uint16  `json:"seq"`
	Size        int     `json:"size"`
	PayloadSize int     `json:"payloadSize"`
	Outcome     string  `json:"outcome"`
	From        string  `json:"from,omitempty"`
	NextHopMTU  int     `json:"nextHopMtu,omitempty"`
	RTT         float64 `json:"rtt,omitempty"` // in ms
	Error       string  `json:"error,omitempty"`
}

// JSONExporter exports discovery results to JSON format.
type JSONExporter struct {
	Pretty bool // Whether to pretty-print the JSON
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{
		Pretty: false,
	}
}

// Export writes the results as a JSON array to the writer.
func (e *JSONExporter) Export(w io.Writer, results []*pathmtu.Result) error {
	exported := make([]*ExportedResult, 0, len(results))
	for _, r := range results {
		exported = append(exported, e.convert(r))
	}

	encoder := json.NewEncoder(w)
	if e.Pretty {
		encoder.SetIndent("", "  ")
	}

	return encoder.Encode(exported)
}

// convert transforms a Result to an ExportedResult.
func (e *JSONExporter) convert(r *pathmtu.Result) *ExportedResult {
	exported := &ExportedResult{
		ID:               r.ID,
		Target:           r.Target,
		TargetIP:         ipString(r.TargetIP),
		Source:           ipString(r.Source),
		Discovered:       r.Discovered,
		MTU:              r.MTU,
		MaxPayload:       r.MaxPayload(),
		Authoritative:    r.Authoritative,
		Reporter:         ipString(r.Reporter),
		ReporterHostname: r.ReporterHostname,
		ReporterASN:      r.ReporterASN,
		ReporterASName:   r.ReporterASName,
		Failure:          r.Failure,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		Probes:           make([]ExportedProbe, 0, len(r.Probes)),
	}

	for _, p := range r.Probes {
		exported.Probes = append(exported.Probes, e.convertProbe(p))
	}

	return exported
}

// convertProbe transforms a Probe to an ExportedProbe.
func (e *JSONExporter) convertProbe(p pathmtu.Probe) ExportedProbe {
	return ExportedProbe{
		Seq:         p.Seq,
		Size:        p.Size,
		PayloadSize: p.PayloadSize,
		Outcome:     p.Outcome,
		From:        ipString(p.From),
		NextHopMTU:  p.NextHopMTU,
		RTT:         float64(p.RTT) / float64(time.Millisecond),
		Error:       p.Error,
	}
}

package display

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hervehildenbrand/pmtud/pkg/pathmtu"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("240"))

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	ipStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("39"))

	rttStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	mtuStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208"))

	statusStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	completeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")).
			Bold(true)
)

// gaugeWidth is the width of the probe size bar at the initial probe size.
const gaugeWidth = 20

// ProbeMsg is sent when a probe completes
type ProbeMsg struct {
	Probe pathmtu.Probe
}

// CompleteMsg is sent when discovery is finished
type CompleteMsg struct {
	Result *pathmtu.Result
}

// TUIModel is the Bubbletea model for the discovery TUI
type TUIModel struct {
	mu        sync.RWMutex
	target    string
	targetIP  string
	probes    []pathmtu.Probe
	result    *pathmtu.Result
	complete  bool
	spinner   spinner.Model
	width     int
	height    int
	startTime time.Time
}

// NewTUIModel creates a new TUI model
func NewTUIModel(target, targetIP string) *TUIModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &TUIModel{
		target:    target,
		targetIP:  targetIP,
		probes:    make([]pathmtu.Probe, 0),
		spinner:   s,
		startTime: time.Now(),
	}
}

// AddProbe adds a probe to the model
func (m *TUIModel) AddProbe(p pathmtu.Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes = append(m.probes, p)
}

// SetComplete marks discovery as finished
func (m *TUIModel) SetComplete(res *pathmtu.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.complete = true
	m.result = res
}

// Init implements tea.Model
func (m *TUIModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m *TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case ProbeMsg:
		m.AddProbe(msg.Probe)

	case CompleteMsg:
		m.SetComplete(msg.Result)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model
func (m *TUIModel) View() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder

	title := fmt.Sprintf("pmtud → %s (%s)", m.target, m.targetIP)
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	header := fmt.Sprintf("%-4s %-7s %-14s %-16s %-8s %s",
		"#", "Size", "Outcome", "From", "RTT", "Probe")
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 70))
	b.WriteString("\n")

	for i, p := range m.probes {
		b.WriteString(m.formatProbeRow(i+1, p))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 70))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())

	b.WriteString("\n")
	if m.complete {
		if m.result != nil && m.result.Discovered {
			b.WriteString(completeStyle.Render(fmt.Sprintf("✓ Path MTU %d bytes", m.result.MTU)))
		} else {
			reason := "discovery failed"
			if m.result != nil && m.result.Failure != "" {
				reason = m.result.Failure
			}
			b.WriteString(failStyle.Render("✗ " + reason))
		}
		b.WriteString(" | Press 'q' to quit")
	} else {
		b.WriteString(m.spinner.View())
		b.WriteString(" Probing... Press 'q' to cancel")
	}

	return b.String()
}

// formatProbeRow formats a single probe row
func (m *TUIModel) formatProbeRow(attempt int, p pathmtu.Probe) string {
	var b strings.Builder

	b.WriteString(rowStyle.Render(fmt.Sprintf("%-4d", attempt)))
	b.WriteString(rowStyle.Render(fmt.Sprintf("%-7d", p.Size)))

	switch p.Outcome {
	case "echo-reply":
		b.WriteString(rttStyle.Render(fmt.Sprintf("%-14s", p.Outcome)))
	case "frag-needed":
		b.WriteString(mtuStyle.Render(fmt.Sprintf("%-14s", p.Outcome)))
	default:
		b.WriteString(failStyle.Render(fmt.Sprintf("%-14s", p.Outcome)))
	}

	if p.From == nil {
		b.WriteString(failStyle.Render("*"))
		b.WriteString(strings.Repeat(" ", 15))
	} else {
		ipStr := p.From.String()
		if len(ipStr) > 15 {
			ipStr = ipStr[:15]
		}
		b.WriteString(ipStyle.Render(fmt.Sprintf("%-16s", ipStr)))
	}

	if p.RTT > 0 {
		ms := float64(p.RTT) / float64(time.Millisecond)
		b.WriteString(rttStyle.Render(fmt.Sprintf("%-8.1f", ms)))
	} else {
		b.WriteString(failStyle.Render(fmt.Sprintf("%-8s", "-")))
	}

	b.WriteString(m.renderGauge(p.Size))

	if p.NextHopMTU > 0 {
		b.WriteString(" ")
		b.WriteString(mtuStyle.Render(fmt.Sprintf("[MTU:%d]", p.NextHopMTU)))
	}

	return b.String()
}

// renderGauge renders a bar proportional to size relative to the first probe
func (m *TUIModel) renderGauge(size int) string {
	if len(m.probes) == 0 || size <= 0 {
		return ""
	}
	first := m.probes[0].Size
	if first <= 0 {
		return ""
	}

	n := size * gaugeWidth / first
	if n > gaugeWidth {
		n = gaugeWidth
	}
	if n < 1 {
		n = 1
	}
	return strings.Repeat("█", n)
}

// renderStatusBar renders the status bar
func (m *TUIModel) renderStatusBar() string {
	parts := []string{
		fmt.Sprintf("Probes: %d", len(m.probes)),
	}

	if n := len(m.probes); n > 0 {
		parts = append(parts, fmt.Sprintf("Size: %d", m.probes[n-1].Size))
	}

	if m.result != nil && m.result.Authoritative {
		parts = append(parts, mtuStyle.Render("router report"))
	}

	elapsed := time.Since(m.startTime).Round(time.Millisecond)
	parts = append(parts, fmt.Sprintf("Time: %v", elapsed))

	return statusStyle.Render(strings.Join(parts, " │ "))
}

// RunTUI runs the TUI program
func RunTUI(target, targetIP string, probeChan <-chan pathmtu.Probe, doneChan <-chan *pathmtu.Result) error {
	model := NewTUIModel(target, targetIP)

	p := tea.NewProgram(model)

	go func() {
		for {
			select {
			case pr, ok := <-probeChan:
				if !ok {
					probeChan = nil
					continue
				}
				p.Send(ProbeMsg{Probe: pr})
			case res, ok := <-doneChan:
				if !ok {
					return
				}
				p.Send(CompleteMsg{Result: res})
				return
			}
		}
	}()

	_, err := p.Run()
	return err
}

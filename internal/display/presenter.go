// Package display draws the station's session panel on the local console.
package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"rubberweigh/shared/types"

	"github.com/charmbracelet/lipgloss"
)

const clearScreen = "\x1b[2J\x1b[H"

const panelWidth = 30

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("6")).
			Width(panelWidth).
			PaddingLeft(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	resultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// Panel is what the station shows for one tag presentation. Readings that
// have not been taken yet are nil.
type Panel struct {
	Name    string
	TagID   string
	First   *float64
	Second  *float64
	Payload string
}

type Presenter struct {
	mu         sync.Mutex
	w          io.Writer
	kind       types.Kind
	clearAfter time.Duration
	now        func() time.Time
	shownAt    time.Time
}

func New(w io.Writer, kind types.Kind, clearAfter time.Duration) *Presenter {
	return &Presenter{w: w, kind: kind, clearAfter: clearAfter, now: time.Now}
}

func (p *Presenter) Show(panel Panel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.write(clearScreen + p.render(panel) + "\n")
	p.shownAt = p.now()
}

// ShowLinkError replaces the panel with the link failure indicator.
func (p *Presenter) ShowLinkError() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.write(clearScreen + errStyle.Render("LINK !") + "\n")
	p.shownAt = p.now()
}

// Tick clears the screen once clearAfter has elapsed since the last render.
// It reports whether it cleared.
func (p *Presenter) Tick(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shownAt.IsZero() || p.clearAfter <= 0 || now.Sub(p.shownAt) <= p.clearAfter {
		return false
	}
	p.write(clearScreen)
	p.shownAt = time.Time{}
	return true
}

func (p *Presenter) write(s string) {
	// The console is best effort.
	_, _ = io.WriteString(p.w, s)
}

func (p *Presenter) render(panel Panel) string {
	name := boxStyle.Render(valueStyle.Render(panel.Name))
	id := boxStyle.Render(line("ID: ", panel.TagID, ""))

	var rows []string
	switch p.kind {
	case types.KindRawMaterial:
		rows = append(rows, line("KL: ", panel.Payload, " Kg"))
	case types.KindNetVehicleWeight:
		rows = append(rows,
			line("KL1: ", reading(panel.First), " Kg"),
			line("KL2: ", reading(panel.Second), " Kg"),
			resultStyle.Render("KL: "+suffixed(panel.Payload, " Kg")),
		)
	case types.KindMoistureRatio:
		rows = append(rows,
			line("KL1: ", reading(panel.First), " g"),
			line("KL2: ", reading(panel.Second), " g"),
			resultStyle.Render("TSC: "+panel.Payload),
		)
	}
	readings := boxStyle.Render(strings.Join(rows, "\n"))

	return lipgloss.JoinVertical(lipgloss.Left, name, id, readings)
}

func line(label, value, unit string) string {
	return labelStyle.Render(label) + valueStyle.Render(suffixed(value, unit))
}

func suffixed(value, unit string) string {
	if value == "" {
		return ""
	}
	return value + unit
}

func reading(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *v)
}

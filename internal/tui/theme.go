package tui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/watchit/internal/app"
)

// watchState is what the status column shows for a watch.
type watchState int

const (
	stateNeverRun watchState = iota
	statePassed
	stateFailed
	stateRunning
	stateInvalid
)

func stateOf(st app.WatchStatus) watchState {
	switch {
	case st.Running:
		return stateRunning
	case !st.Valid:
		return stateInvalid
	case st.LastRun == nil:
		return stateNeverRun
	case st.LastRun.ExitCode == 0 && st.LastRun.Error == "":
		return statePassed
	default:
		return stateFailed
	}
}

// Theme keeps every color of the monitor in one place.
type Theme struct {
	states map[watchState]lipgloss.Style
	glyphs map[watchState]string

	Panel     lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Flash     lipgloss.Style
	Alert     lipgloss.Style
	Location  lipgloss.Style
	PulseOn   lipgloss.Style
	PulseOff  lipgloss.Style
	tableHead lipgloss.Style
	tableSel  lipgloss.Style
}

func NewDefaultTheme() Theme {
	green := lipgloss.Color("#00FF00")
	red := lipgloss.Color("#FF0000")
	grey := lipgloss.Color("#888888")

	return Theme{
		states: map[watchState]lipgloss.Style{
			stateNeverRun: lipgloss.NewStyle().Foreground(grey),
			statePassed:   lipgloss.NewStyle().Foreground(green),
			stateFailed:   lipgloss.NewStyle().Foreground(red),
			stateRunning:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
			stateInvalid:  lipgloss.NewStyle().Foreground(grey),
		},
		glyphs: map[watchState]string{
			stateNeverRun: "○",
			statePassed:   "●",
			stateFailed:   "●",
			stateRunning:  "◉",
			stateInvalid:  "∅",
		},

		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD")),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:      lipgloss.NewStyle().Foreground(grey),
		Flash:    lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		Alert:    lipgloss.NewStyle().Foreground(red),
		Location: lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF")),
		PulseOn:  lipgloss.NewStyle().Foreground(green),
		PulseOff: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
		tableHead: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			BorderBottom(true).
			Bold(false),
		tableSel: lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Bold(false),
	}
}

// Glyph renders the status column for a watch.
func (t Theme) Glyph(s watchState) string {
	return t.states[s].Render(t.glyphs[s])
}

// TableStyles returns the watch table styling.
func (t Theme) TableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.Inherit(t.tableHead)
	s.Selected = s.Selected.Inherit(t.tableSel)
	return s
}

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	panelWidth := m.width - 4

	watches := m.theme.Panel.Width(panelWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("Watches"),
			m.table.View(),
		),
	)

	title := "Failures"
	if _, ok := m.selectedID(); ok {
		title = fmt.Sprintf("Failures: %s", m.watches[m.table.Cursor()].Definition.Label())
	}
	failures := m.theme.Panel.Width(panelWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render(title),
			m.viewport.View(),
		),
	)

	parts := []string{m.renderHeader(panelWidth), watches, failures}
	switch {
	case m.lastError != "":
		parts = append(parts, m.theme.Alert.Render(" ⚠ "+m.lastError))
	case m.flash != "":
		parts = append(parts, m.theme.Flash.Render(" "+m.flash))
	}
	parts = append(parts, m.theme.Dim.Render(" [r] Run • [s] Stop • [↑/↓] Select • [pgup/pgdn] Scroll • [q] Quit"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) renderHeader(width int) string {
	running, invalid := 0, 0
	for _, st := range m.watches {
		if st.Running {
			running++
		}
		if !st.Valid {
			invalid++
		}
	}

	lastEvent := "never"
	if t := m.pulse.LastEvent(); !t.IsZero() {
		lastEvent = fmt.Sprintf("%s ago", m.now().Sub(t).Round(time.Second))
	}

	stats := fmt.Sprintf(" Watches: %d  Running: %d  Invalid: %d  Last event: %s %s",
		len(m.watches), running, invalid, lastEvent, m.pulse.Render(m.theme))
	clock := m.theme.Dim.Render(m.now().Format("15:04:05"))
	pad := width - lipgloss.Width(stats) - lipgloss.Width(clock) - 2
	if pad < 1 {
		pad = 1
	}
	return m.theme.Panel.Width(width).Render(stats + strings.Repeat(" ", pad) + clock)
}

// Package tui is the in-process terminal monitor started by
// "watchit start --tui".
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/watchit/internal/app"
	"github.com/mattjoyce/watchit/internal/events"
	"github.com/mattjoyce/watchit/internal/runner"
	"github.com/mattjoyce/watchit/internal/watch"
)

const maxFailuresPerWatch = 200

// Controller is the part of the service the monitor drives.
type Controller interface {
	Status() []app.WatchStatus
	TriggerNow(id string) (string, error)
	Stop(id string) (bool, error)
}

type eventMsg events.Event
type tickMsg time.Time
type closedMsg struct{}

// actionMsg reports the outcome of a key-triggered action.
type actionMsg struct {
	text string
	err  error
}

// Model is the BubbleTea model for the monitor.
type Model struct {
	ctrl   Controller
	events <-chan events.Event
	now    func() time.Time

	width  int
	height int

	watches  []app.WatchStatus
	failures map[string][]runner.Failure

	table    table.Model
	viewport viewport.Model
	pulse    Pulse
	theme    Theme

	flash     string
	lastError string
}

// New creates a monitor reading events from ch.
func New(ctrl Controller, ch <-chan events.Event) Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Watch", Width: 24},
			{Title: "Directory", Width: 32},
			{Title: "Exit", Width: 5},
			{Title: "Failures", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)


	theme := NewDefaultTheme()
	t.SetStyles(theme.TableStyles())

	m := Model{
		ctrl:     ctrl,
		events:   ch,
		now:      time.Now,
		failures: make(map[string][]runner.Failure),
		table:    t,
		viewport: viewport.New(80, 10),
		theme:    theme,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.receiveNextEvent(),
		tick(),
	)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) receiveNextEvent() tea.Cmd {
	ch := m.events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if id, ok := m.selectedID(); ok {
				return m, m.runCmd(id)
			}
			return m, nil
		case "s":
			if id, ok := m.selectedID(); ok {
				return m, m.stopCmd(id)
			}
			return m, nil
		case "pgup", "pgdown":
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(20, m.width-6))
		m.viewport.Width = max(20, m.width-6)
		m.viewport.Height = max(3, m.height/3)
		m.renderFailures()

	case tickMsg:
		m.pulse.Decay(m.now())
		m.refresh()
		return m, tick()

	case eventMsg:
		m.handleEvent(events.Event(msg))
		return m, m.receiveNextEvent()

	case closedMsg:
		return m, tea.Quit

	case actionMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
			m.flash = ""
		} else {
			m.lastError = ""
			m.flash = msg.text
		}
		m.refresh()
		return m, nil
	}

	prev := m.table.Cursor()
	m.table, cmd = m.table.Update(msg)
	if m.table.Cursor() != prev {
		m.renderFailures()
	}
	return m, cmd
}

func (m *Model) handleEvent(e events.Event) {
	m.pulse.OnEvent(m.now())

	switch e.Type {
	case events.RunStarted:
		var t runner.Task
		if err := e.Decode(&t); err == nil {
			m.failures[t.Watch.ID] = nil
		}
	case events.RunFailure:
		var f runner.Failure
		if err := e.Decode(&f); err == nil {
			list := append(m.failures[f.WatchID], f)
			if len(list) > maxFailuresPerWatch {
				list = list[len(list)-maxFailuresPerWatch:]
			}
			m.failures[f.WatchID] = list
		}
	}
	m.refresh()
}

// refresh reloads watch status and redraws the table and failure pane.
func (m *Model) refresh() {
	m.watches = m.ctrl.Status()
	rows := make([]table.Row, 0, len(m.watches))
	for _, st := range m.watches {
		rows = append(rows, m.watchRow(st))
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
	m.renderFailures()
}

func (m Model) watchRow(st app.WatchStatus) table.Row {
	exit, count := "-", "-"
	if st.LastRun != nil {
		exit = strconv.Itoa(st.LastRun.ExitCode)
		count = strconv.Itoa(st.LastRun.Failures)
	}
	return table.Row{
		m.theme.Glyph(stateOf(st)),
		st.Definition.Label(),
		watch.AbbreviateHome(st.Definition.Directory),
		exit,
		count,
	}
}

func (m Model) selectedID() (string, bool) {
	c := m.table.Cursor()
	if c < 0 || c >= len(m.watches) {
		return "", false
	}
	return m.watches[c].Definition.ID, true
}

func (m *Model) renderFailures() {
	id, ok := m.selectedID()
	if !ok {
		m.viewport.SetContent("  No watches configured.")
		return
	}
	st := m.watches[m.table.Cursor()]
	if !st.Valid {
		m.viewport.SetContent("  Invalid: " + strings.Join(st.Validity.Problems(), ", "))
		return
	}
	list := m.failures[id]
	if len(list) == 0 {
		m.viewport.SetContent("  No failures.")
		return
	}
	lines := make([]string, 0, len(list))
	for _, f := range list {
		lines = append(lines, m.theme.Location.Render(failureLocation(f))+": "+f.Message)
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
}

func failureLocation(f runner.Failure) string {
	loc := fmt.Sprintf("%s:%d", watch.AbbreviateHome(f.Path), f.Line)
	if f.Column > 0 {
		loc += ":" + strconv.Itoa(f.Column)
	}
	return loc
}

func (m Model) runCmd(id string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		runID, err := ctrl.TriggerNow(id)
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{text: fmt.Sprintf("started %s (%s)", id, shortID(runID))}
	}
}

func (m Model) stopCmd(id string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		stopped, err := ctrl.Stop(id)
		if err != nil {
			return actionMsg{err: err}
		}
		if !stopped {
			return actionMsg{text: id + " is not running"}
		}
		return actionMsg{text: "stopped " + id}
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// Run shows the monitor until the user quits.
func Run(ctrl Controller, hub *events.Hub) error {
	ch, cancel := hub.Subscribe()
	defer cancel()
	p := tea.NewProgram(New(ctrl, ch), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RunRemote shows the monitor for the watchit API at baseURL.
func RunRemote(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	remote := NewRemote(baseURL)
	ch := make(chan events.Event, 128)
	go remote.Stream(ctx, ch)

	p := tea.NewProgram(New(remote, ch), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

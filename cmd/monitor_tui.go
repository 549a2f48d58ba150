// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/servolink/pkg/axis"
	"github.com/Thermoquad/servolink/pkg/link"
	"github.com/Thermoquad/servolink/pkg/lkproto"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// axisRow is the latest reading of one axis
type axisRow struct {
	id       uint8
	name     string
	state    axis.State
	status1  *lkproto.Status1
	status2  *lkproto.Status2
	lastErr  error
	lastSeen time.Time
	polls    uint64
	failures uint64
}

type logEntry struct {
	at      time.Time
	message string
	isError bool
}

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	connInfo string
	rows     []*axisRow
	byID     map[uint8]*axisRow
	table    table.Model

	stats    *link.Statistics
	eventLog []logEntry
	maxLog   int

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type axisPollMsg struct {
	id      uint8
	at      time.Time
	state   axis.State
	status1 *lkproto.Status1
	status2 *lkproto.Status2
	err     error
}

type monitorTickMsg time.Time

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(axes []*axis.Axis, stats *link.Statistics, connInfo string) monitorModel {
	columns := []table.Column{
		{Title: "Axis", Width: 6},
		{Title: "Name", Width: 10},
		{Title: "Angle °", Width: 10},
		{Title: "Speed °/s", Width: 10},
		{Title: "Current", Width: 8},
		{Title: "Temp °C", Width: 8},
		{Title: "Volt V", Width: 7},
		{Title: "Flags", Width: 6},
		{Title: "Status", Width: 24},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(len(axes)+1),
	)
	st := table.DefaultStyles()
	st.Header = st.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	st.Selected = st.Selected.
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12"))
	t.SetStyles(st)

	m := monitorModel{
		connInfo: connInfo,
		byID:     make(map[uint8]*axisRow),
		table:    t,
		stats:    stats,
		maxLog:   50,
		width:    80,
		height:   24,
	}
	for _, a := range axes {
		row := &axisRow{id: a.ID(), name: a.Name()}
		m.rows = append(m.rows, row)
		m.byID[row.id] = row
	}
	m.table.SetRows(m.tableRows())
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			if m.stats != nil {
				m.stats.Reset()
			}
			m.addLogEntry("Statistics reset", false)
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		return m, monitorTickCmd()

	case axisPollMsg:
		m.applyPoll(msg)
		m.table.SetRows(m.tableRows())
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// applyPoll stores a reading and logs error transitions
func (m *monitorModel) applyPoll(msg axisPollMsg) {
	row, ok := m.byID[msg.id]
	if !ok {
		return
	}
	row.polls++

	if msg.err != nil {
		row.failures++
		if row.lastErr == nil {
			m.addLogEntry(fmt.Sprintf("axis %d: %v", msg.id, msg.err), true)
		}
		row.lastErr = msg.err
		row.state = axis.State{}
		return
	}

	if row.lastErr != nil {
		m.addLogEntry(fmt.Sprintf("axis %d: recovered", msg.id), false)
	}
	row.lastErr = nil
	row.state = msg.state
	row.status1 = msg.status1
	row.status2 = msg.status2
	row.lastSeen = msg.at

	if msg.status1 != nil && msg.status1.ErrorFlags != 0 {
		m.addLogEntry(fmt.Sprintf("axis %d: error flags 0x%02X", msg.id, msg.status1.ErrorFlags), true)
	}
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{at: time.Now(), message: message, isError: isError})
	if len(m.eventLog) > m.maxLog {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLog:]
	}
}

func (m monitorModel) tableRows() []table.Row {
	rows := make([]table.Row, 0, len(m.rows))
	for _, r := range m.rows {
		name := r.name
		if name == "" {
			name = "-"
		}
		row := table.Row{fmt.Sprintf("%d", r.id), name, "-", "-", "-", "-", "-", "-", "waiting"}

		if r.state.Valid {
			row[2] = fmt.Sprintf("%.2f", lkproto.RadToDeg(r.state.Position))
			row[3] = fmt.Sprintf("%.2f", lkproto.RadToDeg(r.state.Velocity))
			row[4] = fmt.Sprintf("%.0f", r.state.Torque)
		}
		if r.status1 != nil {
			row[5] = fmt.Sprintf("%d", r.status1.Temperature)
			row[6] = fmt.Sprintf("%.1f", r.status1.Voltage)
			row[7] = fmt.Sprintf("0x%02X", r.status1.ErrorFlags)
		}

		switch {
		case r.lastErr != nil:
			row[8] = "error"
		case r.polls > 0:
			row[8] = fmt.Sprintf("ok (%d/%d failed)", r.failures, r.polls)
		}
		rows = append(rows, row)
	}
	return rows
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	s.WriteString(titleStyle.Render("SERVOLINK MONITOR"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | r=reset q=quit", m.connInfo)))
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.table.View()))
	s.WriteString("\n\n")

	if m.stats != nil {
		c := m.stats.Snapshot()
		errStyle := statsValueStyle
		if c.Errors() > 0 {
			errStyle = errorStyle
		}
		stats := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
			statsLabelStyle.Render("Transactions:"), statsValueStyle.Render(fmt.Sprintf("%d", c.Transactions)),
			statsLabelStyle.Render("Timeouts:"), errStyle.Render(fmt.Sprintf("%d", c.Timeouts)),
			statsLabelStyle.Render("Header:"), errStyle.Render(fmt.Sprintf("%d", c.HeaderErrors)),
			statsLabelStyle.Render("Checksum:"), errStyle.Render(fmt.Sprintf("%d", c.ChecksumErrors)),
			statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f tx/s", c.TransactionRate)))
		s.WriteString(boxStyle.Render(stats))
		s.WriteString("\n\n")
	}

	s.WriteString(statsLabelStyle.Render("Event Log:"))
	s.WriteString("\n")
	maxLines := m.height - len(m.rows) - 14
	if maxLines < 3 {
		maxLines = 3
	}
	start := 0
	if len(m.eventLog) > maxLines {
		start = len(m.eventLog) - maxLines
	}
	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events)"))
		s.WriteString("\n")
	}
	for _, e := range m.eventLog[start:] {
		line := fmt.Sprintf("  %s %s", e.at.Format("15:04:05.000"), e.message)
		if e.isError {
			s.WriteString(errorStyle.Render(line))
		} else {
			s.WriteString(headerStyle.Render(line))
		}
		s.WriteString("\n")
	}

	return s.String()
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/resinstat/pkg/api"
	"github.com/Thermoquad/resinstat/pkg/client"
	"github.com/Thermoquad/resinstat/pkg/printer"
	"github.com/Thermoquad/resinstat/pkg/sdcp"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// Messages
type statusMsg api.StatusPayload
type streamEndedMsg struct{ err error }
type commandDoneMsg struct {
	action string
	err    error
}

// monitorModel is the monitor TUI
type monitorModel struct {
	ctx    context.Context
	client *client.Client
	server string

	status    *api.StatusPayload
	ended     bool
	bar       progress.Model
	events    []eventLogEntry
	maxEvents int
	busy      string
	width     int
	height    int
	quitting  bool
}

func initialMonitorModel(ctx context.Context, c *client.Client, server string) monitorModel {
	return monitorModel{
		ctx:       ctx,
		client:    c,
		server:    server,
		bar:       progress.New(progress.WithDefaultGradient()),
		events:    make([]eventLogEntry, 0),
		maxEvents: 50,
		width:     80,
		height:    24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return nil
}

// command runs a daemon call off the UI goroutine
func (m monitorModel) command(action string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		return commandDoneMsg{action: action, err: fn(ctx)}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		if m.busy != "" || m.ended {
			return m, nil
		}

		var cmd tea.Cmd
		switch key {
		case "p":
			m.busy, cmd = "pause", m.command("pause", m.client.Pause)
		case "r":
			m.busy, cmd = "resume", m.command("resume", m.client.Resume)
		case "s":
			m.busy, cmd = "stop", m.command("stop", m.client.Stop)
		case "c":
			m.busy, cmd = "connect", m.command("connect", func(ctx context.Context) error {
				return m.client.Connect(ctx, "")
			})
		}
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(10, min(60, msg.Width-20))

	case statusMsg:
		st := api.StatusPayload(msg)
		m.noteChanges(st)
		m.status = &st

	case commandDoneMsg:
		m.busy = ""
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s failed: %v", msg.action, msg.err), true)
		} else {
			m.addLogEntry(msg.action+" accepted", false)
		}

	case streamEndedMsg:
		m.ended = true
		if msg.err != nil && m.ctx.Err() == nil {
			m.addLogEntry(fmt.Sprintf("Stream ended: %v", msg.err), true)
		}
	}

	return m, nil
}

// noteChanges logs link and status transitions
func (m *monitorModel) noteChanges(next api.StatusPayload) {
	if m.status == nil {
		m.addLogEntry(fmt.Sprintf("Following %s", m.server), false)
		return
	}
	prev := *m.status
	if prev.Link.State != next.Link.State {
		m.addLogEntry(fmt.Sprintf("Link %s -> %s", prev.Link.State, next.Link.State),
			next.Link.State == printer.Disconnected)
	}
	if prev.PrinterData.Status != next.PrinterData.Status {
		m.addLogEntry(fmt.Sprintf("Status %s -> %s", prev.PrinterData.Status, next.PrinterData.Status),
			next.PrinterData.Status == sdcp.StateError)
	}
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.events = append(m.events, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("RESINSTAT MONITOR"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | p=pause r=resume s=stop c=connect q=quit", m.server)))
	s.WriteString("\n\n")

	switch {
	case m.status == nil && m.ended:
		s.WriteString(errorStyle.Render("Daemon unreachable"))
		s.WriteString("\n\n")
	case m.status == nil:
		s.WriteString(warningStyle.Render("Waiting for daemon..."))
		s.WriteString("\n\n")
	default:
		s.WriteString(m.renderPrinter(labelStyle, valueStyle, errorStyle, warningStyle, boxStyle))
		s.WriteString("\n\n")
	}

	if m.busy != "" {
		s.WriteString(warningStyle.Render(fmt.Sprintf("Sending %s...", m.busy)))
		s.WriteString("\n\n")
	}

	s.WriteString(m.renderEventLog(labelStyle, errorStyle, headerStyle, boxStyle))
	return s.String()
}

func (m monitorModel) renderPrinter(labelStyle, valueStyle, errorStyle, warningStyle, boxStyle lipgloss.Style) string {
	st := m.status
	data := st.PrinterData
	var c strings.Builder

	link := valueStyle.Render(st.Link.State.String())
	if st.Link.State != printer.Connected {
		link = warningStyle.Render(st.Link.State.String())
	}
	c.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		labelStyle.Render("Printer:"), valueStyle.Render(valueOr(st.PrinterIP, "none")),
		labelStyle.Render("Link:"), link,
	))

	status := valueStyle.Render(string(data.Status))
	if data.Status == sdcp.StateError {
		status = errorStyle.Render(fmt.Sprintf("%s (%d)", data.Status, data.ErrorNumber))
	}
	c.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Status:"), status))
	if data.Model != "" {
		c.WriteString(fmt.Sprintf("   %s %s", labelStyle.Render("Model:"), valueStyle.Render(data.Model)))
	}
	c.WriteString("\n")

	if data.FileName != "" {
		c.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("File:"), valueStyle.Render(data.FileName)))
	}
	if data.TotalLayers > 0 {
		c.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Layer:"),
			valueStyle.Render(fmt.Sprintf("%d / %d", data.CurrentLayer, data.TotalLayers))))
		c.WriteString(m.bar.ViewAs(data.Progress / 100))
		c.WriteString("\n")
	}
	if data.TotalTicks > 0 {
		c.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			labelStyle.Render("Elapsed:"), valueStyle.Render(formatTicks(data.Elapsed)),
			labelStyle.Render("Remaining:"), valueStyle.Render(formatTicks(data.TimeRemaining)),
		))
	}

	uv := valueStyle.Render("off")
	if data.UVLightOn {
		uv = warningStyle.Render("ON")
	}
	c.WriteString(fmt.Sprintf("%s %s (%s)   %s %s",
		labelStyle.Render("UV LED:"), valueStyle.Render(fmt.Sprintf("%.1f °C", data.TempOfUVLED)), uv,
		labelStyle.Render("Enclosure:"), valueStyle.Render(fmt.Sprintf("%.1f °C", data.TempOfBox)),
	))

	return boxStyle.Render(c.String())
}

func (m monitorModel) renderEventLog(labelStyle, errorStyle, headerStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("Events:"))
	s.WriteString("\n")

	// Fit the log to the remaining height
	visible := m.height - 20
	if visible < 3 {
		visible = 3
	}
	entries := m.events
	if len(entries) > visible {
		entries = entries[len(entries)-visible:]
	}

	var log strings.Builder
	if len(entries) == 0 {
		log.WriteString(headerStyle.Render("(none)"))
	}
	for i, entry := range entries {
		line := fmt.Sprintf("%s %s", entry.timestamp.Format("15:04:05"), entry.message)
		if entry.isError {
			line = errorStyle.Render(line)
		}
		log.WriteString(line)
		if i < len(entries)-1 {
			log.WriteString("\n")
		}
	}

	s.WriteString(boxStyle.Render(log.String()))
	return s.String()
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/knxcoupler/pkg/comobject"
	"github.com/Thermoquad/knxcoupler/pkg/coupler"
	"github.com/Thermoquad/knxcoupler/pkg/device"
	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

// Event log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for information
}

type listenFocus int

const (
	focusObjectList listenFocus = iota
	focusValueInput
)

// objectItem is one row of the object list
type objectItem struct {
	obj   *comobject.ComObject
	value string
}

func (i objectItem) Title() string { return i.obj.Name }

func (i objectItem) Description() string {
	desc := fmt.Sprintf("%s  %s", telegram.FormatGroupAddress(i.obj.GroupAddress()), comobject.FormatIndicator(i.obj.Indicator))
	if i.obj.DPT != "" {
		desc += "  DPT " + i.obj.DPT
	}
	return desc + "  = " + i.value
}

func (i objectItem) FilterValue() string { return i.obj.Name }

// TUI model
type listenModel struct {
	dev        *device.Device
	connInfo   string
	address    string
	objectList list.Model
	valueInput textinput.Model
	focus      listenFocus

	errorLog      []errorLogEntry
	maxLogEntries int

	state    coupler.StateIndication
	hasState bool
	received int
	resets   int

	connectionLost bool
	width          int
	height         int
	quitting       bool
}

// Messages
type listenTickMsg time.Time

type activityMsg struct {
	at       time.Time
	activity device.Activity
}

type activityBatchMsg struct {
	messages []activityMsg
}

type connectionLostMsg struct {
	err error
}

func initialListenModel(dev *device.Device, connInfo, address string) listenModel {
	ti := textinput.New()
	ti.Placeholder = "value"
	ti.CharLimit = 32
	ti.Width = 20

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	objectList := list.New([]list.Item{}, delegate, 60, 10)
	objectList.Title = "Objects"
	objectList.SetShowStatusBar(false)
	objectList.SetShowHelp(false)
	objectList.SetFilteringEnabled(false)

	m := listenModel{
		dev:           dev,
		connInfo:      connInfo,
		address:       address,
		objectList:    objectList,
		valueInput:    ti,
		focus:         focusObjectList,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
	m.refreshObjects()
	return m
}

func (m listenModel) Init() tea.Cmd {
	return listenTickCmd()
}

func listenTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return listenTickMsg(t)
	})
}

func (m listenModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.objectList.SetSize(m.width-4, m.objectListHeight())

	case listenTickMsg:
		m.refreshObjects()
		return m, listenTickCmd()

	case activityBatchMsg:
		for _, a := range msg.messages {
			m.processActivity(a)
		}
		m.refreshObjects()

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)
	}

	return m, nil
}

func (m listenModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.focus == focusValueInput {
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "esc":
			m.focus = focusObjectList
			m.valueInput.Blur()
			return m, nil
		case "enter":
			m.writeSelected(m.valueInput.Value())
			m.valueInput.SetValue("")
			m.focus = focusObjectList
			m.valueInput.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.valueInput, cmd = m.valueInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "w", "enter":
		if _, ok := m.selected(); ok {
			m.focus = focusValueInput
			return m, m.valueInput.Focus()
		}
		return m, nil
	case "r":
		if index, ok := m.selected(); ok {
			if err := m.dev.Update(index); err != nil {
				m.addLogEntry(fmt.Sprintf("Read failed: %v", err), true)
			} else {
				m.addLogEntry(fmt.Sprintf("Read requested for %s", m.dev.Objects()[index].Name), false)
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.objectList, cmd = m.objectList.Update(msg)
	return m, cmd
}

// selected returns the object index under the cursor
func (m *listenModel) selected() (int, bool) {
	index := m.objectList.Index()
	if index < 0 || index >= len(m.dev.Objects()) {
		return -1, false
	}
	return index, true
}

// writeSelected encodes input for the selected object and queues a write
func (m *listenModel) writeSelected(input string) {
	index, ok := m.selected()
	if !ok || strings.TrimSpace(input) == "" {
		return
	}
	obj := m.dev.Objects()[index]

	var raw []byte
	var err error
	if obj.DPT != "" {
		raw, err = encodeValue(obj.DPT, strings.TrimSpace(input))
	} else {
		raw, err = hex.DecodeString(strings.TrimSpace(input))
	}
	if err == nil {
		err = m.dev.Write(index, raw)
	}
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Write %s failed: %v", obj.Name, err), true)
		return
	}
	m.addLogEntry(fmt.Sprintf("Write %s = %s queued", obj.Name, input), false)
}

func (m *listenModel) processActivity(a activityMsg) {
	switch a.activity.Kind {
	case device.ActivityReceived:
		m.received++
	case device.ActivityState:
		m.state = a.activity.State
		m.hasState = true
	case device.ActivityReset:
		m.resets++
	}
	m.addLogEntryAt(a.at, formatActivity(m.dev.Objects(), a.activity), activityIsError(a.activity))
}

// refreshObjects reloads the object values into the list
func (m *listenModel) refreshObjects() {
	objects := m.dev.Objects()
	items := make([]list.Item, len(objects))
	for i, obj := range objects {
		items[i] = objectItem{obj: obj, value: m.formatObjectValue(i)}
	}
	m.objectList.SetItems(items)
}

func (m *listenModel) formatObjectValue(index int) string {
	raw, err := m.dev.Value(index)
	if err != nil {
		return "?"
	}
	text := telegram.FormatHex(raw)
	if v, err := m.dev.DecodedValue(index); err == nil {
		text += fmt.Sprintf(" (%g)", v)
	}
	return text
}

func (m *listenModel) addLogEntry(message string, isError bool) {
	m.addLogEntryAt(time.Now(), message, isError)
}

func (m *listenModel) addLogEntryAt(at time.Time, message string, isError bool) {
	m.errorLog = append(m.errorLog, errorLogEntry{
		timestamp: at,
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m listenModel) objectListHeight() int {
	h := len(m.dev.Objects())*3 + 2
	if limit := (m.height - 12) / 2; h > limit {
		h = limit
	}
	if h < 5 {
		h = 5
	}
	return h
}

func (m listenModel) View() string {
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

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
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
	s.WriteString(titleStyle.Render("KNXCOUPLER - LISTEN"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Address: %s | w: write  r: read  q: quit",
		m.connInfo, m.address)))
	s.WriteString("\n\n")

	if m.connectionLost {
		s.WriteString(errorStyle.Render("✗ Connection lost"))
		s.WriteString("\n\n")
	}

	// Statistics
	stats := m.dev.Stats()
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Received:"), statsValueStyle.Render(fmt.Sprintf("%d", m.received)),
		statsLabelStyle.Render("Sent:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.Sent)),
		statsLabelStyle.Render("Updates:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.Updates)),
		statsLabelStyle.Render("Reads:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.Reads)),
	))

	failed := statsValueStyle.Render("0")
	if stats.Failed > 0 {
		failed = errorStyle.Render(fmt.Sprintf("%d", stats.Failed))
	}
	chip := headerStyle.Render("(waiting)")
	if m.hasState {
		if m.state&^coupler.StateIndicationCode != 0 {
			chip = errorStyle.Render(m.state.String())
		} else {
			chip = statsValueStyle.Render(m.state.String())
		}
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %d   %s %s",
		statsLabelStyle.Render("Failed:"), failed,
		statsLabelStyle.Render("Resets:"), m.resets,
		statsLabelStyle.Render("Chip:"), chip,
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Objects
	s.WriteString(m.objectList.View())
	s.WriteString("\n")
	if m.focus == focusValueInput {
		if index, ok := m.selected(); ok {
			s.WriteString(warningStyle.Render(fmt.Sprintf("Write %s: ", m.dev.Objects()[index].Name)))
			s.WriteString(m.valueInput.View())
			s.WriteString(headerStyle.Render("  (enter: send, esc: cancel)"))
		}
	}
	s.WriteString("\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - m.objectListHeight() - 14
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					statsValueStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

// runListenTUI runs the device behind the interactive view
func runListenTUI(b *bus, dev *device.Device, address string) error {
	m := initialListenModel(dev, b.connInfo, address)
	p := tea.NewProgram(m, tea.WithAltScreen())

	activity := make(chan activityMsg, 100)
	dev.OnActivity(func(a device.Activity) {
		select {
		case activity <- activityMsg{at: time.Now(), activity: a}:
		default:
		}
	})

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		err := runDevice(ctx, b, dev)
		if err != nil {
			p.Send(connectionLostMsg{err: err})
		} else {
			p.Quit()
		}
		done <- err
	}()

	// Batch sender - forwards device activity to the TUI at a fixed rate
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var batch activityBatchMsg
			drainLoop:
				for {
					select {
					case a := <-activity:
						batch.messages = append(batch.messages, a)
					default:
						break drainLoop
					}
				}
				if len(batch.messages) > 0 {
					p.Send(batch)
				}
			}
		}
	}()

	_, err := p.Run()
	cancel()
	devErr := <-done
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return devErr
}

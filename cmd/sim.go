// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/turnout/pkg/accessory"
	"github.com/Thermoquad/turnout/pkg/cv"
	"github.com/Thermoquad/turnout/pkg/hal"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	simMode    string
	simPersist bool
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run the decoder in-process with a live terminal view",
	Long: `Boot the decoder against a recording actuator and show every slot and
output as the engine runs.

Keys:
  up/down    select a slot
  left/0     command position 0 (closed / stop)
  right/1    command position 1 (thrown / go)
  x          send the selected position with the activation bit cleared
  [ ]        turn the calibration encoder
  c          toggle the centre input
  space      pause or resume the scheduler
  q          quit

The CV store lives in memory unless --persist is given.`,
	RunE: runSim,
}

func init() {
	rootCmd.AddCommand(simCmd)
	simCmd.Flags().StringVar(&simMode, "mode", "normal", "Sensed mode input (normal, pom, ini, learn)")
	simCmd.Flags().BoolVar(&simPersist, "persist", false, "Use the --store database instead of memory")
}

func runSim(cmd *cobra.Command, args []string) error {
	sensed, err := accessory.ParseMode(simMode)
	if err != nil {
		return err
	}
	board, err := loadBoard()
	if err != nil {
		return err
	}

	var store cv.Store = cv.NewMemoryStore()
	if simPersist {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	rec := hal.NewRecorder()
	dec, err := accessory.New(accessory.Config{
		Store:    store,
		Defaults: board,
		Sensed:   sensed,
		Actuator: rec,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	p := tea.NewProgram(initialSimModel(dec, rec), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// slotItem is one slot in the list
type slotItem struct {
	status accessory.SlotStatus
}

func (s slotItem) Title() string {
	return fmt.Sprintf("%4d  %s", s.status.Address, s.status.Kind)
}
func (s slotItem) Description() string { return describeSlot(s.status) }
func (s slotItem) FilterValue() string { return s.status.Kind.String() }

type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// simModel is the Bubble Tea model for the simulator
type simModel struct {
	dec *accessory.Decoder
	rec *hal.Recorder

	slotList      list.Model
	eventLog      []logEntry
	maxLogEntries int
	position      uint8
	centering     bool

	width    int
	height   int
	paused   bool
	quitting bool
}

type simTickMsg time.Time

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialSimModel(dec *accessory.Decoder, rec *hal.Recorder) simModel {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	slotList := list.New([]list.Item{}, delegate, 40, 12)
	slotList.Title = "Slots"
	slotList.SetShowStatusBar(false)
	slotList.SetShowHelp(false)
	slotList.SetFilteringEnabled(false)

	m := simModel{
		dec:           dec,
		rec:           rec,
		slotList:      slotList,
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
	m.updateSlotList()

	b := dec.Boot
	m.addLogEntry(fmt.Sprintf("Booted in %s mode", b.Mode), false)
	if b.Reinitialized {
		m.addLogEntry("CVs restored: "+b.Reason, false)
	}
	if b.StoreErr != nil {
		m.addLogEntry(fmt.Sprintf("CV store failed: %v", b.StoreErr), true)
	}
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m simModel) Init() tea.Cmd {
	return simTickCmd()
}

func simTickCmd() tea.Cmd {
	return tea.Tick(accessory.TickInterval, func(t time.Time) tea.Msg {
		return simTickMsg(t)
	})
}

func (m simModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case simTickMsg:
		if !m.paused {
			m.dec.Scheduler.Tick()
		}
		m.updateSlotList()
		return m, simTickCmd()
	}

	var cmd tea.Cmd
	m.slotList, cmd = m.slotList.Update(msg)
	return m, cmd
}

func (m simModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "left", "0":
		m.position = 0
		m.sendAccessory(true)

	case "right", "1":
		m.position = 1
		m.sendAccessory(true)

	case "x":
		m.sendAccessory(false)

	case "[":
		m.apply(accessory.Event{Kind: accessory.EventEncoder, Delta: -1}, "Encoder -1")

	case "]":
		m.apply(accessory.Event{Kind: accessory.EventEncoder, Delta: 1}, "Encoder +1")

	case "c":
		m.centering = !m.centering
		m.apply(accessory.Event{Kind: accessory.EventCenter, Center: m.centering},
			fmt.Sprintf("Centre input %s", onOff(m.centering)))

	case " ":
		m.paused = !m.paused
		if m.paused {
			m.addLogEntry("Scheduler paused", false)
		} else {
			m.addLogEntry("Scheduler resumed", false)
		}

	case "up", "k", "down", "j":
		var cmd tea.Cmd
		m.slotList, cmd = m.slotList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m simModel) View() string {
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

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	s.WriteString(titleStyle.Render("TURNOUT SIM"))
	s.WriteString(" ")
	state := "running"
	if m.paused {
		state = warningStyle.Render("PAUSED")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit ←/→=switch [ ]=encoder c=centre space=pause", state)))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, boxStyle))
	s.WriteString("\n")

	outputs := m.renderOutputs(statsLabelStyle, statsValueStyle, boxStyle)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxStyle.Render(m.slotList.View()), outputs))
	s.WriteString("\n")

	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))
	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m simModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, boxStyle lipgloss.Style) string {
	stats := m.dec.Dispatcher.Stats()
	cfg := m.dec.Dispatcher.Config()
	mode := m.dec.Dispatcher.Mode().String()
	if m.dec.Dispatcher.Learning() {
		mode += " (waiting)"
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Mode:"), statsValueStyle.Render(mode),
		statsLabelStyle.Render("Base:"), statsValueStyle.Render(fmt.Sprintf("%d", cfg.BaseAddress)),
		statsLabelStyle.Render("PoM:"), statsValueStyle.Render(fmt.Sprintf("%d", cfg.PomAddress)),
		statsLabelStyle.Render("Commands:"), statsValueStyle.Render(fmt.Sprintf("%d/%d", stats.Applied, stats.Commands)),
		statsLabelStyle.Render("Time:"), statsValueStyle.Render(
			(time.Duration(m.dec.Scheduler.Ticks()) * accessory.TickInterval).Truncate(100*time.Millisecond).String()),
	)
	return boxStyle.Width(m.width - 4).Render(content)
}

func (m simModel) renderOutputs(statsLabelStyle, statsValueStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("OUTPUTS"))
	s.WriteString("\n")
	for _, o := range m.rec.Outputs() {
		var value string
		switch {
		case o.Servo && o.Pulsing:
			value = fmt.Sprintf("servo %3d° pulsing", o.Level)
		case o.Servo:
			value = fmt.Sprintf("servo %3d° idle", o.Level)
		default:
			value = fmt.Sprintf("%s %3d", levelBar(o.Level), o.Level)
		}
		s.WriteString(fmt.Sprintf("pin %3d  %s\n", o.Pin, statsValueStyle.Render(value)))
	}
	return boxStyle.Render(strings.TrimSuffix(s.String(), "\n"))
}

func (m simModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := 6
	if len(m.eventLog) < logHeight {
		logHeight = len(m.eventLog)
	}
	startIdx := len(m.eventLog) - logHeight

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

// describeSlot summarizes the state of one slot
func describeSlot(st accessory.SlotStatus) string {
	switch st.Kind {
	case accessory.KindServo:
		motion := "at rest"
		if st.Moving {
			motion = "moving"
		}
		return fmt.Sprintf("pos %d  %3d°  %s  pulses %s", st.Position, st.Angle, motion, onOff(st.Pulses))
	case accessory.KindCoil:
		return fmt.Sprintf("pos %d  coil %s", st.Position, onOff(st.Active))
	case accessory.KindStatic:
		return fmt.Sprintf("state %d  %s", st.Position, onOff(st.Active))
	case accessory.KindSignal2, accessory.KindVorsignal:
		desc := fmt.Sprintf("aspect %d  %s", st.Aspect, st.Phase)
		if st.Target != st.Aspect {
			desc += fmt.Sprintf(" → %d", st.Target)
		}
		if st.Dark {
			desc += "  dark"
		}
		return desc
	}
	return "follows mast head"
}

func levelBar(level uint8) string {
	n := (int(level) + 31) / 32
	return strings.Repeat("█", n) + strings.Repeat("░", 8-n)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

//////////////////////////////////////////////////////////////
// Engine Interaction
//////////////////////////////////////////////////////////////

func (m *simModel) selected() (slotItem, bool) {
	item, ok := m.slotList.SelectedItem().(slotItem)
	return item, ok
}

func (m *simModel) sendAccessory(activate bool) {
	item, ok := m.selected()
	if !ok {
		return
	}
	addr := item.status.Address
	outcome := m.dec.Dispatcher.HandleAccessory(addr, m.position, activate)
	m.addLogEntry(fmt.Sprintf("ACCESSORY %d output %d activate %s: %s", addr, m.position, onOff(activate), outcome),
		outcome == accessory.OutcomeDropped)
}

func (m *simModel) apply(ev accessory.Event, label string) {
	m.dec.Scheduler.Apply(ev)
	m.addLogEntry(label, false)
}

func (m *simModel) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m *simModel) updateSlotList() {
	statuses := m.dec.Status()
	items := make([]list.Item, len(statuses))
	for i, st := range statuses {
		items[i] = slotItem{status: st}
	}
	m.slotList.SetItems(items)
}

func (m *simModel) updateListSize() {
	listHeight := m.height / 2
	if listHeight < 6 {
		listHeight = 6
	}
	m.slotList.SetSize(40, listHeight)
}

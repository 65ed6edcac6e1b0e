// Package jog is the terminal UI for nudging axes by hand: arrow keys
// jog the focused axis, letter keys run homing, presets, and saves.
package jog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/banshee-data/rumble/internal/motor"
	"github.com/banshee-data/rumble/internal/rig"
)

const (
	defaultStep     = 10
	minStep         = 1
	maxStep         = 10000
	defaultHomeStep = -10
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	focusStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle  = lipgloss.NewStyle().Faint(true)
)

// Options tunes the UI; zero values pick the defaults.
type Options struct {
	// HomeStep is the probe step used when homing the focused axis.
	HomeStep int64
	// HomeTries caps the number of homing probes; 0 uses the motor
	// default.
	HomeTries int
}

// Model drives the rig from the keyboard. Moves run on their own
// goroutine via tea commands so the UI stays responsive while a pulse
// train plays out.
type Model struct {
	rig      *rig.Rig
	axes     []string
	statuses []motor.Status

	focus    int
	step     int64
	busy     bool
	prompt   bool
	input    string
	last     string
	lastErr  bool
	homeStep int64
	tries    int
}

type moveResult struct {
	axis string
	mv   motor.Move
	err  error
}

type homeResult struct {
	axis  string
	found bool
	err   error
}

type saveResult struct {
	dir string
	err error
}

func New(rg *rig.Rig, opts Options) Model {
	if opts.HomeStep == 0 {
		opts.HomeStep = defaultHomeStep
	}
	m := Model{
		rig:      rg,
		axes:     rg.Axes(),
		step:     defaultStep,
		homeStep: opts.HomeStep,
		tries:    opts.HomeTries,
	}
	m.refresh()
	return m
}

// FocusedAxis names the axis the arrow keys currently drive.
func (m Model) FocusedAxis() string {
	return m.axes[m.focus]
}

// Step is the current jog step size in counts.
func (m Model) Step() int64 { return m.step }

func (m *Model) refresh() {
	m.statuses = m.rig.Statuses()
}

func (m *Model) setError(err error) {
	m.last = err.Error()
	m.lastErr = true
}

func (m *Model) setNote(format string, v ...interface{}) {
	m.last = fmt.Sprintf(format, v...)
	m.lastErr = false
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.prompt {
			return m.updatePrompt(msg)
		}
		return m.updateKeys(msg)

	case moveResult:
		m.busy = false
		if msg.err != nil {
			m.setError(msg.err)
		} else {
			m.setNote("%s: %+d counts to %d%s", msg.axis, msg.mv.Applied, msg.mv.End, clampedSuffix(msg.mv))
		}
		m.refresh()
		return m, nil

	case homeResult:
		m.busy = false
		switch {
		case msg.err != nil:
			m.setError(msg.err)
		case msg.found:
			m.setNote("%s: home switch found", msg.axis)
		default:
			m.setNote("%s: home switch not found", msg.axis)
		}
		m.refresh()
		return m, nil

	case saveResult:
		m.busy = false
		if msg.err != nil {
			m.setError(msg.err)
		} else {
			m.setNote("saved configs to %s", msg.dir)
		}
		return m, nil
	}
	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyTab:
		m.focus = (m.focus + 1) % len(m.axes)
	case tea.KeyLeft:
		return m.startJog(-m.step)
	case tea.KeyRight:
		return m.startJog(m.step)
	case tea.KeyUp:
		m.step = min(m.step*10, maxStep)
	case tea.KeyDown:
		m.step = max(m.step/10, minStep)
	case tea.KeyRunes:
		switch string(msg.Runes) {
		case "q":
			return m, tea.Quit
		case "g":
			m.prompt = true
			m.input = ""
		case "h":
			return m.startHome()
		case "v":
			return m.startPreset("vertical")
		case "o":
			return m.startPreset("horizontal")
		case "m":
			return m.startPreset("magic")
		case "s":
			return m.startSave()
		}
	}
	return m, nil
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.prompt = false
		m.input = ""
	case tea.KeyEnter:
		input := strings.TrimSpace(m.input)
		m.prompt = false
		m.input = ""
		target, err := strconv.ParseFloat(input, 64)
		if err != nil {
			m.setNote("goto: bad target %q", input)
			return m, nil
		}
		return m.startGoto(target)
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case tea.KeyRunes:
		m.input += string(msg.Runes)
	}
	return m, nil
}

func (m Model) startJog(steps int64) (tea.Model, tea.Cmd) {
	if m.busy {
		m.setNote("still moving")
		return m, nil
	}
	axis := m.FocusedAxis()
	m.busy = true
	m.setNote("%s: moving %+d...", axis, steps)
	return m, func() tea.Msg {
		mv, err := m.rig.Increment(context.Background(), axis, steps, true, rig.OriginJog)
		return moveResult{axis: axis, mv: mv, err: err}
	}
}

func (m Model) startGoto(target float64) (tea.Model, tea.Cmd) {
	if m.busy {
		m.setNote("still moving")
		return m, nil
	}
	axis := m.FocusedAxis()
	m.busy = true
	m.setNote("%s: goto %g...", axis, target)
	return m, func() tea.Msg {
		mv, err := m.rig.GotoCal(context.Background(), axis, target, true, rig.OriginJog)
		return moveResult{axis: axis, mv: mv, err: err}
	}
}

func (m Model) startHome() (tea.Model, tea.Cmd) {
	if m.busy {
		m.setNote("still moving")
		return m, nil
	}
	axis := m.FocusedAxis()
	m.busy = true
	m.setNote("%s: homing...", axis)
	return m, func() tea.Msg {
		found, err := m.rig.Home(context.Background(), axis, m.homeStep, m.tries, rig.OriginJog)
		return homeResult{axis: axis, found: found, err: err}
	}
}

func (m Model) startPreset(name string) (tea.Model, tea.Cmd) {
	if m.busy {
		m.setNote("still moving")
		return m, nil
	}
	m.busy = true
	m.setNote("preset %s...", name)
	return m, func() tea.Msg {
		mv, err := m.rig.Preset(context.Background(), name, true, rig.OriginJog)
		return moveResult{axis: "polar", mv: mv, err: err}
	}
}

func (m Model) startSave() (tea.Model, tea.Cmd) {
	if m.busy {
		m.setNote("still moving")
		return m, nil
	}
	m.busy = true
	m.setNote("saving configs...")
	dir := m.rig.Dir()
	return m, func() tea.Msg {
		return saveResult{dir: dir, err: m.rig.Save("")}
	}
}

func clampedSuffix(mv motor.Move) string {
	if mv.Clamped {
		return " (clamped)"
	}
	return ""
}

func limitMarkers(st motor.Status) string {
	var marks []string
	if st.Limits.AtLower {
		marks = append(marks, "at lower limit")
	}
	if st.Limits.AtUpper {
		marks = append(marks, "at upper limit")
	}
	if len(marks) == 0 {
		return ""
	}
	return "  [" + strings.Join(marks, ", ") + "]"
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("rumble jog"))
	b.WriteString("\n\n")

	for i, st := range m.statuses {
		line := fmt.Sprintf("%-6s %8d counts  %12.3f %s%s",
			st.Name, st.Counts, st.Position, st.Units, limitMarkers(st))
		if i == m.focus {
			b.WriteString(focusStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("\nstep %d\n", m.step))

	if m.prompt {
		units := m.statuses[m.focus].Units
		b.WriteString(fmt.Sprintf("goto (%s): %s_\n", units, m.input))
	} else if m.last != "" {
		if m.lastErr {
			b.WriteString(errorStyle.Render(m.last))
		} else {
			b.WriteString(m.last)
		}
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("\ntab axis · arrows jog · up/down step · g goto · h home · v/o/m presets · s save · q quit"))
	b.WriteString("\n")
	return b.String()
}

package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/audiolibrelab/beatgrid/internal/pattern"
	"github.com/audiolibrelab/beatgrid/internal/service"
)

const (
	bpmStep   = 5
	nameWidth = 12
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7fd1b9"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#fff"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#844"))
	cursorStyle   = lipgloss.NewStyle().Background(lipgloss.Color("#444"))
	playheadStyle = lipgloss.NewStyle().Reverse(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#e55"))
)

// StepMsg is sent on every scheduler tick
type StepMsg int

// Model is the interactive play screen
type Model struct {
	ctx         context.Context
	svc         service.Service
	steps       chan int
	unsubscribe func()

	row, col int
	message  string
	quitting bool
}

// NewModel subscribes to svc's ticks. Call Close when the program exits.
func NewModel(ctx context.Context, svc service.Service) Model {
	steps := make(chan int, 1)
	unsubscribe := svc.Subscribe(func(step int) {
		// Runs under the session lock: never block
		select {
		case steps <- step:
		default:
		}
	})
	return Model{
		ctx:         ctx,
		svc:         svc,
		steps:       steps,
		unsubscribe: unsubscribe,
	}
}

// Close stops listening for ticks
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// ListenForSteps waits for the next tick
func ListenForSteps(steps <-chan int) tea.Cmd {
	return func() tea.Msg {
		return StepMsg(<-steps)
	}
}

func (m Model) Init() tea.Cmd {
	return ListenForSteps(m.steps)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.message = ""
		snap := m.svc.Snapshot()

		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.svc.Stop(true)
			return m, tea.Quit

		case " ", "p":
			m.svc.TogglePlay(m.ctx)

		case "s":
			m.svc.Stop(true)

		case "+", "=":
			m.setBPM(snap.BPM + bpmStep)

		case "-", "_":
			m.setBPM(snap.BPM - bpmStep)

		case "c":
			m.svc.ClearAllPatterns()

		case "[", "]":
			m.cycleSteps(snap.StepCount, msg.String() == "]")

		case "k", "up":
			if m.row > 0 {
				m.row--
			}

		case "j", "down":
			if m.row < len(snap.Tracks)-1 {
				m.row++
			}

		case "h", "left":
			if m.col > 0 {
				m.col--
			}

		case "l", "right":
			if m.col < snap.StepCount-1 {
				m.col++
			}

		case "enter", "x":
			if tr, ok := m.selected(snap); ok {
				if _, err := m.svc.ToggleStep(tr.ID, m.col); err != nil {
					m.message = err.Error()
				}
			}

		case "m":
			if tr, ok := m.selected(snap); ok {
				if err := m.svc.SetMuted(tr.ID, !tr.Muted); err != nil {
					m.message = err.Error()
				}
			}

		case "M":
			for _, tr := range snap.Tracks {
				m.svc.SetMuted(tr.ID, false)
			}

		case "r":
			if tr, ok := m.selected(snap); ok {
				if err := m.svc.Preview(m.ctx, tr.SoundRef, tr.Volume); err != nil {
					m.message = err.Error()
				}
			}
		}

		m.clampCursor()

	case StepMsg:
		return m, ListenForSteps(m.steps)
	}

	return m, nil
}

func (m *Model) setBPM(bpm float64) {
	if err := m.svc.SetBPM(bpm); err != nil {
		m.message = err.Error()
	}
}

func (m *Model) cycleSteps(current int, up bool) {
	counts := pattern.StepCounts
	idx := 0
	for i, n := range counts {
		if n == current {
			idx = i
		}
	}
	if up {
		idx = (idx + 1) % len(counts)
	} else {
		idx = (idx - 1 + len(counts)) % len(counts)
	}
	if err := m.svc.SetStepCount(counts[idx]); err != nil {
		m.message = err.Error()
	}
}

func (m Model) selected(snap pattern.Snapshot) (pattern.Track, bool) {
	if m.row < 0 || m.row >= len(snap.Tracks) {
		return pattern.Track{}, false
	}
	return snap.Tracks[m.row], true
}

func (m *Model) clampCursor() {
	snap := m.svc.Snapshot()
	if m.row >= len(snap.Tracks) {
		m.row = max(len(snap.Tracks)-1, 0)
	}
	if m.col >= snap.StepCount {
		m.col = snap.StepCount - 1
	}
}

// nowColumn is the step that sounded last while playing, or -1
func nowColumn(st service.Status) int {
	if !st.Running || st.StepCount == 0 {
		return -1
	}
	return (st.CurrentStep - 1 + st.StepCount) % st.StepCount
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	st := m.svc.Status()
	snap := m.svc.Snapshot()
	now := nowColumn(st)

	playState := "STOP"
	if st.Running {
		playState = "PLAY"
	}
	header := headerStyle.Render(fmt.Sprintf("beatgrid  %s  %3.0fbpm  step:%02d/%02d  kit:%s",
		playState, st.BPM, st.CurrentStep+1, st.StepCount, st.Kit))

	var grid strings.Builder
	if len(snap.Tracks) == 0 {
		grid.WriteString(dimStyle.Render("no tracks"))
		grid.WriteString("\n")
	}
	for r, tr := range snap.Tracks {
		name := tr.Name
		if len(name) > nameWidth {
			name = name[:nameWidth]
		}
		label := fmt.Sprintf("%-*s ", nameWidth, name)
		if tr.Muted {
			grid.WriteString(mutedStyle.Render(label))
		} else {
			grid.WriteString(activeStyle.Render(label))
		}

		for c, on := range tr.Steps {
			if c > 0 && c%4 == 0 {
				grid.WriteString(" ")
			}
			cell := "·"
			style := dimStyle
			if on {
				cell = "x"
				style = activeStyle
			}
			switch {
			case r == m.row && c == m.col:
				style = cursorStyle
			case c == now:
				style = playheadStyle
			}
			grid.WriteString(style.Render(cell))
		}
		grid.WriteString(statusStyle.Render(fmt.Sprintf("  %3.0f%%", tr.Volume*100)))
		grid.WriteString("\n")
	}

	help := dimStyle.Render("space:play/pause  s:stop  +/-:bpm  [/]:steps  hjkl:move  x:toggle  m/M:mute/unmute all  r:preview  c:clear  q:quit")

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(grid.String())
	out.WriteString("\n")
	if m.message != "" {
		out.WriteString(errorStyle.Render(m.message))
		out.WriteString("\n")
	} else if st.LastError != "" {
		out.WriteString(errorStyle.Render(st.LastError))
		out.WriteString("\n")
	}
	out.WriteString(help)
	return out.String()
}

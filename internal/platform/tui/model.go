package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/rollback"
	"github.com/vovakirdan/rollphys/internal/scenario"
	"github.com/vovakirdan/rollphys/internal/snapshot"
)

// The help bar is rendered below the screen buffer; the status line takes
// the buffer's last row.
const statusRows = 1

// Options configures the viewer.
type Options struct {
	TickRate int
	MaxDepth int
	Width    int
	Height   int

	// Script drives every player but the first. Nil leaves them idle.
	Script scenario.InputFunc

	Logger *log.Logger
}

// Model is the Bubble Tea model that plays a scenario through the rollback
// driver.
type Model struct {
	sc       scenario.Scenario
	drv      *rollback.Driver
	screen   *core.Screen
	keys     ViewerKeyMap
	help     help.Model
	opts     Options
	input    core.InputFrame // player 1 actions pressed since the last tick
	paused   bool
	quitting bool
	err      error
	notice   string
}

// NewModel wraps sc in a rollback driver.
func NewModel(sc scenario.Scenario, opts Options) (Model, error) {
	if opts.Width <= 0 {
		opts.Width = 80
	}
	if opts.Height <= 0 {
		opts.Height = 24
	}
	drv, err := rollback.NewDriver(sc, rollback.Options{
		MaxDepth: opts.MaxDepth,
		Logger:   opts.Logger,
	})
	if err != nil {
		return Model{}, err
	}
	return Model{
		sc:     sc,
		drv:    drv,
		screen: core.NewScreen(opts.Width, max(opts.Height-1, statusRows+1)),
		keys:   DefaultViewerKeyMap(),
		help:   help.New(),
		opts:   opts,
	}, nil
}

// Driver exposes the rollback driver.
func (m Model) Driver() *rollback.Driver {
	return m.drv
}

// Err returns the failure that stopped the viewer, if any.
func (m Model) Err() error {
	return m.err
}

// Init starts the tick loop.
func (m Model) Init() tea.Cmd {
	return tickCmd(m.opts.TickRate)
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.screen.Resize(msg.Width, max(msg.Height-1, statusRows+1))
		m.help.Width = msg.Width
		return m, nil

	case TickMsg:
		if m.paused {
			return m, tickCmd(m.opts.TickRate)
		}
		return m.advance()
	}

	return m, nil
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Pause):
		m.paused = !m.paused
		return m, nil
	case key.Matches(msg, m.keys.Step):
		if m.paused {
			next, _ := m.advance()
			return next, nil
		}
		return m, nil
	case key.Matches(msg, m.keys.Rollback):
		return m.rewind(nil)
	case key.Matches(msg, m.keys.Correct):
		return m.rewind(m.correction())
	}

	if a, ok := m.keys.Action(msg); ok {
		m.input.Set(a)
	}
	return m, nil
}

// advance ticks the driver once with the collected input.
func (m Model) advance() (tea.Model, tea.Cmd) {
	next := m.drv.CurrentFrame() + 1
	var in core.MultiInputFrame
	if m.opts.Script != nil {
		in = m.opts.Script(next)
	}
	in.SetPlayer(core.Player1, m.input)
	m.input.Clear()

	if err := m.drv.Tick(in); err != nil {
		return m.fail(err)
	}
	return m, tickCmd(m.opts.TickRate)
}

// rewind rolls back to the oldest retained frame.
func (m Model) rewind(corrections []rollback.Correction) (tea.Model, tea.Cmd) {
	target := m.drv.OldestRetained()
	if target == m.drv.CurrentFrame() {
		m.notice = "nothing to rewind"
		return m, nil
	}
	if err := m.drv.Rollback(target, corrections); err != nil {
		return m.fail(err)
	}
	m.notice = fmt.Sprintf("rewound to frame %d", target)
	if len(corrections) > 0 {
		m.notice += fmt.Sprintf(" with a correction at %d", corrections[0].Frame)
	}
	return m, nil
}

// correction pretends player 2's input for the first resimulated frame was
// lost and arrives now as a shot to the left.
func (m Model) correction() []rollback.Correction {
	f := m.drv.OldestRetained() + 1
	if f > m.drv.CurrentFrame() {
		return nil
	}
	in, _ := m.drv.Input(f)
	var shot core.InputFrame
	shot.Set(core.ActionFireLeft)
	in.SetPlayer(core.Player2, shot)
	return []rollback.Correction{{Frame: f, Input: in}}
}

func (m Model) fail(err error) (tea.Model, tea.Cmd) {
	m.err = err
	m.quitting = true
	return m, tea.Quit
}

// status renders the one-line driver summary.
func (m Model) status() string {
	st := m.drv.Stats()
	line := fmt.Sprintf("%s  frame %d  %s  window %d..%d  rollbacks %d  resimulated %d",
		m.sc.Title(), m.drv.CurrentFrame(), m.drv.State(),
		m.drv.OldestRetained(), m.drv.CurrentFrame(), st.Rollbacks, st.ResimulatedFrames)
	if m.paused {
		line += "  [paused]"
	}
	if m.notice != "" {
		line += "  " + m.notice
	}
	return line
}

// View renders the current state to a string for display.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	m.screen.Clear()
	area := core.NewRect(0, 0, m.screen.Width(), m.screen.Height()-statusRows)
	DrawWorld(m.screen, m.sc.World(), m.sc.Players(), area)
	m.screen.DrawText(0, area.Bottom(), m.status(), core.ColorWhite)

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	return RenderScreen(m.screen) + "\n" + helpStyle.Render(m.help.View(m.keys))
}

// CurrentFrame returns the newest simulated frame.
func (m Model) CurrentFrame() snapshot.Frame {
	return m.drv.CurrentFrame()
}

// Run starts the Bubble Tea program for sc.
func Run(sc scenario.Scenario, opts Options) error {
	model, err := NewModel(sc, opts)
	if err != nil {
		return err
	}

	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Model); ok && m.err != nil {
		return m.err
	}
	return nil
}

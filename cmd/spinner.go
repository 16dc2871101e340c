package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// taskSpinner fronts one blocking service call (usage fetch, policy pass)
// with a spinner. After a few seconds the elapsed time is appended so a slow
// upstream is distinguishable from a hang.

const slowTaskThreshold = 3 * time.Second

type taskDoneMsg struct {
	err error
}

type taskSpinnerModel struct {
	spinner   spinner.Model
	label     string
	run       tea.Cmd
	startedAt time.Time
	err       error
	finished  bool
}

func newTaskSpinnerModel(label string, run tea.Cmd) taskSpinnerModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)

	return taskSpinnerModel{
		spinner:   s,
		label:     label,
		run:       run,
		startedAt: time.Now(),
	}
}

func (m taskSpinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run)
}

func (m taskSpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case taskDoneMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

func (m taskSpinnerModel) View() string {
	if m.finished {
		return ""
	}

	view := m.spinner.View() + " " + m.label
	if elapsed := time.Since(m.startedAt); elapsed >= slowTaskThreshold {
		view += fmt.Sprintf(" (%ds)", int(elapsed.Seconds()))
	}
	return view
}

// runWithSpinner runs task under the spinner and returns its error once the
// program has quit.
func runWithSpinner(ctx context.Context, output io.Writer, label string, task func(context.Context) error) error {
	run := func() tea.Msg {
		return taskDoneMsg{err: task(ctx)}
	}

	p := tea.NewProgram(
		newTaskSpinnerModel(label, run),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	result, ok := finalModel.(taskSpinnerModel)
	if !ok {
		return fmt.Errorf("unexpected final spinner model type %T", finalModel)
	}

	return result.err
}

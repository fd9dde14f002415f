package ui

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

// ErrCancelled is returned when the user interrupts a spinner with Ctrl+C.
var ErrCancelled = errors.New("cancelled by user")

type taskResultMsg[T any] struct {
	data T
	err  error
}

type spinnerModel[T any] struct {
	spinner  spinner.Model
	text     string
	task     func() (T, error)
	result   T
	err      error
	quitting bool
}

func (m spinnerModel[T]) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		func() tea.Msg {
			res, err := m.task()
			return taskResultMsg[T]{data: res, err: err}
		},
	)
}

func (m spinnerModel[T]) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.err = ErrCancelled
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case taskResultMsg[T]:
		m.result = msg.data
		m.err = msg.err
		m.quitting = true
		return m, tea.Quit

	default:
		return m, nil
	}
}

func (m spinnerModel[T]) View() string {
	if m.quitting {
		return ""
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), textStyle.Render(m.text))
}

// Interactive reports whether stderr is a terminal.
func Interactive() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// Spin runs a blocking task with a spinner on stderr. When stderr is not a
// terminal the task runs without one.
func Spin[T any](text string, task func() (T, error)) (T, error) {
	if !Interactive() {
		return task()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	m := spinnerModel[T]{
		spinner: s,
		text:    text,
		task:    task,
	}

	// Use stderr to avoid polluting stdout
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))
	finalModel, err := p.Run()
	if err != nil {
		var zero T
		return zero, err
	}

	fm, ok := finalModel.(spinnerModel[T])
	if !ok {
		var zero T
		return zero, fmt.Errorf("internal error: invalid model type")
	}

	return fm.result, fm.err
}

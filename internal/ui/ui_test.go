package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

func TestRenderTable(t *testing.T) {
	out := RenderTable([]Row{
		{Key: "ROLE ARN", Value: "arn:aws:iam::1:role/app"},
		{Key: "TOKEN AGE", Value: "unknown", Warn: true},
	})
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "ROLE ARN")
	require.Contains(t, lines[0], "arn:aws:iam::1:role/app")
	require.Contains(t, lines[1], "unknown")
}

func TestSpinnerModelTaskResult(t *testing.T) {
	m := spinnerModel[int]{spinner: spinner.New(), text: "working"}
	require.Contains(t, m.View(), "working")

	next, cmd := m.Update(taskResultMsg[int]{data: 42})
	require.NotNil(t, cmd)
	fm := next.(spinnerModel[int])
	require.Equal(t, 42, fm.result)
	require.NoError(t, fm.err)
	require.Empty(t, fm.View())

	boom := errors.New("boom")
	next, _ = m.Update(taskResultMsg[int]{err: boom})
	require.ErrorIs(t, next.(spinnerModel[int]).err, boom)
}

func TestSpinnerModelCtrlC(t *testing.T) {
	m := spinnerModel[string]{spinner: spinner.New()}
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.ErrorIs(t, next.(spinnerModel[string]).err, ErrCancelled)
}

func TestSpinRunsTaskWithoutTerminal(t *testing.T) {
	if Interactive() {
		t.Skip("stderr is a terminal")
	}
	got, err := Spin("working", func() (string, error) { return "done", nil })
	require.NoError(t, err)
	require.Equal(t, "done", got)
}

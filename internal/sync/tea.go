package sync

import (
	tea "github.com/charmbracelet/bubbletea"
)

// WaitForResult returns a tea.Cmd that waits for the next write result.
// Call it again after each SaveResultMsg to keep listening. The command
// yields nil once the engine is closed.
func (e *Engine) WaitForResult() tea.Cmd {
	return func() tea.Msg {
		select {
		case result := <-e.results:
			return result
		case <-e.done:
			return nil
		}
	}
}

// SaveNow returns a tea.Cmd that forces a save and reports it as a
// SaveResultMsg through WaitForResult.
func (e *Engine) SaveNow() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := contextWithWriteTimeout()
		defer cancel()
		_ = e.ForceSave(ctx)
		return nil
	}
}

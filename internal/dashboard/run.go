package dashboard

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the dashboard program against the event log at logPath,
// reading from in and writing to out, until the user quits.
func Run(logPath string, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(New(logPath), tea.WithInput(in), tea.WithOutput(out))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard program exited with an error: %w", err)
	}
	return nil
}

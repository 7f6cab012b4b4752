package dashboard

import "github.com/charmbracelet/lipgloss"

// Theme defines the visual styling for the chorus dashboard.
type Theme struct {
	Primary lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Muted   lipgloss.Color
}

// DefaultTheme returns the dashboard's default color set.
func DefaultTheme() Theme {
	return Theme{
		Primary: lipgloss.Color("12"),
		Success: lipgloss.Color("10"),
		Warning: lipgloss.Color("11"),
		Error:   lipgloss.Color("9"),
		Muted:   lipgloss.Color("240"),
	}
}

func (t Theme) jobStateColor(state string) lipgloss.Color {
	switch state {
	case "success":
		return t.Success
	case "failed", "unknown_after_crash":
		return t.Error
	case "running":
		return t.Primary
	case "queued":
		return t.Warning
	default:
		return t.Muted
	}
}

package output

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used by text output. Off a terminal
// every style renders its input unchanged.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	// Instance renders component instance ids.
	Instance lipgloss.Style

	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusRunning lipgloss.Style
}

// NewStyles returns the styles for a terminal, or plain styles.
func NewStyles(tty bool) *Styles {
	if !tty {
		plain := lipgloss.NewStyle()
		return &Styles{
			Header1: plain, Header2: plain, Bold: plain, Muted: plain,
			Success: plain, Error: plain, Warning: plain, Info: plain,
			Instance:      plain,
			StatusSuccess: plain, StatusFailed: plain, StatusRunning: plain,
		}
	}

	green := lipgloss.Color("42")
	red := lipgloss.Color("196")
	yellow := lipgloss.Color("214")
	blue := lipgloss.Color("39")
	gray := lipgloss.Color("245")

	return &Styles{
		Header1:       lipgloss.NewStyle().Bold(true).Underline(true).Foreground(blue),
		Header2:       lipgloss.NewStyle().Bold(true),
		Bold:          lipgloss.NewStyle().Bold(true),
		Muted:         lipgloss.NewStyle().Foreground(gray),
		Success:       lipgloss.NewStyle().Foreground(green),
		Error:         lipgloss.NewStyle().Foreground(red).Bold(true),
		Warning:       lipgloss.NewStyle().Foreground(yellow),
		Info:          lipgloss.NewStyle().Foreground(blue),
		Instance:      lipgloss.NewStyle().Foreground(lipgloss.Color("111")),
		StatusSuccess: lipgloss.NewStyle().Foreground(green),
		StatusFailed:  lipgloss.NewStyle().Foreground(red),
		StatusRunning: lipgloss.NewStyle().Foreground(yellow),
	}
}

// Status picks the style for a run or component status.
func (s *Styles) Status(status string) lipgloss.Style {
	switch status {
	case "success", "completed":
		return s.StatusSuccess
	case "failed", "cancelled":
		return s.StatusFailed
	case "running", "pending":
		return s.StatusRunning
	default:
		return s.Muted
	}
}

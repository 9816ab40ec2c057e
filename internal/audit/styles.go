package audit

import "github.com/charmbracelet/lipgloss"

// Terminal styles shared by the reporters.
// Lipgloss degrades colors based on terminal capabilities.
var (
	// StyleCyan is used for page URLs and section headers.
	StyleCyan = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	// StyleRed is used for critical diagnostics and critical pages.
	StyleRed = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	// StyleYellow is used for high and medium diagnostics and warning pages.
	StyleYellow = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	// StyleGreen is used for healthy pages.
	StyleGreen = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	// StyleGray is used for diagnostic kinds and hints.
	StyleGray = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// RenderStyle applies a lipgloss style to text when colors are enabled.
// When useColors is false, the text is returned unmodified.
func RenderStyle(style lipgloss.Style, text string, useColors bool) string {
	if !useColors {
		return text
	}
	return style.Render(text)
}

// severityStyle picks the style for a severity label.
func severityStyle(s Severity) lipgloss.Style {
	switch s {
	case SeverityCritical:
		return StyleRed
	case SeverityHigh, SeverityMedium:
		return StyleYellow
	default:
		return StyleGray
	}
}

// healthStyle picks the style for a health status.
func healthStyle(h Health) lipgloss.Style {
	switch h {
	case HealthHealthy:
		return StyleGreen
	case HealthWarning:
		return StyleYellow
	default:
		return StyleRed
	}
}

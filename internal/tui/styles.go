package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/your-username/ehr-console/internal/models"
)

var (
	colorGreen = lipgloss.Color("42")
	colorAmber = lipgloss.Color("214")
	colorRed   = lipgloss.Color("196")
	colorGrey  = lipgloss.Color("244")

	styleLabel   = lipgloss.NewStyle().Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(colorGrey)
	styleFlash   = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	styleBanner  = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("124")).Padding(0, 1)
	styleChipOff = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Strikethrough(true)
	styleSearch  = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
)

// dot renders the connection status indicator
func dot(state models.ConnectionState) string {
	color := colorGrey
	switch state {
	case models.StateOpen:
		color = colorGreen
	case models.StateConnecting:
		color = colorAmber
	case models.StateError:
		color = colorRed
	}
	return lipgloss.NewStyle().Foreground(color).Render("●")
}

package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Panel draws content in a rounded box with title set into the top border.
// width is the outer width; height 0 sizes the box to its content. The
// border is highlighted while the panel has focus.
func Panel(title, content string, width, height int, focused bool) string {
	border := Subtle
	if focused {
		border = Primary
	}
	edge := lipgloss.NewStyle().Foreground(border)

	// "╭─ " + title + " " + dashes + "╮"
	dashes := max(width-lipgloss.Width(title)-5, 0)
	top := edge.Render("╭─ ") + title + edge.Render(" "+strings.Repeat("─", dashes)+"╮")

	body := lipgloss.NewStyle().
		Width(max(width-4, 0)).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderTop(false).
		BorderLeft(true).
		BorderRight(true).
		BorderBottom(true).
		BorderForeground(border).
		Padding(0, 1)
	if height > 0 {
		body = body.Height(height - 2)
	}
	return top + "\n" + body.Render(content)
}

// Title renders a page title.
func Title(text string) string {
	return TitleStyle.Render(text)
}

// StatusKey renders a key hint for the status bar.
func StatusKey(k, desc string) string {
	return StatusBarKeyStyle.Render(k) + StatusBarStyle.Render(":"+desc)
}

// Badge renders text on a colored background.
func Badge(text string, color lipgloss.Color) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("230")).
		Background(color).
		Padding(0, 1).
		Render(text)
}

// OutcomeBadge renders PASS or FAIL for a job result.
func OutcomeBadge(passed bool) string {
	if passed {
		return Badge("PASS", Success)
	}
	return Badge("FAIL", Error)
}

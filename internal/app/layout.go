package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/eas-attest/attest/internal/ui"
)

const sidebarWidth = 22 // 20 content + 2 border/padding

func renderSummaryBar(s Summary, width int) string {
	content := fmt.Sprintf("Units: %d (%d with instrument)  Queue: %d  Finished: %d  Failed: %d",
		s.Units, s.Scoped, s.Queued, s.Finished, s.Failed)
	switch {
	case s.Pending == 0 && s.Finished > 0:
		content += "  " + ui.SuccessStyle.Render("all jobs done")
	case s.Pending > 0:
		content += "  " + ui.WarningStyle.Render(fmt.Sprintf("Pending: %d", s.Pending))
	}
	if s.Simulated {
		content += "  " + ui.AccentStyle.Render("[simulated]")
	}
	return ui.StatusBarStyle.Width(width).Render(content)
}

func renderSidebar(pages []PageID, active PageID, pageMap map[PageID]Page, height int, focused bool) string {
	var b strings.Builder
	if focused {
		b.WriteString(ui.BoldStyle.Render("attest [FOCUSED]"))
	} else {
		b.WriteString(ui.TitleStyle.Render("attest"))
	}
	b.WriteString("\n\n")

	for _, id := range pages {
		p := pageMap[id]
		if id == active {
			b.WriteString(ui.SidebarActiveStyle.Render("▸ " + p.Name()))
		} else {
			b.WriteString(ui.SidebarItemStyle.Render("  " + p.Name()))
		}
		b.WriteString("\n")
	}

	style := ui.SidebarStyle.Height(height)
	if focused {
		style = style.BorderForeground(ui.Primary)
	}
	return style.Render(b.String())
}

func renderStatusBar(pageHelp []key.Binding, width int, focus FocusArea) string {
	var parts []string

	if focus == FocusSidebar {
		parts = append(parts,
			ui.StatusKey("↑/↓", "navigate"),
			ui.StatusKey("enter", "select"),
		)
	} else {
		for _, kb := range pageHelp {
			if kb.Enabled() {
				parts = append(parts, ui.StatusKey(kb.Help().Key, kb.Help().Desc))
			}
		}
	}

	parts = append(parts,
		ui.StatusKey("tab", "focus"),
		ui.StatusKey("r", "refresh"),
		ui.StatusKey("?", "help"),
		ui.StatusKey("q", "quit"),
	)

	line := strings.Join(parts, "  ")
	return ui.StatusBarStyle.Width(width).Render(line)
}

func renderHelp(pages []PageID, pageMap map[PageID]Page) string {
	var b strings.Builder
	b.WriteString(ui.Title("Keys"))
	b.WriteString("\n")
	global := []key.Binding{GlobalKeys.ToggleFocus, GlobalKeys.JumpPage, GlobalKeys.Refresh, GlobalKeys.Help, GlobalKeys.Quit}
	for _, kb := range global {
		fmt.Fprintf(&b, "  %-8s %s\n", kb.Help().Key, kb.Help().Desc)
	}
	for _, id := range pages {
		p := pageMap[id]
		help := p.ShortHelp()
		if len(help) == 0 {
			continue
		}
		b.WriteString("\n" + ui.BoldStyle.Render(p.Name()) + "\n")
		for _, kb := range help {
			fmt.Fprintf(&b, "  %-8s %s\n", kb.Help().Key, kb.Help().Desc)
		}
	}
	return b.String()
}

func renderLayout(summaryBar, sidebar, content, statusBar string) string {
	main := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, content)
	return lipgloss.JoinVertical(lipgloss.Left, summaryBar, main, statusBar)
}

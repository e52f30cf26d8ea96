package app

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/eas-attest/attest/internal/ui"
)

// DefaultRefresh is the dashboard refresh interval.
const DefaultRefresh = 500 * time.Millisecond

type FocusArea int

const (
	FocusSidebar FocusArea = iota
	FocusContent
)

type Model struct {
	pages      map[PageID]Page
	order      []PageID
	activePage PageID
	focus      FocusArea
	width      int
	height     int
	showHelp   bool
	summary    func() Summary
	current    Summary
	refresh    time.Duration
}

// New creates the dashboard. summary is polled on every refresh.
func New(pages map[PageID]Page, summary func() Summary, refresh time.Duration) Model {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	var order []PageID
	for _, id := range PageOrder {
		if _, ok := pages[id]; ok {
			order = append(order, id)
		}
	}
	m := Model{
		pages:   pages,
		order:   order,
		summary: summary,
		refresh: refresh,
	}
	if len(order) > 0 {
		m.activePage = order[0]
	}
	if summary != nil {
		m.current = summary()
	}
	return m
}

// refreshPages polls the summary and hands msg to every page.
func (m *Model) refreshPages(msg TickMsg) tea.Cmd {
	if m.summary != nil {
		m.current = m.summary()
	}
	var cmds []tea.Cmd
	for id, page := range m.pages {
		newPage, cmd := page.Update(msg)
		m.pages[id] = newPage
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return tea.Batch(cmds...)
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tick(m.refresh)}
	for _, p := range m.pages {
		if cmd := p.Init(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		contentWidth := m.width - sidebarWidth
		contentHeight := m.height - 2 - 1 // status bar + summary bar
		for _, p := range m.pages {
			p.SetSize(contentWidth, contentHeight)
		}
		return m, nil

	case TickMsg:
		cmds := []tea.Cmd{tick(m.refresh)}
		if cmd := m.refreshPages(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, GlobalKeys.Quit):
			return m, tea.Quit
		case key.Matches(msg, GlobalKeys.Refresh):
			return m, m.refreshPages(TickMsg(time.Now()))
		case key.Matches(msg, GlobalKeys.JumpPage):
			if i := pageIndex(msg.String()); i >= 0 && i < len(m.order) {
				m.activePage = m.order[i]
				m.focus = FocusContent
			}
			return m, nil
		case key.Matches(msg, GlobalKeys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		case key.Matches(msg, GlobalKeys.ToggleFocus):
			if m.focus == FocusSidebar {
				m.focus = FocusContent
			} else {
				m.focus = FocusSidebar
			}
			return m, nil
		}

		if m.focus == FocusSidebar {
			switch msg.String() {
			case "up":
				m.prevPage()
			case "down":
				m.nextPage()
			case "enter", "right":
				m.focus = FocusContent
			}
			return m, nil
		}
		if msg.String() == "left" {
			m.focus = FocusSidebar
			return m, nil
		}
		page := m.pages[m.activePage]
		newPage, cmd := page.Update(msg)
		m.pages[m.activePage] = newPage
		return m, cmd
	}

	// Other messages go to all pages so results reach the page that asked.
	var cmds []tea.Cmd
	for id, page := range m.pages {
		newPage, cmd := page.Update(msg)
		m.pages[id] = newPage
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	contentWidth := m.width - sidebarWidth
	contentHeight := m.height - 2 - 1

	page := m.pages[m.activePage]
	body := page.View()
	if m.showHelp {
		body = renderHelp(m.order, m.pages)
	}

	summaryBar := renderSummaryBar(m.current, m.width)
	sidebar := renderSidebar(m.order, m.activePage, m.pages, contentHeight, m.focus == FocusSidebar)
	content := ui.ContentStyle.
		Width(contentWidth).
		Height(contentHeight).
		Render(body)
	statusBar := renderStatusBar(page.ShortHelp(), m.width, m.focus)

	return renderLayout(summaryBar, sidebar, content, statusBar)
}

// ActivePage returns the page shown in the content area.
func (m Model) ActivePage() PageID { return m.activePage }

func (m *Model) nextPage() {
	for i, id := range m.order {
		if id == m.activePage {
			m.activePage = m.order[(i+1)%len(m.order)]
			return
		}
	}
}

func (m *Model) prevPage() {
	for i, id := range m.order {
		if id == m.activePage {
			m.activePage = m.order[(i-1+len(m.order))%len(m.order)]
			return
		}
	}
}

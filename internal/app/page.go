package app

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// PageID identifies each page in the dashboard.
type PageID int

const (
	WorkersPage PageID = iota
	QueuePage
	ResultsPage
	DevicesPage
)

var PageOrder = []PageID{
	WorkersPage,
	QueuePage,
	ResultsPage,
	DevicesPage,
}

// Page is the interface every page in the dashboard implements.
type Page interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (Page, tea.Cmd)
	View() string
	Name() string
	ShortHelp() []key.Binding
	SetSize(width, height int)
}

// TickMsg is broadcast to all pages on every refresh.
type TickMsg time.Time

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Summary is shown in the header bar.
type Summary struct {
	Units     int
	Scoped    int
	Queued    int
	Finished  int
	Failed    int
	Pending   int
	Simulated bool
}

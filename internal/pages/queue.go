package pages

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/eas-attest/attest/internal/app"
	"github.com/eas-attest/attest/internal/sched"
	"github.com/eas-attest/attest/internal/ui"
)

// QueuePage shows the tasks waiting in the scheduler, in dispatch order.
type QueuePage struct {
	sched         *sched.Scheduler
	viewport      viewport.Model
	count         int
	width, height int
}

func NewQueuePage(s *sched.Scheduler) *QueuePage {
	p := &QueuePage{sched: s, viewport: viewport.New(0, 0)}
	p.refresh()
	return p
}

func (p *QueuePage) Init() tea.Cmd { return nil }

func (p *QueuePage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	if _, ok := msg.(app.TickMsg); ok {
		p.refresh()
		return p, nil
	}
	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

func (p *QueuePage) refresh() {
	tasks := p.sched.Snapshot()
	p.count = len(tasks)

	var b strings.Builder
	if len(tasks) == 0 {
		b.WriteString(ui.DimStyle.Render("Queue is empty."))
	} else {
		fmt.Fprintf(&b, "%-4s %-5s %-30s %s\n", "#", "PRIO", "TASK", "RUNS ON")
	}
	for i, t := range tasks {
		fmt.Fprintf(&b, "%-4d %-5d %-30s %s\n", i+1, t.Priority, t.Name, ui.DimStyle.Render(t.Affinity))
	}
	p.viewport.SetContent(b.String())
}

func (p *QueuePage) View() string {
	return ui.Title(fmt.Sprintf("Queue (%d)", p.count)) + "\n" + p.viewport.View()
}

func (p *QueuePage) Name() string { return "Queue" }

func (p *QueuePage) ShortHelp() []key.Binding {
	return []key.Binding{
		key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "scroll")),
	}
}

func (p *QueuePage) SetSize(w, h int) {
	p.width = w
	p.height = h
	p.viewport.Width = w - 4
	p.viewport.Height = max(h-4, 3)
}

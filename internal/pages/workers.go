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

// WorkersPage lists every worker with its unit and current task.
type WorkersPage struct {
	workers       []*sched.Worker
	viewport      viewport.Model
	width, height int
}

func NewWorkersPage(workers []*sched.Worker) *WorkersPage {
	p := &WorkersPage{workers: workers, viewport: viewport.New(0, 0)}
	p.refresh()
	return p
}

func (p *WorkersPage) Init() tea.Cmd { return nil }

func (p *WorkersPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	if _, ok := msg.(app.TickMsg); ok {
		p.refresh()
		return p, nil
	}
	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

func stateBadge(s sched.State) string {
	switch s {
	case sched.StateBusy:
		return ui.Badge(s.String(), ui.Primary)
	case sched.StateIdle:
		return ui.Badge(s.String(), ui.Success)
	case sched.StateUnavailable:
		return ui.Badge(s.String(), ui.Error)
	}
	return ui.Badge(s.String(), ui.Subtle)
}

func (p *WorkersPage) refresh() {
	var b strings.Builder
	if len(p.workers) == 0 {
		b.WriteString(ui.DimStyle.Render("No test units."))
	}
	for _, w := range p.workers {
		u := w.Unit()
		state, task, done := w.State()

		inst := "-"
		if u.Instrument != nil {
			inst = u.Instrument.String()
		}
		fmt.Fprintf(&b, "%s  %s\n", ui.BoldStyle.Render(u.Name()), stateBadge(state))
		fmt.Fprintf(&b, "    instrument: %s  done: %d\n", inst, done)

		tags := make([]string, 0, 2)
		for _, t := range u.Tags() {
			tags = append(tags, string(t))
		}
		b.WriteString(ui.DimStyle.Render("    tags: "+strings.Join(tags, ", ")) + "\n")
		if task != nil {
			b.WriteString("    running: " + ui.AccentStyle.Render(task.Name) + "\n")
		}
		b.WriteString("\n")
	}
	p.viewport.SetContent(b.String())
}

func (p *WorkersPage) View() string {
	return ui.Title("Workers") + "\n" + p.viewport.View()
}

func (p *WorkersPage) Name() string { return "Workers" }

func (p *WorkersPage) ShortHelp() []key.Binding {
	return []key.Binding{
		key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "scroll")),
	}
}

func (p *WorkersPage) SetSize(w, h int) {
	p.width = w
	p.height = h
	p.viewport.Width = w - 4
	p.viewport.Height = max(h-4, 3)
}

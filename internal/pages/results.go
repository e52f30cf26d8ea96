package pages

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/eas-attest/attest/internal/app"
	"github.com/eas-attest/attest/internal/jobs"
	"github.com/eas-attest/attest/internal/ui"
)

var (
	resultKeys = struct {
		Up, Down, Open, Failed key.Binding
	}{
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Open:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
		Failed: key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "failed only")),
	}
)

// ResultsPage lists finished jobs. Enter shows the selected job's output.
type ResultsPage struct {
	source        func() []jobs.Result
	results       []jobs.Result
	cursor        int
	failedOnly    bool
	detail        bool
	viewport      viewport.Model
	width, height int
}

func NewResultsPage(source func() []jobs.Result) *ResultsPage {
	p := &ResultsPage{source: source, viewport: viewport.New(0, 0)}
	p.refresh()
	return p
}

func (p *ResultsPage) Init() tea.Cmd { return nil }

func (p *ResultsPage) refresh() {
	all := p.source()
	p.results = p.results[:0]
	for _, r := range all {
		if p.failedOnly && r.Passed {
			continue
		}
		p.results = append(p.results, r)
	}
	if p.cursor >= len(p.results) {
		p.cursor = max(len(p.results)-1, 0)
	}
}

func (p *ResultsPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case app.TickMsg:
		if !p.detail {
			p.refresh()
		}
		return p, nil

	case tea.KeyMsg:
		if p.detail {
			if msg.String() == "esc" || key.Matches(msg, resultKeys.Open) {
				p.detail = false
				return p, nil
			}
			var cmd tea.Cmd
			p.viewport, cmd = p.viewport.Update(msg)
			return p, cmd
		}
		switch {
		case key.Matches(msg, resultKeys.Up):
			if p.cursor > 0 {
				p.cursor--
			}
		case key.Matches(msg, resultKeys.Down):
			if p.cursor < len(p.results)-1 {
				p.cursor++
			}
		case key.Matches(msg, resultKeys.Failed):
			p.failedOnly = !p.failedOnly
			p.refresh()
		case key.Matches(msg, resultKeys.Open):
			if r, ok := p.Selected(); ok {
				p.detail = true
				p.viewport.SetContent(details(r))
				p.viewport.GotoTop()
			}
		}
	}
	return p, nil
}

// Selected returns the result under the cursor.
func (p *ResultsPage) Selected() (jobs.Result, bool) {
	if p.cursor < 0 || p.cursor >= len(p.results) {
		return jobs.Result{}, false
	}
	return p.results[p.cursor], true
}

func outcome(r jobs.Result) string {
	return ui.OutcomeBadge(r.Passed)
}

func value(r jobs.Result) string {
	if r.Kind == jobs.KindTiming && r.Value > 0 {
		return fmt.Sprintf("%.1f µs", r.Value)
	}
	return ""
}

func details(r jobs.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job:      %s (%s)\n", r.Job, r.Kind)
	fmt.Fprintf(&b, "Unit:     %s\n", r.Unit)
	if r.Instrument != "" {
		fmt.Fprintf(&b, "Scope:    %s\n", r.Instrument)
	}
	fmt.Fprintf(&b, "Attempts: %d\n", r.Attempts)
	fmt.Fprintf(&b, "Took:     %s (queued %s)\n", r.Duration.Round(time.Millisecond), r.QueueTime.Round(time.Millisecond))
	if v := value(r); v != "" {
		fmt.Fprintf(&b, "Result:   %s\n", v)
	}
	if r.Error != "" {
		b.WriteString("Error:    " + ui.ErrorStyle.Render(r.Error) + "\n")
	}
	if r.Output != "" {
		b.WriteString("\n" + r.Output)
	}
	return b.String()
}

func (p *ResultsPage) View() string {
	var b strings.Builder
	title := "Results"
	if p.failedOnly {
		title += " (failed)"
	}
	b.WriteString(ui.Title(title))
	b.WriteString("\n")

	if p.detail {
		if r, ok := p.Selected(); ok {
			b.WriteString(ui.Panel(r.Job, p.viewport.View(), p.width-4, 0, true))
		}
		return b.String()
	}

	if len(p.results) == 0 {
		b.WriteString(ui.DimStyle.Render("  No results yet."))
		return b.String()
	}
	for i, r := range p.results {
		cursor := "  "
		if i == p.cursor {
			cursor = ui.AccentStyle.Render("▸ ")
		}
		fmt.Fprintf(&b, "%s%s %-24s %-12s %s\n", cursor, outcome(r), r.Job, r.Unit, ui.DimStyle.Render(value(r)))
	}
	return b.String()
}

func (p *ResultsPage) Name() string { return "Results" }

func (p *ResultsPage) ShortHelp() []key.Binding {
	if p.detail {
		return []key.Binding{
			key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		}
	}
	return []key.Binding{resultKeys.Up, resultKeys.Down, resultKeys.Open, resultKeys.Failed}
}

func (p *ResultsPage) SetSize(w, h int) {
	p.width = w
	p.height = h
	p.viewport.Width = w - 8
	p.viewport.Height = max(h-6, 3)
}

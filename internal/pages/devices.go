package pages

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/eas-attest/attest/internal/app"
	"github.com/eas-attest/attest/internal/device"
	"github.com/eas-attest/attest/internal/ui"
)

// DevicesPage shows the boards and instruments of the discovery run and the
// wiring found between them.
type DevicesPage struct {
	boards        []*device.Board
	instruments   []*device.Instrument
	connections   []device.Connection
	viewport      viewport.Model
	width, height int
}

func NewDevicesPage(boards []*device.Board, instruments []*device.Instrument, connections []device.Connection) *DevicesPage {
	p := &DevicesPage{
		boards:      boards,
		instruments: instruments,
		connections: connections,
		viewport:    viewport.New(0, 0),
	}
	p.refresh()
	return p
}

func (p *DevicesPage) Init() tea.Cmd { return nil }

func (p *DevicesPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	if _, ok := msg.(app.TickMsg); ok {
		p.refresh()
		return p, nil
	}
	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

func (p *DevicesPage) refresh() {
	var b strings.Builder
	b.WriteString(ui.BoldStyle.Render("Boards") + "\n")
	if len(p.boards) == 0 {
		b.WriteString(ui.DimStyle.Render("  none") + "\n")
	}
	for _, brd := range p.boards {
		debug, uart := brd.Ports()
		status := ui.SuccessStyle.Render("ok")
		if brd.Defective() {
			status = ui.ErrorStyle.Render("defective")
		}
		fmt.Fprintf(&b, "  %-24s %s  flashes: %d\n", brd.String(), status, brd.FlashCounter())
		b.WriteString(ui.DimStyle.Render(fmt.Sprintf("    debug %s  uart %s", debug, uart)) + "\n")
	}

	b.WriteString("\n" + ui.BoldStyle.Render("Instruments") + "\n")
	if len(p.instruments) == 0 {
		b.WriteString(ui.DimStyle.Render("  none") + "\n")
	}
	for _, inst := range p.instruments {
		fmt.Fprintf(&b, "  %s\n", inst.String())
	}

	if len(p.connections) > 0 {
		b.WriteString("\n" + ui.BoldStyle.Render("Connections") + "\n")
		for _, c := range p.connections {
			fmt.Fprintf(&b, "  %s\n", c.String())
		}
	}
	p.viewport.SetContent(b.String())
}

func (p *DevicesPage) View() string {
	return ui.Title("Devices") + "\n" + p.viewport.View()
}

func (p *DevicesPage) Name() string { return "Devices" }

func (p *DevicesPage) ShortHelp() []key.Binding {
	return []key.Binding{
		key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "scroll")),
	}
}

func (p *DevicesPage) SetSize(w, h int) {
	p.width = w
	p.height = h
	p.viewport.Width = w - 4
	p.viewport.Height = max(h-4, 3)
}

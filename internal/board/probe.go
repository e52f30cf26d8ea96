package board

import (
	"context"
	"log/slog"

	"github.com/eas-attest/attest/internal/device"
)

// Identifier checks that a board answers on its debug port.
type Identifier interface {
	Identify(ctx context.Context, b *device.Board) error
}

// Prober decides whether a board can take work.
type Prober struct {
	scanner  *Scanner
	identify Identifier
	reg      Registry
	log      *slog.Logger
}

// NewProber creates a prober. identify may be nil to skip the debug port
// handshake.
func NewProber(scanner *Scanner, identify Identifier, reg Registry, log *slog.Logger) *Prober {
	if log == nil {
		log = slog.Default()
	}
	return &Prober{scanner: scanner, identify: identify, reg: reg, log: log.With("component", "probe")}
}

// Connected reports whether b is healthy and both of its ports are present.
// A defective board is re-enumerated and identified; on success its
// defective flag is cleared.
func (p *Prober) Connected(ctx context.Context, b *device.Board) bool {
	if !b.Defective() && b.HasPorts() {
		return true
	}

	connected, err := p.scanner.Refresh(b)
	if err != nil {
		p.log.Warn("Enumerating ports failed", "board", b.SerialNumber, "error", err)
		return false
	}

	if b.DebugPort() != "" && p.identify != nil {
		if err := p.identify.Identify(ctx, b); err != nil {
			p.log.Warn("Failed to connect", "board", b.SerialNumber, "error", err)
			connected = false
		}
	}

	if connected && b.Defective() {
		b.SetDefective(false)
		p.log.Info("Board recovered", "board", b.SerialNumber)
	}
	if err := p.reg.SaveBoard(ctx, b); err != nil {
		p.log.Warn("Saving board failed", "board", b.SerialNumber, "error", err)
	}
	return connected
}

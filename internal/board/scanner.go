package board

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/eas-attest/attest/internal/device"
)

// Registry persists boards between runs.
type Registry interface {
	GetOrCreateBoard(ctx context.Context, serialNumber string) (*device.Board, bool, error)
	SaveBoard(ctx context.Context, b *device.Board) error
}

// Match describes which USB ports belong to a board and which of its two
// interfaces is which.
type Match struct {
	VID            int
	PID            int
	DebugInterface string
	UARTInterface  string
}

// Scanner maps enumerated serial ports to registered boards.
type Scanner struct {
	enum  Enumerator
	reg   Registry
	match Match
	log   *slog.Logger
}

// NewScanner creates a scanner.
func NewScanner(enum Enumerator, reg Registry, match Match, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{enum: enum, reg: reg, match: match, log: log.With("component", "board")}
}

func (s *Scanner) matches(p PortInfo) bool {
	vid, err := strconv.ParseUint(p.VID, 16, 16)
	if err != nil {
		return false
	}
	pid, err := strconv.ParseUint(p.PID, 16, 16)
	if err != nil {
		return false
	}
	return p.IsUSB && int(vid) == s.match.VID && int(pid) == s.match.PID
}

// boardPorts groups matching ports by serial number, in port name order.
func (s *Scanner) boardPorts() (map[string][]PortInfo, []string, error) {
	ports, err := s.enum.Ports()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	groups := make(map[string][]PortInfo)
	var order []string
	for _, p := range ports {
		if !s.matches(p) || p.SerialNumber == "" {
			continue
		}
		if _, ok := groups[p.SerialNumber]; !ok {
			order = append(order, p.SerialNumber)
		}
		groups[p.SerialNumber] = append(groups[p.SerialNumber], p)
	}
	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i].Name < g[j].Name })
	}
	sort.Strings(order)
	return groups, order, nil
}

// assign picks the debug and UART port of one board. The interface string
// decides when the OS reports it; otherwise the lower numbered port is the
// debug interface.
func (s *Scanner) assign(ports []PortInfo) (debug, uart string) {
	var unknown []string
	for _, p := range ports {
		switch {
		case s.match.DebugInterface != "" && strings.Contains(p.Product, s.match.DebugInterface):
			debug = p.Name
		case s.match.UARTInterface != "" && strings.Contains(p.Product, s.match.UARTInterface):
			uart = p.Name
		default:
			unknown = append(unknown, p.Name)
		}
	}
	for _, name := range unknown {
		switch {
		case debug == "":
			debug = name
		case uart == "":
			uart = name
		default:
			s.log.Warn("Unknown board port", "port", name)
		}
	}
	return debug, uart
}

// Connected returns all boards currently enumerable, registering new ones.
func (s *Scanner) Connected(ctx context.Context) ([]*device.Board, error) {
	groups, order, err := s.boardPorts()
	if err != nil {
		return nil, err
	}

	var boards []*device.Board
	for _, sn := range order {
		b, created, err := s.reg.GetOrCreateBoard(ctx, sn)
		if err != nil {
			return nil, err
		}
		ports := groups[sn]
		b.VID = s.match.VID
		b.PID = s.match.PID
		b.Product = ports[0].Product
		b.SetPorts(s.assign(ports))
		if err := s.reg.SaveBoard(ctx, b); err != nil {
			return nil, err
		}
		if created {
			s.log.Info("New board registered", "board", sn)
		}
		boards = append(boards, b)
	}
	return boards, nil
}

// Refresh updates the port paths of b from the current enumeration and
// reports whether both ports are present.
func (s *Scanner) Refresh(b *device.Board) (bool, error) {
	groups, _, err := s.boardPorts()
	if err != nil {
		return false, err
	}
	ports, ok := groups[b.SerialNumber]
	if !ok {
		b.SetPorts("", "")
		return false, nil
	}
	b.SetPorts(s.assign(ports))
	return b.HasPorts(), nil
}

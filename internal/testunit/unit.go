package testunit

import (
	"context"
	"sort"
	"sync"

	"github.com/eas-attest/attest/internal/device"
)

// Tag is a capability label used for task routing.
type Tag string

const (
	// TagScope marks units with a validated instrument.
	TagScope Tag = "scope"
	// TagStandalone marks units without an instrument.
	TagStandalone Tag = "standalone"
)

// Prober reports whether a board can currently take work.
type Prober interface {
	Connected(ctx context.Context, b *device.Board) bool
}

// Unit is a board, an optional instrument and the validated wiring between
// them. Only its tags change after creation.
type Unit struct {
	Board       *device.Board
	Instrument  *device.Instrument
	Connections []device.Connection

	prober Prober

	mu   sync.RWMutex
	tags map[Tag]struct{}
}

// New creates a unit. The connections kept are those that satisfy topo for
// this exact pair; a nil instrument yields a standalone unit.
func New(b *device.Board, inst *device.Instrument, topo Topology, discovered []device.Connection, prober Prober) *Unit {
	u := &Unit{
		Board:      b,
		Instrument: inst,
		prober:     prober,
		tags:       make(map[Tag]struct{}),
	}
	_, u.Connections = topo.Validate(b, inst, discovered)
	if inst != nil {
		u.tags[TagScope] = struct{}{}
	} else {
		u.tags[TagStandalone] = struct{}{}
	}
	return u
}

// Name identifies the unit in logs and listings.
func (u *Unit) Name() string {
	if u.Board.Name != "" {
		return u.Board.Name
	}
	return u.Board.SerialNumber
}

// HasScope reports whether the unit has an instrument.
func (u *Unit) HasScope() bool { return u.Instrument != nil }

// Available reports whether the unit's board is connected and healthy.
func (u *Unit) Available(ctx context.Context) bool {
	if u.prober == nil {
		return !u.Board.Defective()
	}
	return u.prober.Connected(ctx, u.Board)
}

// HasTag reports whether the unit carries tag. The empty tag is never set.
func (u *Unit) HasTag(tag Tag) bool {
	if tag == "" {
		return false
	}
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.tags[tag]
	return ok
}

// AddTag adds tag to the unit.
func (u *Unit) AddTag(tag Tag) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tags[tag] = struct{}{}
}

// RemoveTag removes tag from the unit.
func (u *Unit) RemoveTag(tag Tag) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.tags, tag)
}

// Tags returns the unit's tags in sorted order.
func (u *Unit) Tags() []Tag {
	u.mu.RLock()
	defer u.mu.RUnlock()
	tags := make([]Tag, 0, len(u.tags))
	for t := range u.tags {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Package registry persists boards and instruments in SQLite.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eas-attest/attest/internal/device"
)

// ErrNotFound is returned when no device has the requested serial number.
var ErrNotFound = errors.New("device not found")

// Registry stores device records. Every serial number maps to one shared
// *device.Board or *device.Instrument for the lifetime of the registry.
type Registry struct {
	db *sql.DB

	mu          sync.Mutex
	boards      map[string]*device.Board
	instruments map[string]*device.Instrument
}

// Open opens or creates the registry database at path. ":memory:" gives a
// private in-memory registry.
func Open(path string) (*Registry, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	r, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// New wraps an open database and creates missing tables.
func New(db *sql.DB) (*Registry, error) {
	if _, err := db.Exec(SchemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Registry{
		db:          db,
		boards:      make(map[string]*device.Board),
		instruments: make(map[string]*device.Instrument),
	}, nil
}

// Close closes the database.
func (r *Registry) Close() error {
	return r.db.Close()
}

const boardColumns = `serial_number, name, vid, pid, manufacturer, product, debug_port, uart_port, flash_counter, defective`

type scanner interface {
	Scan(dest ...any) error
}

func scanBoard(s scanner) (*device.Board, error) {
	var (
		sn, name, manufacturer, product, debug, uart string
		vid, pid, flashes                            int
		defective                                    bool
	)
	if err := s.Scan(&sn, &name, &vid, &pid, &manufacturer, &product, &debug, &uart, &flashes, &defective); err != nil {
		return nil, err
	}
	b := device.NewBoard(sn)
	b.Name = name
	b.VID = vid
	b.PID = pid
	b.Manufacturer = manufacturer
	b.Product = product
	b.SetPorts(debug, uart)
	b.SetFlashCounter(flashes)
	b.SetDefective(defective)
	return b, nil
}

// cachedBoard returns the shared board for sn, loading it when needed.
// r.mu must be held.
func (r *Registry) cachedBoard(ctx context.Context, sn string) (*device.Board, error) {
	if b, ok := r.boards[sn]; ok {
		return b, nil
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+boardColumns+` FROM boards WHERE serial_number = ?`, sn)
	b, err := scanBoard(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get board: %w", err)
	}
	r.boards[sn] = b
	return b, nil
}

// GetOrCreateBoard returns the board with serial number sn, creating its
// record when it is new.
func (r *Registry) GetOrCreateBoard(ctx context.Context, sn string) (*device.Board, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.cachedBoard(ctx, sn)
	if err == nil {
		return b, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	if _, err := r.db.ExecContext(ctx, `INSERT INTO boards (serial_number) VALUES (?)`, sn); err != nil {
		return nil, false, fmt.Errorf("failed to create board: %w", err)
	}
	b = device.NewBoard(sn)
	r.boards[sn] = b
	return b, true, nil
}

// SaveBoard writes the current state of b.
func (r *Registry) SaveBoard(ctx context.Context, b *device.Board) error {
	debug, uart := b.Ports()
	_, err := r.db.ExecContext(ctx,
		`UPDATE boards SET name = ?, vid = ?, pid = ?, manufacturer = ?, product = ?, debug_port = ?, uart_port = ?,
			flash_counter = ?, defective = ?, updated_at = CURRENT_TIMESTAMP WHERE serial_number = ?`,
		b.Name, b.VID, b.PID, b.Manufacturer, b.Product, debug, uart, b.FlashCounter(), b.Defective(), b.SerialNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to save board: %w", err)
	}
	return nil
}

// IncrementFlashCounter counts one successful flash of b and returns the new
// count.
func (r *Registry) IncrementFlashCounter(ctx context.Context, b *device.Board) (int, error) {
	n := b.IncrementFlashCounter()
	_, err := r.db.ExecContext(ctx,
		`UPDATE boards SET flash_counter = flash_counter + 1, updated_at = CURRENT_TIMESTAMP WHERE serial_number = ?`,
		b.SerialNumber,
	)
	if err != nil {
		return n, fmt.Errorf("failed to increment flash counter: %w", err)
	}
	return n, nil
}

// Boards lists all known boards ordered by serial number.
func (r *Registry) Boards(ctx context.Context) ([]*device.Board, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+boardColumns+` FROM boards ORDER BY serial_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}
	var loaded []*device.Board
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan board: %w", err)
		}
		loaded = append(loaded, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	boards := make([]*device.Board, 0, len(loaded))
	for _, b := range loaded {
		if cached, ok := r.boards[b.SerialNumber]; ok {
			b = cached
		} else {
			r.boards[b.SerialNumber] = b
		}
		boards = append(boards, b)
	}
	return boards, nil
}

// GetOrCreateInstrument returns the instrument with serial number sn,
// creating its record when it is new.
func (r *Registry) GetOrCreateInstrument(ctx context.Context, sn string) (*device.Instrument, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if inst, ok := r.instruments[sn]; ok {
		return inst, false, nil
	}

	inst := device.NewInstrument(sn)
	err := r.db.QueryRowContext(ctx, `SELECT name FROM instruments WHERE serial_number = ?`, sn).Scan(&inst.Name)
	created := false
	switch {
	case err == sql.ErrNoRows:
		if _, err := r.db.ExecContext(ctx, `INSERT INTO instruments (serial_number) VALUES (?)`, sn); err != nil {
			return nil, false, fmt.Errorf("failed to create instrument: %w", err)
		}
		created = true
	case err != nil:
		return nil, false, fmt.Errorf("failed to get instrument: %w", err)
	}
	r.instruments[sn] = inst
	return inst, created, nil
}

// Instruments lists all known instruments ordered by serial number.
func (r *Registry) Instruments(ctx context.Context) ([]*device.Instrument, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT serial_number FROM instruments`)
	if err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}
	var serials []string
	for rows.Next() {
		var sn string
		if err := rows.Scan(&sn); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		serials = append(serials, sn)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(serials)

	var instruments []*device.Instrument
	for _, sn := range serials {
		inst, _, err := r.GetOrCreateInstrument(ctx, sn)
		if err != nil {
			return nil, err
		}
		instruments = append(instruments, inst)
	}
	return instruments, nil
}

// SetName renames the board or instrument with serial number sn. It
// returns "board" or "instrument" to tell which one was renamed.
func (r *Registry) SetName(ctx context.Context, sn, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, `UPDATE boards SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE serial_number = ?`, name, sn)
	if err != nil {
		return "", fmt.Errorf("failed to rename board: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		if b, ok := r.boards[sn]; ok {
			b.Name = name
		}
		return "board", nil
	}

	res, err = r.db.ExecContext(ctx, `UPDATE instruments SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE serial_number = ?`, name, sn)
	if err != nil {
		return "", fmt.Errorf("failed to rename instrument: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		if inst, ok := r.instruments[sn]; ok {
			inst.Name = name
		}
		return "instrument", nil
	}
	return "", fmt.Errorf("%s: %w", sn, ErrNotFound)
}

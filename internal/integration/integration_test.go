//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eas-attest/attest/internal/board"
	"github.com/eas-attest/attest/internal/config"
	"github.com/eas-attest/attest/internal/device"
	"github.com/eas-attest/attest/internal/discovery"
	"github.com/eas-attest/attest/internal/toolchain"
)

// workspace returns the rig workspace from the environment, or skips the
// test if it is not set.
func workspace(t *testing.T) config.Config {
	t.Helper()
	root := os.Getenv("ATTEST_WORKSPACE")
	if root == "" {
		t.Skip("ATTEST_WORKSPACE not set; skipping hardware tests")
	}
	cfg, err := config.Load(root)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

type memRegistry map[string]*device.Board

func (m memRegistry) GetOrCreateBoard(_ context.Context, sn string) (*device.Board, bool, error) {
	if b, ok := m[sn]; ok {
		return b, false, nil
	}
	b := device.NewBoard(sn)
	m[sn] = b
	return b, true, nil
}

func (m memRegistry) SaveBoard(context.Context, *device.Board) error { return nil }

func setup(t *testing.T) (config.Config, *toolchain.Toolchain, []*device.Board) {
	t.Helper()
	cfg := workspace(t)

	var runner toolchain.Runner = toolchain.ExecRunner{}
	if cfg.ToolDir != "" {
		runner = toolchain.ExecRunner{Env: toolchain.EnvWithToolDir(cfg.ToolDir)}
	}
	tc := toolchain.New(runner, toolchain.Config{
		Make:           cfg.Make,
		Flasher:        cfg.Flasher,
		Target:         cfg.Target,
		BuildTimeout:   time.Duration(cfg.BuildTimeoutS) * time.Second,
		FlasherTimeout: time.Duration(cfg.FlasherTimeoutS) * time.Second,
	}, nil, nil)

	scanner := board.NewScanner(board.USBEnumerator{}, memRegistry{}, board.Match{
		VID:            cfg.BoardVID,
		PID:            cfg.BoardPID,
		DebugInterface: cfg.DebugInterface,
		UARTInterface:  cfg.UARTInterface,
	}, nil)
	boards, err := scanner.Connected(context.Background())
	if err != nil {
		t.Fatalf("enumerating boards: %v", err)
	}
	if len(boards) == 0 {
		t.Skip("no boards connected")
	}
	return cfg, tc, boards
}

// TestIntegrationBoardsHavePorts checks that every connected board exposes
// both its debug and its UART interface.
func TestIntegrationBoardsHavePorts(t *testing.T) {
	_, _, boards := setup(t)
	for _, b := range boards {
		debug, uart := b.Ports()
		t.Logf("%s: debug %s, uart %s", b, debug, uart)
		if !b.HasPorts() {
			t.Errorf("%s is missing a port", b)
		}
	}
}

// TestIntegrationIdentify runs the flasher handshake on every board.
func TestIntegrationIdentify(t *testing.T) {
	_, tc, boards := setup(t)
	for _, b := range boards {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := tc.Identify(ctx, b)
		cancel()
		if err != nil {
			t.Errorf("%s: %v", b, err)
		}
	}
}

// TestIntegrationProgramIdentifier builds and flashes the identifier program
// onto the first board and checks that the generated files are removed.
func TestIntegrationProgramIdentifier(t *testing.T) {
	cfg, tc, boards := setup(t)
	if _, err := os.Stat(filepath.Join(cfg.IdentifierDir, toolchain.TemplateFile)); err != nil {
		t.Skipf("no identifier template: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	id := discovery.GenerateID(byte(cfg.IDStartPattern))
	if err := tc.ProgramIdentifier(ctx, cfg.IdentifierDir, boards[0], id); err != nil {
		t.Fatalf("programming %s: %v", boards[0], err)
	}

	leftovers, _ := filepath.Glob(filepath.Join(cfg.IdentifierDir, "_main_*"))
	if len(leftovers) != 0 {
		t.Errorf("generated files left behind: %v", leftovers)
	}
}

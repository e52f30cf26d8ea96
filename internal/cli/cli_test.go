package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/eas-attest/attest/internal/config"
	"github.com/eas-attest/attest/internal/registry"
	"github.com/eas-attest/attest/internal/store"
)

const rigYAML = `boards:
  - serial: A
    output: "TESTCASE BEGIN\nhello\n"
    pulse_us: 80
  - serial: B
    output: "TESTCASE BEGIN\nhello\n"
instruments:
  - serial: I
wires:
  - board: A
    pin: P6.0
    instrument: I
    channel: D7
`

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := &cobra.Command{Use: "attest", SilenceUsage: true, SilenceErrors: true}
	AddGlobalFlags(root)
	root.AddCommand(InitCmd(), HelloCmd(), DiscoverCmd(), DevicesCmd(), SetNameCmd(), RunCmd())
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.Execute()
}

// workspace creates an isolated workspace with a simulated rig and a
// firmware directory.
func workspace(t *testing.T) (dir, rig string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir = t.TempDir()
	rig = filepath.Join(dir, "rig.yaml")
	if err := os.WriteFile(rig, []byte(rigYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "fw"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fw", "test.hex"), []byte("firmware\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, rig
}

func writeJobs(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "jobs.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInitWritesConfig(t *testing.T) {
	dir, _ := workspace(t)
	t.Setenv("ATTEST_LOG_LEVEL", "DEBUG")

	if err := execute(t, "init", "-w", dir); err != nil {
		t.Fatalf("init error = %v", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "DEBUG" {
		t.Errorf("LogLevel = %q, want DEBUG", cfg.LogLevel)
	}

	if err := execute(t, "init", "-w", dir); err == nil {
		t.Error("second init succeeded without --force")
	}
	if err := execute(t, "init", "-w", dir, "--force"); err != nil {
		t.Errorf("init --force error = %v", err)
	}
}

func TestRunSimulated(t *testing.T) {
	dir, rig := workspace(t)
	jobFile := writeJobs(t, dir, `jobs:
  - name: hello
    dir: fw
    firmware: test.hex
    runtime: 200ms
    begin: "TESTCASE BEGIN\n"
    expect: "hello\n"
  - name: latency
    type: timing
    dir: fw
    firmware: test.hex
    max_us: 100
`)

	if err := execute(t, "run", "-w", dir, "--simulate", rig, "--jobs", jobFile); err != nil {
		t.Fatalf("run error = %v", err)
	}

	st := store.New(filepath.Join(dir, config.Dir))
	tasks, err := st.Tasks()
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Fatalf("recorded %d tasks, want 2", len(tasks))
	}
	for _, task := range tasks {
		if !task.Success {
			t.Errorf("task %s failed: %s", task.Job, task.Error)
		}
		if task.Job == "latency" && (task.Unit != "A" || task.Result != 80) {
			t.Errorf("latency = %+v", task)
		}
	}
	discoveries, _ := st.Discoveries()
	if len(discoveries) != 1 || discoveries[0].Connections != 1 || len(discoveries[0].Units) != 2 {
		t.Errorf("discoveries = %+v", discoveries)
	}
}

func TestRunReportsFailures(t *testing.T) {
	dir, rig := workspace(t)
	jobFile := writeJobs(t, dir, `jobs:
  - name: wrong
    dir: fw
    firmware: test.hex
    runtime: 100ms
    expect: "goodbye"
`)
	err := execute(t, "run", "-w", dir, "--simulate", rig, "--jobs", jobFile)
	if err == nil || !strings.Contains(err.Error(), "1 of 1 jobs failed") {
		t.Fatalf("run error = %v", err)
	}
}

func TestRunRejectsBadJobFile(t *testing.T) {
	dir, rig := workspace(t)
	if err := execute(t, "run", "-w", dir, "--simulate", rig, "--jobs", filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("run with missing job file succeeded")
	}
	jobFile := writeJobs(t, dir, "jobs: []\n")
	if err := execute(t, "run", "-w", dir, "--simulate", rig, "--jobs", jobFile); err == nil {
		t.Error("run with empty job file succeeded")
	}
}

func TestDiscoverAndHelloSimulated(t *testing.T) {
	dir, rig := workspace(t)
	if err := execute(t, "discover", "-w", dir, "--simulate", rig); err != nil {
		t.Fatalf("discover error = %v", err)
	}
	if err := execute(t, "hello", "-w", dir, "--simulate", rig, "--discover"); err != nil {
		t.Fatalf("hello error = %v", err)
	}
	if err := execute(t, "devices", "-w", dir, "--simulate", rig); err != nil {
		t.Fatalf("devices error = %v", err)
	}

	discoveries, _ := store.New(filepath.Join(dir, config.Dir)).Discoveries()
	if len(discoveries) != 2 {
		t.Errorf("recorded %d discoveries, want 2", len(discoveries))
	}
}

func TestSetName(t *testing.T) {
	dir, _ := workspace(t)
	dbFile := filepath.Join(dir, config.Dir, "attest.db")

	reg, err := registry.Open(dbFile)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := reg.GetOrCreateBoard(context.Background(), "A"); err != nil {
		t.Fatal(err)
	}
	reg.Close()

	if err := execute(t, "set-name", "-w", dir, "A", "left"); err != nil {
		t.Fatalf("set-name error = %v", err)
	}
	err = execute(t, "set-name", "-w", dir, "nope", "x")
	if !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("set-name of unknown serial error = %v, want ErrNotFound", err)
	}

	reg, err = registry.Open(dbFile)
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()
	boards, err := reg.Boards(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(boards) != 1 || boards[0].Name != "left" {
		t.Errorf("boards = %+v", boards)
	}
}

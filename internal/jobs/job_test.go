package jobs

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eas-attest/attest/internal/sched"
)

func TestParseDefaults(t *testing.T) {
	data := []byte(`jobs:
  - name: hello
    dir: fw/hello
    firmware: build/hello.hex
    expect: "hello"
  - name: latency
    type: timing
    dir: /abs/latency
    firmware: /abs/latency.hex
    runtime: 2s
    max_us: 200
    priority: 7
`)
	f, err := Parse(data, "/jobs")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(f.Jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(f.Jobs))
	}

	hello := f.Jobs[0]
	if hello.Kind != KindCompare {
		t.Errorf("Kind = %q, want %q", hello.Kind, KindCompare)
	}
	if hello.Dir != filepath.Join("/jobs", "fw/hello") {
		t.Errorf("Dir = %q", hello.Dir)
	}
	if hello.Runtime != time.Second {
		t.Errorf("Runtime = %v, want 1s", hello.Runtime)
	}
	if hello.Priority != sched.DefaultPriority {
		t.Errorf("Priority = %d, want %d", hello.Priority, sched.DefaultPriority)
	}
	if got := hello.FirmwarePath(); got != filepath.Join("/jobs", "fw/hello", "build/hello.hex") {
		t.Errorf("FirmwarePath() = %q", got)
	}

	lat := f.Jobs[1]
	if lat.Kind != KindTiming || lat.Runtime != 2*time.Second || lat.MaxUs != 200 || lat.Priority != 7 {
		t.Errorf("timing job = %+v", lat)
	}
	if got := lat.FirmwarePath(); got != "/abs/latency.hex" {
		t.Errorf("FirmwarePath() = %q", got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"no name", "jobs:\n  - dir: a\n    firmware: a.hex\n    expect: x\n", "no name"},
		{"duplicate", "jobs:\n  - {name: a, dir: a, firmware: a.hex, expect: x}\n  - {name: a, dir: a, firmware: a.hex, expect: x}\n", "duplicate"},
		{"no dir", "jobs:\n  - {name: a, firmware: a.hex, expect: x}\n", "no source directory"},
		{"no firmware", "jobs:\n  - {name: a, dir: a, expect: x}\n", "no firmware"},
		{"no expect", "jobs:\n  - {name: a, dir: a, firmware: a.hex}\n", "expected output"},
		{"negative max", "jobs:\n  - {name: a, type: timing, dir: a, firmware: a.hex, max_us: -1}\n", "max_us"},
		{"unknown type", "jobs:\n  - {name: a, type: size, dir: a, firmware: a.hex}\n", "unknown job type"},
		{"bad yaml", "jobs: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), "/")
			if err == nil {
				t.Fatal("Parse() error = nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadResolvesAgainstFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.yaml")
	if err := os.WriteFile(path, []byte("jobs:\n  - {name: a, dir: fw, firmware: a.hex, expect: x}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if f.Jobs[0].Dir != filepath.Join(dir, "fw") {
		t.Errorf("Dir = %q", f.Jobs[0].Dir)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
}

func TestCompare(t *testing.T) {
	job := &Job{Expect: "result: 42\n", Begin: "TESTCASE BEGIN\n", Reject: "[NOT PANICED!]\n"}
	tests := []struct {
		name   string
		output string
		want   bool
	}{
		{"pass", "boot\nTESTCASE BEGIN\nresult: 42\n", true},
		{"no begin marker", "result: 42\n", false},
		{"expected before marker", "result: 42\nTESTCASE BEGIN\n", false},
		{"rejected", "TESTCASE BEGIN\nresult: 42\n[NOT PANICED!]\n", false},
		{"rejected before marker", "[NOT PANICED!]\nTESTCASE BEGIN\nresult: 42\n", true},
		{"wrong result", "TESTCASE BEGIN\nresult: 41\n", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(job, tt.output); got != tt.want {
				t.Errorf("Compare(%q) = %v, want %v", tt.output, got, tt.want)
			}
		})
	}

	if !Compare(&Job{Expect: "ok"}, "all ok") {
		t.Error("Compare() without markers failed")
	}
}

func TestMeanStd(t *testing.T) {
	tests := []struct {
		values   []float64
		mean, sd float64
	}{
		{nil, 0, 0},
		{[]float64{5}, 5, 0},
		{[]float64{2, 4, 4, 4, 5, 5, 7, 9}, 5, 2},
		{[]float64{100, 103}, 101.5, 1.5},
	}
	for _, tt := range tests {
		mean, sd := meanStd(tt.values)
		if math.Abs(mean-tt.mean) > 1e-9 || math.Abs(sd-tt.sd) > 1e-9 {
			t.Errorf("meanStd(%v) = %v, %v, want %v, %v", tt.values, mean, sd, tt.mean, tt.sd)
		}
	}
}

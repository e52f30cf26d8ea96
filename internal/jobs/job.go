// Package jobs turns firmware test jobs into scheduled tasks and records
// their results.
package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eas-attest/attest/internal/sched"
)

// Kind selects how a job judges the firmware.
type Kind string

const (
	// KindCompare passes when the UART output contains the expected text.
	KindCompare Kind = "compare"
	// KindTiming measures the first pulse on the timing channel.
	KindTiming Kind = "timing"
)

// Job is one firmware test.
type Job struct {
	Name string `yaml:"name"`
	Kind Kind   `yaml:"type"`
	// Dir holds the firmware sources; it is built with make -C Dir.
	Dir       string   `yaml:"dir"`
	BuildArgs []string `yaml:"build_args"`
	// Firmware is the image to flash, relative to Dir.
	Firmware string `yaml:"firmware"`

	Runtime time.Duration `yaml:"runtime"`
	Expect  string        `yaml:"expect"`
	// Begin discards output before this marker.
	Begin string `yaml:"begin"`
	// Reject fails the job when it appears after Begin.
	Reject string `yaml:"reject"`

	// MaxUs fails timing jobs whose mean exceeds it. Zero accepts any value.
	MaxUs float64 `yaml:"max_us"`

	Priority int    `yaml:"priority"`
	Unit     string `yaml:"unit"`
	Tag      string `yaml:"tag"`
}

// File is a job file.
type File struct {
	Jobs []Job `yaml:"jobs"`
}

// Load reads a job file. Relative directories are resolved against the
// file's directory.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse decodes and validates a job file.
func Parse(data []byte, baseDir string) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse job file: %w", err)
	}
	seen := make(map[string]bool)
	for i := range f.Jobs {
		j := &f.Jobs[i]
		if j.Name == "" {
			return nil, fmt.Errorf("job %d has no name", i+1)
		}
		if seen[j.Name] {
			return nil, fmt.Errorf("duplicate job %s", j.Name)
		}
		seen[j.Name] = true
		if err := j.normalize(baseDir); err != nil {
			return nil, fmt.Errorf("job %s: %w", j.Name, err)
		}
	}
	return &f, nil
}

func (j *Job) normalize(baseDir string) error {
	if j.Kind == "" {
		j.Kind = KindCompare
	}
	if j.Dir == "" {
		return fmt.Errorf("no source directory")
	}
	if !filepath.IsAbs(j.Dir) {
		j.Dir = filepath.Join(baseDir, j.Dir)
	}
	if j.Firmware == "" {
		return fmt.Errorf("no firmware image")
	}
	if j.Priority == 0 {
		j.Priority = sched.DefaultPriority
	}

	switch j.Kind {
	case KindCompare:
		if j.Expect == "" {
			return fmt.Errorf("compare job without expected output")
		}
		if j.Runtime <= 0 {
			j.Runtime = time.Second
		}
	case KindTiming:
		if j.MaxUs < 0 {
			return fmt.Errorf("negative max_us")
		}
	default:
		return fmt.Errorf("unknown job type %q", j.Kind)
	}
	return nil
}

// FirmwarePath returns the image to flash.
func (j *Job) FirmwarePath() string {
	if filepath.IsAbs(j.Firmware) {
		return j.Firmware
	}
	return filepath.Join(j.Dir, j.Firmware)
}

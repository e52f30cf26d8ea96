package sim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/eas-attest/attest/internal/toolchain"
)

var deviceIDDefine = regexp.MustCompile(`#define DEVICE_ID (0x[0-9a-fA-F]+)`)

// idImagePrefix marks a simulated firmware image carrying an identifier.
const idImagePrefix = "ID "

// Runner returns a toolchain.Runner emulating make and the flasher on r.
// make turns identifier sources into images that carry their id; other
// builds succeed when the directory exists.
func (r *Rig) Runner(makeName, flasherName string) toolchain.Runner {
	return &runner{rig: r, makeName: makeName, flasherName: flasherName}
}

type runner struct {
	rig         *Rig
	makeName    string
	flasherName string
}

func (s *runner) Run(ctx context.Context, timeout time.Duration, input string, name string, args ...string) (toolchain.Result, error) {
	if err := ctx.Err(); err != nil {
		return toolchain.Result{ExitCode: -1}, err
	}
	switch name {
	case s.makeName:
		return s.make(args)
	case s.flasherName:
		return s.rig.flasher(args, input)
	}
	return toolchain.Result{ExitCode: 127, Stderr: name + ": command not found"}, nil
}

func argValue(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func (s *runner) make(args []string) (toolchain.Result, error) {
	dir := argValue(args, "-C")
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return toolchain.Result{ExitCode: 2, Stderr: fmt.Sprintf("make: *** %s: No such file or directory.  Stop.", dir)}, nil
	}

	var target, sources string
	for _, a := range args {
		if v, ok := strings.CutPrefix(a, "TARGET="); ok {
			target = v
		}
		if v, ok := strings.CutPrefix(a, "SOURCES="); ok {
			sources = v
		}
	}
	if target == "" || sources == "" {
		return toolchain.Result{Output: "make: build finished"}, nil
	}

	src, err := os.ReadFile(filepath.Join(dir, sources))
	if err != nil {
		return toolchain.Result{ExitCode: 2, Stderr: err.Error()}, nil
	}
	m := deviceIDDefine.FindSubmatch(src)
	if m == nil || !strings.Contains(string(src), "#define "+toolchain.GeneratorDefine) {
		return toolchain.Result{ExitCode: 2, Stderr: "no device id in " + sources}, nil
	}
	image := idImagePrefix + string(m[1]) + "\n"
	if err := os.WriteFile(filepath.Join(dir, target+".hex"), []byte(image), 0o644); err != nil {
		return toolchain.Result{ExitCode: 2, Stderr: err.Error()}, nil
	}
	return toolchain.Result{Output: "make: built " + target}, nil
}

func (r *Rig) flasher(args []string, input string) (toolchain.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.boardByPort(argValue(args, "-i"))
	if b == nil {
		return toolchain.Result{ExitCode: 1, Stderr: "* Error: could not find the debug interface"}, nil
	}
	if b.spec.Stuck {
		if input == "N" {
			return toolchain.Result{Output: "* Warning: FW mismatch! Update? (y/n)"}, nil
		}
		return toolchain.Result{ExitCode: -1}, toolchain.ErrTimeout
	}

	switch vcc := argValue(args, "-z"); vcc {
	case "[VCC=0]":
		b.powered = false
	case "[VCC=3000]", "[VCC]":
		b.powered = true
	}

	file := argValue(args, "-w")
	if file == "" {
		return toolchain.Result{Output: "* Driver      : loaded"}, nil
	}
	if b.spec.Broken {
		return toolchain.Result{ExitCode: 1, Stderr: "* Error: device did not respond"}, nil
	}
	image, err := os.ReadFile(file)
	if err != nil {
		return toolchain.Result{ExitCode: 1, Stderr: "* Error: file " + file + " not found"}, nil
	}

	b.id = 0
	b.firmware = file
	if v, ok := strings.CutPrefix(string(image), idImagePrefix); ok {
		id, err := strconv.ParseUint(strings.TrimSpace(v), 0, 32)
		if err != nil {
			return toolchain.Result{ExitCode: 1, Stderr: "* Error: corrupt image"}, nil
		}
		b.id = uint32(id)
		b.firmware = ""
	}
	b.flashes++
	b.uartReads = 0
	return toolchain.Result{Output: "* Programming...\n* Done"}, nil
}

// IdentifierTemplate is a minimal identifier program accepted by the
// simulated make.
const IdentifierTemplate = `#include <msp430.h>

#ifdef __RTS_GEN
#define DEVICE_ID <DEVICE_ID>
#else
#define DEVICE_ID 0xFE000000
#endif

int main(void) { return 0; }
`

// WriteIdentifierTemplate writes IdentifierTemplate into dir.
func WriteIdentifierTemplate(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, toolchain.TemplateFile), []byte(IdentifierTemplate), 0o644)
}

package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eas-attest/attest/internal/device"
)

const (
	// DeviceIDPlaceholder is replaced with the generated id in the template.
	DeviceIDPlaceholder = "<DEVICE_ID>"
	// GeneratorDefine switches the template to the generated id.
	GeneratorDefine = "__RTS_GEN"
	// TemplateFile is the identifier program template inside its directory.
	TemplateFile = "main.c"
)

// IdentifierSource renders the identifier program for id from template.
func IdentifierSource(template string, id uint32) string {
	src := "#define " + GeneratorDefine + "\n" + template
	return strings.ReplaceAll(src, DeviceIDPlaceholder, fmt.Sprintf("0x%x", id))
}

// identifierName is the base name of the generated files for id.
func identifierName(id uint32) string {
	return fmt.Sprintf("_main_%x", id)
}

// ProgramIdentifier builds the identifier program for id from the template
// in dir and flashes it onto b. Generated files are removed afterwards.
func (t *Toolchain) ProgramIdentifier(ctx context.Context, dir string, b *device.Board, id uint32) error {
	name := identifierName(id)
	defer t.cleanup(dir, name)

	template, err := os.ReadFile(filepath.Join(dir, TemplateFile))
	if err != nil {
		return fmt.Errorf("failed to read identifier template: %w", err)
	}
	src := name + ".c"
	if err := os.WriteFile(filepath.Join(dir, src), []byte(IdentifierSource(string(template), id)), 0o644); err != nil {
		return fmt.Errorf("failed to write identifier program: %w", err)
	}

	if _, err := t.Build(ctx, dir, "TARGET="+name, "SOURCES="+src); err != nil {
		return err
	}
	_, err = t.Flash(ctx, b, filepath.Join(dir, name+".hex"))
	return err
}

// cleanup removes the generated files of one identifier build. Builds for
// other boards run concurrently in the same directory, so only files with
// this build's prefix are touched.
func (t *Toolchain) cleanup(dir, name string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), name) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			t.log.Debug("Cleanup failed", "file", e.Name(), "error", err)
		}
	}
}

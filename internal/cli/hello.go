package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/eas-attest/attest/internal/config"
	"github.com/eas-attest/attest/internal/toolchain"
)

// CheckResult represents the outcome of a single check
type CheckResult struct {
	Name    string
	Status  string // "✓", "⚠", "✗"
	Details string
}

// HelloCmd returns the hello command for checking a test rig
func HelloCmd() *cobra.Command {
	var runDiscovery bool

	cmd := &cobra.Command{
		Use:   "hello",
		Short: "Check that the rig is ready for testing",
		Long: `Check the host setup of the test rig:

  1. Configuration file and connection topology
  2. Build and flasher tools on PATH
  3. Identifier program template
  4. Connected boards and instruments

With --discover the identification protocol runs as well.

Examples:
  attest hello
  attest hello --discover
  attest hello --simulate rig.yaml --discover`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := cmd.Context()

			results := []CheckResult{e.checkConfig()}
			if e.rig == nil {
				results = append(results,
					e.checkTool("Make", e.cfg.Make),
					e.checkTool("Flasher", e.cfg.Flasher),
					e.checkTemplate(),
				)
			}

			boards, err := e.scanner.Connected(ctx)
			switch {
			case err != nil:
				results = append(results, CheckResult{Name: "Boards", Status: "✗", Details: err.Error()})
			case len(boards) == 0:
				results = append(results, CheckResult{Name: "Boards", Status: "⚠", Details: fmt.Sprintf("no USB device with VID %04x PID %04x", e.cfg.BoardVID, e.cfg.BoardPID)})
			default:
				results = append(results, CheckResult{Name: "Boards", Status: "✓", Details: fmt.Sprintf("%d connected", len(boards))})
			}

			instruments, err := e.instruments(ctx)
			switch {
			case err != nil:
				results = append(results, CheckResult{Name: "Instruments", Status: "✗", Details: err.Error()})
			case len(instruments) == 0:
				results = append(results, CheckResult{Name: "Instruments", Status: "⚠", Details: "none found, timing jobs cannot run"})
			default:
				results = append(results, CheckResult{Name: "Instruments", Status: "✓", Details: fmt.Sprintf("%d connected", len(instruments))})
			}

			if runDiscovery {
				res, err := e.discover(ctx)
				if err != nil {
					results = append(results, CheckResult{Name: "Discovery", Status: "✗", Details: err.Error()})
				} else {
					scoped := 0
					for _, u := range res.Units {
						if u.HasScope() {
							scoped++
						}
					}
					st := "✓"
					if len(res.Units) == 0 {
						st = "✗"
					}
					results = append(results, CheckResult{Name: "Discovery", Status: st, Details: fmt.Sprintf("%d units, %d with instrument", len(res.Units), scoped)})
				}
			}

			return printChecks(results)
		},
	}

	cmd.Flags().BoolVar(&runDiscovery, "discover", false, "Also run board and instrument discovery")

	return cmd
}

func printChecks(results []CheckResult) error {
	hasErrors := false
	fmt.Println()
	fmt.Println("Check          Status")
	fmt.Println("─────────────────────")
	for _, r := range results {
		status := r.Status
		switch r.Status {
		case "✓":
			status = color.New(color.FgGreen).Sprint(r.Status)
		case "⚠":
			status = color.New(color.FgYellow).Sprint(r.Status)
		case "✗":
			status = color.New(color.FgRed).Sprint(r.Status)
			hasErrors = true
		}
		fmt.Printf("%-14s %s  %s\n", r.Name, status, r.Details)
	}
	fmt.Println()

	if hasErrors {
		return fmt.Errorf("rig check failed")
	}
	fmt.Println("Rig is ready.")
	return nil
}

func (e *env) checkConfig() CheckResult {
	path := config.Path(e.root)
	details := fmt.Sprintf("%d required connections", len(e.topo))
	if _, err := os.Stat(path); err != nil {
		return CheckResult{Name: "Config", Status: "⚠", Details: "no " + path + ", using defaults; " + details}
	}
	return CheckResult{Name: "Config", Status: "✓", Details: details}
}

func (e *env) checkTool(name, tool string) CheckResult {
	if e.cfg.ToolDir != "" {
		if _, err := os.Stat(filepath.Join(e.cfg.ToolDir, tool)); err == nil {
			return CheckResult{Name: name, Status: "✓", Details: filepath.Join(e.cfg.ToolDir, tool)}
		}
	}
	path, err := exec.LookPath(tool)
	if err != nil {
		return CheckResult{Name: name, Status: "✗", Details: tool + " not found on PATH"}
	}
	return CheckResult{Name: name, Status: "✓", Details: path}
}

func (e *env) checkTemplate() CheckResult {
	path := filepath.Join(e.cfg.IdentifierDir, toolchain.TemplateFile)
	if _, err := os.Stat(path); err != nil {
		return CheckResult{Name: "Identifier", Status: "✗", Details: "missing " + path}
	}
	return CheckResult{Name: "Identifier", Status: "✓", Details: path}
}

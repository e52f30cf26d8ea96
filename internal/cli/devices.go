package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// DevicesCmd returns the devices command
func DevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List all registered boards and instruments",
		Long: `List every board and instrument in the device registry with its name,
flash counter and state. Boards are registered when first enumerated,
instruments when first opened.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := cmd.Context()

			if e.rig != nil {
				// The simulated registry starts empty.
				if _, err := e.scanner.Connected(ctx); err != nil {
					return err
				}
				if _, err := e.instruments(ctx); err != nil {
					return err
				}
			}

			boards, err := e.reg.Boards(ctx)
			if err != nil {
				return err
			}
			instruments, err := e.reg.Instruments(ctx)
			if err != nil {
				return err
			}

			fmt.Println("Boards:")
			if len(boards) == 0 {
				fmt.Println("  (none)")
			} else {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "  SERIAL\tNAME\tPRODUCT\tFLASHES\tSTATE")
				for _, b := range boards {
					state := color.New(color.FgGreen).Sprint("ok")
					if b.Defective() {
						state = color.New(color.FgRed).Sprint("defective")
					}
					fmt.Fprintf(w, "  %s\t%s\t%s\t%d\t%s\n", b.SerialNumber, orDash(b.Name), orDash(b.Product), b.FlashCounter(), state)
				}
				w.Flush()
			}

			fmt.Println("\nInstruments:")
			if len(instruments) == 0 {
				fmt.Println("  (none)")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "  SERIAL\tNAME")
			for _, inst := range instruments {
				fmt.Fprintf(w, "  %s\t%s\n", inst.SerialNumber, orDash(inst.Name))
			}
			return w.Flush()
		},
	}
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// SetNameCmd returns the set-name command
func SetNameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-name <serial> <name>",
		Short: "Give a board or instrument a display name",
		Long: `Set the display name of the board or instrument with the given serial
number. Names are shown in logs and listings instead of serial numbers.
Use an empty name to clear it.

Examples:
  attest set-name 9A1B2C3D left-bench
  attest set-name JO123/0042 scope-1`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			kind, err := e.reg.SetName(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("✓ Named %s %s %q\n", kind, args[0], args[1])
			return nil
		},
	}
	return cmd
}

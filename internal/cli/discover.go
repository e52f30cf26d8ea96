package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/eas-attest/attest/internal/discovery"
	"github.com/eas-attest/attest/internal/emitter"
	"github.com/eas-attest/attest/internal/store"
	"github.com/eas-attest/attest/internal/testunit"
)

// DiscoverCmd returns the discover command
func DiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find boards and instruments and the wiring between them",
		Long: `Flash every connected board with an identification program, listen on
every instrument channel and pair boards with instruments whose wiring
matches the configured connections (tu_connections).

Boards without a matching instrument become standalone units.

Examples:
  attest discover
  attest discover --simulate rig.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			e.connectEmitter(ctx)

			res, err := e.discover(ctx)
			if err != nil {
				return err
			}
			printUnits(res)
			return nil
		},
	}
	return cmd
}

// discover runs the identification protocol over all connected devices and
// records the outcome.
func (e *env) discover(ctx context.Context) (*discovery.Result, error) {
	start := time.Now()
	boards, err := e.scanner.Connected(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate boards: %w", err)
	}
	instruments, err := e.instruments(ctx)
	if err != nil {
		return nil, err
	}
	e.log.Info("Devices found", "boards", len(boards), "instruments", len(instruments))

	d := discovery.NewDetector(e.tc, e.driver, e.locks, e.topo, e.prober, e.discoveryOptions(), e.log)
	res, err := d.Detect(ctx, boards, instruments)
	if err != nil {
		return nil, err
	}

	rec := store.DiscoveryRecord{
		Timestamp:   start,
		Duration:    time.Since(start).Round(time.Millisecond).String(),
		Boards:      len(res.Boards),
		Instruments: len(res.Instruments),
		Programmed:  len(res.IDs),
		Connections: len(res.Connections),
	}
	for _, u := range res.Units {
		ur := store.UnitRecord{Board: u.Board.SerialNumber}
		if u.Instrument != nil {
			ur.Instrument = u.Instrument.SerialNumber
		}
		for _, c := range u.Connections {
			ur.Connections = append(ur.Connections, c.String())
		}
		for _, t := range u.Tags() {
			ur.Tags = append(ur.Tags, string(t))
		}
		rec.Units = append(rec.Units, ur)
	}
	if err := e.store.AddDiscovery(rec); err != nil {
		e.log.Warn("Failed to record discovery", "error", err)
	}
	if err := e.emitter.Emit(emitter.Event{Type: emitter.TypeDiscovery, Timestamp: start, Units: len(res.Units)}); err != nil {
		e.log.Debug("Failed to emit event", "error", err)
	}
	return res, nil
}

func printUnits(res *discovery.Result) {
	fmt.Printf("Boards: %d  Instruments: %d  Programmed: %d  Connections: %d\n\n",
		len(res.Boards), len(res.Instruments), len(res.IDs), len(res.Connections))
	if len(res.Units) == 0 {
		fmt.Println(color.New(color.FgYellow).Sprint("No test units available."))
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	// Colors only in the last column, escape codes break tab alignment.
	fmt.Fprintln(w, "UNIT\tINSTRUMENT\tCONNECTIONS\tTAGS")
	for _, u := range res.Units {
		inst := "-"
		if u.Instrument != nil {
			inst = u.Instrument.String()
		}
		var cons []string
		for _, c := range u.Connections {
			cons = append(cons, c.String())
		}
		var tags []string
		for _, t := range u.Tags() {
			tag := string(t)
			if t == testunit.TagScope {
				tag = color.New(color.FgGreen).Sprint(tag)
			}
			tags = append(tags, tag)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.Name(), inst, strings.Join(cons, " "), strings.Join(tags, ","))
	}
	w.Flush()
}

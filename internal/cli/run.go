package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/eas-attest/attest/internal/app"
	"github.com/eas-attest/attest/internal/board"
	"github.com/eas-attest/attest/internal/discovery"
	"github.com/eas-attest/attest/internal/instrument"
	"github.com/eas-attest/attest/internal/jobs"
	"github.com/eas-attest/attest/internal/pages"
	"github.com/eas-attest/attest/internal/sched"
)

// RunCmd returns the run command
func RunCmd() *cobra.Command {
	var (
		jobFile string
		tui     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover test units and run a job file on them",
		Long: `Run discovery, start one worker per test unit and execute every job of
the job file. Jobs bound to a unit (by board serial or name) only run there;
timing jobs need a unit with an instrument.

A job that cannot be executed marks its board defective and is retried at
high priority. The exit code is non-zero when any job failed.

Examples:
  attest run --jobs jobs.yaml
  attest run --jobs jobs.yaml --tui
  attest run --jobs jobs.yaml --simulate rig.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := jobs.Load(jobFile)
			if err != nil {
				return err
			}
			if len(file.Jobs) == 0 {
				return fmt.Errorf("%s contains no jobs", jobFile)
			}

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
			if len(res.Units) == 0 {
				return fmt.Errorf("no test units available")
			}
			printUnits(res)
			fmt.Println()
			if tui {
				if err := e.quiet(); err != nil {
					return err
				}
			}

			s := sched.New()
			runner := e.newRunner(s)
			if err := runner.Schedule(file.Jobs, res.Units); err != nil {
				return err
			}

			pool := sched.NewPool(res.Units, s,
				time.Duration(e.cfg.UnavailableRetryS)*time.Second,
				time.Duration(e.cfg.IdleBackoffMs)*time.Millisecond,
				e.log)
			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			pool.Start(runCtx)
			go resetPriorities(runCtx, s, time.Duration(e.cfg.PrioResetH)*time.Hour, e.cfg.LegacyPriority, e.log)

			if tui {
				if err := runDashboard(res, s, pool, runner, e.rig != nil); err != nil {
					return err
				}
				if runner.Pending() > 0 {
					cancel()
				}
			}

			results, err := runner.Wait(runCtx)
			pool.Stop()
			printResults(results)
			if err != nil {
				return fmt.Errorf("run interrupted with %d jobs pending", runner.Pending())
			}
			for _, r := range results {
				if !r.Passed {
					return fmt.Errorf("%d of %d jobs failed", countFailed(results), len(results))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&jobFile, "jobs", "j", "jobs.yaml", "Job file")
	cmd.Flags().BoolVar(&tui, "tui", false, "Show the worker dashboard while jobs run")

	return cmd
}

func (e *env) newRunner(s *sched.Scheduler) *jobs.Runner {
	opts := jobs.DefaultOptions()
	opts.UARTBaudRate = e.cfg.UARTBaudRate
	opts.TimingChannel = e.topo.TimingChannel()
	opts.LogicLevel = instrument.LogicLevel(e.cfg.LogicThresholdV)

	return jobs.NewRunner(jobs.Deps{
		Toolchain:  e.tc,
		NewMonitor: func() jobs.Monitor { return board.NewMonitor(e.open) },
		Driver:     e.driver,
		Locks:      e.locks,
		Scheduler:  s,
		Registry:   e.reg,
		Store:      e.store,
		Emitter:    e.emitter,
	}, opts, e.log)
}

// resetPriorities rewrites the priority of every queued task to p once per
// interval.
func resetPriorities(ctx context.Context, s *sched.Scheduler, interval time.Duration, p int, log *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info("Resetting task priorities", "tasks", s.Len(), "priority", p)
			s.ResetPriorities(p)
		}
	}
}

func runDashboard(res *discovery.Result, s *sched.Scheduler, pool *sched.Pool, runner *jobs.Runner, simulated bool) error {
	pageMap := map[app.PageID]app.Page{
		app.WorkersPage: pages.NewWorkersPage(pool.Workers),
		app.QueuePage:   pages.NewQueuePage(s),
		app.ResultsPage: pages.NewResultsPage(runner.Results),
		app.DevicesPage: pages.NewDevicesPage(res.Boards, res.Instruments, res.Connections),
	}
	summary := func() app.Summary {
		results := runner.Results()
		sum := app.Summary{
			Units:     len(res.Units),
			Queued:    s.Len(),
			Finished:  len(results),
			Failed:    countFailed(results),
			Pending:   runner.Pending(),
			Simulated: simulated,
		}
		for _, u := range res.Units {
			if u.HasScope() {
				sum.Scoped++
			}
		}
		return sum
	}

	p := tea.NewProgram(app.New(pageMap, summary, app.DefaultRefresh), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func countFailed(results []jobs.Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed {
			n++
		}
	}
	return n
}

func printResults(results []jobs.Result) {
	pass := color.New(color.FgGreen).Sprint("PASS")
	fail := color.New(color.FgRed).Sprint("FAIL")
	for _, r := range results {
		status := pass
		if !r.Passed {
			status = fail
		}
		line := fmt.Sprintf("%s  %-24s %-16s", status, r.Job, r.Unit)
		if r.Kind == jobs.KindTiming && r.Value > 0 {
			line += fmt.Sprintf(" %.1f µs", r.Value)
		}
		if r.Error != "" {
			line += "  " + color.New(color.FgYellow).Sprint(r.Error)
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%d jobs, %d failed\n", len(results), countFailed(results))
}

// Package cli implements the attest commands.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/eas-attest/attest/internal/board"
	"github.com/eas-attest/attest/internal/config"
	"github.com/eas-attest/attest/internal/device"
	"github.com/eas-attest/attest/internal/discovery"
	"github.com/eas-attest/attest/internal/emitter"
	"github.com/eas-attest/attest/internal/instrument"
	"github.com/eas-attest/attest/internal/logging"
	"github.com/eas-attest/attest/internal/registry"
	"github.com/eas-attest/attest/internal/sim"
	"github.com/eas-attest/attest/internal/store"
	"github.com/eas-attest/attest/internal/testunit"
	"github.com/eas-attest/attest/internal/toolchain"
)

// AddGlobalFlags registers the flags shared by all commands.
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("workspace", "w", "", "Workspace directory (default: current directory)")
	cmd.PersistentFlags().String("simulate", "", "Run against the simulated rig described in this YAML file")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug messages to the console")
}

// env is everything a command needs, wired from the configuration.
type env struct {
	root string
	cfg  config.Config
	log  *slog.Logger

	reg     *registry.Registry
	store   *store.Store
	emitter emitter.Emitter

	rig     *sim.Rig
	enum    board.Enumerator
	driver  instrument.Driver
	open    board.OpenFunc
	locks   *instrument.LockSet
	tc      *toolchain.Toolchain
	scanner *board.Scanner
	prober  *board.Prober
	topo    testunit.Topology

	closers []func() error
}

// newEnv loads the configuration and opens the registry. With --simulate
// all hardware access goes to the simulated rig and the registry is kept in
// memory.
func newEnv(cmd *cobra.Command) (*env, error) {
	root, _ := cmd.Flags().GetString("workspace")
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	e := &env{root: root, cfg: cfg, locks: instrument.NewLockSet()}

	if err := e.setupLogging(cmd); err != nil {
		return nil, err
	}

	e.topo, err = testunit.ParseTopology(cfg.TUConnections)
	if err != nil {
		e.Close()
		return nil, err
	}

	var runner toolchain.Runner = toolchain.ExecRunner{}
	if cfg.ToolDir != "" {
		runner = toolchain.ExecRunner{Env: toolchain.EnvWithToolDir(cfg.ToolDir)}
	}
	dbFile := cfg.DBFile
	e.enum = board.USBEnumerator{}
	e.driver = instrument.NoDriver{}

	if path, _ := cmd.Flags().GetString("simulate"); path != "" {
		e.rig, err = sim.Load(path)
		if err != nil {
			e.Close()
			return nil, err
		}
		runner = e.rig.Runner(cfg.Make, cfg.Flasher)
		e.enum = e.rig
		e.driver = e.rig.Driver()
		e.open = e.rig.OpenSerial
		dbFile = ":memory:"

		dir, err := os.MkdirTemp("", "attest-identifier-")
		if err != nil {
			e.Close()
			return nil, err
		}
		e.closers = append(e.closers, func() error { return os.RemoveAll(dir) })
		if err := sim.WriteIdentifierTemplate(dir); err != nil {
			e.Close()
			return nil, err
		}
		e.cfg.IdentifierDir = dir
		e.log.Info("Using simulated rig", "file", path)
	} else {
		e.log.Debug("No instrument driver available, instruments are not used")
	}

	e.reg, err = registry.Open(dbFile)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.closers = append(e.closers, e.reg.Close)
	e.store = store.New(cfg.HistoryDir)

	tcCfg := toolchain.Config{
		Make:           cfg.Make,
		Flasher:        cfg.Flasher,
		Target:         cfg.Target,
		BuildTimeout:   time.Duration(cfg.BuildTimeoutS) * time.Second,
		FlasherTimeout: time.Duration(cfg.FlasherTimeoutS) * time.Second,
	}
	e.tc = toolchain.New(runner, tcCfg, e.reg, e.log)
	e.scanner = board.NewScanner(e.enum, e.reg, board.Match{
		VID:            cfg.BoardVID,
		PID:            cfg.BoardPID,
		DebugInterface: cfg.DebugInterface,
		UARTInterface:  cfg.UARTInterface,
	}, e.log)

	var identify board.Identifier
	if cfg.IdentifyOnProbe {
		identify = e.tc
	}
	e.prober = board.NewProber(e.scanner, identify, e.reg, e.log)
	e.emitter = emitter.Noop{}
	return e, nil
}

func (e *env) setupLogging(cmd *cobra.Command) error {
	level, err := logging.ParseLevel(e.cfg.LogLevel)
	if err != nil {
		return err
	}
	console := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		console = slog.LevelDebug
	}
	log, closeLog, err := logging.Setup(logging.Options{
		File:         e.cfg.LogFile,
		Level:        level,
		Console:      os.Stderr,
		ConsoleLevel: console,
	})
	if err != nil {
		return err
	}
	e.log = log
	e.closers = append(e.closers, closeLog)
	return nil
}

// quiet stops console logging while the dashboard owns the terminal.
func (e *env) quiet() error {
	level, err := logging.ParseLevel(e.cfg.LogLevel)
	if err != nil {
		return err
	}
	log, closeLog, err := logging.Setup(logging.Options{
		File:  e.cfg.LogFile,
		Level: level,
	})
	if err != nil {
		return err
	}
	e.log = log
	e.closers = append(e.closers, closeLog)
	return nil
}

// connectEmitter switches to the MQTT emitter when a broker is configured.
// A broker that cannot be reached only costs the status events.
func (e *env) connectEmitter(ctx context.Context) {
	if e.cfg.MQTTBroker == "" {
		return
	}
	m := emitter.NewMQTTEmitter(e.cfg.MQTTBroker, e.cfg.MQTTTopic, "attest-"+uuid.NewString()[:8], e.log)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		e.log.Warn("MQTT broker unreachable, status events disabled", "broker", e.cfg.MQTTBroker, "error", err)
		return
	}
	e.emitter = m
	e.closers = append(e.closers, m.Close)
}

// Close releases everything opened by newEnv, newest first.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil && e.log != nil {
			e.log.Debug("Close failed", "error", err)
		}
	}
	e.closers = nil
}

func (e *env) discoveryOptions() discovery.Options {
	opts := discovery.DefaultOptions()
	opts.IdentifierDir = e.cfg.IdentifierDir
	opts.StartPattern = byte(e.cfg.IDStartPattern)
	opts.BaudRate = e.cfg.IDBaudRate
	opts.SamplesPerBit = e.cfg.IDSamplesPerBit
	opts.CaptureMs = e.cfg.IDCaptureMs
	opts.Retries = e.cfg.IDRetries
	opts.LogicLevel = instrument.LogicLevel(e.cfg.LogicThresholdV)
	return opts
}

// instruments lists and registers the instruments the driver can see.
func (e *env) instruments(ctx context.Context) ([]*device.Instrument, error) {
	serials, err := e.driver.Enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate instruments: %w", err)
	}
	var list []*device.Instrument
	for _, sn := range serials {
		inst, created, err := e.reg.GetOrCreateInstrument(ctx, sn)
		if err != nil {
			return nil, err
		}
		if created {
			e.log.Info("New instrument registered", "instrument", sn)
		}
		list = append(list, inst)
	}
	return list, nil
}

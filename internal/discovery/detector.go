package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/eas-attest/attest/internal/device"
	"github.com/eas-attest/attest/internal/instrument"
	"github.com/eas-attest/attest/internal/testunit"
)

// Programmer deploys the identifier firmware carrying id onto a board.
type Programmer interface {
	ProgramIdentifier(ctx context.Context, dir string, b *device.Board, id uint32) error
}

// Options configures the identification protocol.
type Options struct {
	IdentifierDir string
	StartPattern  byte
	BaudRate      int
	SamplesPerBit int
	CaptureMs     int
	// Retries bounds the captures per instrument when decoding fails.
	Retries int
	// LogicLevel overrides the reader's threshold when non-zero.
	LogicLevel int16
}

// DefaultOptions returns the protocol constants of the identifier firmware.
func DefaultOptions() Options {
	return Options{
		StartPattern:  0xFE,
		BaudRate:      1200,
		SamplesPerBit: 3,
		CaptureMs:     500,
		Retries:       5,
	}
}

// Result is the outcome of one discovery run.
type Result struct {
	Boards      []*device.Board
	Instruments []*device.Instrument
	// IDs maps each programmed identifier to its board.
	IDs         map[uint32]*device.Board
	Connections []device.Connection
	Units       []*testunit.Unit
}

// Detector runs the identification protocol and assembles test units.
type Detector struct {
	prog   Programmer
	driver instrument.Driver
	locks  *instrument.LockSet
	topo   testunit.Topology
	prober testunit.Prober
	opts   Options
	log    *slog.Logger
}

// NewDetector creates a detector.
func NewDetector(prog Programmer, driver instrument.Driver, locks *instrument.LockSet, topo testunit.Topology, prober testunit.Prober, opts Options, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{
		prog:   prog,
		driver: driver,
		locks:  locks,
		topo:   topo,
		prober: prober,
		opts:   opts,
		log:    log.With("component", "discovery"),
	}
}

// Detect programs every board with a fresh identifier, listens on every
// instrument and pairs boards with instruments whose wiring satisfies the
// topology. Boards that fail to program are left out; programmed boards
// without a valid instrument become standalone units. Without instruments
// no board is programmed and all boards become standalone units.
func (d *Detector) Detect(ctx context.Context, boards []*device.Board, instruments []*device.Instrument) (*Result, error) {
	res := &Result{Boards: boards, Instruments: instruments, IDs: make(map[uint32]*device.Board)}
	if len(boards) == 0 {
		return res, nil
	}

	if len(instruments) == 0 {
		d.log.Info("No instruments found, using all boards without instrument")
		for _, b := range boards {
			res.Units = append(res.Units, testunit.New(b, nil, d.topo, nil, d.prober))
		}
		return res, nil
	}

	d.log.Info("Flashing boards with identification program", "boards", len(boards))
	res.IDs = d.programBoards(ctx, boards)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if len(res.IDs) == 0 {
		d.log.Warn("No board is flashed with an identifier program, aborting discovery")
		return res, nil
	}

	d.log.Info("Reading identification signals from instruments")
	for _, inst := range instruments {
		cons, err := d.instrumentConnections(ctx, inst, res.IDs)
		if err != nil {
			return res, err
		}
		res.Connections = append(res.Connections, cons...)
	}
	d.logConnections(boards, res.Connections)

	for _, b := range boards {
		if !programmed(res.IDs, b) {
			continue
		}
		var unit *testunit.Unit
		for _, inst := range instruments {
			if ok, _ := d.topo.Validate(b, inst, res.Connections); ok {
				unit = testunit.New(b, inst, d.topo, res.Connections, d.prober)
				break
			}
		}
		if unit == nil {
			d.log.Info("Board is not connected correctly to an instrument, using it without one", "board", b.SerialNumber)
			unit = testunit.New(b, nil, d.topo, nil, d.prober)
		}
		res.Units = append(res.Units, unit)
	}
	return res, nil
}

func programmed(ids map[uint32]*device.Board, b *device.Board) bool {
	for _, pb := range ids {
		if pb == b {
			return true
		}
	}
	return false
}

// programBoards flashes all boards in parallel and returns the identifiers
// of those that succeeded.
func (d *Detector) programBoards(ctx context.Context, boards []*device.Board) map[uint32]*device.Board {
	var (
		mu  sync.Mutex
		ids = make(map[uint32]*device.Board)
		g   errgroup.Group
	)
	for _, b := range boards {
		g.Go(func() error {
			id := d.uniqueID(&mu, ids)
			d.log.Debug("Programming board for identification", "board", b.SerialNumber, "device_id", hexID(id))
			if err := d.prog.ProgramIdentifier(ctx, d.opts.IdentifierDir, b, id); err != nil {
				d.log.Error("Failed to program identification firmware", "board", b.SerialNumber, "error", err)
				mu.Lock()
				delete(ids, id)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			ids[id] = b
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return ids
}

// uniqueID reserves an identifier not used by another board of this run.
func (d *Detector) uniqueID(mu *sync.Mutex, ids map[uint32]*device.Board) uint32 {
	mu.Lock()
	defer mu.Unlock()
	for {
		id := GenerateID(d.opts.StartPattern)
		if _, taken := ids[id]; !taken {
			ids[id] = nil
			return id
		}
	}
}

// instrumentConnections captures the identification signal on inst and
// decodes one connection per channel carrying a known identifier. Decode
// errors are retried; instrument errors give up on the instrument.
func (d *Detector) instrumentConnections(ctx context.Context, inst *device.Instrument, ids map[uint32]*device.Board) ([]device.Connection, error) {
	log := d.log.With("instrument", inst.SerialNumber)
	reader := instrument.NewReader(d.driver, d.locks, inst, d.log)
	if d.opts.LogicLevel != 0 {
		reader.LogicLevel = d.opts.LogicLevel
	}

	for try := 1; try <= d.opts.Retries; try++ {
		if err := reader.Read(ctx, d.opts.BaudRate, d.opts.SamplesPerBit, d.opts.CaptureMs); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Error("Reading from instrument failed", "error", err)
			return nil, nil
		}

		cons, err := d.channelConnections(reader, inst, ids)
		if err == nil {
			return cons, nil
		}
		log.Warn("Failed to get connections", "try", try, "error", err)
	}
	return nil, nil
}

func (d *Detector) channelConnections(reader *instrument.Reader, inst *device.Instrument, ids map[uint32]*device.Board) ([]device.Connection, error) {
	var cons []device.Connection
	for ch := 0; ch < instrument.DigitalChannels; ch++ {
		data := reader.ChannelData(ch)
		if len(data) < FrameLen {
			continue
		}
		f, n, err := DecodeFrames(data, d.opts.StartPattern)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch, err)
		}
		b, ok := ids[f.DeviceID]
		if !ok || b == nil {
			d.log.Warn("Read unknown id", "instrument", inst.SerialNumber, "channel", ch, "device_id", hexID(f.DeviceID))
			continue
		}
		d.log.Debug("Decoded identification signal", "channel", ch, "frames", n, "device_id", hexID(f.DeviceID), "port", f.Port, "pin", f.Pin)
		cons = append(cons, device.Connection{
			Port:       f.Port,
			Pin:        f.Pin,
			Channel:    device.DigitalChannel(ch),
			DeviceID:   f.DeviceID,
			Board:      b,
			Instrument: inst,
		})
	}
	return cons, nil
}

func (d *Detector) logConnections(boards []*device.Board, cons []device.Connection) {
	for _, b := range boards {
		var own []device.Connection
		for _, c := range cons {
			if c.Board == b {
				own = append(own, c)
			}
		}
		d.log.Info("Board connections", "board", b.SerialNumber, "count", len(own))
		for _, c := range own {
			d.log.Info("Connection", "board", b.SerialNumber, "port", c.Port, "pin", c.Pin, "instrument", c.Instrument.SerialNumber, "channel", c.Channel)
		}
	}
}

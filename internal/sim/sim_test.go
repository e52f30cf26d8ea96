package sim

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eas-attest/attest/internal/board"
	"github.com/eas-attest/attest/internal/device"
	"github.com/eas-attest/attest/internal/discovery"
	"github.com/eas-attest/attest/internal/instrument"
	"github.com/eas-attest/attest/internal/toolchain"
)

const rigYAML = `boards:
  - serial: A
    output: "hello from A\n"
    pulse_us: 125.5
  - serial: B
    broken: true
instruments:
  - serial: I
wires:
  - board: A
    pin: P6.0
    instrument: I
    channel: D7
`

func loadRig(t *testing.T) *Rig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rig.yaml")
	if err := os.WriteFile(path, []byte(rigYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return r
}

func simBoardA(r *Rig) *device.Board {
	b := device.NewBoard("A")
	b.SetPorts("/dev/simACM0", "/dev/simACM1")
	return b
}

func newToolchain(r *Rig) *toolchain.Toolchain {
	cfg := toolchain.DefaultConfig()
	return toolchain.New(r.Runner(cfg.Make, cfg.Flasher), cfg, nil, nil)
}

func TestLoadListsPorts(t *testing.T) {
	r := loadRig(t)
	ports, err := r.Ports()
	if err != nil {
		t.Fatal(err)
	}
	if len(ports) != 4 {
		t.Fatalf("len(ports) = %d, want 4", len(ports))
	}
	if ports[0].Name != "/dev/simACM0" || ports[0].SerialNumber != "A" || ports[0].Product != debugProduct {
		t.Errorf("ports[0] = %+v", ports[0])
	}
	if ports[3].Name != "/dev/simACM3" || ports[3].SerialNumber != "B" || ports[3].Product != uartProduct {
		t.Errorf("ports[3] = %+v", ports[3])
	}

	r.SetPlugged("B", false)
	ports, _ = r.Ports()
	if len(ports) != 2 {
		t.Errorf("len(ports) after unplug = %d, want 2", len(ports))
	}
}

func TestNewRejectsInvalidWires(t *testing.T) {
	tests := []Spec{
		{Boards: []BoardSpec{{Serial: "A"}}, Wires: []WireSpec{{Board: "A", Pin: "P1.0", Instrument: "X", Channel: "D0"}}},
		{Boards: []BoardSpec{{Serial: "A"}}, Instruments: []InstrumentSpec{{Serial: "I"}}, Wires: []WireSpec{{Board: "A", Pin: "P1.0", Instrument: "I", Channel: "D16"}}},
		{Boards: []BoardSpec{{Serial: "A"}, {Serial: "A"}}},
	}
	for i, spec := range tests {
		if _, err := New(spec); err == nil {
			t.Errorf("case %d: New() error = nil", i)
		}
	}
}

func TestScannerSeesSimulatedBoards(t *testing.T) {
	r := loadRig(t)
	reg := newMemRegistry()
	s := board.NewScanner(r, reg, board.Match{VID: 0x2047, PID: 0x0013, DebugInterface: "Debug", UARTInterface: "UART"}, nil)
	boards, err := s.Connected(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(boards) != 2 {
		t.Fatalf("len(boards) = %d, want 2", len(boards))
	}
	if debug, uart := boards[0].Ports(); debug != "/dev/simACM0" || uart != "/dev/simACM1" {
		t.Errorf("ports = %s, %s", debug, uart)
	}
}

func TestProgramIdentifier(t *testing.T) {
	r := loadRig(t)
	dir := t.TempDir()
	if err := WriteIdentifierTemplate(dir); err != nil {
		t.Fatal(err)
	}
	b := simBoardA(r)

	if err := newToolchain(r).ProgramIdentifier(context.Background(), dir, b, 0xFE123456); err != nil {
		t.Fatalf("ProgramIdentifier() error = %v", err)
	}
	if got := r.FlashedID("A"); got != 0xFE123456 {
		t.Errorf("FlashedID() = 0x%x", got)
	}
	if r.Flashes("A") != 1 || b.FlashCounter() != 1 {
		t.Errorf("flashes = %d, counter = %d", r.Flashes("A"), b.FlashCounter())
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != toolchain.TemplateFile {
		t.Errorf("generated files left behind: %v", entries)
	}
}

func TestFlashFailures(t *testing.T) {
	r, err := New(Spec{Boards: []BoardSpec{{Serial: "A", Broken: true}, {Serial: "S", Stuck: true}}})
	if err != nil {
		t.Fatal(err)
	}
	tc := newToolchain(r)
	image := filepath.Join(t.TempDir(), "fw.hex")
	os.WriteFile(image, []byte("firmware"), 0o644)

	broken := device.NewBoard("A")
	broken.SetPorts("/dev/simACM0", "/dev/simACM1")
	_, err = tc.Flash(context.Background(), broken, image)
	var flashErr *toolchain.FlashError
	if !errors.As(err, &flashErr) {
		t.Errorf("broken board: error = %v, want FlashError", err)
	}

	stuck := device.NewBoard("S")
	stuck.SetPorts("/dev/simACM2", "/dev/simACM3")
	_, err = tc.Flash(context.Background(), stuck, image)
	var fwErr *toolchain.FirmwareError
	if !errors.As(err, &fwErr) {
		t.Errorf("stuck board: error = %v, want FirmwareError", err)
	}

	gone := device.NewBoard("X")
	gone.SetPorts("/dev/simACM9", "/dev/simACM10")
	if err := tc.Identify(context.Background(), gone); err == nil {
		t.Error("Identify() on a missing board succeeded")
	}
}

func TestDriverIdentificationSignal(t *testing.T) {
	r := loadRig(t)
	dir := t.TempDir()
	WriteIdentifierTemplate(dir)
	if err := newToolchain(r).ProgramIdentifier(context.Background(), dir, simBoardA(r), 0xFE0A0B0C); err != nil {
		t.Fatal(err)
	}

	reader := instrument.NewReader(r.Driver(), instrument.NewLockSet(), device.NewInstrument("I"), nil)
	reader.PollInterval = time.Microsecond
	if err := reader.Read(context.Background(), IdentifierBaud, 3, 500); err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	f, n, err := discovery.DecodeFrames(reader.ChannelData(7), 0xFE)
	if err != nil {
		t.Fatalf("DecodeFrames() error = %v", err)
	}
	if f.DeviceID != 0xFE0A0B0C || f.Port != 6 || f.Pin != 0 || n < 2 {
		t.Errorf("frame = %+v x%d", f, n)
	}
	for ch := 0; ch < instrument.DigitalChannels; ch++ {
		if ch != 7 && len(reader.ChannelData(ch)) != 0 {
			t.Errorf("channel %d carries %x", ch, reader.ChannelData(ch))
		}
	}
}

func TestDriverFaultyInstrument(t *testing.T) {
	r, _ := New(Spec{Instruments: []InstrumentSpec{{Serial: "I", Faulty: true}}})
	serials, _ := r.Driver().Enumerate(context.Background())
	if len(serials) != 1 || serials[0] != "I" {
		t.Errorf("Enumerate() = %v", serials)
	}
	if _, st := r.Driver().Open("I"); st != instrument.StatusNotResponding {
		t.Errorf("Open(faulty) = %v", st)
	}
	if _, st := r.Driver().Open("nope"); st != instrument.StatusNotFound {
		t.Errorf("Open(unknown) = %v", st)
	}
}

func flashTestFirmware(t *testing.T, tc *toolchain.Toolchain, b *device.Board) {
	t.Helper()
	image := filepath.Join(t.TempDir(), "test.hex")
	os.WriteFile(image, []byte("firmware"), 0o644)
	if _, err := tc.Flash(context.Background(), b, image); err != nil {
		t.Fatal(err)
	}
}

func TestDriverTimingPulse(t *testing.T) {
	r := loadRig(t)
	tc := newToolchain(r)
	b := simBoardA(r)
	flashTestFirmware(t, tc, b)
	if err := tc.PowerDown(context.Background(), b); err != nil {
		t.Fatal(err)
	}

	m := instrument.NewMeasurer(r.Driver(), instrument.NewLockSet(), device.NewInstrument("I"), 7, nil)
	m.PollInterval = time.Microsecond
	m.BufferLen = 1 << 18
	us, err := m.Measure(context.Background(), func(ctx context.Context) error {
		return tc.PowerUp(ctx, b)
	})
	if err != nil {
		t.Fatalf("Measure() error = %v", err)
	}
	if us != 125.5 {
		t.Errorf("Measure() = %v us, want 125.5", us)
	}
}

func TestDriverTimingWithoutPower(t *testing.T) {
	r := loadRig(t)
	tc := newToolchain(r)
	b := simBoardA(r)
	flashTestFirmware(t, tc, b)
	tc.PowerDown(context.Background(), b)

	m := instrument.NewMeasurer(r.Driver(), instrument.NewLockSet(), device.NewInstrument("I"), 7, nil)
	m.PollInterval = time.Microsecond
	m.BufferLen = 1 << 17
	if _, err := m.Measure(context.Background(), nil); !errors.Is(err, instrument.ErrTimeout) {
		t.Errorf("Measure() error = %v, want ErrTimeout", err)
	}
}

func TestOpenSerialEmitsOutputAfterFlash(t *testing.T) {
	r := loadRig(t)
	tc := newToolchain(r)
	b := simBoardA(r)

	mon := board.NewMonitor(r.OpenSerial)
	if err := mon.Connect("/dev/simACM1", 9600); err != nil {
		t.Fatal(err)
	}
	defer mon.Disconnect()
	flashTestFirmware(t, tc, b)

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(mon.Output(), "hello from A") {
		if time.Now().After(deadline) {
			t.Fatalf("Output() = %q", mon.Output())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := r.OpenSerial("/dev/simACM0", nil); err == nil {
		t.Error("OpenSerial(debug port) succeeded")
	}
}

type memRegistry struct {
	boards map[string]*device.Board
}

func newMemRegistry() *memRegistry {
	return &memRegistry{boards: make(map[string]*device.Board)}
}

func (m *memRegistry) GetOrCreateBoard(_ context.Context, sn string) (*device.Board, bool, error) {
	if b, ok := m.boards[sn]; ok {
		return b, false, nil
	}
	b := device.NewBoard(sn)
	m.boards[sn] = b
	return b, true, nil
}

func (m *memRegistry) SaveBoard(context.Context, *device.Board) error { return nil }

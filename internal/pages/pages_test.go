package pages

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/eas-attest/attest/internal/app"
	"github.com/eas-attest/attest/internal/device"
	"github.com/eas-attest/attest/internal/jobs"
	"github.com/eas-attest/attest/internal/sched"
	"github.com/eas-attest/attest/internal/testunit"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func tickMsg() app.TickMsg { return app.TickMsg(time.Now()) }

func TestResultsPageNavigation(t *testing.T) {
	results := []jobs.Result{
		{Job: "hello", Kind: jobs.KindCompare, Unit: "A", Passed: true, Output: "hello from A"},
		{Job: "latency", Kind: jobs.KindTiming, Unit: "A", Value: 125.5, Error: "too slow"},
		{Job: "boot", Kind: jobs.KindCompare, Unit: "B", Passed: true},
	}
	var visible []jobs.Result
	p := NewResultsPage(func() []jobs.Result { return visible })
	p.SetSize(80, 24)

	if _, ok := p.Selected(); ok {
		t.Fatal("Selected() on empty page succeeded")
	}
	if !strings.Contains(p.View(), "No results") {
		t.Error("empty view lacks placeholder")
	}

	visible = results
	p.Update(tickMsg())
	p.Update(keyMsg("down"))
	if r, _ := p.Selected(); r.Job != "latency" {
		t.Fatalf("Selected() = %q, want latency", r.Job)
	}
	if !strings.Contains(p.View(), "125.5 µs") {
		t.Error("view lacks timing value")
	}

	p.Update(keyMsg("enter"))
	if !strings.Contains(p.View(), "too slow") {
		t.Error("detail view lacks error")
	}
	if len(p.ShortHelp()) != 1 {
		t.Errorf("detail help has %d keys, want 1", len(p.ShortHelp()))
	}
	p.Update(keyMsg("esc"))

	p.Update(keyMsg("f"))
	if r, ok := p.Selected(); !ok || r.Job != "latency" {
		t.Errorf("failed filter selected %q", r.Job)
	}
	if strings.Contains(p.View(), "hello") {
		t.Error("failed filter shows passed job")
	}

	p.Update(keyMsg("j"))
	if r, _ := p.Selected(); r.Job != "latency" {
		t.Errorf("cursor moved past the end to %q", r.Job)
	}
}

func TestQueuePageShowsTasks(t *testing.T) {
	s := sched.New()
	p := NewQueuePage(s)
	p.SetSize(80, 24)
	if !strings.Contains(p.View(), "Queue is empty") {
		t.Error("empty queue view lacks placeholder")
	}

	u := testunit.New(device.NewBoard("A"), nil, nil, nil, nil)
	bound := sched.NewTask("bound", nil)
	bound.Unit = u
	tagged := sched.NewTask("tagged", nil)
	tagged.Tag = testunit.TagScope
	tagged.Priority = 9
	s.Schedule(bound)
	s.Schedule(tagged)

	p.Update(tickMsg())
	view := p.View()
	for _, want := range []string{"Queue (2)", "bound", "unit A", "tagged", "tag scope"} {
		if !strings.Contains(view, want) {
			t.Errorf("view lacks %q", want)
		}
	}
	if strings.Index(view, "tagged") > strings.Index(view, "bound") {
		t.Error("queue not shown in dispatch order")
	}
}

func TestQueuePageRefreshDuringPriorityReset(t *testing.T) {
	s := sched.New()
	for i := 0; i < 10; i++ {
		tk := sched.NewTask("job", nil)
		tk.Priority = i
		s.Schedule(tk)
	}
	p := NewQueuePage(s)
	p.SetSize(80, 24)

	stop := make(chan struct{})
	resetDone := make(chan struct{})
	go func() {
		defer close(resetDone)
		for {
			select {
			case <-stop:
				return
			default:
				s.ResetPriorities(5)
			}
		}
	}()
	for i := 0; i < 100; i++ {
		p.Update(tickMsg())
	}
	close(stop)
	<-resetDone

	p.Update(tickMsg())
	if !strings.Contains(p.View(), "Queue (10)") {
		t.Error("view lacks queue length")
	}
}

func TestWorkersPageShowsUnits(t *testing.T) {
	b := device.NewBoard("A")
	b.Name = "left"
	u := testunit.New(b, device.NewInstrument("I1"), nil, nil, nil)
	w := sched.NewWorker(u, sched.New(), nil)

	p := NewWorkersPage([]*sched.Worker{w})
	p.SetSize(80, 24)
	view := p.View()
	for _, want := range []string{"left", "I1", "scope", "starting"} {
		if !strings.Contains(view, want) {
			t.Errorf("view lacks %q", want)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if st, _, _ := w.State(); st == sched.StateIdle {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("worker never became idle")
		}
		time.Sleep(5 * time.Millisecond)
	}
	p.Update(tickMsg())
	if !strings.Contains(p.View(), "idle") {
		t.Error("view lacks idle state")
	}
}

func TestDevicesPageShowsDefectiveBoards(t *testing.T) {
	b := device.NewBoard("A")
	b.SetPorts("/dev/ttyACM0", "/dev/ttyACM1")
	p := NewDevicesPage([]*device.Board{b}, nil, nil)
	p.SetSize(80, 24)
	if strings.Contains(p.View(), "defective") {
		t.Fatal("healthy board shown defective")
	}

	b.SetDefective(true)
	b.IncrementFlashCounter()
	p.Update(tickMsg())
	view := p.View()
	for _, want := range []string{"defective", "flashes: 1", "/dev/ttyACM1"} {
		if !strings.Contains(view, want) {
			t.Errorf("view lacks %q", want)
		}
	}
}

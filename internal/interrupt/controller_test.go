package interrupt

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/kairyou/jenkins-cli/internal/jenkins"
	"github.com/kairyou/jenkins-cli/internal/output"
	"github.com/kairyou/jenkins-cli/internal/prompt"
	"github.com/kairyou/jenkins-cli/internal/terminal"
)

func testController(input string) (*Controller, *bytes.Buffer, chan int) {
	var buf bytes.Buffer
	out := output.NewWriter(&buf, &buf, &terminal.Info{})
	p := prompt.NewWithReader(out, strings.NewReader(input))
	c := NewController(out, p, slog.New(slog.DiscardHandler))
	exited := make(chan int, 1)
	c.exit = func(code int) { exited <- code }
	return c, &buf, exited
}

func TestShouldForceExit(t *testing.T) {
	c, _, _ := testController("")
	if c.ShouldForceExit(800 * time.Millisecond) {
		t.Error("first interrupt reported as double-press")
	}
	if !c.ShouldForceExit(800 * time.Millisecond) {
		t.Error("immediate second interrupt not reported as double-press")
	}
}

func TestShouldForceExitOutsideWindow(t *testing.T) {
	c, _, _ := testController("")
	c.ShouldForceExit(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if c.ShouldForceExit(time.Millisecond) {
		t.Error("interrupt outside the window reported as double-press")
	}
}

func TestFinishPollingOnlyResetsPolling(t *testing.T) {
	c, _, _ := testController("")

	c.SetPhase(PhasePolling)
	c.FinishPolling()
	if got := c.Phase(); got != PhaseIdle {
		t.Errorf("Phase() = %v, want PhaseIdle", got)
	}

	c.SetPhase(PhaseCancelling)
	c.FinishPolling()
	if got := c.Phase(); got != PhaseCancelling {
		t.Errorf("Phase() = %v, want PhaseCancelling untouched", got)
	}
}

func TestInterruptDuringCancellingForcesExit(t *testing.T) {
	c, buf, exited := testController("")
	c.SetPhase(PhaseCancelling)

	interrupts := make(chan struct{}, 1)
	interrupts <- struct{}{}
	close(interrupts)
	go c.Run(interrupts)

	select {
	case code := <-exited:
		if code != 1 {
			t.Errorf("exit code = %d, want 1", code)
		}
	case <-time.After(time.Second):
		t.Fatal("controller did not force exit")
	}
	if !strings.Contains(buf.String(), "exiting immediately") {
		t.Errorf("output missing force-exit message: %q", buf.String())
	}
}

func TestPollingInterruptDeclinedResumes(t *testing.T) {
	c, _, exited := testController("n\n")
	c.SetPhase(PhasePolling)

	fake := &fakeBuildControl{statuses: []jenkins.BuildStatus{{}}}
	events := make(chan jenkins.Event, 4)
	c.SetContext(fake, events, nil)

	interrupts := make(chan struct{}, 1)
	interrupts <- struct{}{}
	close(interrupts)
	c.Run(interrupts)

	select {
	case code := <-exited:
		t.Fatalf("controller exited with %d after a declined cancel", code)
	default:
	}

	var got []jenkins.Event
	for len(events) > 0 {
		got = append(got, <-events)
	}
	want := []jenkins.Event{jenkins.StopSpinner, jenkins.ResumeSpinner}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	if got := c.Phase(); got != PhasePolling {
		t.Errorf("Phase() = %v, want PhasePolling after resume", got)
	}
}

func TestPollingInterruptConfirmedCancels(t *testing.T) {
	c, buf, exited := testController("y\n")
	c.SetPhase(PhasePolling)

	id := int64(5)
	fake := &fakeBuildControl{
		statuses: []jenkins.BuildStatus{
			{Building: true, ID: &id},
			{Building: false, ID: &id},
		},
	}
	events := make(chan jenkins.Event, 4)
	c.SetContext(fake, events, nil)

	interrupts := make(chan struct{}, 1)
	interrupts <- struct{}{}
	go func() {
		// Keep the channel open so Run stays in the cancel select.
		time.Sleep(5 * time.Second)
		close(interrupts)
	}()
	go c.Run(interrupts)

	select {
	case code := <-exited:
		if code != 0 {
			t.Errorf("exit code = %d, want 0", code)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("cancel flow did not finish")
	}

	if fake.stops != 1 {
		t.Errorf("stop requests = %d, want 1", fake.stops)
	}
	if !strings.Contains(buf.String(), "Build cancelled") {
		t.Errorf("output missing cancelled message: %q", buf.String())
	}

	select {
	case <-c.WaitForCancel():
	default:
		t.Error("WaitForCancel() channel not closed after the cancel flow")
	}
}

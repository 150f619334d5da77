package interrupt

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/kairyou/jenkins-cli/internal/jenkins"
	"github.com/kairyou/jenkins-cli/internal/output"
	"github.com/kairyou/jenkins-cli/internal/terminal"
)

type fakeBuildControl struct {
	statuses []jenkins.BuildStatus
	errs     []error
	calls    int
	stops    int
	stopErr  error
}

func (f *fakeBuildControl) IsBuilding(ctx context.Context) (jenkins.BuildStatus, error) {
	i := f.calls
	f.calls++
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.statuses[i], err
}

func (f *fakeBuildControl) CancelBuild(ctx context.Context, number *int64) error {
	f.stops++
	return f.stopErr
}

func testWriter() *output.Writer {
	var buf bytes.Buffer
	return output.NewWriter(&buf, &buf, &terminal.Info{})
}

func fastCanceller(client BuildControl) *Canceller {
	c := NewCanceller(client, testWriter(), slog.New(slog.DiscardHandler))
	c.MaxWait = time.Second
	c.RetryDelay = time.Millisecond
	c.VerifyDelay = time.Millisecond
	c.RequestTimeout = 100 * time.Millisecond
	return c
}

func int64p(v int64) *int64 { return &v }

func TestCancelRunningBuild(t *testing.T) {
	id := int64p(42)
	fake := &fakeBuildControl{
		statuses: []jenkins.BuildStatus{
			{Building: true, ID: id},
			{Building: true, ID: id},
			{Building: false, ID: id},
		},
	}

	outcome := fastCanceller(fake).Run(context.Background())

	if outcome != OutcomeCancelled {
		t.Fatalf("outcome = %v, want OutcomeCancelled", outcome)
	}
	if fake.stops != 1 {
		t.Errorf("stop requests = %d, want exactly 1", fake.stops)
	}
}

func TestCancelAlreadyCompleted(t *testing.T) {
	id := int64p(7)
	fake := &fakeBuildControl{
		statuses: []jenkins.BuildStatus{
			{Building: false, ID: id},
		},
	}

	outcome := fastCanceller(fake).Run(context.Background())

	if outcome != OutcomeAlreadyCompleted {
		t.Fatalf("outcome = %v, want OutcomeAlreadyCompleted", outcome)
	}
	if fake.stops != 0 {
		t.Errorf("stop requests = %d, want 0", fake.stops)
	}
	if fake.calls < 3 {
		t.Errorf("status queries = %d, want at least 3 stable observations", fake.calls)
	}
}

func TestCancelWaitsOutQueuedBuild(t *testing.T) {
	id := int64p(9)
	fake := &fakeBuildControl{
		statuses: []jenkins.BuildStatus{
			{Building: false, InQueue: true},
			{Building: false, InQueue: true},
			{Building: true, ID: id},
			{Building: false, ID: id},
		},
	}

	outcome := fastCanceller(fake).Run(context.Background())

	if outcome != OutcomeCancelled {
		t.Fatalf("outcome = %v, want OutcomeCancelled", outcome)
	}
	if fake.stops != 1 {
		t.Errorf("stop requests = %d, want 1", fake.stops)
	}
}

func TestCancelFailsAfterExhaustedQueries(t *testing.T) {
	errs := make([]error, 12)
	statuses := make([]jenkins.BuildStatus, 12)
	for i := range errs {
		errs[i] = errors.New("boom")
	}
	fake := &fakeBuildControl{statuses: statuses, errs: errs}

	outcome := fastCanceller(fake).Run(context.Background())

	if outcome != OutcomeFailed {
		t.Fatalf("outcome = %v, want OutcomeFailed", outcome)
	}
}

func TestCancelFailsWhenStopErrors(t *testing.T) {
	fake := &fakeBuildControl{
		statuses: []jenkins.BuildStatus{{Building: true, ID: int64p(1)}},
		stopErr:  errors.New("stop refused"),
	}

	outcome := fastCanceller(fake).Run(context.Background())

	if outcome != OutcomeFailed {
		t.Fatalf("outcome = %v, want OutcomeFailed", outcome)
	}
}

func TestCancelReissuesStopForStubbornBuild(t *testing.T) {
	id := int64p(3)
	fake := &fakeBuildControl{
		statuses: []jenkins.BuildStatus{
			{Building: true, ID: id},
			{Building: true, ID: id},
			{Building: true, ID: id},
			{Building: false, ID: id},
		},
	}

	outcome := fastCanceller(fake).Run(context.Background())

	if outcome != OutcomeCancelled {
		t.Fatalf("outcome = %v, want OutcomeCancelled", outcome)
	}
	if fake.stops != 2 {
		t.Errorf("stop requests = %d, want 2 (initial + one verify retry)", fake.stops)
	}
}

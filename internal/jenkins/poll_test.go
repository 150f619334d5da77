package jenkins

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestPollQueueItemWaitsForExecutable(t *testing.T) {
	var mu sync.Mutex
	polls := 0

	client, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		polls++
		n := polls
		mu.Unlock()
		if n < 3 {
			w.Write([]byte(`{"why":"Waiting for next available executor"}`))
			return
		}
		w.Write([]byte(`{"executable":{"number":17}}`))
	}))
	client.SetJobURL("http://jenkins.example/job/app")

	buildURL, err := client.PollQueueItem(context.Background(), srv.URL+"/queue/item/5", nil, nil)
	if err != nil {
		t.Fatalf("PollQueueItem() error = %v", err)
	}
	if buildURL != "http://jenkins.example/job/app/17" {
		t.Errorf("buildURL = %q", buildURL)
	}
}

func TestPollQueueItemCancelled(t *testing.T) {
	client, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))

	events := make(chan Event, 1)
	events <- CancelPolling

	_, err := client.PollQueueItem(context.Background(), srv.URL+"/queue/item/5", events, nil)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("error = %v, want ErrCancelled", err)
	}
}

func TestPollBuildStatusStreamsLogAndSucceeds(t *testing.T) {
	var mu sync.Mutex
	statusPolls := 0
	var starts []string
	logChunks := []string{"line one\n", "line two\n"}

	client, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/api/json"):
			mu.Lock()
			statusPolls++
			n := statusPolls
			mu.Unlock()
			if n == 1 {
				w.Write([]byte(`{"number":17,"building":true}`))
			} else {
				w.Write([]byte(`{"number":17,"building":false,"result":"SUCCESS"}`))
			}
		case strings.HasSuffix(r.URL.Path, "/logText/progressiveText"):
			mu.Lock()
			start := r.URL.Query().Get("start")
			starts = append(starts, start)
			n := len(starts)
			mu.Unlock()
			if n <= len(logChunks) {
				chunk := logChunks[n-1]
				offset := 0
				fmt.Sscanf(start, "%d", &offset)
				w.Header().Set("X-Text-Size", fmt.Sprint(offset+len(chunk)))
				w.Write([]byte(chunk))
			} else {
				w.Header().Set("X-Text-Size", start)
			}
		default:
			http.NotFound(w, r)
		}
	}))

	var logBuf bytes.Buffer
	err := client.PollBuildStatus(context.Background(), srv.URL+"/job/app/17", nil, nil, &logBuf)
	if err != nil {
		t.Fatalf("PollBuildStatus() error = %v", err)
	}

	if got := logBuf.String(); got != "line one\nline two\n" {
		t.Errorf("streamed log = %q", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(starts) < 2 {
		t.Fatalf("log fetches = %d, want at least 2", len(starts))
	}
	if starts[0] != "0" {
		t.Errorf("first log offset = %s, want 0", starts[0])
	}
	if starts[1] != fmt.Sprint(len(logChunks[0])) {
		t.Errorf("second log offset = %s, want %d", starts[1], len(logChunks[0]))
	}
}

func TestPollBuildStatusFailureResult(t *testing.T) {
	client, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/api/json") {
			w.Write([]byte(`{"number":3,"building":false,"result":"FAILURE"}`))
			return
		}
		w.Header().Set("X-Text-Size", "0")
	}))

	var logBuf bytes.Buffer
	err := client.PollBuildStatus(context.Background(), srv.URL+"/job/app/3", nil, nil, &logBuf)

	var resultErr *BuildResultError
	if !errors.As(err, &resultErr) {
		t.Fatalf("error = %v, want BuildResultError", err)
	}
	if resultErr.Result != "FAILURE" {
		t.Errorf("Result = %q, want FAILURE", resultErr.Result)
	}
}

func TestPollBuildStatusLogErrorIsNotFatal(t *testing.T) {
	client, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/api/json") {
			w.Write([]byte(`{"number":3,"building":false,"result":"SUCCESS"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	var logBuf bytes.Buffer
	err := client.PollBuildStatus(context.Background(), srv.URL+"/job/app/3", nil, nil, &logBuf)
	if err != nil {
		t.Fatalf("PollBuildStatus() error = %v, want nil despite log failure", err)
	}
	if !strings.Contains(logBuf.String(), "failed to retrieve console log") {
		t.Errorf("log output = %q, want inline log failure notice", logBuf.String())
	}
}

func TestPollBuildStatusCancelled(t *testing.T) {
	client, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"number":3,"building":true}`))
	}))

	events := make(chan Event)
	go func() {
		time.Sleep(10 * time.Millisecond)
		events <- CancelPolling
	}()

	var logBuf bytes.Buffer
	err := client.PollBuildStatus(context.Background(), srv.URL+"/job/app/3", events, nil, &logBuf)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("error = %v, want ErrCancelled", err)
	}
}

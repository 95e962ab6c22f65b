package influxdb

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	influxhttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

func TestSessionStatePoint_Levels(t *testing.T) {
	at := time.Unix(1700000000, 0)

	tests := []struct {
		state string
		level string
	}{
		{"idle", "level=0i"},
		{"disconnected", "level=1i"},
		{"connected", "level=2i"},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			line := write.PointToLineProtocol(sessionStatePoint("t1", tt.state, at), time.Second)
			if !strings.HasPrefix(line, "session_state,state="+tt.state+",tenant_id=t1 ") {
				t.Errorf("line = %q", line)
			}
			if !strings.Contains(line, tt.level) {
				t.Errorf("line = %q, want %s", line, tt.level)
			}
		})
	}
}

func TestDispatchPoint(t *testing.T) {
	at := time.Unix(1700000000, 0)
	line := write.PointToLineProtocol(dispatchPoint("t1", "media", "recipient_not_found", 1500*time.Millisecond, at), time.Second)

	want := "message_dispatch,kind=media,outcome=recipient_not_found,tenant_id=t1 duration_ms=1500i 1700000000"
	if strings.TrimSpace(line) != want {
		t.Errorf("line = %q, want %q", line, want)
	}
}

// ─── Failed batches ────────────────────────────────────────────────

func TestBatchPoints(t *testing.T) {
	at := time.Unix(1700000000, 0)
	batch := write.PointToLineProtocol(sessionStatePoint("t1", "connected", at), time.Second) +
		write.PointToLineProtocol(dispatchPoint("t1", "text", "sent", time.Millisecond, at), time.Second) +
		write.PointToLineProtocol(dispatchPoint("t2", "media", "sent", time.Millisecond, at), time.Second) +
		"temp_cleanup removed=3i 1700000000\n\n"

	got := batchPoints(batch)
	want := map[string]int{MeasurementSessionState: 1, MeasurementDispatch: 2, MeasurementCleanup: 1}
	if len(got) != len(want) {
		t.Fatalf("batchPoints() = %v, want %v", got, want)
	}
	for m, n := range want {
		if got[m] != n {
			t.Errorf("batchPoints()[%s] = %d, want %d", m, got[m], n)
		}
	}
}

func TestRetryBatch_BudgetByMeasurement(t *testing.T) {
	state := "session_state,state=connected,tenant_id=t1 level=2i 1700000000\n"
	dispatch := "message_dispatch,kind=text,outcome=sent,tenant_id=t1 duration_ms=4i 1700000000\n"

	tests := []struct {
		name      string
		batch     string
		attempt   uint
		wantRetry bool
	}{
		{"state first failure", state, 0, true},
		{"state within budget", state, sessionStateRetries - 1, true},
		{"state out of retries", state, sessionStateRetries, false},
		{"mixed batch keeps state budget", dispatch + state, 3, true},
		{"dispatch first failure", dispatch, 0, true},
		{"dispatch out of retries", dispatch, telemetryRetries, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				mu       sync.Mutex
				reported []error
			)
			c := &Client{}
			c.SetOnError(func(err error) {
				mu.Lock()
				reported = append(reported, err)
				mu.Unlock()
			})

			herr := influxhttp.Error{StatusCode: 503, Message: "unavailable"}
			if got := c.retryBatch(tt.batch, herr, tt.attempt); got != tt.wantRetry {
				t.Errorf("retryBatch() = %v, want %v", got, tt.wantRetry)
			}

			if len(reported) != 1 {
				t.Fatalf("reported %d errors, want 1", len(reported))
			}
			var werr *WriteError
			if !errors.As(reported[0], &werr) {
				t.Fatalf("reported %T, want *WriteError", reported[0])
			}
			if !errors.Is(werr, ErrWriteFailed) {
				t.Error("WriteError does not wrap ErrWriteFailed")
			}
			if werr.StatusCode != 503 || werr.Attempt != tt.attempt || werr.Retrying != tt.wantRetry {
				t.Errorf("WriteError = %+v", werr)
			}
			if !strings.Contains(werr.Error(), "message_dispatch") && !strings.Contains(werr.Error(), "session_state") {
				t.Errorf("Error() = %q, want measurement names", werr.Error())
			}
		})
	}
}

func TestRetryBatch_NoCallback(t *testing.T) {
	c := &Client{}
	if !c.retryBatch("session_state level=0i 1\n", influxhttp.Error{StatusCode: 500}, 0) {
		t.Error("retryBatch() without callback dropped a state batch on first failure")
	}
}

package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSessionState = "session_state"
	MeasurementDispatch     = "message_dispatch"
	MeasurementCleanup      = "temp_cleanup"
)

// sessionStateLevel maps lifecycle states onto a numeric field so that
// dashboards can graph connectivity over time.
var sessionStateLevel = map[string]int64{
	"idle":         0,
	"disconnected": 1,
	"connected":    2,
}

// WriteSessionState records a lifecycle transition for a tenant.
//
// Example:
//
//	client.WriteSessionState("tenant-1", "connected")
func (c *Client) WriteSessionState(tenantID, state string) {
	c.writePoint(sessionStatePoint(tenantID, state, time.Now()))
}

// WriteDispatch records the outcome of one outbound message.
//
// Parameters:
//   - tenantID: Sending tenant
//   - kind: "text" or "media"
//   - outcome: "sent" or an error code such as "recipient_not_found"
//   - elapsed: Time spent in the dispatcher
func (c *Client) WriteDispatch(tenantID, kind, outcome string, elapsed time.Duration) {
	c.writePoint(dispatchPoint(tenantID, kind, outcome, elapsed, time.Now()))
}

// WriteCleanup records one temp-file purge pass.
func (c *Client) WriteCleanup(scope string, removed int) {
	c.writePoint(write.NewPoint(
		MeasurementCleanup,
		map[string]string{"scope": scope},
		map[string]interface{}{"removed": removed},
		time.Now(),
	))
}

// writePoint queues p unless the client is closed.
func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func sessionStatePoint(tenantID, state string, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementSessionState,
		map[string]string{
			"tenant_id": tenantID,
			"state":     state,
		},
		map[string]interface{}{
			"level": sessionStateLevel[state],
		},
		at,
	)
}

func dispatchPoint(tenantID, kind, outcome string, elapsed time.Duration, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementDispatch,
		map[string]string{
			"tenant_id": tenantID,
			"kind":      kind,
			"outcome":   outcome,
		},
		map[string]interface{}{
			"duration_ms": elapsed.Milliseconds(),
		},
		at,
	)
}

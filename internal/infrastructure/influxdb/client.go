package influxdb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	influxhttp "github.com/influxdata/influxdb-client-go/v2/api/http"

	"github.com/nerrad567/wa-gateway/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second

	// Retries granted to a failed batch, counted after the first write.
	// Session state drives the availability graphs, so it gets the larger
	// budget; per-message telemetry is cheap to lose.
	sessionStateRetries = 5
	telemetryRetries    = 1
)

// Client writes gateway telemetry (session transitions, dispatch
// outcomes and purge passes) to InfluxDB v2 as batched points.
//
// Writes never block the caller. Failed batches are reported through
// SetOnError as *WriteError.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	connected bool
	mu        sync.RWMutex
	onError   func(err error)
}

// Connect pings the server, then opens a batching write API on the
// configured org and bucket.
//
// Parameters:
//   - ctx: Bounds the startup ping together with defaultConnectTimeout
//   - cfg: InfluxDB configuration; non-positive batch settings fall back
//     to 100 points / 10s
//
// Returns:
//   - *Client: ready for writes
//   - error: ErrDisabled, or a wrapped ErrConnectionFailed
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batchSize = uint(cfg.BatchSize) // #nosec G115 -- checked positive
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(uint(flush.Milliseconds())), // #nosec G115 -- positive duration
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	if err := ping(pingCtx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		connected: true,
	}
	c.writeAPI.SetWriteFailedCallback(c.retryBatch)
	go c.forwardWriteErrors(c.writeAPI.Errors())

	return c, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if !healthy {
		return errors.New("server not healthy")
	}
	return nil
}

// retryBatch is the write API's failure callback for retryable errors
// (connection failures and HTTP 429/5xx). It reports the failure and
// decides whether the batch is kept for another attempt.
func (c *Client) retryBatch(batch string, herr influxhttp.Error, attempt uint) bool {
	points := batchPoints(batch)
	werr := &WriteError{
		Points:     points,
		StatusCode: herr.StatusCode,
		Attempt:    attempt,
		Retrying:   attempt < retryBudget(points),
		Err:        &herr,
	}
	c.report(werr)
	return werr.Retrying
}

// forwardWriteErrors reports batches that failed for good: rejected
// outright (HTTP 4xx) or out of retries. The write API does not say which
// batch these belong to.
func (c *Client) forwardWriteErrors(errs <-chan error) {
	for err := range errs {
		c.report(fmt.Errorf("%w: %w", ErrWriteFailed, err))
	}
}

func (c *Client) report(err error) {
	c.mu.RLock()
	callback := c.onError
	c.mu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// retryBudget returns how many retries a batch holding points is granted.
func retryBudget(points map[string]int) uint {
	if points[MeasurementSessionState] > 0 {
		return sessionStateRetries
	}
	return telemetryRetries
}

// batchPoints counts the points per measurement in a line protocol batch.
// The gateway's measurement names carry no escaped characters, so the
// name ends at the first comma or space.
func batchPoints(batch string) map[string]int {
	points := make(map[string]int)
	for _, line := range strings.Split(batch, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name := line
		if i := strings.IndexAny(line, ", "); i >= 0 {
			name = line[:i]
		}
		points[name]++
	}
	return points
}

// Close flushes buffered points and releases the client. Later writes
// are dropped.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// HealthCheck pings the server. It returns ErrNotConnected after Close.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := ping(checkCtx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is still open.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError sets the callback for failed batches. Retryable failures
// arrive as *WriteError; final ones wrap ErrWriteFailed.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// Flush sends buffered points now. It is a no-op after Close.
func (c *Client) Flush() {
	if c.writeAPI == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

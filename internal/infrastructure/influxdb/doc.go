// Package influxdb provides InfluxDB connectivity for gateway telemetry.
//
// It wraps the official influxdb-client-go v2 library and writes:
//   - session_state: one point per lifecycle transition, tagged by tenant
//   - message_dispatch: one point per send attempt with its outcome
//   - temp_cleanup: files removed by each purge pass
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSessionState("tenant-1", "connected")
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Batch failures are reported through SetOnError; a batch
// holding session_state points is retried up to five times, other
// telemetry once.
package influxdb

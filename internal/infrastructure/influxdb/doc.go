// Package influxdb provides InfluxDB connectivity for Haven Core.
//
// It wraps the official influxdb-client-go v2 library with Haven-specific
// patterns for connection management, sensor writes, latest-reading
// queries, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Device telemetry and sensor readings
//   - Latest-value lookups used by rule condition evaluation
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "haven",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Write a sensor reading
//	client.WriteSensorReading("thermostat-01", "temperature", 21.5)
//
//	// Fetch the latest reading for evaluation
//	val, err := client.LatestSensorValue(ctx, "thermostat-01", "temperature", time.Hour)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Query, connection, and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb

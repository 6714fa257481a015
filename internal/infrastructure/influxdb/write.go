package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSensorReading writes a single sensor measurement to InfluxDB.
//
// This is the primary method for recording device telemetry. The write
// is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Unique identifier for the device (e.g., "sensor-hall-01")
//   - sensorType: The reading type (e.g., "temperature", "humidity")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteSensorReading("thermostat-01", "temperature", 21.5)
//	client.WriteSensorReading("meter-kitchen", "power", 23.0)
func (c *Client) WriteSensorReading(deviceID string, sensorType string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_readings",
		map[string]string{
			"device_id":   deviceID,
			"sensor_type": sensorType,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSensorReadingAt writes a sensor measurement with an explicit timestamp.
//
// Use this when ingesting delayed telemetry where the reading time is
// carried in the payload rather than being "now".
func (c *Client) WriteSensorReadingAt(deviceID string, sensorType string, value float64, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_readings",
		map[string]string{
			"device_id":   deviceID,
			"sensor_type": sensorType,
		},
		map[string]interface{}{
			"value": value,
		},
		at,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}

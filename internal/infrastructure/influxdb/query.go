package influxdb

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SensorValue is the result of a latest-reading query.
type SensorValue struct {
	DeviceID   string
	SensorType string
	Value      float64
	Timestamp  time.Time
}

// LatestSensorValue returns the most recent reading for a device sensor.
//
// The window bounds how far back the query looks; a zero window searches
// the full bucket retention. Returns ErrNoReading when no point exists
// within the window.
func (c *Client) LatestSensorValue(ctx context.Context, deviceID string, sensorType string, window time.Duration) (*SensorValue, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	rangeStart := "0"
	if window > 0 {
		rangeStart = fmt.Sprintf("-%ds", int64(window.Seconds()))
	}

	query := fmt.Sprintf(`from(bucket: %q)
  |> range(start: %s)
  |> filter(fn: (r) => r._measurement == "sensor_readings")
  |> filter(fn: (r) => r.device_id == %q)
  |> filter(fn: (r) => r.sensor_type == %q)
  |> filter(fn: (r) => r._field == "value")
  |> last()`,
		c.cfg.Bucket, rangeStart, fluxEscape(deviceID), fluxEscape(sensorType))

	result, err := c.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer result.Close()

	for result.Next() {
		record := result.Record()
		value, ok := record.Value().(float64)
		if !ok {
			continue
		}
		return &SensorValue{
			DeviceID:   deviceID,
			SensorType: sensorType,
			Value:      value,
			Timestamp:  record.Time(),
		}, nil
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, result.Err())
	}

	return nil, ErrNoReading
}

// fluxEscape strips characters that would break out of a quoted Flux
// string literal. Device IDs and sensor types are caller-supplied.
func fluxEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, ``)
	s = strings.ReplaceAll(s, `"`, ``)
	return s
}

package sensor

import (
	"context"
	"errors"
	"time"

	"github.com/ewhitter/haven-core/internal/infrastructure/influxdb"
	"github.com/ewhitter/haven-core/internal/rules"
)

// InfluxStore adapts the InfluxDB client to the engine's SensorStore.
//
// "No usable reading" outcomes (empty query result, telemetry disabled)
// surface as a nil reading with no error, which the evaluator treats as
// "condition not met". Only genuine query failures propagate.
type InfluxStore struct {
	client *influxdb.Client
}

// NewInfluxStore creates a sensor store backed by InfluxDB.
func NewInfluxStore(client *influxdb.Client) *InfluxStore {
	return &InfluxStore{client: client}
}

// LatestReading returns the most recent reading of sensorType for the
// device, bounded by window when window > 0.
func (s *InfluxStore) LatestReading(ctx context.Context, deviceID, sensorType string, window time.Duration) (*rules.Reading, error) {
	value, err := s.client.LatestSensorValue(ctx, deviceID, sensorType, window)
	if err != nil {
		if errors.Is(err, influxdb.ErrNoReading) || errors.Is(err, influxdb.ErrDisabled) {
			return nil, nil
		}
		return nil, err
	}

	return &rules.Reading{
		DeviceID:   value.DeviceID,
		SensorType: value.SensorType,
		Value:      value.Value,
		Timestamp:  value.Timestamp,
	}, nil
}

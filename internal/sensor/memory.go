package sensor

import (
	"context"
	"sync"
	"time"

	"github.com/ewhitter/haven-core/internal/rules"
)

// MemoryStore is an in-process SensorStore holding only the latest
// reading per device and sensor type. It backs deployments that run
// without InfluxDB and keeps tests free of external services.
type MemoryStore struct {
	mu       sync.RWMutex
	readings map[string]rules.Reading

	// now is injectable for staleness tests.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory sensor store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		readings: make(map[string]rules.Reading),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Record stores a reading, replacing any previous one for the same
// device and sensor type.
func (s *MemoryStore) Record(reading rules.Reading) {
	if reading.Timestamp.IsZero() {
		reading.Timestamp = s.now()
	}

	s.mu.Lock()
	s.readings[reading.DeviceID+"/"+reading.SensorType] = reading
	s.mu.Unlock()
}

// WriteSensorReading records a reading stamped with the current time.
// It matches the telemetry writer signature of the InfluxDB client, so
// the ingest pipeline can target either store.
func (s *MemoryStore) WriteSensorReading(deviceID, sensorType string, value float64) {
	s.Record(rules.Reading{DeviceID: deviceID, SensorType: sensorType, Value: value})
}

// LatestReading returns the stored reading, or nil when none exists or
// the stored one is older than the window.
func (s *MemoryStore) LatestReading(_ context.Context, deviceID, sensorType string, window time.Duration) (*rules.Reading, error) {
	s.mu.RLock()
	reading, ok := s.readings[deviceID+"/"+sensorType]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if window > 0 && reading.Timestamp.Before(s.now().Add(-window)) {
		return nil, nil
	}
	out := reading
	return &out, nil
}

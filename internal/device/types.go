package device

import "time"

// Device represents a controllable or monitorable entity in the system.
// This matches the database schema in migrations/20260315_100000_initial_schema.up.sql.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	// Classification
	Type     DeviceType `json:"type"`
	Protocol Protocol   `json:"protocol"`

	// Properties holds the current property bag: live state values,
	// latest readings, and static attributes. Rule conditions resolve
	// dot-paths against this map.
	//
	// Examples:
	//   - Light: {"on": true, "level": 75}
	//   - Thermostat: {"temperature": 21.5, "setpoint": 22.0, "mode": "heat"}
	//   - Sensor: {"battery": 87, "motion": false}
	Properties Properties `json:"properties"`

	// Presence
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Properties holds device state and attributes as a JSON map.
type Properties map[string]any

// DeepCopy creates a complete independent copy of the Device.
// All map fields are cloned so modifications to the copy do not
// affect the original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields
	cpy.Properties = deepCopyMap(d.Properties)

	// Pointer fields (*time.Time) don't need deep copy because
	// time.Time is immutable in Go

	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, int, float64, etc.) are safe to copy by value
		return v
	}
}

// Protocol represents the communication protocol for a device.
type Protocol string

// Protocol constants.
const (
	ProtocolMQTT      Protocol = "mqtt"
	ProtocolZigbee    Protocol = "zigbee"
	ProtocolZWave     Protocol = "zwave"
	ProtocolHTTP      Protocol = "http"
	ProtocolModbusTCP Protocol = "modbus_tcp"
)

// AllProtocols returns all valid protocol values.
func AllProtocols() []Protocol {
	return []Protocol{
		ProtocolMQTT, ProtocolZigbee, ProtocolZWave, ProtocolHTTP, ProtocolModbusTCP,
	}
}

// DeviceType represents the specific kind of device.
type DeviceType string //nolint:revive // device.DeviceType is clearer than device.Type in calling code

// Actuator device types.
const (
	DeviceTypeLightSwitch DeviceType = "light_switch"
	DeviceTypeLightDimmer DeviceType = "light_dimmer"
	DeviceTypeSmartPlug   DeviceType = "smart_plug"
	DeviceTypeThermostat  DeviceType = "thermostat"
	DeviceTypeBlind       DeviceType = "blind"
	DeviceTypeDoorLock    DeviceType = "door_lock"
	DeviceTypeSiren       DeviceType = "siren"
)

// Sensor device types.
const (
	DeviceTypeTemperatureSensor DeviceType = "temperature_sensor"
	DeviceTypeHumiditySensor    DeviceType = "humidity_sensor"
	DeviceTypeMotionSensor      DeviceType = "motion_sensor"
	DeviceTypeDoorSensor        DeviceType = "door_sensor"
	DeviceTypeLeakSensor        DeviceType = "leak_sensor"
	DeviceTypeAirQualitySensor  DeviceType = "air_quality_sensor"
	DeviceTypeEnergyMeter       DeviceType = "energy_meter"
	DeviceTypeMultiSensor       DeviceType = "multi_sensor"
)

// Infrastructure device types.
const (
	DeviceTypeGateway DeviceType = "gateway"
	DeviceTypeCamera  DeviceType = "camera"
)

// AllDeviceTypes returns all valid device type values.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		// Actuators
		DeviceTypeLightSwitch, DeviceTypeLightDimmer, DeviceTypeSmartPlug,
		DeviceTypeThermostat, DeviceTypeBlind, DeviceTypeDoorLock, DeviceTypeSiren,
		// Sensors
		DeviceTypeTemperatureSensor, DeviceTypeHumiditySensor, DeviceTypeMotionSensor,
		DeviceTypeDoorSensor, DeviceTypeLeakSensor, DeviceTypeAirQualitySensor,
		DeviceTypeEnergyMeter, DeviceTypeMultiSensor,
		// Infrastructure
		DeviceTypeGateway, DeviceTypeCamera,
	}
}

package rules

import "time"

// Rule represents a named, prioritised automation unit: a trigger
// condition and an ordered action list, evaluated per device.
// This matches the database schema in migrations/20260315_100000_initial_schema.up.sql.
type Rule struct {
	// Identity
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Behaviour
	Type    RuleType `json:"rule_type"`
	Enabled bool     `json:"enabled"`

	// Schedule is a one-time trigger timestamp, only for schedule rules.
	// It is not a recurring cron expression.
	Schedule *time.Time `json:"schedule,omitempty"`

	// TargetDevices restricts the rule to specific device IDs.
	// Nil or empty means the rule applies to all devices.
	TargetDevices []string `json:"target_devices,omitempty"`

	// Conditions is a flat conjunction: every leaf must hold for the
	// rule to fire. Empty means "always true".
	Conditions []Condition `json:"conditions,omitempty"`

	// Actions is the ordered action list executed when the rule fires.
	// Must be non-empty; an empty list is a configuration error.
	Actions []Action `json:"actions"`

	// Priority orders evaluation among enabled rules; higher runs first.
	Priority int `json:"priority"`

	// LastTriggered is set after a schedule rule fires, for idempotence.
	// It is the only field the engine mutates.
	LastTriggered *time.Time `json:"last_triggered,omitempty"`

	// Display-only outcome of the last run; never used for scheduling.
	Status        string `json:"status,omitempty"`
	StatusMessage string `json:"status_message,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RuleType distinguishes condition-triggered rules from one-shot
// scheduled rules.
type RuleType string //nolint:revive // rules.RuleType is clearer than rules.Type in calling code

const (
	RuleTypeCondition RuleType = "condition"
	RuleTypeSchedule  RuleType = "schedule"
)

// AllRuleTypes returns all valid rule type values.
func AllRuleTypes() []RuleType {
	return []RuleType{RuleTypeCondition, RuleTypeSchedule}
}

// ConditionType identifies what a condition leaf reads.
type ConditionType string

const (
	ConditionTypeSensor         ConditionType = "sensor"
	ConditionTypeDeviceProperty ConditionType = "device_property"
)

// Operator is the comparison applied by a condition leaf.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
)

// AllOperators returns all valid operator values.
func AllOperators() []Operator {
	return []Operator{
		OperatorEquals, OperatorNotEquals, OperatorContains,
		OperatorGreaterThan, OperatorLessThan,
	}
}

// Condition is a single comparison against a device property or a
// sensor reading.
type Condition struct {
	Type ConditionType `json:"type"`

	// For sensor conditions
	SensorType string `json:"sensor_type,omitempty"`
	// TimeWindow bounds how stale the looked-up reading may be, in
	// minutes. Zero means no bound.
	TimeWindow int `json:"time_window,omitempty"`

	// For device_property conditions: a dot-path into the device's
	// property bag, e.g. "battery" or "climate.setpoint".
	Property string `json:"property,omitempty"`

	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// ActionType identifies what an action does when its rule fires.
type ActionType string

const (
	ActionControlDevice ActionType = "control_device"
	ActionSetStatus     ActionType = "set_status"
	ActionNotification  ActionType = "notification"
)

// AllActionTypes returns all valid action type values.
func AllActionTypes() []ActionType {
	return []ActionType{ActionControlDevice, ActionSetStatus, ActionNotification}
}

// Action is a single step in a rule's ordered action list.
type Action struct {
	Type ActionType `json:"type"`

	// control_device
	Action     string         `json:"action,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`

	// set_status
	IsOnline *bool `json:"is_online,omitempty"`

	// notification
	Title            string   `json:"title,omitempty"`
	Content          string   `json:"content,omitempty"`
	Recipients       []string `json:"recipients,omitempty"`
	Channels         []string `json:"channels,omitempty"`
	Priority         string   `json:"priority,omitempty"`
	NotificationType string   `json:"notification_type,omitempty"`
}

// ActionResult records the outcome of one action against one device.
type ActionResult struct {
	Type    ActionType `json:"type"`
	Success bool       `json:"success"`
	Detail  string     `json:"detail,omitempty"`

	// Per-channel outcomes, populated for notification actions only.
	Channels map[string]DeliveryResult `json:"channels,omitempty"`
}

// BatchResult is the ordered set of per-action results produced by
// firing one rule against one device.
type BatchResult struct {
	Success bool           `json:"success"`
	Actions []ActionResult `json:"actions"`
}

// RuleResult records one rule's outcome against one device during an
// execution.
type RuleResult struct {
	RuleID   string         `json:"rule_id"`
	RuleName string         `json:"rule_name"`
	DeviceID string         `json:"device_id"`
	Applied  bool           `json:"applied"`
	Reason   string         `json:"reason,omitempty"`
	Actions  []ActionResult `json:"actions,omitempty"`
}

// DeepCopy creates a complete independent copy of the Rule.
// All slice and map fields are cloned so modifications to the copy
// do not affect the original. This is essential for cache isolation.
func (r *Rule) DeepCopy() *Rule {
	if r == nil {
		return nil
	}

	cpy := *r // Shallow copy of value fields

	cpy.Schedule = cloneTimePtr(r.Schedule)
	cpy.LastTriggered = cloneTimePtr(r.LastTriggered)

	if r.TargetDevices != nil {
		cpy.TargetDevices = make([]string, len(r.TargetDevices))
		copy(cpy.TargetDevices, r.TargetDevices)
	}

	if r.Conditions != nil {
		cpy.Conditions = make([]Condition, len(r.Conditions))
		for i, c := range r.Conditions {
			cpy.Conditions[i] = c
			cpy.Conditions[i].Value = deepCopyValue(c.Value)
		}
	}

	if r.Actions != nil {
		cpy.Actions = make([]Action, len(r.Actions))
		for i, a := range r.Actions {
			cpy.Actions[i] = a
			if a.Parameters != nil {
				cpy.Actions[i].Parameters = deepCopyMap(a.Parameters)
			}
			if a.IsOnline != nil {
				v := *a.IsOnline
				cpy.Actions[i].IsOnline = &v
			}
			if a.Recipients != nil {
				cpy.Actions[i].Recipients = append([]string(nil), a.Recipients...)
			}
			if a.Channels != nil {
				cpy.Actions[i].Channels = append([]string(nil), a.Channels...)
			}
		}
	}

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
		return v // Primitives are immutable
	}
}

// cloneTimePtr creates an independent copy of a *time.Time.
func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

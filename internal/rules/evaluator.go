package rules

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Evaluation reasons reported alongside the applies/not-applies verdict.
const (
	ReasonNotTargeted     = "not targeted"
	ReasonNoConditions    = "no conditions"
	ReasonConditionsMet   = "conditions met"
	ReasonConditionsUnmet = "conditions not met"
	ReasonFutureSchedule  = "scheduled for future"
	ReasonAlreadyExecuted = "already executed"
	ReasonNoSchedule      = "no schedule configured"
)

// Evaluator decides whether a rule's trigger holds for a given device.
// It is a pure query over device state and sensor readings; it never
// mutates anything and never returns an error.
type Evaluator struct {
	sensors SensorStore

	// now is injectable for schedule-gating tests.
	now func() time.Time
}

// NewEvaluator creates a condition evaluator.
func NewEvaluator(sensors SensorStore) *Evaluator {
	return &Evaluator{
		sensors: sensors,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Applies reports whether the rule should fire for the device, with a
// human-readable reason.
//
// Checks run in a fixed order: targeting, schedule gating (schedule
// rules only), then the condition list as a flat conjunction.
// Evaluation stops at the first failing leaf.
func (ev *Evaluator) Applies(ctx context.Context, rule *Rule, device *Device) (bool, string) {
	// Targeting: an explicitly targeted rule never applies elsewhere,
	// regardless of conditions.
	if len(rule.TargetDevices) > 0 && !containsString(rule.TargetDevices, device.ID) {
		return false, ReasonNotTargeted
	}

	// Schedule gating runs before condition evaluation.
	if rule.Type == RuleTypeSchedule {
		if rule.Schedule == nil {
			return false, ReasonNoSchedule
		}
		now := ev.now()
		if now.Before(*rule.Schedule) {
			return false, ReasonFutureSchedule
		}
		if rule.LastTriggered != nil && !rule.LastTriggered.Before(*rule.Schedule) {
			return false, ReasonAlreadyExecuted
		}
	}

	if len(rule.Conditions) == 0 {
		return true, ReasonNoConditions
	}

	for i := range rule.Conditions {
		if !ev.evaluateLeaf(ctx, &rule.Conditions[i], device) {
			// Stop on the first false leaf.
			return false, ReasonConditionsUnmet
		}
	}
	return true, ReasonConditionsMet
}

// evaluateLeaf evaluates a single condition against a device.
// A leaf that cannot be evaluated (missing property, no sensor reading)
// is false, never an error.
func (ev *Evaluator) evaluateLeaf(ctx context.Context, cond *Condition, device *Device) bool {
	switch cond.Type {
	case ConditionTypeDeviceProperty:
		actual, ok := resolvePath(device.Properties, cond.Property)
		if !ok {
			return false
		}
		return compare(cond.Operator, actual, cond.Value)

	case ConditionTypeSensor:
		window := time.Duration(cond.TimeWindow) * time.Minute
		reading, err := ev.sensors.LatestReading(ctx, device.ID, cond.SensorType, window)
		if err != nil || reading == nil {
			// No usable reading: the rule cannot be evaluated, which
			// counts as "not met".
			return false
		}
		return compare(cond.Operator, reading.Value, cond.Value)

	default:
		// Malformed leaf type; skip as not met.
		return false
	}
}

// resolvePath walks a dot-path into a nested property bag.
// Returns false when any segment is missing or not a map.
func resolvePath(props map[string]any, path string) (any, bool) {
	if path == "" || props == nil {
		return nil, false
	}

	segments := strings.Split(path, ".")
	var current any = props
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// compare applies an operator to an actual and expected value.
func compare(op Operator, actual, expected any) bool {
	switch op {
	case OperatorEquals:
		return valuesEqual(actual, expected)
	case OperatorNotEquals:
		return !valuesEqual(actual, expected)
	case OperatorContains:
		return containsValue(actual, expected)
	case OperatorGreaterThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(expected)
		// Coercion failure is false, never an error.
		return aok && bok && a > b
	case OperatorLessThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(expected)
		return aok && bok && a < b
	default:
		return false
	}
}

// valuesEqual compares two values, treating all numeric types as
// equivalent (JSON decoding yields float64 while Go literals may be int).
func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return false
	}
}

// containsValue implements the contains operator: substring for
// strings, membership for lists.
func containsValue(actual, expected any) bool {
	switch av := actual.(type) {
	case string:
		ev, ok := expected.(string)
		return ok && strings.Contains(av, ev)
	case []any:
		for _, elem := range av {
			if valuesEqual(elem, expected) {
				return true
			}
		}
		return false
	case []string:
		ev, ok := expected.(string)
		if !ok {
			return false
		}
		return containsString(av, ev)
	default:
		return false
	}
}

// toFloat coerces a value to float64 for numeric comparison.
// Numeric strings coerce too, matching lenient rule authoring.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// containsString reports whether s is in list.
func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

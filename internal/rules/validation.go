package rules

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 500
	maxConditions        = 50
	maxActions           = 50
	maxTargetDevices     = 200

	minPriority = 0
	maxPriority = 100
)

var (
	validRuleTypes      map[RuleType]struct{}
	validConditionTypes map[ConditionType]struct{}
	validOperators      map[Operator]struct{}
	validActionTypes    map[ActionType]struct{}
)

func init() {
	validRuleTypes = map[RuleType]struct{}{
		RuleTypeCondition: {},
		RuleTypeSchedule:  {},
	}
	validConditionTypes = map[ConditionType]struct{}{
		ConditionTypeSensor:         {},
		ConditionTypeDeviceProperty: {},
	}
	validOperators = map[Operator]struct{}{
		OperatorEquals:      {},
		OperatorNotEquals:   {},
		OperatorContains:    {},
		OperatorGreaterThan: {},
		OperatorLessThan:    {},
	}
	validActionTypes = map[ActionType]struct{}{
		ActionControlDevice: {},
		ActionSetStatus:     {},
		ActionNotification:  {},
	}
}

// ValidateRule checks a rule definition for structural validity. It
// does not verify that target devices exist; an unknown target simply
// never matches at evaluation time.
func ValidateRule(rule *Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is nil", ErrInvalidRule)
	}

	if rule.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if len(rule.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidRule, maxNameLength)
	}
	if len(rule.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidRule, maxDescriptionLength)
	}

	if _, ok := validRuleTypes[rule.Type]; !ok {
		return fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, rule.Type)
	}
	if rule.Type == RuleTypeSchedule && rule.Schedule == nil {
		return fmt.Errorf("%w: schedule rules require a schedule timestamp", ErrInvalidRule)
	}

	if rule.Priority < minPriority || rule.Priority > maxPriority {
		return fmt.Errorf("%w: priority must be between %d and %d", ErrInvalidRule, minPriority, maxPriority)
	}
	if len(rule.TargetDevices) > maxTargetDevices {
		return fmt.Errorf("%w: too many target devices (max %d)", ErrInvalidRule, maxTargetDevices)
	}

	if len(rule.Conditions) > maxConditions {
		return fmt.Errorf("%w: too many conditions (max %d)", ErrInvalidRule, maxConditions)
	}
	for i := range rule.Conditions {
		if err := validateCondition(&rule.Conditions[i]); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}

	if len(rule.Actions) == 0 {
		return ErrNoActions
	}
	if len(rule.Actions) > maxActions {
		return fmt.Errorf("%w: too many actions (max %d)", ErrInvalidRule, maxActions)
	}
	for i := range rule.Actions {
		if err := validateAction(&rule.Actions[i]); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}

	return nil
}

func validateCondition(cond *Condition) error {
	if _, ok := validConditionTypes[cond.Type]; !ok {
		return fmt.Errorf("%w: unknown condition type %q", ErrInvalidCondition, cond.Type)
	}
	if _, ok := validOperators[cond.Operator]; !ok {
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, cond.Operator)
	}

	switch cond.Type {
	case ConditionTypeSensor:
		if cond.SensorType == "" {
			return fmt.Errorf("%w: sensor condition requires sensor_type", ErrInvalidCondition)
		}
		if cond.TimeWindow < 0 {
			return fmt.Errorf("%w: time_window must not be negative", ErrInvalidCondition)
		}
	case ConditionTypeDeviceProperty:
		if cond.Property == "" {
			return fmt.Errorf("%w: device_property condition requires property", ErrInvalidCondition)
		}
	}

	if cond.Value == nil {
		return fmt.Errorf("%w: value is required", ErrInvalidCondition)
	}

	return nil
}

func validateAction(action *Action) error {
	if _, ok := validActionTypes[action.Type]; !ok {
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidAction, action.Type)
	}

	switch action.Type {
	case ActionControlDevice:
		if action.Action == "" {
			return fmt.Errorf("%w: control_device action requires a command", ErrInvalidAction)
		}
	case ActionSetStatus:
		if action.IsOnline == nil {
			return fmt.Errorf("%w: set_status action requires is_online", ErrInvalidAction)
		}
	case ActionNotification:
		if action.Title == "" && action.Content == "" {
			return fmt.Errorf("%w: notification action requires a title or content", ErrInvalidAction)
		}
	}

	return nil
}

// GenerateID creates a new unique rule or execution identifier.
func GenerateID() string {
	return uuid.New().String()
}

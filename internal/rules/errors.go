package rules

import "errors"

// Domain errors for the rules package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, rules.ErrRuleNotFound) {
//	    // handle not found case
//	}
var (
	// ErrRuleNotFound is returned when a rule ID does not exist.
	ErrRuleNotFound = errors.New("rules: not found")

	// ErrRuleExists is returned when creating a rule with an ID that already exists.
	ErrRuleExists = errors.New("rules: already exists")

	// ErrInvalidRule is returned when rule validation fails.
	ErrInvalidRule = errors.New("rules: invalid rule")

	// ErrInvalidCondition is returned when a condition leaf is malformed.
	ErrInvalidCondition = errors.New("rules: invalid condition")

	// ErrInvalidAction is returned when an action specification is malformed.
	ErrInvalidAction = errors.New("rules: invalid action")

	// ErrNoActions is returned when a rule's action list is empty.
	// An empty list is a configuration error, never silent success.
	ErrNoActions = errors.New("rules: rule has no actions")

	// ErrDeviceNotFound is returned by DeviceRegistry implementations
	// when a device identifier does not resolve.
	ErrDeviceNotFound = errors.New("rules: device not found")

	// ErrExecutionNotFound is returned when an execution ID is not in
	// the active set.
	ErrExecutionNotFound = errors.New("rules: execution not found")
)

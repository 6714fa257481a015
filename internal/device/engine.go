package device

import (
	"context"
	"errors"

	"github.com/ewhitter/haven-core/internal/rules"
)

// EngineAdapter exposes the device layer to the rule engine through its
// consumer-defined DeviceRegistry interface. It narrows full Device
// records down to the engine's view and maps this package's sentinel
// errors onto the engine's.
type EngineAdapter struct {
	registry   *Registry
	controller *Controller
}

// NewEngineAdapter creates the rule-engine facade over the registry and
// controller.
func NewEngineAdapter(registry *Registry, controller *Controller) *EngineAdapter {
	return &EngineAdapter{
		registry:   registry,
		controller: controller,
	}
}

// Get retrieves the engine's view of a device.
func (a *EngineAdapter) Get(ctx context.Context, id string) (*rules.Device, error) {
	device, err := a.registry.GetDevice(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return nil, rules.ErrDeviceNotFound
		}
		return nil, err
	}
	return engineView(device), nil
}

// ListAll retrieves every known device, ordered by name.
func (a *EngineAdapter) ListAll(ctx context.Context) ([]rules.Device, error) {
	devices, err := a.registry.ListDevices(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]rules.Device, 0, len(devices))
	for i := range devices {
		out = append(out, *engineView(&devices[i]))
	}
	return out, nil
}

// Control dispatches a command through the controller. Failures land in
// the outcome, matching the engine's action-result semantics.
func (a *EngineAdapter) Control(ctx context.Context, deviceID, action string, parameters map[string]any) rules.ControlOutcome {
	result := a.controller.Control(ctx, deviceID, action, parameters)

	outcome := rules.ControlOutcome{
		Success: result.Success,
		Err:     result.Err,
	}
	if result.State != nil {
		outcome.State = map[string]any(result.State)
	}
	if errors.Is(result.Err, ErrDeviceNotFound) {
		outcome.Err = rules.ErrDeviceNotFound
	}
	return outcome
}

// SetStatus marks a device online or offline.
func (a *EngineAdapter) SetStatus(ctx context.Context, deviceID string, online bool) bool {
	return a.controller.SetStatus(ctx, deviceID, online)
}

// engineView projects a Device onto the fields the engine evaluates.
// The property bag is deep-copied by the registry already, so the view
// can hold it directly.
func engineView(d *Device) *rules.Device {
	return &rules.Device{
		ID:         d.ID,
		Name:       d.Name,
		Properties: map[string]any(d.Properties),
		Online:     d.Online,
	}
}

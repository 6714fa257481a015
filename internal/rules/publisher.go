package rules

import "time"

// Event types emitted over the Event Bus during a run.
const (
	EventStarted    = "execution.started"
	EventInProgress = "execution.progress"
	EventFinished   = "execution.finished"
)

// Event is a progress broadcast for one execution. Consumers (MQTT
// topic, WebSocket hub) receive identical payloads.
type Event struct {
	Type             string          `json:"type"`
	ExecutionID      string          `json:"execution_id"`
	Scope            Scope           `json:"scope"`
	Status           ExecutionStatus `json:"status"`
	DevicesProcessed int             `json:"devices_processed"`
	RulesApplied     int             `json:"rules_applied"`
	TotalDevices     int             `json:"total_devices,omitempty"`
	Error            string          `json:"error,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Publisher wraps the Event Bus with fire-and-forget semantics: publish
// failures are logged, never raised, and never affect the run.
type Publisher struct {
	bus    EventBus
	logger Logger
}

// NewPublisher creates a progress publisher. A nil bus disables
// broadcasting entirely.
func NewPublisher(bus EventBus) *Publisher {
	return &Publisher{
		bus:    bus,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the publisher.
func (p *Publisher) SetLogger(logger Logger) {
	p.logger = logger
}

// Started emits the run-started event.
func (p *Publisher) Started(exec *Execution) {
	p.emit(EventStarted, exec)
}

// Progress emits a periodic in-progress event with current counters.
func (p *Publisher) Progress(exec *Execution) {
	p.emit(EventInProgress, exec)
}

// Finished emits the terminal event for a run.
func (p *Publisher) Finished(exec *Execution) {
	p.emit(EventFinished, exec)
}

func (p *Publisher) emit(eventType string, exec *Execution) {
	if p.bus == nil {
		return
	}

	snap := exec.Snapshot()
	event := Event{
		Type:             eventType,
		ExecutionID:      snap.ID,
		Scope:            snap.Scope,
		Status:           snap.Status,
		DevicesProcessed: snap.DevicesProcessed,
		RulesApplied:     snap.RulesApplied,
		TotalDevices:     snap.TotalDevices,
		Error:            snap.Error,
		Timestamp:        time.Now().UTC(),
	}

	if err := p.bus.Publish(event); err != nil {
		p.logger.Warn("progress event publish failed",
			"execution_id", snap.ID,
			"event_type", eventType,
			"error", err,
		)
	}
}

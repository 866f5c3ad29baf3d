package models

import "time"

// EventType identifies a telemetry event on the bus
type EventType string

const (
	// Session lifecycle
	EventSessionStarted  EventType = "session_started"
	EventSessionStatus   EventType = "session_status"
	EventSessionFinished EventType = "session_finished"
	EventSessionDeleted  EventType = "session_deleted"

	// Telemetry
	EventStatsUpdate  EventType = "stats_update"
	EventSessionCrack EventType = "session_crack"
	EventHardware     EventType = "hardware"

	// Every worker output line and every absorbed anomaly
	EventLog EventType = "log"

	// Sent once to each observer on connect, never broadcast
	EventSnapshot EventType = "snapshot"
)

// Stat kinds carried by EventStatsUpdate payloads
const (
	StatHashrate  = "hashrate"
	StatProgress  = "progress"
	StatRecovered = "recovered"
	StatTotal     = "total"
	StatETA       = "eta"
)

// Event is the tagged union broadcast to observers. SessionID is empty for
// global events such as hardware samples.
type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// StartedPayload accompanies session_started
type StartedPayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Target string `json:"target"`
}

// StatusPayload accompanies session_status
type StatusPayload struct {
	Status SessionStatus `json:"status"`
}

// StatsPayload accompanies stats_update. Value carries numeric stats,
// Text carries the eta string. Device is -1 for the wildcard reading.
type StatsPayload struct {
	Kind        string  `json:"kind"`
	Value       float64 `json:"value,omitempty"`
	Text        string  `json:"text,omitempty"`
	Device      int     `json:"device,omitempty"`
	IsAggregate bool    `json:"is_aggregate,omitempty"`
}

// CrackPayload accompanies session_crack
type CrackPayload struct {
	Hash  string `json:"hash"`
	Plain string `json:"plain"`
}

// FinishedPayload accompanies session_finished, the last event ever
// published for a session.
type FinishedPayload struct {
	Duration    float64 `json:"duration_seconds"`
	Recovered   int     `json:"recovered"`
	Total       int     `json:"total"`
	AvgHashrate float64 `json:"avg_hashrate"`
	AvgPower    float64 `json:"avg_power"`
}

// HardwarePayload accompanies the global hardware event
type HardwarePayload struct {
	PowerWatts float64 `json:"power_watts"`
	MaxTempC   float64 `json:"max_temp_c"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float64 `json:"mem_percent"`
}

// LogPayload accompanies log events
type LogPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// NewEvent builds an event stamped with the current time
func NewEvent(eventType EventType, sessionID string, payload interface{}) Event {
	return Event{
		Type:      eventType,
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

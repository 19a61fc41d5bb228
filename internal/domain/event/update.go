package event

import "time"

// UpdateType discriminates VesselUpdate payloads.
type UpdateType string

const (
	UpdateTypePosition   UpdateType = "position"
	UpdateTypeStaticData UpdateType = "staticData"
)

// VesselUpdate is the fan-out envelope published for every successfully
// ingested event. Data is a PositionEvent or StaticDataEvent depending
// on Type.
type VesselUpdate struct {
	Type      UpdateType  `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// DiagnosticKind classifies pipeline diagnostics for subscribers and
// log aggregation.
type DiagnosticKind string

const (
	DiagnosticInvalidMessage DiagnosticKind = "invalidMessage"
	DiagnosticValidation     DiagnosticKind = "validationError"
	DiagnosticIngestion      DiagnosticKind = "ingestionError"
	DiagnosticBatchProcessed DiagnosticKind = "batchProcessed"
	DiagnosticFeedError      DiagnosticKind = "error"
)

// Diagnostic is a structured, non-fatal failure or progress report.
// It carries enough context to reconstruct the event without the raw
// error text: the component and stage that produced it, the vessel
// involved (when known), and free-form detail fields.
type Diagnostic struct {
	Kind      DiagnosticKind    `json:"kind"`
	Component string            `json:"component"`
	Stage     string            `json:"stage,omitempty"`
	MMSI      string            `json:"mmsi,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

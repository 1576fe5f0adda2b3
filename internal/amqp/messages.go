package amqp

import (
	"encoding/json"
	"time"

	"ledgerreports/internal/core"
)

// ReportFinishedMessage announces that a report request reached a terminal
// status. Consumers poll the store for anything beyond these fields.
type ReportFinishedMessage struct {
	RequestID      string    `json:"request_id"`
	Kind           string    `json:"kind"`
	Status         string    `json:"status"`
	OutputLocation string    `json:"output_location,omitempty"`
	DurationMs     int64     `json:"duration_ms,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewReportFinishedMessage builds a message from a terminal request.
func NewReportFinishedMessage(r core.ReportRequest) *ReportFinishedMessage {
	return &ReportFinishedMessage{
		RequestID:      r.RequestID,
		Kind:           string(r.Kind),
		Status:         string(r.Status),
		OutputLocation: r.OutputLocation,
		DurationMs:     r.ProcessingDurationMs,
		ErrorMessage:   r.ErrorMessage,
		Timestamp:      time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReportFinishedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportFinishedMessageFromJSON creates a message from JSON bytes
func ReportFinishedMessageFromJSON(data []byte) (*ReportFinishedMessage, error) {
	var msg ReportFinishedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

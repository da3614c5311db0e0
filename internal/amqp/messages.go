package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finlight/internal/core"
)

// AuditEventMessage is the wire form of core.AuditEvent. Ids travel as
// strings so a consumer in another language can read them without a UUID type.
type AuditEventMessage struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	BusinessID string    `json:"businessId"`
	Action     string    `json:"action"`
	Module     string    `json:"module"`
	RecordID   string    `json:"recordId,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewAuditEventMessage converts a domain event for publishing.
func NewAuditEventMessage(e core.AuditEvent) *AuditEventMessage {
	msg := &AuditEventMessage{
		ID:         e.ID.String(),
		UserID:     e.UserID.String(),
		BusinessID: e.BusinessID.String(),
		Action:     e.Action,
		Module:     e.Module,
		Details:    e.Details,
		Timestamp:  e.Timestamp.UTC(),
	}
	if e.RecordID != uuid.Nil {
		msg.RecordID = e.RecordID.String()
	}
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *AuditEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AuditEventMessageFromJSON decodes a message body.
func AuditEventMessageFromJSON(data []byte) (*AuditEventMessage, error) {
	var msg AuditEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Event converts the message back into a validated domain event.
func (m *AuditEventMessage) Event() (core.AuditEvent, error) {
	var (
		e   core.AuditEvent
		err error
	)
	if e.ID, err = uuid.Parse(m.ID); err != nil {
		return core.AuditEvent{}, fmt.Errorf("audit id: %w", err)
	}
	if e.UserID, err = uuid.Parse(m.UserID); err != nil {
		return core.AuditEvent{}, fmt.Errorf("audit user id: %w", err)
	}
	if e.BusinessID, err = uuid.Parse(m.BusinessID); err != nil {
		return core.AuditEvent{}, fmt.Errorf("audit business id: %w", err)
	}
	if m.RecordID != "" {
		if e.RecordID, err = uuid.Parse(m.RecordID); err != nil {
			return core.AuditEvent{}, fmt.Errorf("audit record id: %w", err)
		}
	}
	e.Action = m.Action
	e.Module = m.Module
	e.Details = m.Details
	e.Timestamp = m.Timestamp.UTC()
	if err := e.Validate(); err != nil {
		return core.AuditEvent{}, err
	}
	return e, nil
}

package core

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Audit modules and actions recorded by the API.
const (
	ModuleDashboard = "dashboard"
	ModuleReceipt   = "receipt"

	ActionView    = "view"
	ActionProcess = "process"
)

// AuditEvent records who did what to which business.
type AuditEvent struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	BusinessID uuid.UUID
	Action     string
	Module     string
	RecordID   uuid.UUID // uuid.Nil when the action has no single record
	Details    string
	Timestamp  time.Time
}

// NewAuditEvent stamps a fresh id and UTC timestamp.
func NewAuditEvent(userID, businessID uuid.UUID, module, action, details string, now time.Time) AuditEvent {
	return AuditEvent{
		ID:         uuid.New(),
		UserID:     userID,
		BusinessID: businessID,
		Action:     action,
		Module:     module,
		Details:    details,
		Timestamp:  now.UTC(),
	}
}

func (e AuditEvent) Validate() error {
	if e.ID == uuid.Nil {
		return errors.New("audit event id is required")
	}
	if e.Action == "" || e.Module == "" {
		return errors.New("audit event action and module are required")
	}
	if e.Timestamp.IsZero() {
		return errors.New("audit event timestamp is required")
	}
	return nil
}

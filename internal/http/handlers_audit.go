package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"finlight/internal/auth"
	"finlight/internal/core"
	"finlight/internal/services"
)

type auditLogDTO struct {
	ID         string  `json:"id"`
	UserID     *string `json:"userId"`
	BusinessID string  `json:"businessId"`
	Action     string  `json:"action"`
	Module     string  `json:"module"`
	RecordID   *string `json:"recordId"`
	Details    string  `json:"details,omitempty"`
	Timestamp  string  `json:"timestamp"`
}

func optionalID(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	s := id.String()
	return &s
}

func newAuditLogDTOs(events []core.AuditEvent) []auditLogDTO {
	out := make([]auditLogDTO, 0, len(events))
	for _, e := range events {
		out = append(out, auditLogDTO{
			ID:         e.ID.String(),
			UserID:     optionalID(e.UserID),
			BusinessID: e.BusinessID.String(),
			Action:     e.Action,
			Module:     e.Module,
			RecordID:   optionalID(e.RecordID),
			Details:    e.Details,
			Timestamp:  e.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return out
}

// handleAuditLogs serves GET /audit-logs?businessId=&limit=.
func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, r, fmt.Errorf("%w: no principal", core.ErrUnauthenticated))
		return
	}

	q := r.URL.Query()
	businessID, err := services.ParseBusinessID(q.Get("businessId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := services.ParseAuditLimit(q.Get("limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	events, err := s.auditLogs.List(r.Context(), principal.UserID, businessID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeData(w, "Audit logs retrieved successfully", newAuditLogDTOs(events))
}

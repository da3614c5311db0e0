package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"finlight/internal/core"
)

func TestParseAuditLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", DefaultAuditLimit, false},
		{" 5 ", 5, false},
		{"100", 100, false},
		{"0", 0, true},
		{"101", 0, true},
		{"ten", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAuditLimit(tt.in)
		if tt.wantErr {
			if !errors.Is(err, core.ErrInvalidArgument) {
				t.Errorf("%q: err = %v, want invalid argument", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%q: got %d, %v", tt.in, got, err)
		}
	}
}

func TestAuditLogServiceList(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	base := june15()
	for i, module := range []string{core.ModuleDashboard, core.ModuleReceipt, core.ModuleDashboard} {
		ev := core.NewAuditEvent(ownerID, businessID, module, core.ActionView, "", base.Add(time.Duration(i)*time.Minute))
		if err := s.WriteAudit(ctx, ev); err != nil {
			t.Fatalf("WriteAudit: %v", err)
		}
	}
	if err := s.WriteAudit(ctx, core.NewAuditEvent(ownerID, otherBizID, core.ModuleDashboard, core.ActionView, "", base)); err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}
	svc := NewAuditLogService(s, s, nil)

	got, err := svc.List(ctx, ownerID, businessID, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if !got[0].Timestamp.After(got[1].Timestamp) || got[1].Module != core.ModuleReceipt {
		t.Fatalf("events not newest first: %+v", got)
	}
	for _, e := range got {
		if e.BusinessID != businessID {
			t.Fatalf("event from another business: %+v", e)
		}
	}
}

func TestAuditLogServiceListErrors(t *testing.T) {
	tests := []struct {
		name     string
		user     uuid.UUID
		business uuid.UUID
		limit    int
		want     error
	}{
		{"no principal", uuid.Nil, businessID, 10, core.ErrUnauthenticated},
		{"unknown business", ownerID, uuid.New(), 10, core.ErrNotFound},
		{"not a member", outsiderID, businessID, 10, core.ErrForbidden},
		{"limit too large", ownerID, businessID, MaxAuditLimit + 1, core.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seededStore(t)
			_, err := NewAuditLogService(s, s, nil).List(context.Background(), tt.user, tt.business, tt.limit)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if s.Reads() != 0 {
				t.Errorf("store reads = %d, want 0", s.Reads())
			}
		})
	}

	t.Run("store failure", func(t *testing.T) {
		s := seededStore(t)
		s.FailReads(errors.New("connection reset by peer"))
		_, err := NewAuditLogService(s, s, nil).List(context.Background(), ownerID, businessID, 10)
		if !errors.Is(err, core.ErrDependencyUnavailable) {
			t.Fatalf("err = %v, want dependency unavailable", err)
		}
	})
}

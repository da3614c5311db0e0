package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"finlight/internal/core"
	"finlight/internal/store"
)

// authorize resolves the business and the caller's membership in it. An
// unknown business is reported before a missing membership.
func authorize(ctx context.Context, dir store.BusinessDirectory, userID, businessID uuid.UUID) (core.Business, core.Membership, error) {
	if userID == uuid.Nil {
		return core.Business{}, core.Membership{}, fmt.Errorf("%w: no principal", core.ErrUnauthenticated)
	}

	business, err := dir.GetBusiness(ctx, businessID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Business{}, core.Membership{}, fmt.Errorf("business %s: %w", businessID, core.ErrNotFound)
		}
		return core.Business{}, core.Membership{}, dependencyError("get business", err)
	}

	membership, err := dir.GetMembership(ctx, userID, businessID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Business{}, core.Membership{}, fmt.Errorf("user %s has no role in business %s: %w", userID, businessID, core.ErrForbidden)
		}
		return core.Business{}, core.Membership{}, dependencyError("get membership", err)
	}
	return business, membership, nil
}

// dependencyError reclassifies a collaborator failure while keeping the cause
// in the chain.
func dependencyError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, core.ErrDependencyUnavailable, err)
}

// ParseBusinessID parses a business identifier from a request.
func ParseBusinessID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: businessId is required", core.ErrInvalidArgument)
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: businessId %q is not a valid UUID", core.ErrInvalidArgument, raw)
	}
	return id, nil
}

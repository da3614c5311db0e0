// Package adapters decorates store ports with cross-cutting behaviour.
package adapters

import (
	"context"
	"time"

	"github.com/google/uuid"

	"finlight/internal/cache"
	"finlight/internal/core"
	"finlight/internal/store"
)

// CachedDirectory keeps business lookups in a TTL LRU cache in front of
// another BusinessDirectory. Memberships always go to the store, so a
// revoked role is refused on the very next request. Misses (ErrNotFound)
// and failures are not cached.
type CachedDirectory struct {
	next       store.BusinessDirectory
	businesses *cache.LRUCache[core.Business]
}

var _ store.BusinessDirectory = (*CachedDirectory)(nil)

func NewCachedDirectory(next store.BusinessDirectory, size int, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		next:       next,
		businesses: cache.NewLRUCache[core.Business](size, ttl),
	}
}

// Register adds the business cache to a cleanup manager.
func (d *CachedDirectory) Register(m *cache.Manager) {
	m.Register("businesses", d.businesses)
}

func (d *CachedDirectory) GetBusiness(ctx context.Context, id uuid.UUID) (core.Business, error) {
	return d.businesses.GetOrLoad(id.String(), func() (core.Business, error) {
		return d.next.GetBusiness(ctx, id)
	})
}

func (d *CachedDirectory) GetMembership(ctx context.Context, userID, businessID uuid.UUID) (core.Membership, error) {
	return d.next.GetMembership(ctx, userID, businessID)
}

func (d *CachedDirectory) Stats() cache.Stats {
	return d.businesses.Stats()
}

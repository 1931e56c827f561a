package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-authflow/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const flowTicketCacheKeyPrefix = "go-authflow::flow_ticket::v1"

// CachedFlowTicketStore layers a read-through cache over a base flow store.
// Consume always goes to the base store: single-use semantics cannot be
// served from a cache.
type CachedFlowTicketStore struct {
	base  core.FlowStore
	cache repositorycache.CacheService
}

func NewCachedFlowTicketStore(
	base core.FlowStore,
	cacheService repositorycache.CacheService,
) (*CachedFlowTicketStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base flow ticket store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: flow ticket cache service is required")
	}
	return &CachedFlowTicketStore{base: base, cache: cacheService}, nil
}

// FlowTicketCacheKey returns the deterministic cache key for a ticket state:
// go-authflow::flow_ticket::v1::<state> with the state URL-path escaped.
func FlowTicketCacheKey(state string) (string, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return "", fmt.Errorf("sqlstore: flow ticket state is required")
	}
	return flowTicketCacheKeyPrefix + "::" + url.PathEscape(state), nil
}

func (s *CachedFlowTicketStore) Save(ctx context.Context, ticket core.FlowTicket) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached flow ticket store is not configured")
	}
	if err := s.base.Save(ctx, ticket); err != nil {
		return err
	}
	cacheKey, err := FlowTicketCacheKey(ticket.State)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func (s *CachedFlowTicketStore) Get(ctx context.Context, state string) (core.FlowTicket, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.FlowTicket{}, fmt.Errorf("sqlstore: cached flow ticket store is not configured")
	}
	cacheKey, err := FlowTicketCacheKey(state)
	if err != nil {
		return core.FlowTicket{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.FlowTicket, error) {
		return s.base.Get(ctx, state)
	})
}

func (s *CachedFlowTicketStore) Consume(ctx context.Context, state string) (core.FlowTicket, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.FlowTicket{}, fmt.Errorf("sqlstore: cached flow ticket store is not configured")
	}
	ticket, err := s.base.Consume(ctx, state)
	if err != nil {
		return core.FlowTicket{}, err
	}
	cacheKey, keyErr := FlowTicketCacheKey(state)
	if keyErr != nil {
		return core.FlowTicket{}, keyErr
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return core.FlowTicket{}, err
	}
	return ticket, nil
}

// PurgeExpired delegates to the base store. Cached reads of purged tickets
// age out with the cache TTL.
func (s *CachedFlowTicketStore) PurgeExpired(ctx context.Context) (int, error) {
	if s == nil || s.base == nil {
		return 0, fmt.Errorf("sqlstore: cached flow ticket store is not configured")
	}
	return s.base.PurgeExpired(ctx)
}

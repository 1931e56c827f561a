package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const defaultFlowTTL = 15 * time.Minute

// FlowTicket pairs a flow-state snapshot with the CSRF state that keys it,
// letting a later process consume the pending flow by callback state.
type FlowTicket struct {
	ID        string
	State     string
	FlowState FlowState
	Metadata  map[string]any
	CreatedAt time.Time
	ExpiresAt time.Time
}

type MemoryFlowStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]FlowTicket
	order      []string
}

func NewMemoryFlowStore(ttl time.Duration) *MemoryFlowStore {
	return NewMemoryFlowStoreWithLimits(ttl, 0)
}

// NewMemoryFlowStoreWithLimits bounds the store to maxEntries pending
// tickets, evicting the oldest entry on Save when the cap is exceeded.
// maxEntries <= 0 means unbounded.
func NewMemoryFlowStoreWithLimits(ttl time.Duration, maxEntries int) *MemoryFlowStore {
	if ttl <= 0 {
		ttl = defaultFlowTTL
	}
	return &MemoryFlowStore{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    map[string]FlowTicket{},
	}
}

func (s *MemoryFlowStore) Save(_ context.Context, ticket FlowTicket) error {
	if s == nil {
		return internalError(nil, "core: flow store is not configured")
	}
	state := strings.TrimSpace(ticket.State)
	if state == "" {
		return badInputError("core: flow ticket state is required")
	}

	now := time.Now().UTC()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	if ticket.ExpiresAt.IsZero() {
		ticket.ExpiresAt = ticket.CreatedAt.Add(s.ttl)
	}

	s.mu.Lock()
	if _, ok := s.entries[state]; ok {
		s.removeOrderLocked(state)
	}
	s.entries[state] = cloneFlowTicket(ticket)
	s.order = append(s.order, state)
	for s.maxEntries > 0 && len(s.entries) > s.maxEntries {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}
	s.mu.Unlock()

	return nil
}

func (s *MemoryFlowStore) Get(_ context.Context, state string) (FlowTicket, error) {
	if s == nil {
		return FlowTicket{}, internalError(nil, "core: flow store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return FlowTicket{}, badInputError("core: flow ticket state is required")
	}

	s.mu.Lock()
	ticket, ok := s.entries[state]
	s.mu.Unlock()

	if !ok {
		return FlowTicket{}, ticketNotFoundError(state)
	}
	if ticketExpired(ticket, time.Now().UTC()) {
		return FlowTicket{}, ticketNotFoundError(state)
	}
	return cloneFlowTicket(ticket), nil
}

func (s *MemoryFlowStore) Consume(_ context.Context, state string) (FlowTicket, error) {
	if s == nil {
		return FlowTicket{}, internalError(nil, "core: flow store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return FlowTicket{}, badInputError("core: flow ticket state is required")
	}

	s.mu.Lock()
	ticket, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
		s.removeOrderLocked(state)
	}
	s.mu.Unlock()

	if !ok {
		return FlowTicket{}, ticketNotFoundError(state)
	}
	if ticketExpired(ticket, time.Now().UTC()) {
		return FlowTicket{}, ticketNotFoundError(state)
	}
	return cloneFlowTicket(ticket), nil
}

func (s *MemoryFlowStore) PurgeExpired(_ context.Context) (int, error) {
	if s == nil {
		return 0, internalError(nil, "core: flow store is not configured")
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for state, ticket := range s.entries {
		if ticketExpired(ticket, now) {
			delete(s.entries, state)
			s.removeOrderLocked(state)
			purged++
		}
	}
	return purged, nil
}

func (s *MemoryFlowStore) removeOrderLocked(state string) {
	for i, existing := range s.order {
		if existing == state {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func ticketExpired(ticket FlowTicket, now time.Time) bool {
	return !ticket.ExpiresAt.IsZero() && now.After(ticket.ExpiresAt)
}

func ticketNotFoundError(state string) error {
	return goerrors.New(
		fmt.Sprintf("core: flow ticket not found for state %q", state),
		goerrors.CategoryNotFound,
	).
		WithCode(http.StatusNotFound).
		WithTextCode(FlowErrorTicketNotFound)
}

func cloneFlowTicket(ticket FlowTicket) FlowTicket {
	cloned := ticket
	cloned.FlowState.RedirectURI = cloneStringPointer(ticket.FlowState.RedirectURI)
	cloned.FlowState.State = cloneStringPointer(ticket.FlowState.State)
	if ticket.FlowState.Scopes != nil {
		cloned.FlowState.Scopes = append([]string(nil), ticket.FlowState.Scopes...)
	}
	cloned.Metadata = copyAnyMap(ticket.Metadata)
	return cloned
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func generateFlowState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", internalError(err, "core: generate flow state")
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

var _ FlowStore = (*MemoryFlowStore)(nil)

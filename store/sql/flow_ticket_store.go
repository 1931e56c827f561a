// Package sqlstore persists pending flow tickets in a SQL database through
// bun, so callbacks can be completed by a different process than the one that
// began the flow.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-authflow/core"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultTicketTTL = 15 * time.Minute

type FlowTicketStore struct {
	db    *bun.DB
	repo  repository.Repository[*flowTicketRecord]
	codec core.FlowStateCodec
	ttl   time.Duration
	now   func() time.Time
}

type FlowTicketStoreOption func(*FlowTicketStore)

func WithTicketCodec(codec core.FlowStateCodec) FlowTicketStoreOption {
	return func(s *FlowTicketStore) {
		s.codec = codec
	}
}

func WithTicketTTL(ttl time.Duration) FlowTicketStoreOption {
	return func(s *FlowTicketStore) {
		s.ttl = ttl
	}
}

func WithTicketClock(now func() time.Time) FlowTicketStoreOption {
	return func(s *FlowTicketStore) {
		s.now = now
	}
}

func NewFlowTicketStore(db *bun.DB, opts ...FlowTicketStoreOption) (*FlowTicketStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}

	repo := repository.NewRepository[*flowTicketRecord](db, flowTicketHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid flow ticket repository wiring: %w", err)
		}
	}

	store := &FlowTicketStore{
		db:   db,
		repo: repo,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(store)
	}
	if store.codec == nil {
		store.codec = core.JSONFlowStateCodec{}
	}
	if store.ttl <= 0 {
		store.ttl = defaultTicketTTL
	}
	if store.now == nil {
		store.now = func() time.Time {
			return time.Now().UTC()
		}
	}
	return store, nil
}

// Save parks a flow ticket keyed by its CSRF state. Saving the same state
// again replaces the previous ticket.
func (s *FlowTicketStore) Save(ctx context.Context, ticket core.FlowTicket) error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: flow ticket store is not configured")
	}
	state := strings.TrimSpace(ticket.State)
	if state == "" {
		return fmt.Errorf("sqlstore: flow ticket state is required")
	}

	payload, err := s.codec.Encode(ticket.FlowState)
	if err != nil {
		return err
	}

	now := s.now()
	createdAt := ticket.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	expiresAt := ticket.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = createdAt.Add(s.ttl)
	}

	id := strings.TrimSpace(ticket.ID)
	if id == "" {
		id = uuid.NewString()
	}

	record := &flowTicketRecord{
		ID:             id,
		State:          state,
		Payload:        payload,
		PayloadFormat:  s.codec.Format(),
		PayloadVersion: s.codec.Version(),
		Metadata:       copyAnyMap(ticket.Metadata),
		CreatedAt:      createdAt,
		ExpiresAt:      expiresAt,
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*flowTicketRecord)(nil)).
			Where("state = ?", state).
			Exec(ctx); err != nil {
			return err
		}
		_, err := s.repo.CreateTx(ctx, tx, record)
		return err
	})
}

func (s *FlowTicketStore) Get(ctx context.Context, state string) (core.FlowTicket, error) {
	if s == nil || s.repo == nil {
		return core.FlowTicket{}, fmt.Errorf("sqlstore: flow ticket store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return core.FlowTicket{}, fmt.Errorf("sqlstore: flow ticket state is required")
	}

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("state", "=", state),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.FlowTicket{}, err
	}
	if len(records) == 0 {
		return core.FlowTicket{}, ticketNotFoundError(state)
	}
	record := records[0]
	if s.now().After(record.ExpiresAt) {
		return core.FlowTicket{}, ticketNotFoundError(state)
	}
	return s.toDomain(record)
}

// Consume reads and deletes the ticket in one transaction so a callback state
// can only ever complete one flow.
func (s *FlowTicketStore) Consume(ctx context.Context, state string) (core.FlowTicket, error) {
	if s == nil || s.db == nil {
		return core.FlowTicket{}, fmt.Errorf("sqlstore: flow ticket store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return core.FlowTicket{}, fmt.Errorf("sqlstore: flow ticket state is required")
	}

	var record flowTicketRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := tx.NewSelect().
			Model(&record).
			Where("?TableAlias.state = ?", state).
			Limit(1).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ticketNotFoundError(state)
			}
			return err
		}
		_, err := tx.NewDelete().
			Model((*flowTicketRecord)(nil)).
			Where("state = ?", state).
			Exec(ctx)
		return err
	})
	if err != nil {
		return core.FlowTicket{}, err
	}
	if s.now().After(record.ExpiresAt) {
		return core.FlowTicket{}, ticketNotFoundError(state)
	}
	return s.toDomain(&record)
}

func (s *FlowTicketStore) PurgeExpired(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: flow ticket store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*flowTicketRecord)(nil)).
		Where("expires_at < ?", s.now()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *FlowTicketStore) toDomain(record *flowTicketRecord) (core.FlowTicket, error) {
	if record == nil {
		return core.FlowTicket{}, fmt.Errorf("sqlstore: flow ticket record is nil")
	}
	flowState, err := s.codec.Decode(record.Payload)
	if err != nil {
		return core.FlowTicket{}, err
	}
	return core.FlowTicket{
		ID:        record.ID,
		State:     record.State,
		FlowState: flowState,
		Metadata:  copyAnyMap(record.Metadata),
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

func ticketNotFoundError(state string) error {
	return goerrors.New(
		fmt.Sprintf("sqlstore: flow ticket not found for state %q", state),
		goerrors.CategoryNotFound,
	).
		WithCode(http.StatusNotFound).
		WithTextCode(core.FlowErrorTicketNotFound)
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

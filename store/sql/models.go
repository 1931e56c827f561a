package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type flowTicketRecord struct {
	bun.BaseModel `bun:"table:auth_flow_tickets,alias:aft"`

	ID             string         `bun:"id,pk"`
	State          string         `bun:"state,notnull"`
	Payload        []byte         `bun:"payload,notnull"`
	PayloadFormat  string         `bun:"payload_format,notnull"`
	PayloadVersion int            `bun:"payload_version,notnull"`
	Metadata       map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt      time.Time      `bun:"expires_at,nullzero,notnull"`
}

package sqlstore

import "github.com/goliatone/go-authflow/core"

var (
	_ core.FlowStore = (*FlowTicketStore)(nil)
	_ core.FlowStore = (*CachedFlowTicketStore)(nil)
)

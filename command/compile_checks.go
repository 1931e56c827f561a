package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[BeginFlowMessage]    = (*BeginFlowCommand)(nil)
	_ gocmd.Commander[CompleteFlowMessage] = (*CompleteFlowCommand)(nil)
	_ gocmd.Commander[ReleaseFlowMessage]  = (*ReleaseFlowCommand)(nil)
	_ gocmd.Commander[PurgeFlowsMessage]   = (*PurgeFlowsCommand)(nil)
)

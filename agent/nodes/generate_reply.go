package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	conversationx "github.com/tanpawarit/chative-order-relay/agent/conversation"
)

// GenerateReply fills the reply unless an earlier node already chose one.
func GenerateReply(
	ctx context.Context,
	in *GraphState,
	engine *conversationx.Engine,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	if in.Reply != "" {
		return in, nil
	}
	in.Reply = engine.Reply(ctx, in.Session, "")
	return in, nil
}

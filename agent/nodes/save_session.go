package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	statex "github.com/tanpawarit/chative-order-relay/agent/state"
)

// SaveSession persists the turn. An order created earlier in the turn is
// removed again when the session cannot be saved, so its restaurant contact
// is not left claimed by an order no session points at.
func SaveSession(
	ctx context.Context,
	in *GraphState,
	store statex.SessionStore,
	orders statex.OrderStore,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	if err := saveSession(ctx, in, store); err != nil {
		if in.Dispatch != nil {
			if derr := orders.Delete(context.WithoutCancel(ctx), in.Dispatch.OrderID); derr != nil {
				err = errors.Join(err, fmt.Errorf("roll back order %s: %w", in.Dispatch.OrderID, derr))
			}
			in.Dispatch = nil
		}
		return nil, err
	}
	return in, nil
}

func saveSession(ctx context.Context, in *GraphState, store statex.SessionStore) error {
	if err := in.Session.AppendTurn(statex.RoleAssistant, in.Reply, in.Now); err != nil {
		return fmt.Errorf("%w: reply is empty", contractx.ErrValidation)
	}
	in.Session.Touch(in.Now)
	if err := in.Session.Validate(); err != nil {
		return fmt.Errorf("session validation failed: %w", err)
	}
	return store.Save(ctx, in.Session)
}

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Reply)
	if reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: empty reply", contractx.ErrValidation)
	}
	return GraphOutput{SessionID: in.SessionID, Reply: reply}, nil
}

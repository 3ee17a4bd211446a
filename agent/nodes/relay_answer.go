package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	conversationx "github.com/tanpawarit/chative-order-relay/agent/conversation"
	statex "github.com/tanpawarit/chative-order-relay/agent/state"
)

// OrderLocker serializes work on one order id and returns the unlock func.
type OrderLocker func(orderID string) (unlock func())

// RelayAnswer forwards the user's message to the restaurant when the order
// has an unanswered restaurant question. The order lock is taken inside the session lock.
func RelayAnswer(
	ctx context.Context,
	in *GraphState,
	orders statex.OrderStore,
	lock OrderLocker,
	proxy *conversationx.ProxyResponder,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	sess := in.Session
	if sess.Stage != statex.StageOrderSent || sess.OrderID == "" {
		return in, nil
	}

	unlock := lock(sess.OrderID)
	defer unlock()

	order, err := orders.Get(ctx, sess.OrderID)
	if errors.Is(err, statex.ErrOrderNotFound) {
		return in, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if !order.AwaitingClient() {
		return in, nil
	}

	reply := proxy.Respond(ctx, order, in.Text)
	order.AppendTurn(statex.RoleClientProxy, reply, in.Now)
	order.ResolveQuestion(in.Now)
	if err := orders.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	in.Relay = &Relay{OrderID: order.OrderID, ContactID: order.Restaurant.ContactID, Text: reply}
	in.Reply = conversationx.AnswerRelayed
	return in, nil
}

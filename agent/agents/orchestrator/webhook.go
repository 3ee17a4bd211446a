package orchestrator

import (
	"context"
	"errors"
	"fmt"

	classifyx "github.com/tanpawarit/chative-order-relay/agent/classify"
	conversationx "github.com/tanpawarit/chative-order-relay/agent/conversation"
	discoveryx "github.com/tanpawarit/chative-order-relay/agent/discovery"
	statex "github.com/tanpawarit/chative-order-relay/agent/state"
)

// ErrNoOpenOrder means an inbound message came from a contact that no open
// order is waiting on.
var ErrNoOpenOrder = errors.New("no open order for contact")

var milestones = map[classifyx.Type]statex.OrderStatus{
	classifyx.TypeConfirmed:      statex.StatusConfirmed,
	classifyx.TypePreparing:      statex.StatusPreparing,
	classifyx.TypeOutForDelivery: statex.StatusOutForDelivery,
}

// HandleRestaurantMessage routes a restaurant's message to its open order.
// Questions that need the user are forwarded to them; everything else gets
// a client-proxy reply. Milestones move the order status and notify the user.
func (o *Orchestrator) HandleRestaurantMessage(ctx context.Context, rawContact, text string) error {
	contact, ok := discoveryx.NormalizeContact(rawContact)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoOpenOrder, rawContact)
	}

	found, err := o.orders.GetByContact(ctx, contact)
	if errors.Is(err, statex.ErrOrderNotFound) {
		return fmt.Errorf("%w: %s", ErrNoOpenOrder, contact)
	}
	if err != nil {
		return fmt.Errorf("lookup order by contact: %w", err)
	}

	unlock := o.lockOrder(found.OrderID)
	defer unlock()

	// reload under the lock; a concurrent event may have moved it on
	order, err := o.orders.Get(ctx, found.OrderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if !order.IsOpen() {
		return fmt.Errorf("%w: %s", ErrNoOpenOrder, contact)
	}

	logger := o.log.With().Str("order_id", order.OrderID).Str("contact_id", contact).Logger()
	now := o.now().UTC()
	order.AppendTurn(statex.RoleRestaurant, text, now)

	res := classifyx.Classify(text)
	var changed bool
	if target, ok := milestones[res.Type]; ok {
		changed, err = order.SetStatus(target, now)
		if err != nil {
			return err
		}
	}

	var reply string
	if res.NeedsClientInput {
		if err := order.AskClient(text, now); err != nil {
			return err
		}
	} else {
		reply = o.proxy.Respond(ctx, order, "")
		order.AppendTurn(statex.RoleClientProxy, reply, now)
	}

	if err := o.orders.Update(ctx, order); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	logger.Info().
		Str("type", string(res.Type)).
		Bool("needs_client_input", res.NeedsClientInput).
		Str("status", string(order.Status)).
		Msg("restaurant message handled")

	to := o.recipientFor(order)
	if res.NeedsClientInput {
		if err := o.fanout.Forward(order.OrderID, conversationx.RestaurantQuestion(order.Restaurant.Name, text), to); err != nil {
			logger.Error().Err(err).Msg("schedule question forward failed")
		}
	} else if reply != "" {
		if err := o.dispatcher.Send(order.OrderID, order.Restaurant.ContactID, reply); err != nil {
			logger.Error().Err(err).Msg("schedule proxy reply failed")
		}
	}
	if changed {
		if err := o.fanout.Notify(order.OrderID, order.Status, to); err != nil {
			logger.Error().Err(err).Msg("schedule status notification failed")
		}
	}
	return nil
}

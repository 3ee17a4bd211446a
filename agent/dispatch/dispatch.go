// Package dispatch sends orders to restaurants and status updates to users.
package dispatch

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	schedulex "github.com/tanpawarit/chative-order-relay/agent/schedule"
	statex "github.com/tanpawarit/chative-order-relay/agent/state"
	logx "github.com/tanpawarit/chative-order-relay/pkg/logger"
)

type Config struct {
	MinDelay      time.Duration   `split_words:"true" default:"2s"`
	MaxDelay      time.Duration   `split_words:"true" default:"6s"`
	SendTimeout   time.Duration   `split_words:"true" default:"15s"`
	ConfirmedGaps []time.Duration `split_words:"true" default:"3000ms,2500ms,2000ms"`
}

func (c Config) Validate() error {
	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay {
		return fmt.Errorf("%w: dispatch delay range [%s, %s] is invalid", contractx.ErrValidation, c.MinDelay, c.MaxDelay)
	}
	if len(c.ConfirmedGaps) != len(confirmedMessages)-1 {
		return fmt.Errorf("%w: need %d confirmed gaps, got %d", contractx.ErrValidation, len(confirmedMessages)-1, len(c.ConfirmedGaps))
	}
	return nil
}

// Dispatcher sends text to restaurant contacts after a human-like pause.
type Dispatcher struct {
	messenger   contractx.Messenger
	sched       *schedulex.Scheduler
	minDelay    time.Duration
	maxDelay    time.Duration
	sendTimeout time.Duration
	log         zerolog.Logger
}

func NewDispatcher(messenger contractx.Messenger, sched *schedulex.Scheduler, cfg Config) *Dispatcher {
	return &Dispatcher{
		messenger:   messenger,
		sched:       sched,
		minDelay:    cfg.MinDelay,
		maxDelay:    cfg.MaxDelay,
		sendTimeout: cfg.SendTimeout,
		log:         logx.Component("dispatch"),
	}
}

// Delay draws a pause uniformly from [min, max].
func (d *Dispatcher) Delay() time.Duration {
	if d.maxDelay <= d.minDelay {
		return d.minDelay
	}
	return d.minDelay + rand.N(d.maxDelay-d.minDelay+1)
}

// Dispatch schedules the order summary for the restaurant.
func (d *Dispatcher) Dispatch(o *statex.Order) error {
	return d.Send(o.OrderID, o.Restaurant.ContactID, FormatSummary(o.OrderData))
}

// Send queues text for contactID behind the order's earlier restaurant
// messages. Each message waits its own pause after the previous one went out.
// A failed send is logged and never retried.
func (d *Dispatcher) Send(orderID, contactID, text string) error {
	delay := d.Delay()
	logger := d.log.With().Str("order_id", orderID).Str("contact_id", contactID).Logger()
	step := schedulex.Step{Delay: delay, Run: func(ctx context.Context) {
		if d.sendTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.sendTimeout)
			defer cancel()
		}
		if err := d.messenger.Send(ctx, contactID, text); err != nil {
			logger.Error().Err(err).Msg("restaurant message send failed")
			return
		}
		logger.Info().Dur("delay", delay).Msg("restaurant message sent")
	}}
	return d.sched.Enqueue(OrderOwner(orderID), restaurantLane(orderID), []schedulex.Step{step})
}

// OrderOwner is the scheduler owner key for work belonging to an order.
func OrderOwner(orderID string) string {
	return "order:" + orderID
}

func restaurantLane(orderID string) string { return "order:" + orderID + ":restaurant" }
func userLane(orderID string) string       { return "order:" + orderID + ":user" }

var paymentLabels = map[statex.PaymentMethod]string{
	statex.PaymentCash: "Dinheiro",
	statex.PaymentCard: "Cartão",
	statex.PaymentPix:  "Pix",
}

func PaymentLabel(m statex.PaymentMethod) string {
	if label, ok := paymentLabels[m]; ok {
		return label
	}
	return string(m)
}

// FormatSummary renders the order message sent to the restaurant. The change
// line appears only for cash and the notes line only when notes exist.
func FormatSummary(data statex.OrderData) string {
	var sb strings.Builder
	sb.WriteString("Olá! Gostaria de fazer um pedido para entrega.\n\n")
	fmt.Fprintf(&sb, "🍽️ Pedido: %s\n", data.Food)
	fmt.Fprintf(&sb, "📍 Endereço: %s\n", data.Address)
	fmt.Fprintf(&sb, "📞 Contato: %s\n", data.ContactID)
	fmt.Fprintf(&sb, "💳 Pagamento: %s\n", PaymentLabel(data.PaymentMethod))
	if data.PaymentMethod == statex.PaymentCash {
		if data.Change == "" || data.Change == "0" {
			sb.WriteString("💵 Troco: não precisa\n")
		} else {
			fmt.Fprintf(&sb, "💵 Troco para: R$ %s\n", data.Change)
		}
	}
	if notes := strings.TrimSpace(data.Notes); notes != "" {
		fmt.Fprintf(&sb, "📝 Observações: %s\n", notes)
	}
	sb.WriteString("\nPodem confirmar, por favor?")
	return sb.String()
}

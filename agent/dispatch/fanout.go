package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	schedulex "github.com/tanpawarit/chative-order-relay/agent/schedule"
	statex "github.com/tanpawarit/chative-order-relay/agent/state"
	logx "github.com/tanpawarit/chative-order-relay/pkg/logger"
)

var confirmedMessages = []string{
	"✅ Boa notícia! O restaurante confirmou o seu pedido.",
	"👨‍🍳 Eles já receberam todos os detalhes e vão começar a preparar.",
	"⏱️ Assim que houver novidade sobre o preparo ou a entrega, eu te aviso por aqui.",
	"🙏 Obrigado por pedir com a gente! Qualquer dúvida é só mandar mensagem.",
}

var statusMessages = map[statex.OrderStatus]string{
	statex.StatusPreparing:      "🔥 Seu pedido está sendo preparado!",
	statex.StatusOutForDelivery: "🛵 Seu pedido saiu para entrega e já está a caminho!",
}

// Recipient delivers one message to the user on every channel they follow.
type Recipient func(ctx context.Context, text string) error

// Fanout sends status updates to the user as scheduled sequences.
type Fanout struct {
	sched *schedulex.Scheduler
	gaps  []time.Duration
	log   zerolog.Logger
}

func NewFanout(sched *schedulex.Scheduler, cfg Config) *Fanout {
	gaps := cfg.ConfirmedGaps
	if len(gaps) != len(confirmedMessages)-1 {
		gaps = []time.Duration{3000 * time.Millisecond, 2500 * time.Millisecond, 2000 * time.Millisecond}
	}
	return &Fanout{sched: sched, gaps: gaps, log: logx.Component("fanout")}
}

// Messages returns what the user is told when an order reaches status.
func Messages(status statex.OrderStatus) []string {
	if status == statex.StatusConfirmed {
		return append([]string(nil), confirmedMessages...)
	}
	if msg, ok := statusMessages[status]; ok {
		return []string{msg}
	}
	return nil
}

// Notify queues the messages for status behind any earlier notification of
// the same order, so a sequence is never interleaved with another. Each send
// is independent: a failure is logged and the rest still goes out.
func (f *Fanout) Notify(orderID string, status statex.OrderStatus, to Recipient) error {
	msgs := Messages(status)
	if len(msgs) == 0 {
		return nil
	}
	logger := f.log.With().Str("order_id", orderID).Str("status", string(status)).Logger()

	steps := make([]schedulex.Step, len(msgs))
	for i, text := range msgs {
		var delay time.Duration
		if i > 0 {
			delay = f.gaps[i-1]
		}
		steps[i] = schedulex.Step{
			Delay: delay,
			Run: func(ctx context.Context) {
				if err := to(ctx, text); err != nil {
					logger.Warn().Err(err).Int("step", i+1).Msg("notification send failed")
				}
			},
		}
	}
	return f.sched.Enqueue(OrderOwner(orderID), userLane(orderID), steps)
}

// Forward sends a single message to the user as soon as earlier
// notifications of the order are out.
func (f *Fanout) Forward(orderID string, text string, to Recipient) error {
	step := schedulex.Step{Run: func(ctx context.Context) {
		if err := to(ctx, text); err != nil {
			f.log.Warn().Err(err).Str("order_id", orderID).Msg("forward to user failed")
		}
	}}
	return f.sched.Enqueue(OrderOwner(orderID), userLane(orderID), []schedulex.Step{step})
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	conversationx "github.com/tanpawarit/chative-order-relay/agent/conversation"
	discoveryx "github.com/tanpawarit/chative-order-relay/agent/discovery"
	dispatchx "github.com/tanpawarit/chative-order-relay/agent/dispatch"
	nodex "github.com/tanpawarit/chative-order-relay/agent/nodes"
	schedulex "github.com/tanpawarit/chative-order-relay/agent/schedule"
	statex "github.com/tanpawarit/chative-order-relay/agent/state"
	logx "github.com/tanpawarit/chative-order-relay/pkg/logger"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
)

type Config struct {
	// NotifyUserContact also sends status updates to the user's phone on the
	// messaging channel, next to the web chat mailbox.
	NotifyUserContact bool          `split_words:"true" default:"true"`
	DiscoveryTimeout  time.Duration `split_words:"true" default:"90s"`
}

// Discoverer finds restaurants for a complete order. It always returns at
// least the fallback list.
type Discoverer interface {
	Discover(ctx context.Context, food, address string) discoveryx.Result
}

type Deps struct {
	Backend    statex.Backend
	Discovery  Discoverer
	Engine     *conversationx.Engine
	Proxy      *conversationx.ProxyResponder
	Dispatcher *dispatchx.Dispatcher
	Fanout     *dispatchx.Fanout
	Scheduler  *schedulex.Scheduler
	// Messenger reaches the user's own contact; nil disables it.
	Messenger contractx.Messenger
}

type Orchestrator struct {
	sessions statex.SessionStore
	orders   statex.OrderStore
	mailbox  statex.Mailbox
	locks    *statex.KeyedMutex

	discovery  Discoverer
	engine     *conversationx.Engine
	proxy      *conversationx.ProxyResponder
	dispatcher *dispatchx.Dispatcher
	fanout     *dispatchx.Fanout
	sched      *schedulex.Scheduler
	messenger  contractx.Messenger

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	notifyUserContact bool
	discoveryTimeout  time.Duration

	now   func() time.Time
	newID func() string
	log   zerolog.Logger
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Backend == nil {
		return nil, errors.New("state backend is required")
	}
	if deps.Discovery == nil {
		return nil, errors.New("restaurant discovery is required")
	}
	if deps.Engine == nil || deps.Proxy == nil {
		return nil, errors.New("conversation engine and proxy responder are required")
	}
	if deps.Dispatcher == nil || deps.Fanout == nil || deps.Scheduler == nil {
		return nil, errors.New("dispatcher, fanout and scheduler are required")
	}

	timeout := cfg.DiscoveryTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	o := &Orchestrator{
		sessions:          deps.Backend.SessionStore(),
		orders:            deps.Backend.OrderStore(),
		mailbox:           deps.Backend.Mailbox(),
		locks:             statex.NewKeyedMutex(),
		discovery:         deps.Discovery,
		engine:            deps.Engine,
		proxy:             deps.Proxy,
		dispatcher:        deps.Dispatcher,
		fanout:            deps.Fanout,
		sched:             deps.Scheduler,
		messenger:         deps.Messenger,
		notifyUserContact: cfg.NotifyUserContact,
		discoveryTimeout:  timeout,
		now:               time.Now,
		newID:             uuid.NewString,
		log:               logx.Component("orchestrator"),
	}

	graphRunner, err := o.compileHandleChatGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

func sessionKey(id string) string { return "session:" + strings.TrimSpace(id) }
func orderKey(id string) string   { return "order:" + id }

func (o *Orchestrator) lockOrder(orderID string) func() {
	return o.locks.Lock(orderKey(orderID))
}

// HandleChat runs one chat turn. Turns for the same session never overlap.
func (o *Orchestrator) HandleChat(
	ctx context.Context,
	sessionID string,
	text string,
	history []nodex.HistoryMessage,
) (string, error) {
	unlock := o.locks.Lock(sessionKey(sessionID))
	defer unlock()

	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID: sessionID,
		Text:      text,
		History:   history,
	})
	if err != nil {
		return "", err
	}
	return out.Reply, nil
}

// scheduleEffects starts the work a saved chat turn asked for.
func (o *Orchestrator) scheduleEffects(in *nodex.GraphState) (*nodex.GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	logger := o.log.With().Str("session_id", in.SessionID).Logger()

	if in.StartDiscovery {
		data := in.Session.OrderData
		sessionID := in.SessionID
		err := o.sched.Go(sessionKey(sessionID), func(ctx context.Context) {
			o.runDiscovery(ctx, sessionID, data.Food, data.Address)
		})
		if err != nil {
			logger.Error().Err(err).Msg("schedule discovery failed")
		} else {
			logger.Info().Msg("restaurant discovery scheduled")
		}
	}

	if in.Dispatch != nil {
		if err := o.dispatcher.Dispatch(in.Dispatch); err != nil {
			logger.Error().Err(err).Str("order_id", in.Dispatch.OrderID).Msg("schedule dispatch failed")
		}
	}

	if in.Relay != nil {
		if err := o.dispatcher.Send(in.Relay.OrderID, in.Relay.ContactID, in.Relay.Text); err != nil {
			logger.Error().Err(err).Str("order_id", in.Relay.OrderID).Msg("schedule relay failed")
		}
	}
	return in, nil
}

// runDiscovery searches without holding the session lock and records the
// outcome under it.
func (o *Orchestrator) runDiscovery(ctx context.Context, sessionID, food, address string) {
	logger := o.log.With().Str("session_id", sessionID).Logger()

	dctx, cancel := context.WithTimeout(ctx, o.discoveryTimeout)
	res := o.discovery.Discover(dctx, food, address)
	cancel()

	unlock := o.locks.Lock(sessionKey(sessionID))
	defer unlock()

	// persistence must outlive a cancelled task context
	storeCtx := context.WithoutCancel(ctx)
	sess, err := o.sessions.Load(storeCtx, sessionID)
	if err != nil {
		logger.Error().Err(err).Msg("load session after discovery failed")
		return
	}
	if sess.Stage != statex.StageSearchingRestaurant {
		logger.Warn().Str("stage", string(sess.Stage)).Msg("discovery finished for a session that moved on")
		return
	}

	now := o.now().UTC()
	sess.Discovery.FinishedAt = now
	sess.Discovery.Provenance = res.Provenance
	if err := ctx.Err(); err != nil || len(res.Candidates) == 0 {
		sess.Discovery.Status = statex.DiscoveryFailed
		if err != nil {
			sess.Discovery.Error = err.Error()
		} else {
			sess.Discovery.Error = "no candidates"
		}
		if err := o.sessions.Save(storeCtx, sess); err != nil {
			logger.Error().Err(err).Msg("save failed discovery outcome")
		}
		logger.Warn().Str("error", sess.Discovery.Error).Msg("restaurant discovery failed")
		return
	}

	sess.Discovery.Status = statex.DiscoveryDone
	sess.Candidates = res.Candidates
	if err := sess.Advance(statex.StageRestaurantsPresented, now); err != nil {
		logger.Error().Err(err).Msg("advance after discovery failed")
		return
	}
	options := conversationx.FormatOptions(res.Candidates)
	_ = sess.AppendTurn(statex.RoleAssistant, options, now)
	sess.Touch(now)
	if err := o.sessions.Save(storeCtx, sess); err != nil {
		logger.Error().Err(err).Msg("save discovery result failed")
		return
	}
	if err := o.mailbox.Push(storeCtx, sessionID, statex.PendingMessage{Text: options, At: now}); err != nil {
		logger.Error().Err(err).Msg("queue restaurant options failed")
		return
	}
	logger.Info().
		Int("candidates", len(res.Candidates)).
		Str("provenance", string(res.Provenance)).
		Str("query", res.Query).
		Msg("restaurant options ready")
}

// PollResult is one delivered mailbox message, if any.
type PollResult struct {
	HasNewMessage bool
	Message       string
	Timestamp     time.Time
}

// HandlePoll pops at most one pending message. Delivering the option list
// counts as presenting it.
func (o *Orchestrator) HandlePoll(ctx context.Context, sessionID string) (PollResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return PollResult{}, ErrInvalidSession
	}
	unlock := o.locks.Lock(sessionKey(sessionID))
	defer unlock()

	msg, err := o.mailbox.Pop(ctx, sessionID)
	if errors.Is(err, statex.ErrMailboxEmpty) {
		return PollResult{}, nil
	}
	if err != nil {
		return PollResult{}, fmt.Errorf("pop mailbox: %w", err)
	}

	sess, err := o.sessions.Load(ctx, sessionID)
	if err == nil && sess.Stage == statex.StageRestaurantsPresented {
		now := o.now().UTC()
		if err := sess.Advance(statex.StageAwaitingSelection, now); err == nil {
			sess.Touch(now)
			if err := o.sessions.Save(ctx, sess); err != nil {
				o.log.Error().Err(err).Str("session_id", sessionID).Msg("save after poll failed")
			}
		}
	}
	return PollResult{HasNewMessage: true, Message: msg.Text, Timestamp: msg.At}, nil
}

// recipientFor delivers user notifications to the web chat mailbox and,
// when enabled, to the user's contact on the messaging channel.
func (o *Orchestrator) recipientFor(order *statex.Order) dispatchx.Recipient {
	sessionID := order.SessionID
	userContact, _ := discoveryx.NormalizeContact(order.OrderData.ContactID)
	return func(ctx context.Context, text string) error {
		var errs []error
		if err := o.mailbox.Push(ctx, sessionID, statex.PendingMessage{Text: text, At: o.now().UTC()}); err != nil {
			errs = append(errs, fmt.Errorf("mailbox: %w", err))
		}
		if o.notifyUserContact && o.messenger != nil && userContact != "" {
			if err := o.messenger.Send(ctx, userContact, text); err != nil {
				errs = append(errs, fmt.Errorf("%w: %w", contractx.ErrSendFailed, err))
			}
		}
		return errors.Join(errs...)
	}
}

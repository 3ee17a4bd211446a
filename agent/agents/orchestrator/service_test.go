package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	conversationx "github.com/tanpawarit/chative-order-relay/agent/conversation"
	discoveryx "github.com/tanpawarit/chative-order-relay/agent/discovery"
	dispatchx "github.com/tanpawarit/chative-order-relay/agent/dispatch"
	nodex "github.com/tanpawarit/chative-order-relay/agent/nodes"
	schedulex "github.com/tanpawarit/chative-order-relay/agent/schedule"
	statex "github.com/tanpawarit/chative-order-relay/agent/state"
)

type sentMessage struct {
	contactID string
	text      string
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (m *recordingMessenger) Send(ctx context.Context, contactID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{contactID: contactID, text: text})
	return nil
}

func (m *recordingMessenger) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

type failingGenerator struct{}

func (failingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("model unavailable")
}

// countingDiscoverer returns the fallback list and counts runs.
type countingDiscoverer struct {
	calls atomic.Int32
}

func (d *countingDiscoverer) Discover(ctx context.Context, food, address string) discoveryx.Result {
	d.calls.Add(1)
	return discoveryx.Result{
		Candidates: discoveryx.FallbackCandidates(food),
		Provenance: statex.ProvenanceFallback,
	}
}

type harness struct {
	orch       *Orchestrator
	backend    *statex.MemoryStore
	sched      *schedulex.Scheduler
	restaurant *recordingMessenger
	user       *recordingMessenger
}

func newHarness(t *testing.T, disc Discoverer) *harness {
	t.Helper()

	backend := statex.NewMemoryStore()
	sched := schedulex.New()
	t.Cleanup(func() { _ = sched.Close(context.Background()) })

	restaurant := &recordingMessenger{}
	user := &recordingMessenger{}
	dcfg := dispatchx.Config{ConfirmedGaps: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}}
	ccfg := conversationx.Config{}

	orch, err := New(Deps{
		Backend:    backend,
		Discovery:  disc,
		Engine:     conversationx.NewEngine(nil, ccfg),
		Proxy:      conversationx.NewProxyResponder(nil, ccfg),
		Dispatcher: dispatchx.NewDispatcher(restaurant, sched, dcfg),
		Fanout:     dispatchx.NewFanout(sched, dcfg),
		Scheduler:  sched,
		Messenger:  user,
	}, Config{NotifyUserContact: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var seq atomic.Int32
	orch.newID = func() string { return fmt.Sprintf("order-%d", seq.Add(1)) }
	return &harness{orch: orch, backend: backend, sched: sched, restaurant: restaurant, user: user}
}

func (h *harness) chat(t *testing.T, sessionID, text string) string {
	t.Helper()
	reply, err := h.orch.HandleChat(context.Background(), sessionID, text, nil)
	if err != nil {
		t.Fatalf("HandleChat(%q) error = %v", text, err)
	}
	return reply
}

func (h *harness) session(t *testing.T, sessionID string) *statex.Session {
	t.Helper()
	sess, err := h.backend.SessionStore().Load(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Load(%q) error = %v", sessionID, err)
	}
	return sess
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := New(Deps{}, Config{}); err == nil {
		t.Fatalf("New() error = nil, want missing backend error")
	}
}

func TestHandleChatRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &countingDiscoverer{})
	if _, err := h.orch.HandleChat(context.Background(), "", "oi", nil); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("empty session error = %v, want ErrInvalidSession", err)
	}
	if _, err := h.orch.HandleChat(context.Background(), "s1", "   ", nil); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("empty message error = %v, want ErrInvalidMessage", err)
	}
}

func TestEndToEndOrderWithFailingCollaborators(t *testing.T) {
	t.Parallel()

	disc := discoveryx.New(failingGenerator{}, nil, nil, discoveryx.Config{DefaultCity: "Rio de Janeiro"})
	h := newHarness(t, disc)
	const sid = "session-e2e"

	h.chat(t, sid, "quero uma pizza calabresa grande")
	h.chat(t, sid, "Rua das Flores, 120, Icaraí, Niterói")
	h.chat(t, sid, "meu telefone é (21) 99999-8888")
	reply := h.chat(t, sid, "pix")
	if !strings.Contains(reply, "procurando restaurantes") {
		t.Fatalf("reply after complete order = %q", reply)
	}

	h.sched.Wait()
	sess := h.session(t, sid)
	if sess.Stage != statex.StageRestaurantsPresented {
		t.Fatalf("stage = %q, want restaurants_presented", sess.Stage)
	}
	if sess.Discovery.Status != statex.DiscoveryDone || sess.Discovery.Provenance != statex.ProvenanceFallback {
		t.Fatalf("discovery = %#v", sess.Discovery)
	}
	if len(sess.Candidates) != 3 {
		t.Fatalf("candidates = %d, want 3", len(sess.Candidates))
	}

	polled, err := h.orch.HandlePoll(context.Background(), sid)
	if err != nil {
		t.Fatalf("HandlePoll() error = %v", err)
	}
	if !polled.HasNewMessage || !strings.Contains(polled.Message, "Sabor da Casa Delivery") {
		t.Fatalf("poll = %#v", polled)
	}
	if again, _ := h.orch.HandlePoll(context.Background(), sid); again.HasNewMessage {
		t.Fatalf("second poll delivered %q, want nothing", again.Message)
	}
	if got := h.session(t, sid).Stage; got != statex.StageAwaitingSelection {
		t.Fatalf("stage after poll = %q, want awaiting_selection", got)
	}

	reply = h.chat(t, sid, "quero o 2")
	if !strings.Contains(reply, "Cantinho Express") {
		t.Fatalf("reply after selection = %q", reply)
	}

	h.sched.Wait()
	sent := h.restaurant.messages()
	if len(sent) != 1 {
		t.Fatalf("restaurant messages = %d, want 1", len(sent))
	}
	if sent[0].contactID != "5521990010002" {
		t.Fatalf("dispatched to %q", sent[0].contactID)
	}
	summary := sent[0].text
	for _, want := range []string{"quero uma pizza calabresa grande", "Rua das Flores, 120", "21999998888", "Pix"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary missing %q:\n%s", want, summary)
		}
	}
	if strings.Contains(summary, "Troco") {
		t.Fatalf("summary has a change line for pix:\n%s", summary)
	}

	sess = h.session(t, sid)
	if sess.Stage != statex.StageOrderSent || sess.OrderID != "order-1" {
		t.Fatalf("session = stage %q order %q", sess.Stage, sess.OrderID)
	}
	order, err := h.backend.OrderStore().Get(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("Get(order-1) error = %v", err)
	}
	if order.Status != statex.StatusOrderSent {
		t.Fatalf("order status = %q, want order_sent", order.Status)
	}
}

func TestConcurrentCompletionSchedulesOneDiscovery(t *testing.T) {
	t.Parallel()

	disc := &countingDiscoverer{}
	h := newHarness(t, disc)
	const sid = "session-race"

	seed := statex.NewSession(sid, time.Now())
	seed.OrderData = statex.OrderData{
		Food:      "quero um hambúrguer",
		Address:   "Rua A, 10, Centro",
		ContactID: "21999999999",
	}
	if err := h.backend.SessionStore().Save(context.Background(), seed); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var wg sync.WaitGroup
	for _, msg := range []string{"vou pagar no pix", "pode ser pix"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.orch.HandleChat(context.Background(), sid, msg, nil); err != nil {
				t.Errorf("HandleChat(%q) error = %v", msg, err)
			}
		}()
	}
	wg.Wait()
	h.sched.Wait()

	if got := disc.calls.Load(); got != 1 {
		t.Fatalf("discovery runs = %d, want 1", got)
	}
	if got := h.session(t, sid).Stage; got != statex.StageRestaurantsPresented {
		t.Fatalf("stage = %q, want restaurants_presented", got)
	}
}

func TestHistorySeedsUnknownSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &countingDiscoverer{})
	seed := []nodex.HistoryMessage{
		{Role: "user", Content: "quero um sushi combinado"},
		{Role: "assistant", Content: "Anotado! Qual é o endereço completo para entrega?"},
		{Role: "user", Content: "Av. Atlântica, 500, Copacabana"},
	}

	if _, err := h.orch.HandleChat(context.Background(), "seeded", "Av. Atlântica, 500, Copacabana", seed); err != nil {
		t.Fatalf("HandleChat() error = %v", err)
	}

	sess := h.session(t, "seeded")
	// two seeded turns, the current message and the reply
	if len(sess.Turns) != 4 {
		t.Fatalf("turns = %d, want 4", len(sess.Turns))
	}
	if sess.OrderData.Address != "Av. Atlântica, 500, Copacabana" {
		t.Fatalf("address = %q", sess.OrderData.Address)
	}
}

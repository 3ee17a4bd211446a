package orchestratornode

import (
	"context"
	"errors"
	"testing"
	"time"

	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	statex "github.com/tanpawarit/chative-order-relay/agent/state"
)

var testCandidates = []statex.Candidate{
	{Name: "Pizzaria Bella", ContactID: "5521990010001"},
	{Name: "Cantinho Express", ContactID: "5521990010002"},
	{Name: "Sushi Kento", ContactID: "5521990010003"},
}

func TestParseSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want int
	}{
		{"1", 0},
		{"quero o 3", 2},
		{"opção 2!", 1},
		{"a segunda", 1},
		{"pode ser o terceiro", 2},
		{"vou de cantinho express", 1},
		{"SUSHI KENTO por favor", 2},
	}
	for _, tt := range tests {
		got, err := ParseSelection(tt.text, testCandidates)
		if err != nil {
			t.Fatalf("ParseSelection(%q) error = %v", tt.text, err)
		}
		if got != tt.want {
			t.Fatalf("ParseSelection(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}

	for _, text := range []string{"4", "0", "nenhum desses", ""} {
		if _, err := ParseSelection(text, testCandidates); !errors.Is(err, contractx.ErrInvalidSelection) {
			t.Fatalf("ParseSelection(%q) error = %v, want ErrInvalidSelection", text, err)
		}
	}
}

func TestValidateRequestTrims(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	st, err := ValidateRequest(GraphInput{SessionID: " s1 ", Text: "  oi  "}, func() time.Time { return now })
	if err != nil {
		t.Fatalf("ValidateRequest() error = %v", err)
	}
	if st.SessionID != "s1" || st.Text != "oi" || !st.Now.Equal(now) {
		t.Fatalf("state = %#v", st)
	}
}

func TestLoadOrCreateSessionSeedsHistoryOnce(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore().SessionStore()
	in := &GraphState{
		SessionID: "s1",
		Text:      "Rua A, 10",
		Now:       time.Now(),
		History: []HistoryMessage{
			{Role: "user", Content: "quero pizza"},
			{Role: "assistant", Content: "Qual o endereço?"},
			{Role: "user", Content: "Rua A, 10"},
		},
	}

	out, err := LoadOrCreateSession(context.Background(), in, store)
	if err != nil {
		t.Fatalf("LoadOrCreateSession() error = %v", err)
	}
	if len(out.Session.Turns) != 2 {
		t.Fatalf("turns = %d, want 2 (trailing duplicate dropped)", len(out.Session.Turns))
	}
	if out.Session.Turns[1].Role != statex.RoleAssistant {
		t.Fatalf("second turn role = %q", out.Session.Turns[1].Role)
	}

	if err := store.Save(context.Background(), out.Session); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	again, err := LoadOrCreateSession(context.Background(), &GraphState{SessionID: "s1", Text: "x", History: in.History}, store)
	if err != nil {
		t.Fatalf("second LoadOrCreateSession() error = %v", err)
	}
	if len(again.Session.Turns) != 2 {
		t.Fatalf("history applied to a known session: %d turns", len(again.Session.Turns))
	}
}

func TestExtractOrderStartsDiscoveryOnce(t *testing.T) {
	t.Parallel()

	sess := statex.NewSession("s1", time.Now())
	sess.OrderData = statex.OrderData{Food: "pizza", Address: "Rua A, 10", ContactID: "21999999999"}
	in := &GraphState{SessionID: "s1", Text: "pix", Now: time.Now(), Session: sess}

	out, err := ExtractOrder(in)
	if err != nil {
		t.Fatalf("ExtractOrder() error = %v", err)
	}
	if !out.StartDiscovery || sess.Stage != statex.StageSearchingRestaurant {
		t.Fatalf("first completion: start=%v stage=%q", out.StartDiscovery, sess.Stage)
	}
	if sess.Discovery.Status != statex.DiscoveryPending {
		t.Fatalf("discovery status = %q, want pending", sess.Discovery.Status)
	}

	next := &GraphState{SessionID: "s1", Text: "pix de novo", Now: time.Now(), Session: sess}
	out, err = ExtractOrder(next)
	if err != nil {
		t.Fatalf("second ExtractOrder() error = %v", err)
	}
	if out.StartDiscovery {
		t.Fatalf("discovery started twice")
	}
}

func TestHandleSelectionContactBusy(t *testing.T) {
	t.Parallel()

	orders := statex.NewMemoryStore().OrderStore()
	now := time.Now()
	holder := statex.NewOrder("other", "s0", testCandidates[0], statex.OrderData{}, now)
	if err := orders.Create(context.Background(), holder); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	sess := statex.NewSession("s1", now)
	sess.Candidates = testCandidates
	for _, stage := range []statex.Stage{statex.StageSearchingRestaurant, statex.StageRestaurantsPresented} {
		if err := sess.Advance(stage, now); err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
	}

	in := &GraphState{SessionID: "s1", Text: "1", Now: now, Session: sess}
	out, err := HandleSelection(context.Background(), in, orders, func() string { return "mine" })
	if err != nil {
		t.Fatalf("HandleSelection() error = %v", err)
	}
	if out.Dispatch != nil || sess.Stage != statex.StageAwaitingSelection {
		t.Fatalf("busy contact produced an order: stage=%q", sess.Stage)
	}
	if out.Reply == "" {
		t.Fatalf("reply is empty")
	}

	in = &GraphState{SessionID: "s1", Text: "2", Now: now, Session: sess}
	out, err = HandleSelection(context.Background(), in, orders, func() string { return "mine" })
	if err != nil {
		t.Fatalf("HandleSelection() error = %v", err)
	}
	if out.Dispatch == nil || out.Dispatch.Restaurant.ContactID != "5521990010002" {
		t.Fatalf("dispatch = %#v", out.Dispatch)
	}
	if sess.Stage != statex.StageOrderSent || sess.OrderID != "mine" {
		t.Fatalf("session = stage %q order %q", sess.Stage, sess.OrderID)
	}
}

type failingSessionStore struct {
	statex.SessionStore
}

func (failingSessionStore) Save(ctx context.Context, st *statex.Session) error {
	return errors.New("store unavailable")
}

func TestSaveSessionFailureRollsBackOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	orders := statex.NewMemoryStore().OrderStore()
	now := time.Now()

	sess := statex.NewSession("s1", now)
	sess.Candidates = testCandidates
	for _, stage := range []statex.Stage{statex.StageSearchingRestaurant, statex.StageRestaurantsPresented} {
		if err := sess.Advance(stage, now); err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
	}

	in := &GraphState{SessionID: "s1", Text: "1", Now: now, Session: sess}
	in, err := HandleSelection(ctx, in, orders, func() string { return "o1" })
	if err != nil || in.Dispatch == nil {
		t.Fatalf("HandleSelection() = %#v, %v", in, err)
	}

	if _, err := SaveSession(ctx, in, failingSessionStore{}, orders); err == nil {
		t.Fatal("SaveSession() error = nil, want store failure")
	}
	if in.Dispatch != nil {
		t.Fatal("failed save still carries the order to dispatch")
	}
	if _, err := orders.GetByContact(ctx, testCandidates[0].ContactID); !errors.Is(err, statex.ErrOrderNotFound) {
		t.Fatalf("GetByContact() error = %v, want contact released", err)
	}
	retry := statex.NewOrder("o2", "s1", testCandidates[0], statex.OrderData{}, now)
	if err := orders.Create(ctx, retry); err != nil {
		t.Fatalf("Create() on released contact error = %v", err)
	}
}

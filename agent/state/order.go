package state

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type OrderStatus string

const (
	StatusRestaurantsFound      OrderStatus = "restaurants_found"
	StatusOrderSent             OrderStatus = "order_sent"
	StatusWaitingClientResponse OrderStatus = "waiting_client_response"
	StatusConfirmed             OrderStatus = "confirmed"
	StatusPreparing             OrderStatus = "preparing"
	StatusOutForDelivery        OrderStatus = "out_for_delivery"
)

// milestone rank; waiting_client_response shares the negotiation rank of order_sent.
var statusRank = map[OrderStatus]int{
	StatusRestaurantsFound:      0,
	StatusOrderSent:             1,
	StatusWaitingClientResponse: 1,
	StatusConfirmed:             2,
	StatusPreparing:             3,
	StatusOutForDelivery:        4,
}

type ConversationRole string

const (
	RoleClientProxy ConversationRole = "client_proxy"
	RoleRestaurant  ConversationRole = "restaurant"
)

type ConversationTurn struct {
	Role ConversationRole `json:"role"`
	Text string           `json:"text"`
	At   time.Time        `json:"at"`
}

// Order binds a session to the restaurant it chose plus the negotiation that followed.
type Order struct {
	OrderID    string    `json:"order_id"`
	SessionID  string    `json:"session_id"`
	Restaurant Candidate `json:"restaurant"`
	OrderData  OrderData `json:"order_data"`

	Status          OrderStatus        `json:"status"`
	Conversation    []ConversationTurn `json:"conversation,omitempty"`
	PendingQuestion string             `json:"pending_question,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrInvalidStatus = errors.New("invalid order status transition")
	ErrNilOrder      = errors.New("order is nil")
)

func NewOrder(orderID, sessionID string, restaurant Candidate, data OrderData, now time.Time) *Order {
	return &Order{
		OrderID:    orderID,
		SessionID:  sessionID,
		Restaurant: restaurant,
		OrderData:  data,
		Status:     StatusRestaurantsFound,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
}

// IsOpen reports whether the order still owns its restaurant contact for reply routing.
func (o *Order) IsOpen() bool {
	return o != nil && statusRank[o.Status] < statusRank[StatusOutForDelivery]
}

func (o *Order) AppendTurn(role ConversationRole, text string, now time.Time) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	o.Conversation = append(o.Conversation, ConversationTurn{Role: role, Text: text, At: now.UTC()})
	o.UpdatedAt = now.UTC()
}

// LastTurns returns at most n of the most recent conversation turns.
func (o *Order) LastTurns(n int) []ConversationTurn {
	if n <= 0 || len(o.Conversation) == 0 {
		return nil
	}
	if len(o.Conversation) <= n {
		return append([]ConversationTurn(nil), o.Conversation...)
	}
	return append([]ConversationTurn(nil), o.Conversation[len(o.Conversation)-n:]...)
}

// SetStatus applies a transition. It reports false without error when the
// target is behind the current milestone, which happens on late restaurant
// messages and is not a failure.
func (o *Order) SetStatus(to OrderStatus, now time.Time) (bool, error) {
	toRank, ok := statusRank[to]
	if !ok {
		return false, fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, to)
	}
	if o.Status == to {
		return false, nil
	}
	fromRank := statusRank[o.Status]
	if toRank < fromRank {
		return false, nil
	}
	if o.Status == StatusRestaurantsFound && to != StatusOrderSent {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = now.UTC()
	return true, nil
}

// AskClient records a restaurant question for the user. Before any milestone
// the order also enters waiting_client_response; past one the status stays
// where it is and the pending question alone marks the hand-off.
func (o *Order) AskClient(question string, now time.Time) error {
	if statusRank[o.Status] == statusRank[StatusOrderSent] {
		o.Status = StatusWaitingClientResponse
	}
	o.PendingQuestion = strings.TrimSpace(question)
	o.UpdatedAt = now.UTC()
	return nil
}

// AwaitingClient reports whether the user's next chat message answers the restaurant.
func (o *Order) AwaitingClient() bool {
	return o.Status == StatusWaitingClientResponse || o.PendingQuestion != ""
}

// ResolveQuestion clears the pending question once the user's answer was relayed.
func (o *Order) ResolveQuestion(now time.Time) {
	o.PendingQuestion = ""
	if o.Status == StatusWaitingClientResponse {
		o.Status = StatusOrderSent
	}
	o.UpdatedAt = now.UTC()
}

func (o *Order) Validate() error {
	if o == nil {
		return ErrNilOrder
	}
	if strings.TrimSpace(o.OrderID) == "" {
		return fmt.Errorf("%w: order id is empty", ErrInvalidOrder)
	}
	if strings.TrimSpace(o.Restaurant.ContactID) == "" {
		return fmt.Errorf("%w: restaurant contact id is empty", ErrInvalidOrder)
	}
	if _, ok := statusRank[o.Status]; !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, o.Status)
	}
	return nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Conversation = append([]ConversationTurn(nil), o.Conversation...)
	return &cp
}

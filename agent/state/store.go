package state

import (
	"context"
	"errors"
	"time"
)

var (
	ErrStateNotFound   = errors.New("session state not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrNilSessionState = errors.New("session state is nil")
	ErrInvalidSession  = errors.New("session id is empty")
	ErrInvalidOrder    = errors.New("order is invalid")
	ErrContactInUse    = errors.New("restaurant contact is bound to another open order")
	ErrMailboxEmpty    = errors.New("no pending message")
)

// SessionStore is the persistence contract for in-progress chats.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, st *Session) error
	Delete(ctx context.Context, sessionID string) error
}

// OrderStore keeps placed orders, indexed by id, session and open restaurant contact.
type OrderStore interface {
	// Create fails with ErrContactInUse when another open order holds the contact.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, orderID string) (*Order, error)
	GetBySession(ctx context.Context, sessionID string) (*Order, error)
	GetByContact(ctx context.Context, contactID string) (*Order, error)
	// Update persists o and releases the contact index once o is no longer open.
	Update(ctx context.Context, o *Order) error
	// Delete removes the order and every index entry still pointing at it.
	Delete(ctx context.Context, orderID string) error
}

// PendingMessage is a chat-channel message waiting to be polled.
type PendingMessage struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Mailbox queues messages for the poll endpoint; Pop removes what it returns.
type Mailbox interface {
	Push(ctx context.Context, sessionID string, msg PendingMessage) error
	Pop(ctx context.Context, sessionID string) (PendingMessage, error)
}

// Backend bundles the three stores a deployment runs on.
type Backend interface {
	SessionStore() SessionStore
	OrderStore() OrderStore
	Mailbox() Mailbox
	Close() error
}

package state

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryStore keeps everything in process. Values are cloned on the way in
// and out so callers never share pointers with the map.
type MemoryStore struct {
	sessions *xsync.MapOf[string, *Session]
	orders   *xsync.MapOf[string, *Order]
	bySess   *xsync.MapOf[string, string]

	// contact index and order creation must agree with each other
	contactMu sync.Mutex
	byContact map[string]string

	mailboxes *xsync.MapOf[string, []PendingMessage]
}

var (
	_ SessionStore = (*memorySessions)(nil)
	_ OrderStore   = (*memoryOrders)(nil)
	_ Mailbox      = (*memoryMailbox)(nil)
	_ Backend      = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  xsync.NewMapOf[string, *Session](),
		orders:    xsync.NewMapOf[string, *Order](),
		bySess:    xsync.NewMapOf[string, string](),
		byContact: make(map[string]string),
		mailboxes: xsync.NewMapOf[string, []PendingMessage](),
	}
}

func (m *MemoryStore) SessionStore() SessionStore { return (*memorySessions)(m) }
func (m *MemoryStore) OrderStore() OrderStore     { return (*memoryOrders)(m) }
func (m *MemoryStore) Mailbox() Mailbox           { return (*memoryMailbox)(m) }
func (m *MemoryStore) Close() error               { return nil }

type memorySessions MemoryStore

func (m *memorySessions) Load(_ context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}
	st, ok := m.sessions.Load(sessionID)
	if !ok {
		return nil, ErrStateNotFound
	}
	return st.Clone(), nil
}

func (m *memorySessions) Save(_ context.Context, st *Session) error {
	if st == nil {
		return ErrNilSessionState
	}
	if strings.TrimSpace(st.SessionID) == "" {
		return ErrInvalidSession
	}
	if st.LastActiveAt.IsZero() {
		st.LastActiveAt = time.Now().UTC()
	}
	m.sessions.Store(st.SessionID, st.Clone())
	return nil
}

func (m *memorySessions) Delete(_ context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	m.sessions.Delete(sessionID)
	return nil
}

type memoryOrders MemoryStore

func (m *memoryOrders) Create(_ context.Context, o *Order) error {
	if err := o.Validate(); err != nil {
		return err
	}

	m.contactMu.Lock()
	defer m.contactMu.Unlock()

	contact := o.Restaurant.ContactID
	if holder, ok := m.byContact[contact]; ok && holder != o.OrderID {
		return ErrContactInUse
	}
	if o.IsOpen() {
		m.byContact[contact] = o.OrderID
	}
	m.orders.Store(o.OrderID, o.Clone())
	m.bySess.Store(o.SessionID, o.OrderID)
	return nil
}

func (m *memoryOrders) Get(_ context.Context, orderID string) (*Order, error) {
	o, ok := m.orders.Load(orderID)
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (m *memoryOrders) GetBySession(ctx context.Context, sessionID string) (*Order, error) {
	orderID, ok := m.bySess.Load(sessionID)
	if !ok {
		return nil, ErrOrderNotFound
	}
	return m.Get(ctx, orderID)
}

func (m *memoryOrders) GetByContact(ctx context.Context, contactID string) (*Order, error) {
	m.contactMu.Lock()
	orderID, ok := m.byContact[contactID]
	m.contactMu.Unlock()
	if !ok {
		return nil, ErrOrderNotFound
	}
	return m.Get(ctx, orderID)
}

func (m *memoryOrders) Update(_ context.Context, o *Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if _, ok := m.orders.Load(o.OrderID); !ok {
		return ErrOrderNotFound
	}

	m.contactMu.Lock()
	defer m.contactMu.Unlock()

	m.orders.Store(o.OrderID, o.Clone())
	if !o.IsOpen() && m.byContact[o.Restaurant.ContactID] == o.OrderID {
		delete(m.byContact, o.Restaurant.ContactID)
	}
	return nil
}

func (m *memoryOrders) Delete(_ context.Context, orderID string) error {
	o, ok := m.orders.LoadAndDelete(orderID)
	if !ok {
		return nil
	}

	m.contactMu.Lock()
	if m.byContact[o.Restaurant.ContactID] == orderID {
		delete(m.byContact, o.Restaurant.ContactID)
	}
	m.contactMu.Unlock()

	m.bySess.Compute(o.SessionID, func(id string, loaded bool) (string, bool) {
		return id, !loaded || id == orderID
	})
	return nil
}

type memoryMailbox MemoryStore

func (m *memoryMailbox) Push(_ context.Context, sessionID string, msg PendingMessage) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	m.mailboxes.Compute(sessionID, func(queue []PendingMessage, _ bool) ([]PendingMessage, bool) {
		return append(append([]PendingMessage(nil), queue...), msg), false
	})
	return nil
}

func (m *memoryMailbox) Pop(_ context.Context, sessionID string) (PendingMessage, error) {
	var (
		head  PendingMessage
		found bool
	)
	m.mailboxes.Compute(sessionID, func(queue []PendingMessage, loaded bool) ([]PendingMessage, bool) {
		if !loaded || len(queue) == 0 {
			return nil, true
		}
		head, found = queue[0], true
		rest := append([]PendingMessage(nil), queue[1:]...)
		return rest, len(rest) == 0
	})
	if !found {
		return PendingMessage{}, ErrMailboxEmpty
	}
	return head, nil
}

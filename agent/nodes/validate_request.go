package orchestratornode

import (
	"errors"
	"strings"
	"time"

	statex "github.com/tanpawarit/chative-order-relay/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("session id is empty")
)

// HistoryMessage is a prior chat message supplied by the client channel.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GraphInput struct {
	SessionID string
	Text      string
	History   []HistoryMessage
}

type GraphOutput struct {
	SessionID string
	Reply     string
}

// Relay is a message for the restaurant produced during a chat turn.
type Relay struct {
	OrderID   string
	ContactID string
	Text      string
}

type GraphState struct {
	SessionID string
	Text      string
	History   []HistoryMessage
	Now       time.Time

	Session *statex.Session

	Reply string

	// effects run once the session is saved
	StartDiscovery bool
	Dispatch       *statex.Order
	Relay          *Relay
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		SessionID: sessionID,
		Text:      text,
		History:   in.History,
		Now:       nowFn().UTC(),
	}, nil
}

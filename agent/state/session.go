package state

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Session is one end-user conversation and the order fields extracted from it.
// - Fields: OrderData is filled first-write-wins by the extractor.
// - Progress: Stage only moves forward, one step at a time.
type Session struct {
	// Identity
	SessionID string `json:"session_id"`

	Turns     []Turn    `json:"turns,omitempty"`
	OrderData OrderData `json:"order_data"`
	Stage     Stage     `json:"stage"`

	// Discovery
	Discovery  Discovery   `json:"discovery"`
	Candidates []Candidate `json:"candidates,omitempty"`
	OrderID    string      `json:"order_id,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type Stage string

const (
	StageInitial              Stage = "initial"
	StageSearchingRestaurant  Stage = "searching_restaurant"
	StageRestaurantsPresented Stage = "restaurants_presented"
	StageAwaitingSelection    Stage = "awaiting_selection"
	StageOrderSent            Stage = "order_sent"
)

var stageOrder = []Stage{
	StageInitial,
	StageSearchingRestaurant,
	StageRestaurantsPresented,
	StageAwaitingSelection,
	StageOrderSent,
}

type PaymentMethod string

const (
	PaymentUnset PaymentMethod = ""
	PaymentCash  PaymentMethod = "cash"
	PaymentCard  PaymentMethod = "card"
	PaymentPix   PaymentMethod = "pix"
)

type OrderData struct {
	Food          string        `json:"food,omitempty"`
	Address       string        `json:"address,omitempty"`
	ContactID     string        `json:"contact_id,omitempty"`
	PaymentMethod PaymentMethod `json:"payment_method,omitempty"`
	Change        string        `json:"change,omitempty"`
	Notes         string        `json:"notes,omitempty"`
}

// IsComplete reports whether the order can be placed: food, address, contact
// and payment are set, and cash payments also carry a change amount.
func (d OrderData) IsComplete() bool {
	if d.Food == "" || d.Address == "" || d.ContactID == "" || d.PaymentMethod == PaymentUnset {
		return false
	}
	return d.PaymentMethod != PaymentCash || d.Change != ""
}

// Missing lists the unset fields in the order they are asked for.
func (d OrderData) Missing() []string {
	var missing []string
	if d.Food == "" {
		missing = append(missing, "food")
	}
	if d.Address == "" {
		missing = append(missing, "address")
	}
	if d.ContactID == "" {
		missing = append(missing, "contact")
	}
	if d.PaymentMethod == PaymentUnset {
		missing = append(missing, "payment")
	} else if d.PaymentMethod == PaymentCash && d.Change == "" {
		missing = append(missing, "change")
	}
	return missing
}

type Provenance string

const (
	ProvenanceGenerated Provenance = "generated"
	ProvenanceScraped   Provenance = "scraped"
	ProvenanceFallback  Provenance = "fallback"
)

// Candidate is a discovered restaurant with a usable contact id.
type Candidate struct {
	Name          string     `json:"name"`
	ContactID     string     `json:"contact_id"`
	Specialty     string     `json:"specialty,omitempty"`
	EstimatedTime string     `json:"estimated_time,omitempty"`
	PriceRange    string     `json:"price_range,omitempty"`
	Rating        float64    `json:"rating,omitempty"`
	Link          string     `json:"link,omitempty"`
	Provenance    Provenance `json:"provenance"`
}

type DiscoveryStatus string

const (
	DiscoveryIdle    DiscoveryStatus = ""
	DiscoveryPending DiscoveryStatus = "pending"
	DiscoveryDone    DiscoveryStatus = "done"
	DiscoveryFailed  DiscoveryStatus = "failed"
)

// Discovery records the outcome of the background restaurant search.
type Discovery struct {
	Status     DiscoveryStatus `json:"status,omitempty"`
	StartedAt  time.Time       `json:"started_at,omitempty"`
	FinishedAt time.Time       `json:"finished_at,omitempty"`
	Provenance Provenance      `json:"provenance,omitempty"`
	Error      string          `json:"error,omitempty"`
}

/* -------------------------- Session helpers ------------------------- */

var (
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrEmptyTurn         = errors.New("turn text is empty")
)

func NewSession(sessionID string, now time.Time) *Session {
	return &Session{
		SessionID:    sessionID,
		Stage:        StageInitial,
		CreatedAt:    now.UTC(),
		LastActiveAt: now.UTC(),
	}
}

func (s *Session) Touch(now time.Time) {
	s.LastActiveAt = now.UTC()
}

func (s *Session) AppendTurn(role Role, text string, now time.Time) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyTurn
	}
	s.Turns = append(s.Turns, Turn{Role: role, Text: text, At: now.UTC()})
	s.Touch(now)
	return nil
}

// UserHistory joins every user turn, oldest first.
func (s *Session) UserHistory() string {
	parts := make([]string, 0, len(s.Turns))
	for _, t := range s.Turns {
		if t.Role == RoleUser {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Advance moves the session exactly one stage forward.
func (s *Session) Advance(to Stage, now time.Time) error {
	from := stageIndex(s.Stage)
	target := stageIndex(to)
	if from < 0 || target < 0 || target != from+1 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Stage, to)
	}
	s.Stage = to
	s.Touch(now)
	return nil
}

func (s *Session) Validate() error {
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	if stageIndex(s.Stage) < 0 {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidTransition, s.Stage)
	}
	if s.Stage == StageOrderSent && s.OrderID == "" {
		return fmt.Errorf("%w: order_sent without order id", ErrInvalidTransition)
	}
	return nil
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Turns = append([]Turn(nil), s.Turns...)
	cp.Candidates = append([]Candidate(nil), s.Candidates...)
	return &cp
}

func stageIndex(stage Stage) int {
	for i, st := range stageOrder {
		if st == stage {
			return i
		}
	}
	return -1
}

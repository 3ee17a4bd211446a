package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	conversationx "github.com/tanpawarit/chative-order-relay/agent/conversation"
	statex "github.com/tanpawarit/chative-order-relay/agent/state"
)

// HandleSelection turns the user's choice into an order. A message arriving
// while the list is still unseen counts as the list having been presented.
func HandleSelection(
	ctx context.Context,
	in *GraphState,
	orders statex.OrderStore,
	newID func() string,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	sess := in.Session

	if sess.Stage == statex.StageRestaurantsPresented {
		if err := sess.Advance(statex.StageAwaitingSelection, in.Now); err != nil {
			return nil, err
		}
	}
	if sess.Stage != statex.StageAwaitingSelection {
		return in, nil
	}

	idx, err := ParseSelection(in.Text, sess.Candidates)
	if err != nil {
		in.Reply = conversationx.InvalidSelection(sess.Candidates)
		return in, nil
	}
	chosen := sess.Candidates[idx]

	order := statex.NewOrder(newID(), sess.SessionID, chosen, sess.OrderData, in.Now)
	if _, err := order.SetStatus(statex.StatusOrderSent, in.Now); err != nil {
		return nil, err
	}
	if err := orders.Create(ctx, order); err != nil {
		if errors.Is(err, statex.ErrContactInUse) {
			in.Reply = conversationx.ContactBusy(chosen, sess.Candidates)
			return in, nil
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	sess.OrderID = order.OrderID
	if err := sess.Advance(statex.StageOrderSent, in.Now); err != nil {
		return nil, err
	}
	in.Dispatch = order
	in.Reply = conversationx.OrderPlaced(chosen)
	return in, nil
}

var ordinals = map[string]int{
	"primeiro": 0, "primeira": 0,
	"segundo": 1, "segunda": 1, "dois": 1, "duas": 1,
	"terceiro": 2, "terceira": 2, "três": 2, "tres": 2,
}

// ParseSelection matches text against the candidate list, by position
// (1-based number or ordinal word) or by restaurant name.
func ParseSelection(text string, candidates []statex.Candidate) (int, error) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" || len(candidates) == 0 {
		return 0, contractx.ErrInvalidSelection
	}

	for i, c := range candidates {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name != "" && strings.Contains(lower, name) {
			return i, nil
		}
	}

	for _, field := range strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?' || r == 'º' || r == 'ª' || r == '#'
	}) {
		if n, err := strconv.Atoi(field); err == nil {
			if n >= 1 && n <= len(candidates) {
				return n - 1, nil
			}
			return 0, fmt.Errorf("%w: option %d out of range", contractx.ErrInvalidSelection, n)
		}
		if idx, ok := ordinals[field]; ok && idx < len(candidates) {
			return idx, nil
		}
	}
	return 0, contractx.ErrInvalidSelection
}

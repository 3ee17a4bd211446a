package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	statex "github.com/tanpawarit/chative-order-relay/agent/state"
)

func LoadOrCreateSession(
	ctx context.Context,
	in *GraphState,
	store statex.SessionStore,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	sess, err := store.Load(ctx, in.SessionID)
	switch {
	case err == nil:
	case errors.Is(err, statex.ErrStateNotFound):
		sess = statex.NewSession(in.SessionID, in.Now)
		seedHistory(sess, in)
	default:
		return nil, err
	}

	in.Session = sess
	return in, nil
}

// seedHistory copies client-side history into a new session, leaving out a
// trailing copy of the current message.
func seedHistory(sess *statex.Session, in *GraphState) {
	history := in.History
	if n := len(history); n > 0 {
		last := history[n-1]
		if strings.EqualFold(last.Role, string(statex.RoleUser)) && strings.TrimSpace(last.Content) == in.Text {
			history = history[:n-1]
		}
	}
	for _, m := range history {
		role := statex.RoleUser
		if strings.EqualFold(m.Role, string(statex.RoleAssistant)) {
			role = statex.RoleAssistant
		}
		_ = sess.AppendTurn(role, m.Content, in.Now)
	}
}

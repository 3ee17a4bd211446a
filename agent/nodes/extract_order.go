package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	extractx "github.com/tanpawarit/chative-order-relay/agent/extract"
	statex "github.com/tanpawarit/chative-order-relay/agent/state"
)

func AppendUserTurn(in *GraphState) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	if err := in.Session.AppendTurn(statex.RoleUser, in.Text, in.Now); err != nil {
		return nil, err
	}
	return in, nil
}

// ExtractOrder runs the extractor while the session is still collecting
// fields and starts discovery the first time the order is complete.
func ExtractOrder(in *GraphState) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	sess := in.Session
	if sess.Stage != statex.StageInitial {
		return in, nil
	}

	sess.OrderData = extractx.Extract(sess.OrderData, sess.UserHistory(), in.Text)
	if !sess.OrderData.IsComplete() {
		return in, nil
	}

	if err := sess.Advance(statex.StageSearchingRestaurant, in.Now); err != nil {
		return nil, err
	}
	sess.Discovery = statex.Discovery{Status: statex.DiscoveryPending, StartedAt: in.Now}
	in.StartDiscovery = true
	return in, nil
}

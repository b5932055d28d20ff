package stream

import "market-feedv1/internal/model"

// subscribeArg is one entry of a subscribe request's args array. Business
// endpoints additionally require the instrument type.
type subscribeArg struct {
	Channel  string `json:"channel"`
	InstID   string `json:"instId"`
	InstType string `json:"instType,omitempty"`
}

// subscribeRequest is the venue's subscription envelope. It must not carry a
// top-level id field: the business endpoints reject requests that include one
// with a parameter-validation error.
type subscribeRequest struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

// newSubscribeRequest builds the subscription payload for a target on the
// given endpoint variant.
func newSubscribeRequest(target model.SubscriptionTarget, variant model.EndpointVariant) subscribeRequest {
	arg := subscribeArg{
		Channel: target.Interval.Channel(),
		InstID:  target.Symbol,
	}
	if variant == model.VariantBusiness {
		arg.InstType = "SPOT"
	}
	return subscribeRequest{Op: "subscribe", Args: []subscribeArg{arg}}
}

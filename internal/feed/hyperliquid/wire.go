package hyperliquid

import "encoding/json"

// subscription is the wire-level subscription descriptor. NSigFigs must be
// omitted entirely when no precision was requested; the venue treats an
// explicit zero differently from an absent field.
type subscription struct {
	Type    string `json:"type"`
	Coin    string `json:"coin"`
	SigFigs *int   `json:"nSigFigs,omitempty"`
}

// request is an outbound control message.
type request struct {
	Method       string       `json:"method"`
	Subscription subscription `json:"subscription"`
}

const (
	methodSubscribe   = "subscribe"
	methodUnsubscribe = "unsubscribe"
	subscriptionType  = "l2Book"
)

func subscribeMsg(coin string, sigFigs *int) []byte {
	return marshalRequest(methodSubscribe, coin, sigFigs)
}

func unsubscribeMsg(coin string, sigFigs *int) []byte {
	return marshalRequest(methodUnsubscribe, coin, sigFigs)
}

func marshalRequest(method, coin string, sigFigs *int) []byte {
	b, _ := json.Marshal(request{
		Method: method,
		Subscription: subscription{
			Type:    subscriptionType,
			Coin:    coin,
			SigFigs: sigFigs,
		},
	})
	return b
}

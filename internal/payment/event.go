package payment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
)

// MetaPaymentIntent is the Source metadata key that points back at the intent
// the source was created for.
const MetaPaymentIntent = "paymentIntent"

// Event is a classified webhook delivery. The set of implementations is
// closed; anything unrecognised becomes Unhandled.
type Event interface {
	Kind() string
	isEvent()
}

// IntentSucceeded reports a payment intent reaching succeeded.
type IntentSucceeded struct {
	EventID  string
	IntentID string
}

// IntentPaymentFailed reports a failed payment attempt on an intent. Exactly
// one of PaymentMethod and Source is normally set.
type IntentPaymentFailed struct {
	EventID       string
	IntentID      string
	PaymentMethod string
	Source        string
	Message       string
}

// SourceChargeable reports a source correlated to an intent becoming chargeable.
type SourceChargeable struct {
	EventID  string
	SourceID string
	IntentID string
}

// SourceFailed reports a correlated source that failed or was canceled.
type SourceFailed struct {
	EventID  string
	SourceID string
	IntentID string
	Status   string
}

// Unhandled is any delivery that needs no action.
type Unhandled struct {
	EventID string
	Type    string
	Object  string
}

func (IntentSucceeded) Kind() string     { return "payment_intent.succeeded" }
func (IntentPaymentFailed) Kind() string { return "payment_intent.payment_failed" }
func (SourceChargeable) Kind() string    { return "source.chargeable" }
func (SourceFailed) Kind() string        { return "source.failed" }
func (Unhandled) Kind() string           { return "unhandled" }

func (IntentSucceeded) isEvent()     {}
func (IntentPaymentFailed) isEvent() {}
func (SourceChargeable) isEvent()    {}
func (SourceFailed) isEvent()        {}
func (Unhandled) isEvent()           {}

type idRef struct {
	ID string `json:"id"`
}

// idRef accepts either an expanded object or a bare id string.
func (r *idRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}
	type plain idRef
	return json.Unmarshal(data, (*plain)(r))
}

type eventObject struct {
	Object           string            `json:"object"`
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message       string `json:"message"`
		PaymentMethod *idRef `json:"payment_method"`
		Source        *idRef `json:"source"`
	} `json:"last_payment_error"`
}

// Classify maps a verified event onto the closed Event set, keyed by the kind
// of the embedded object and the event type.
func Classify(evt stripe.Event) (Event, error) {
	fallback := Unhandled{EventID: evt.ID, Type: string(evt.Type)}
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return fallback, nil
	}
	var obj eventObject
	if err := json.Unmarshal(evt.Data.Raw, &obj); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	fallback.Object = obj.Object

	switch obj.Object {
	case "payment_intent":
		switch evt.Type {
		case stripe.EventTypePaymentIntentSucceeded:
			return IntentSucceeded{EventID: evt.ID, IntentID: obj.ID}, nil
		case stripe.EventTypePaymentIntentPaymentFailed:
			out := IntentPaymentFailed{EventID: evt.ID, IntentID: obj.ID}
			if lpe := obj.LastPaymentError; lpe != nil {
				out.Message = lpe.Message
				if lpe.PaymentMethod != nil {
					out.PaymentMethod = lpe.PaymentMethod.ID
				}
				if lpe.Source != nil {
					out.Source = lpe.Source.ID
				}
			}
			return out, nil
		}
	case "source":
		if !strings.HasPrefix(string(evt.Type), "source.") {
			return fallback, nil
		}
		intentID := strings.TrimSpace(obj.Metadata[MetaPaymentIntent])
		if intentID == "" {
			return fallback, nil
		}
		switch obj.Status {
		case "chargeable":
			return SourceChargeable{EventID: evt.ID, SourceID: obj.ID, IntentID: intentID}, nil
		case "failed", "canceled":
			return SourceFailed{EventID: evt.ID, SourceID: obj.ID, IntentID: intentID, Status: obj.Status}, nil
		}
	}
	return fallback, nil
}

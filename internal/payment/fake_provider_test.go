package payment_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/stripe/stripe-go/v84"

	"github.com/noah-isme/stripe-payments-demo/internal/payment"
)

type fakeProvider struct {
	mu      sync.Mutex
	seq     int
	intents map[string]*stripe.PaymentIntent
	calls   map[string][]string
	creates []payment.IntentParams
	updates []payment.IntentParams
	failOn  map[string]error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		intents: map[string]*stripe.PaymentIntent{},
		calls:   map[string][]string{},
		failOn:  map[string]error{},
	}
}

func (f *fakeProvider) record(op, id string) error {
	f.calls[op] = append(f.calls[op], id)
	return f.failOn[op]
}

func (f *fakeProvider) seed(id string, status stripe.PaymentIntentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[id] = &stripe.PaymentIntent{ID: id, Status: status, Metadata: map[string]string{}}
}

func (f *fakeProvider) setStatus(id string, status stripe.PaymentIntentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[id].Status = status
}

func (f *fakeProvider) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[op])
}

func (f *fakeProvider) callIDs(op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls[op]...)
}

// mutations counts every call that writes to the provider.
func (f *fakeProvider) mutations() int {
	return f.count("create") + f.count("update") + f.count("confirm") + f.count("cancel")
}

func (f *fakeProvider) total() int {
	return f.mutations() + f.count("retrieve")
}

func (f *fakeProvider) CreateIntent(_ context.Context, p payment.IntentParams) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("pi_%d", f.seq)
	if err := f.record("create", id); err != nil {
		return nil, err
	}
	f.creates = append(f.creates, p)
	pi := &stripe.PaymentIntent{
		ID:                 id,
		Status:             stripe.PaymentIntentStatusRequiresPaymentMethod,
		Currency:           stripe.Currency(p.Currency),
		PaymentMethodTypes: p.PaymentMethodTypes,
		Metadata:           p.Metadata,
		Description:        p.Description,
	}
	if p.Amount != nil {
		pi.Amount = *p.Amount
	}
	f.intents[id] = pi
	return pi, nil
}

func (f *fakeProvider) UpdateIntent(_ context.Context, id string, p payment.IntentParams) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("update", id); err != nil {
		return nil, err
	}
	f.updates = append(f.updates, p)
	pi, ok := f.intents[id]
	if !ok {
		return nil, &stripe.Error{Code: stripe.ErrorCodeResourceMissing, Msg: "No such payment_intent: '" + id + "'", HTTPStatusCode: 404}
	}
	if p.Amount != nil {
		pi.Amount = *p.Amount
	}
	if p.Currency != "" {
		pi.Currency = stripe.Currency(p.Currency)
	}
	if len(p.PaymentMethodTypes) > 0 {
		pi.PaymentMethodTypes = p.PaymentMethodTypes
	}
	for k, v := range p.Metadata {
		pi.Metadata[k] = v
	}
	return pi, nil
}

func (f *fakeProvider) RetrieveIntent(_ context.Context, id string) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("retrieve", id); err != nil {
		return nil, err
	}
	pi, ok := f.intents[id]
	if !ok {
		return nil, &stripe.Error{Code: stripe.ErrorCodeResourceMissing, Msg: "No such payment_intent: '" + id + "'", HTTPStatusCode: 404}
	}
	cp := *pi
	return &cp, nil
}

func (f *fakeProvider) ConfirmIntent(_ context.Context, id, _ string) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("confirm", id); err != nil {
		return nil, err
	}
	pi := f.intents[id]
	pi.Status = stripe.PaymentIntentStatusSucceeded
	return pi, nil
}

func (f *fakeProvider) CancelIntent(_ context.Context, id string) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("cancel", id); err != nil {
		return nil, err
	}
	pi, ok := f.intents[id]
	if !ok {
		pi = &stripe.PaymentIntent{ID: id}
		f.intents[id] = pi
	}
	pi.Status = stripe.PaymentIntentStatusCanceled
	return pi, nil
}

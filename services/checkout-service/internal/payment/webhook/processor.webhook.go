package webhook

import (
	"errors"
	"fmt"

	"github.com/rfay/uc-stripe/services/checkout-service/internal/payment"
)

var ErrUnknownProvider = errors.New("no webhook processor registered for provider")

type Processor interface {
	Provider() string
	// VerifyAndParse checks the signature carried in headers against the raw
	// body. It returns (nil, nil) for event types nobody cares about.
	VerifyAndParse(payload []byte, headers map[string]string) (*payment.NormalizedEvent, error)
}

// Registry looks processors up by the provider segment of the webhook URL.
type Registry struct {
	processors map[string]Processor
}

func NewRegistry(processors ...Processor) *Registry {
	r := &Registry{processors: make(map[string]Processor, len(processors))}
	for _, p := range processors {
		r.processors[p.Provider()] = p
	}
	return r
}

func (r *Registry) Get(provider string) (Processor, error) {
	p, ok := r.processors[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return p, nil
}

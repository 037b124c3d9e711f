package otel

import (
	"context"

	"github.com/hugolhafner/go-kcore/kafka"
	"go.opentelemetry.io/otel/propagation"
)

var _ propagation.TextMapCarrier = HeaderCarrier{}

// HeaderCarrier adapts record headers to a propagation.TextMapCarrier.
type HeaderCarrier struct {
	Headers *[]kafka.Header
}

func NewHeaderCarrier(headers *[]kafka.Header) HeaderCarrier {
	return HeaderCarrier{Headers: headers}
}

func (c HeaderCarrier) Get(key string) string {
	for _, h := range *c.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set replaces the first header named key and removes any duplicates, or
// appends a new header.
func (c HeaderCarrier) Set(key, value string) {
	out := (*c.Headers)[:0]
	found := false
	for _, h := range *c.Headers {
		if h.Key != key {
			out = append(out, h)
			continue
		}
		if !found {
			out = append(out, kafka.Header{Key: key, Value: []byte(value)})
			found = true
		}
	}

	if !found {
		out = append(out, kafka.Header{Key: key, Value: []byte(value)})
	}
	*c.Headers = out
}

func (c HeaderCarrier) Keys() []string {
	keys := make([]string, len(*c.Headers))
	for i, h := range *c.Headers {
		keys[i] = h.Key
	}
	return keys
}

// Inject writes the span context of ctx into headers.
func (t *Telemetry) Inject(ctx context.Context, headers *[]kafka.Header) {
	t.Propagator.Inject(ctx, NewHeaderCarrier(headers))
}

// Extract returns ctx enriched with the span context carried by headers.
func (t *Telemetry) Extract(ctx context.Context, headers []kafka.Header) context.Context {
	return t.Propagator.Extract(ctx, NewHeaderCarrier(&headers))
}

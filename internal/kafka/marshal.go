package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/tovarapvp/monarca-next-js-sub000/internal/tracing"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

// Publisher is satisfied by *Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafka.Header)
}

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// UnwrapPayload decodes an envelope payload into its concrete type.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}

// PublishJSON encodes v and publishes it with event metadata and the trace
// context of ctx in the headers.
func PublishJSON(ctx context.Context, p Publisher, key []byte, eventType string, v any) {
	headers := []kafka.Header{
		{Key: HeaderEventType, Value: []byte(eventType)},
		{Key: HeaderEventVersion, Value: []byte("1")},
	}
	p.Publish(key, MustMarshal(v), tracing.InjectKafkaHeaders(ctx, headers)...)
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

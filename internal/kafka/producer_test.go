package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPublishAfterCloseIsDropped(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := NewProducer([]string{"localhost:9092"}, "stock.adjusted", 4, zap.New(core))

	p.Publish([]byte("k1"), []byte("v1"))
	p.Close()
	p.Close()

	assert.NotPanics(t, func() { p.Publish([]byte("k2"), []byte("v2")) })
	assert.Equal(t, 1, logs.FilterMessage("publish after close, message dropped").Len())

	// only the message published before Close is buffered
	var keys []string
	for m := range p.inbox {
		keys = append(keys, string(m.Key))
	}
	assert.Equal(t, []string{"k1"}, keys)
}

package kafka

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func TestNewProducer(t *testing.T) {
	p, err := NewProducer(
		WithBrokers([]string{"localhost:9092"}),
		WithCompression("zstd"),
		WithHashByKey(true),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, kafka.Zstd, p.writer.Compression)
	assert.IsType(t, &kafka.Hash{}, p.writer.Balancer)
	assert.NotNil(t, p.metrics)
}

func TestEncode(t *testing.T) {
	b, err := encode(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))

	b, _ = encode("raw")
	assert.Equal(t, "raw", string(b))

	_, err = encode(make(chan int))
	assert.Error(t, err)
}

package outbox

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestProducerReusesWriterPerTopic(t *testing.T) {
	producer := NewKafkaProducer([]string{"kafka:9092"})

	routeWriter := producer.writerFor("route_events")
	require.Same(t, routeWriter, producer.writerFor("route_events"))
	require.NotSame(t, routeWriter, producer.writerFor("sync_events"))

	require.Equal(t, kafka.RequireAll, routeWriter.RequiredAcks)
	require.IsType(t, &kafka.Hash{}, routeWriter.Balancer, "events must partition by key to keep per-workout order")
}

func TestProducerIgnoresEmptyBatches(t *testing.T) {
	producer := NewKafkaProducer([]string{"kafka:9092"})

	// No broker is reachable in unit tests; an empty batch must short-circuit
	// before any writer is created.
	require.NoError(t, producer.WriteMessages(context.Background(), "route_events"))
	require.Empty(t, producer.writers)
	require.NoError(t, producer.Close())
}

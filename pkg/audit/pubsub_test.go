package audit

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// newTestProducer wires a producer against an in-memory Pub/Sub server.
func newTestProducer(t *testing.T) (*PubSubProducer, *pstest.Server) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	producer, err := NewPubSubProducer(ctx, PubSubConfig{ProjectID: "test-project"}, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = producer.Close() })

	for _, topic := range []string{TopicAuditEvents, TopicActionDispatch, TopicApprovedPatterns} {
		_, err := producer.client.CreateTopic(ctx, topic)
		require.NoError(t, err)
	}
	return producer, srv
}

func TestPubSubProducerPublish(t *testing.T) {
	producer, srv := newTestProducer(t)
	ctx := context.Background()

	ev := NewEvent(EventTechniqueQuarantined, "t1").
		WithInvestigation("inv-1", "A1").
		WithOutcome(map[string]any{"technique_id": "T9999"})
	require.NoError(t, producer.Publish(ctx, ev))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)

	assert.Equal(t, "t1", msgs[0].OrderingKey, "audit stream is keyed by tenant id")
	assert.Equal(t, string(EventTechniqueQuarantined), msgs[0].Attributes["event_type"])
	assert.Equal(t, string(CategorySecurity), msgs[0].Attributes["event_category"])

	var decoded Event
	require.NoError(t, json.Unmarshal(msgs[0].Data, &decoded))
	assert.Equal(t, ev.EventID, decoded.EventID)
	assert.Equal(t, "T9999", decoded.Outcome["technique_id"])
}

func TestPubSubProducerTenantOrdering(t *testing.T) {
	producer, srv := newTestProducer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, producer.Publish(ctx, NewEvent(EventInvestigationState, "t1")))
	}
	require.NoError(t, producer.Publish(ctx, NewEvent(EventInvestigationState, "t2")))

	byKey := map[string]int{}
	for _, m := range srv.Messages() {
		byKey[m.OrderingKey]++
	}
	assert.Equal(t, 3, byKey["t1"])
	assert.Equal(t, 1, byKey["t2"])
}

func TestPubSubProducerSideTopics(t *testing.T) {
	producer, srv := newTestProducer(t)
	ctx := context.Background()

	require.NoError(t, producer.PublishTopic(ctx, TopicActionDispatch, "t1", map[string]any{
		"investigation_id": "inv-1",
		"action":           "isolate_endpoint",
		"tier":             2,
	}))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "t1", msgs[0].Attributes["tenant_id"])

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &payload))
	assert.Equal(t, "isolate_endpoint", payload["action"])
}

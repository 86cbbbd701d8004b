package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/argus-soc/argus/pkg/models"
)

type captureEnqueuer struct {
	mu     sync.Mutex
	alerts []*models.Alert
}

func (c *captureEnqueuer) Enqueue(_ context.Context, alert *models.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *captureEnqueuer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func newTestSubscriber(t *testing.T, queue Enqueuer) (*Subscriber, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)

	topic, err := client.CreateTopic(ctx, "soc-alerts")
	require.NoError(t, err)
	_, err = client.CreateSubscription(ctx, "soc-alerts-sub",
		pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	sub, err := NewSubscriber(ctx,
		SubscriberConfig{ProjectID: "test-project", Subscription: "soc-alerts-sub"},
		queue, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	return sub, topic
}

func TestSubscriberEnqueuesAlerts(t *testing.T) {
	queue := &captureEnqueuer{}
	sub, topic := newTestSubscriber(t, queue)

	alert := models.Alert{
		ID:       "alert-1",
		TenantID: "acme",
		Source:   "crowdstrike",
		Title:    "Suspicious PowerShell execution",
		Severity: models.SeverityHigh,
	}
	data, err := json.Marshal(alert)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	topic.Publish(ctx, &pubsub.Message{Data: data})

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	require.Eventually(t, func() bool { return queue.count() == 1 },
		5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, "alert-1", queue.alerts[0].ID)
	assert.Equal(t, "acme", queue.alerts[0].TenantID)
}

func TestSubscriberDropsMalformedMessages(t *testing.T) {
	queue := &captureEnqueuer{}
	sub, topic := newTestSubscriber(t, queue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	topic.Publish(ctx, &pubsub.Message{Data: []byte("not json")})
	topic.Publish(ctx, &pubsub.Message{Data: []byte(`{"id": "", "tenant_id": "acme"}`)})
	good, err := json.Marshal(models.Alert{ID: "alert-2", TenantID: "acme"})
	require.NoError(t, err)
	topic.Publish(ctx, &pubsub.Message{Data: good})

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	require.Eventually(t, func() bool { return queue.count() == 1 },
		5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, "alert-2", queue.alerts[0].ID)
}

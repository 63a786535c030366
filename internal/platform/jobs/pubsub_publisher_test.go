package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hanko-field/orderdesk/internal/services"
)

func newTestTopic(t *testing.T, srv *pstest.Server, name string) *pubsub.Topic {
	t.Helper()
	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	topic, err := client.CreateTopic(ctx, name)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	return topic
}

func TestPubSubOrderEventPublisherPublishesMessage(t *testing.T) {
	srv := pstest.NewServer()
	defer srv.Close()

	publisher, err := NewPubSubOrderEventPublisher(newTestTopic(t, srv, "order-mutations"))
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}
	defer publisher.Stop()

	event := services.OrderMutationEvent{
		ID:            "evt-1",
		Type:          services.EventOrdersMutationCompleted,
		Action:        "pack",
		Scope:         "selected",
		OrderIDs:      []string{"ord-1", "ord-2"},
		AffectedCount: 2,
		ActorID:       "staff-7",
		OccurredAt:    time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
	}
	if err := publisher.PublishOrderEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.OrderMutationEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ID != event.ID || payload.AffectedCount != 2 || len(payload.OrderIDs) != 2 {
		t.Fatalf("unexpected payload %#v", payload)
	}
	attrs := messages[0].Attributes
	if attrs["action"] != "pack" || attrs["scope"] != "selected" || attrs["affectedCount"] != "2" {
		t.Fatalf("unexpected attributes %#v", attrs)
	}
	if attrs["actorId"] != "staff-7" {
		t.Fatalf("expected actor attribute, got %q", attrs["actorId"])
	}
}

func TestPubSubOrderEventPublisherOmitsBlankAttributes(t *testing.T) {
	srv := pstest.NewServer()
	defer srv.Close()

	publisher, err := NewPubSubOrderEventPublisher(newTestTopic(t, srv, "order-mutations"))
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}
	defer publisher.Stop()

	event := services.OrderMutationEvent{
		ID:            "evt-2",
		Action:        "cancel",
		Filter:        map[string]any{"status": "processing"},
		AffectedCount: 40,
	}
	if err := publisher.PublishOrderEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	attrs := srv.Messages()[0].Attributes
	if _, ok := attrs["scope"]; ok {
		t.Fatalf("scope attribute should not be present")
	}
	if _, ok := attrs["actorId"]; ok {
		t.Fatalf("actorId attribute should not be present")
	}
}

func TestNewPubSubOrderEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubOrderEventPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
	var publisher *PubSubOrderEventPublisher
	if err := publisher.PublishOrderEvent(context.Background(), services.OrderMutationEvent{}); err == nil {
		t.Fatalf("expected error for nil publisher")
	}
}

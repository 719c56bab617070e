// Package events publishes consent integration events for downstream
// consumers (analytics, tag managers, audit pipelines).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// ConsentSavedEvent is emitted after every successful consent save.
type ConsentSavedEvent struct {
	SessionID       string    `json:"session_id"`
	ClientScope     string    `json:"client_scope"`
	TCString        string    `json:"tc_string"`
	PurposeConsents []int     `json:"purpose_consents"`
	PurposeLegInts  []int     `json:"purpose_legitimate_interests"`
	VendorConsents  []int     `json:"vendor_consents"`
	VendorLegInts   []int     `json:"vendor_legitimate_interests"`
	SavedAt         time.Time `json:"saved_at"`
}

// Publisher emits consent events.
type Publisher interface {
	PublishConsentSaved(ctx context.Context, event ConsentSavedEvent) error
	Close() error
}

// PubSubPublisher publishes consent events to a Pub/Sub topic.
type PubSubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	logger    zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID string
	TopicName string
	Logger    zerolog.Logger
}

// NewPubSubPublisher creates a publisher for the configured topic.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &PubSubPublisher{
		client:    client,
		publisher: client.Publisher(cfg.TopicName),
		logger:    cfg.Logger,
	}, nil
}

// PublishConsentSaved emits one consent-saved event and waits for the
// server acknowledgement.
func (p *PubSubPublisher) PublishConsentSaved(ctx context.Context, event ConsentSavedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal consent saved event: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type": "consent_saved",
		},
	})

	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish consent saved event: %w", err)
	}

	p.logger.Debug().
		Str("message_id", id).
		Str("session_id", event.SessionID).
		Msg("consent saved event published")
	return nil
}

// Close releases the underlying client.
func (p *PubSubPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}

// NoopPublisher drops every event. Used in tests and when eventing is
// disabled by configuration.
type NoopPublisher struct{}

// PublishConsentSaved implements Publisher.
func (NoopPublisher) PublishConsentSaved(context.Context, ConsentSavedEvent) error { return nil }

// Close implements Publisher.
func (NoopPublisher) Close() error { return nil }

var (
	_ Publisher = (*PubSubPublisher)(nil)
	_ Publisher = NoopPublisher{}
)

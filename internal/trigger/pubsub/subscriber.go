// Package pubsub consumes record-created events from a Pub/Sub subscription.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gpubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
)

// Enqueuer accepts decoded trigger events.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev enrich.Event) error
}

// Config selects the subscription and flow control.
type Config struct {
	ProjectID      string
	SubscriptionID string
	MaxOutstanding int
}

// Subscriber acks a message only once its event has been enqueued.
type Subscriber struct {
	sub    *gpubsub.Subscription
	target Enqueuer
	logger *zap.Logger
}

// New builds a Subscriber from an existing client.
func New(client *gpubsub.Client, cfg Config, target Enqueuer, logger *zap.Logger) (*Subscriber, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if strings.TrimSpace(cfg.SubscriptionID) == "" {
		return nil, errors.New("trigger.pubsub.subscription_id is required")
	}
	if target == nil {
		return nil, errors.New("enqueue target is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sub := client.Subscription(cfg.SubscriptionID)
	if cfg.MaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
	}
	return &Subscriber{
		sub:    sub,
		target: target,
		logger: logger.Named("pubsub").With(zap.String("subscription", cfg.SubscriptionID)),
	}, nil
}

// Run receives messages until ctx is canceled.
func (s *Subscriber) Run(ctx context.Context) error {
	s.logger.Info("subscriber started")
	if err := s.sub.Receive(ctx, s.handle); err != nil {
		return fmt.Errorf("receive: %w", err)
	}
	return nil
}

func (s *Subscriber) handle(ctx context.Context, msg *gpubsub.Message) {
	ev, err := enrich.DecodeEvent(msg.Data)
	if err != nil {
		// Redelivery cannot repair a malformed payload.
		s.logger.Warn("dropping malformed event", zap.String("message_id", msg.ID), zap.Error(err))
		msg.Ack()
		return
	}
	if err := s.target.Enqueue(ctx, ev); err != nil {
		s.logger.Warn("enqueue failed; nacking",
			zap.String("message_id", msg.ID),
			zap.String("record_id", ev.RecordID),
			zap.Error(err),
		)
		msg.Nack()
		return
	}
	msg.Ack()
}

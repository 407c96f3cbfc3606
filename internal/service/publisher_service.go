package service

import (
	"context"
	"errors"
	"fmt"

	"travel-intel/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// IPublisherService fans events out to the in-process bus and, when
// configured, to a remote bus.
type IPublisherService interface {
	events.Publisher
}

type publisherService struct {
	pubSub *gochannel.GoChannel
	topics map[string]string
	remote events.Publisher
}

// NewPublisherService publishes each event type on the watermill topic named
// in topics, defaulting to the event type itself. remote may be nil.
func NewPublisherService(pubSub *gochannel.GoChannel, topics map[string]string, remote events.Publisher) IPublisherService {
	return &publisherService{
		pubSub: pubSub,
		topics: topics,
		remote: remote,
	}
}

func (ps *publisherService) topic(eventType string) string {
	if t, ok := ps.topics[eventType]; ok && t != "" {
		return t
	}
	return eventType
}

func (ps *publisherService) Publish(ctx context.Context, event events.Event) error {
	payload, err := events.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.EventType(), err)
	}

	var errs []error
	if ps.pubSub != nil {
		msg := message.NewMessage(watermill.NewUUID(), payload)
		if err := ps.pubSub.Publish(ps.topic(event.EventType()), msg); err != nil {
			errs = append(errs, fmt.Errorf("in-process publish: %w", err))
		}
	}
	if ps.remote != nil {
		if err := ps.remote.Publish(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("remote publish: %w", err))
		}
	}
	return errors.Join(errs...)
}

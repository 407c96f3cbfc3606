package service

import (
	"context"
	"errors"
	"time"

	"travel-intel/internal/pkg/logger"
	"travel-intel/pkg/events"
	"travel-intel/pkg/lock"
	natsbus "travel-intel/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/cenkalti/backoff/v5"
)

const moduleConsumer = "CONSUMER"

type IConsumerService interface {
	Consume(ctx context.Context) error
	Handle(ctx context.Context, event events.Event) error
}

// RemoteSubscriber is the cross-process bus the consumer can also listen on.
type RemoteSubscriber interface {
	Subscribe(ctx context.Context, eventType, durableName string, handler natsbus.EventHandler) error
}

// ContentionRetry bounds how long a triggered consolidation waits for a
// destination lock held by another run.
type ContentionRetry struct {
	MaxTries     uint
	InitialDelay time.Duration
	MaxElapsed   time.Duration
}

var DefaultContentionRetry = ContentionRetry{MaxTries: 5, InitialDelay: 200 * time.Millisecond, MaxElapsed: 30 * time.Second}

type consumerService struct {
	pubSub        *gochannel.GoChannel
	topicName     string
	remote        RemoteSubscriber
	durableName   string
	consolidation IConsolidationService
	logger        logger.ILogger
	retry         ContentionRetry
}

// NewConsumerService consolidates a destination whenever one of its sessions
// is written. remote may be nil.
func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	remote RemoteSubscriber,
	durableName string,
	consolidation IConsolidationService,
	log logger.ILogger,
	retry ContentionRetry,
) IConsumerService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if retry.MaxTries == 0 {
		retry = DefaultContentionRetry
	}
	return &consumerService{
		pubSub:        pubSub,
		topicName:     topicName,
		remote:        remote,
		durableName:   durableName,
		consolidation: consolidation,
		logger:        log,
		retry:         retry,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	if cs.pubSub != nil {
		messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
		if err != nil {
			return err
		}
		go func() {
			for msg := range messages {
				cs.processMessage(ctx, msg)
			}
		}()
	}

	if cs.remote != nil {
		if err := cs.remote.Subscribe(ctx, events.TypeSessionWritten, cs.durableName, cs.Handle); err != nil {
			return err
		}
	}
	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	event, err := events.Unmarshal(msg.Payload)
	if err != nil {
		cs.logger.Error(moduleConsumer, "Dropping malformed event", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	if err := cs.Handle(ctx, event); err != nil {
		cs.logger.Error(moduleConsumer, "Consolidation after session write failed", map[string]interface{}{
			"message_id":     msg.UUID,
			"destination_id": events.StringField(event, "destination_id"),
			"error":          err.Error(),
		})
	}
	// Redelivering on gochannel would spin; the next session write retriggers.
	msg.Ack()
}

// Handle consolidates the destination named by a SESSION_WRITTEN event. A
// held destination lock is waited out with exponential backoff, since the
// running consolidation may have listed sessions before this one landed.
func (cs *consumerService) Handle(ctx context.Context, event events.Event) error {
	if event.EventType() != events.TypeSessionWritten {
		return nil
	}
	destinationID := events.StringField(event, "destination_id")
	if destinationID == "" {
		cs.logger.Warn(moduleConsumer, "Session event without destination", map[string]interface{}{
			"session_id": events.StringField(event, "session_id"),
		})
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = cs.retry.InitialDelay

	result, err := backoff.Retry(ctx, func() (*ConsolidationResult, error) {
		res, err := cs.consolidation.Consolidate(ctx, destinationID)
		if err != nil && !errors.Is(err, lock.ErrLockContention) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(cs.retry.MaxTries),
		backoff.WithMaxElapsedTime(cs.retry.MaxElapsed),
	)
	if err != nil {
		return err
	}

	cs.logger.Info(moduleConsumer, "Consolidated after session write", map[string]interface{}{
		"destination_id": destinationID,
		"session_id":     events.StringField(event, "session_id"),
		"outcome":        result.Outcome,
		"version":        result.Dataset.VersionSequence,
	})
	return nil
}

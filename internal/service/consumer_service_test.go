package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"travel-intel/internal/entity"
	"travel-intel/pkg/events"
	"travel-intel/pkg/lock"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedConsolidation struct {
	mu    sync.Mutex
	errs  []error
	calls []string
}

func (s *scriptedConsolidation) Consolidate(_ context.Context, destinationID string) (*ConsolidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, destinationID)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	ds := entity.EmptyDataset(destinationID)
	ds.VersionSequence = 1
	return &ConsolidationResult{Dataset: ds, Manifest: ds.Manifest(true), Outcome: OutcomeCreated}, nil
}

func (s *scriptedConsolidation) Stats(context.Context, string) (*entity.ConsolidationStats, error) {
	return nil, nil
}

func (s *scriptedConsolidation) History(context.Context, string, int) ([]*entity.Diff, error) {
	return nil, nil
}

func (s *scriptedConsolidation) ShouldRegenerate(context.Context, string) (*RegenerationAdvice, error) {
	return nil, nil
}

func (s *scriptedConsolidation) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

var quickRetry = ContentionRetry{MaxTries: 4, InitialDelay: time.Millisecond, MaxElapsed: time.Second}

func contention() error {
	return &lock.LockContentionError{Key: "consolidate:" + dest}
}

func TestHandleRetriesLockContention(t *testing.T) {
	fake := &scriptedConsolidation{errs: []error{contention(), contention()}}
	consumer := NewConsumerService(nil, "", nil, "", fake, nil, quickRetry)

	err := consumer.Handle(context.Background(), events.NewSessionWritten("s1", dest, 3, t0))
	require.NoError(t, err)
	assert.Equal(t, 3, fake.callCount())
}

func TestHandleGivesUpAfterMaxTries(t *testing.T) {
	fake := &scriptedConsolidation{errs: []error{contention(), contention(), contention(), contention(), contention()}}
	consumer := NewConsumerService(nil, "", nil, "", fake, nil, quickRetry)

	err := consumer.Handle(context.Background(), events.NewSessionWritten("s1", dest, 3, t0))
	assert.ErrorIs(t, err, lock.ErrLockContention)
	assert.Equal(t, 4, fake.callCount())
}

func TestHandleDoesNotRetryOtherFailures(t *testing.T) {
	boom := errors.New("disk full")
	fake := &scriptedConsolidation{errs: []error{boom}}
	consumer := NewConsumerService(nil, "", nil, "", fake, nil, quickRetry)

	err := consumer.Handle(context.Background(), events.NewSessionWritten("s1", dest, 3, t0))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, fake.callCount())
}

func TestHandleIgnoresOtherEvents(t *testing.T) {
	fake := &scriptedConsolidation{}
	consumer := NewConsumerService(nil, "", nil, "", fake, nil, quickRetry)

	evt := events.NewDatasetConsolidated(events.DatasetConsolidated{DestinationID: dest, VersionSequence: 2}, t0)
	require.NoError(t, consumer.Handle(context.Background(), evt))
	require.NoError(t, consumer.Handle(context.Background(), events.NewSessionWritten("s1", "", 0, t0)))
	assert.Zero(t, fake.callCount())
}

func TestSessionWrittenTriggersConsolidationThroughBus(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	defer pubSub.Close()

	topics := map[string]string{events.TypeSessionWritten: "session.written"}
	publisher := NewPublisherService(pubSub, topics, nil)
	fake := &scriptedConsolidation{}
	consumer := NewConsumerService(pubSub, "session.written", nil, "", fake, nil, quickRetry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, consumer.Consume(ctx))

	require.NoError(t, publisher.Publish(ctx, events.NewSessionWritten("s1", dest, 3, t0)))

	assert.Eventually(t, func() bool { return fake.callCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

type failingRemote struct{ published int }

func (r *failingRemote) Publish(context.Context, events.Event) error {
	r.published++
	return errors.New("nats unavailable")
}

func TestPublisherFansOutAndJoinsErrors(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	defer pubSub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := pubSub.Subscribe(ctx, events.TypeDatasetConsolidated)
	require.NoError(t, err)

	remote := &failingRemote{}
	publisher := NewPublisherService(pubSub, nil, remote)

	evt := events.NewDatasetConsolidated(events.DatasetConsolidated{DestinationID: dest, VersionSequence: 4, DatasetHash: "abc"}, t0)
	err = publisher.Publish(ctx, evt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote publish")
	assert.Equal(t, 1, remote.published)

	select {
	case msg := <-messages:
		decoded, err := events.Unmarshal(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, events.TypeDatasetConsolidated, decoded.EventType())
		assert.Equal(t, dest, events.StringField(decoded, "destination_id"))
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("event was not published in process")
	}
}

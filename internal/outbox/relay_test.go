package outbox_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertarktes/ticket-storefront/internal/adapters/memory"
	"github.com/robertarktes/ticket-storefront/internal/domain"
	"github.com/robertarktes/ticket-storefront/internal/observability"
	"github.com/robertarktes/ticket-storefront/internal/outbox"
)

type published struct {
	key, id string
	body    []byte
}

type fakePublisher struct {
	mu     sync.Mutex
	sent   []published
	failOn string
}

func (f *fakePublisher) Publish(ctx context.Context, key, messageID string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if messageID == f.failOn {
		return errors.New("broker unavailable")
	}
	f.sent = append(f.sent, published{key: key, id: messageID, body: body})
	return nil
}

func seedOutbox(t *testing.T, store *memory.Store, keys ...string) {
	t.Helper()
	err := store.WithTx(context.Background(), func(tx domain.Tx) error {
		for _, key := range keys {
			if err := tx.InsertOutbox(context.Background(), domain.OutboxMessage{
				ID:            uuid.New(),
				AggregateType: "order",
				AggregateID:   uuid.New(),
				EventType:     "order.created",
				Payload:       []byte(`{"order_id":"` + key + `"}`),
				DedupeKey:     key,
				CreatedAt:     time.Now().UTC(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestRelayOnce_PublishesAndMarks(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedOutbox(t, store, "a", "b")
	pub := &fakePublisher{}
	relay := outbox.NewRelay(store, pub, time.Second, observability.NewNopLogger())

	n, err := relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, pub.sent, 2)
	assert.Equal(t, "order.created", pub.sent[0].key)
	assert.Equal(t, "a", pub.sent[0].id)

	pending, err := store.GetUnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err = relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, pub.sent, 2)
}

func TestRelayOnce_StopsAtFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedOutbox(t, store, "a", "b", "c")
	pub := &fakePublisher{failOn: "b"}
	relay := outbox.NewRelay(store, pub, time.Second, observability.NewNopLogger())

	n, err := relay.RelayOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, n)

	pending, err := store.GetUnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "b", pending[0].DedupeKey)

	pub.failOn = ""
	n, err = relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := memory.NewStore()
	seedOutbox(t, store, "a")
	pub := &fakePublisher{}
	relay := outbox.NewRelay(store, pub, 5*time.Millisecond, observability.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	assert.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.sent) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

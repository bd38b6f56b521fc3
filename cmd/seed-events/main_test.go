package main

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertarktes/ticket-storefront/internal/domain"
	"github.com/robertarktes/ticket-storefront/internal/observability"
)

type recorder struct {
	calls []string
	err   error
}

func (r *recorder) Upsert(ctx context.Context, ev domain.Event) error {
	r.calls = append(r.calls, "upsert "+ev.EventID)
	return r.err
}

func (r *recorder) Invalidate(ctx context.Context, eventID string) error {
	r.calls = append(r.calls, "invalidate "+eventID)
	return nil
}

func TestSeed_InvalidatesCacheAfterEachUpsert(t *testing.T) {
	rec := &recorder{}
	require.NoError(t, seed(context.Background(), domain.SampleEvents(), rec, rec, observability.NewNopLogger()))

	assert.Equal(t, []string{
		"upsert E1001", "invalidate E1001",
		"upsert E1002", "invalidate E1002",
		"upsert E1003", "invalidate E1003",
	}, rec.calls)
}

func TestSeed_WithoutCache(t *testing.T) {
	rec := &recorder{}
	require.NoError(t, seed(context.Background(), domain.SampleEvents(), rec, nil, observability.NewNopLogger()))
	assert.Len(t, rec.calls, 3)
}

func TestSeed_StopsOnUpsertFailure(t *testing.T) {
	rec := &recorder{err: errors.New("mongo down")}
	err := seed(context.Background(), domain.SampleEvents(), rec, rec, observability.NewNopLogger())
	require.Error(t, err)
	assert.Equal(t, []string{"upsert E1001"}, rec.calls)
}

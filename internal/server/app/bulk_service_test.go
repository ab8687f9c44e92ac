package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBulkConfig() BulkConfig {
	return BulkConfig{Concurrency: 2, MinDelay: 0, MaxDelay: 0}
}

func TestBulkService_SendDeliversToAllRecipients(t *testing.T) {
	reg, factory := newTestStack(t)
	client := readyClient(t, reg, factory, "alice")

	svc := NewBulkService(NewMessageService(reg), fastBulkConfig())
	recipients := []string{"6281111111111", "6282222222222", "6283333333333"}

	results, err := svc.Send(context.Background(), "alice", recipients, "hi all", nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, res := range results {
		assert.Equal(t, recipients[i], res.Phone, "results must keep input order")
		assert.Empty(t, res.Error)
		assert.NotEmpty(t, res.MessageID)
	}
	assert.Len(t, client.Sent(), 3)
}

func TestBulkService_SendFailsFastWhenNotReady(t *testing.T) {
	reg, factory := newTestStack(t)
	_, _, err := reg.GetOrCreate(context.Background(), "bob")
	require.NoError(t, err)

	svc := NewBulkService(NewMessageService(reg), fastBulkConfig())
	_, err = svc.Send(context.Background(), "bob", []string{"6281111111111"}, "hi", nil)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Empty(t, factory.Client("bob").Sent())
}

func TestBulkService_SendRequiresRecipients(t *testing.T) {
	reg, factory := newTestStack(t)
	readyClient(t, reg, factory, "alice")

	svc := NewBulkService(NewMessageService(reg), fastBulkConfig())
	_, err := svc.Send(context.Background(), "alice", nil, "hi", nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBulkService_IndividualFailuresDoNotAbortBatch(t *testing.T) {
	reg, factory := newTestStack(t)
	readyClient(t, reg, factory, "alice")

	svc := NewBulkService(NewMessageService(reg), fastBulkConfig())
	recipients := []string{"6281111111111", "123", "6283333333333"}

	results, err := svc.Send(context.Background(), "alice", recipients, "hi", nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Empty(t, results[0].Error)
	assert.NotEmpty(t, results[1].Error, "malformed phone should fail its slot only")
	assert.Empty(t, results[2].Error)
}

func TestBulkService_ContextCancellationStopsBatch(t *testing.T) {
	reg, factory := newTestStack(t)
	readyClient(t, reg, factory, "alice")

	svc := NewBulkService(NewMessageService(reg), BulkConfig{
		Concurrency: 1,
		MinDelay:    50 * time.Millisecond,
		MaxDelay:    50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	recipients := []string{"6281111111111", "6282222222222"}
	results, err := svc.Send(ctx, "alice", recipients, "hi", nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.NotEmpty(t, res.Error)
	}
}

package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"wagate/internal/logging"
)

// BulkConfig bounds fan-out for bulk sends. Delivery order across
// recipients is not guaranteed; only the overall concurrency and pacing are.
type BulkConfig struct {
	// Concurrency is the worker-pool size.
	Concurrency int
	// MinDelay/MaxDelay bound the randomized pause each worker takes before
	// a send, to avoid a burst pattern.
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultBulkConfig mirrors the pacing the bulk senders in production use.
func DefaultBulkConfig() BulkConfig {
	return BulkConfig{
		Concurrency: 3,
		MinDelay:    500 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// BulkService fans one message body out to many recipients through a
// bounded worker pool.
type BulkService struct {
	messages *MessageService
	config   BulkConfig
	logger   logging.Logger
}

func NewBulkService(messages *MessageService, config BulkConfig) *BulkService {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultBulkConfig().Concurrency
	}
	if config.MaxDelay < config.MinDelay {
		config.MaxDelay = config.MinDelay
	}
	return &BulkService{
		messages: messages,
		config:   config,
		logger:   logging.NewComponentLogger("BulkService"),
	}
}

// Send delivers body to every recipient and returns one result per
// recipient, in input order. Individual failures do not abort the batch;
// context cancellation does.
func (svc *BulkService) Send(ctx context.Context, accountID string, recipients []string, body string, media *Media) ([]SendResult, error) {
	if len(recipients) == 0 {
		return nil, ValidationError("at least one recipient is required")
	}

	// Fail fast on a missing or not-ready session instead of producing a
	// batch of identical errors.
	if err := svc.messages.EnsureReady(ctx, accountID); err != nil {
		return nil, err
	}

	sem := semaphore.NewWeighted(int64(svc.config.Concurrency))
	results := make([]SendResult, len(recipients))
	var wg sync.WaitGroup

	for i, recipient := range recipients {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = SendResult{Phone: recipient, Error: err.Error()}
			continue
		}
		wg.Add(1)
		go func(i int, recipient string) {
			defer wg.Done()
			defer sem.Release(1)

			svc.pace(ctx)
			if err := ctx.Err(); err != nil {
				results[i] = SendResult{Phone: recipient, Error: err.Error()}
				return
			}
			result, err := svc.messages.Send(ctx, accountID, recipient, body, media)
			if err != nil {
				results[i] = SendResult{Phone: recipient, Error: err.Error()}
				return
			}
			results[i] = *result
		}(i, recipient)
	}

	wg.Wait()
	svc.logger.Info("Bulk send for account %s finished: %d recipients", accountID, len(recipients))
	return results, nil
}

func (svc *BulkService) pace(ctx context.Context) {
	spread := svc.config.MaxDelay - svc.config.MinDelay
	delay := svc.config.MinDelay
	if spread > 0 {
		delay += time.Duration(rand.Int63n(int64(spread)))
	}
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

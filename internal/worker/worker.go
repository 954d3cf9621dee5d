// Package worker provides async cache invalidation driven by bus events.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Worker listens for transaction events and keeps cached analytics fresh.
// Whenever a transaction lands for an account, that account's cached
// insights and flagged views are stale and must be dropped.
type Worker struct {
	bus   domain.EventBus
	cache domain.Cache

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// TransactionEvent is the payload published on transactions.created.
type TransactionEvent struct {
	TransactionID string `json:"transactionId"`
	AccountID     string `json:"accountId"`
}

// NewWorker creates a new invalidation worker.
func NewWorker(bus domain.EventBus, cache domain.Cache) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		cache:  cache,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to transaction events.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicTransactionCreated, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("invalidation worker started",
		"topic", domain.TopicTransactionCreated,
	)

	return nil
}

// handleMessage drops cached analytics for the affected account.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var event TransactionEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("failed to parse transaction event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if event.AccountID == "" {
		slog.Warn("transaction event missing account id",
			"message_id", msg.ID,
		)
		return nil
	}

	for _, key := range []string{
		domain.CacheKeyInsights + event.AccountID,
		domain.CacheKeyFlagged + event.AccountID,
	} {
		if err := w.cache.Delete(ctx, key); err != nil {
			slog.Error("cache invalidation failed",
				"key", key,
				"transaction_id", event.TransactionID,
				"error", err,
			)
		}
	}

	slog.Debug("invalidated cached analytics",
		"account_id", event.AccountID,
		"transaction_id", event.TransactionID,
	)

	return nil
}

// Stop gracefully shuts down the worker.
func (w *Worker) Stop() {
	for _, sub := range w.subscriptions {
		_ = sub.Unsubscribe()
	}
	w.cancel()
	w.wg.Wait()

	slog.Info("invalidation worker stopped")
}

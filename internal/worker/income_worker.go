package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"budgetflow/internal/amqp"
	"budgetflow/internal/catalog"
	"budgetflow/internal/core"
	"budgetflow/internal/services"
)

const (
	processedPrefix = "processed:"
	// claimPending marks a transaction whose evaluation has started.
	claimPending = "pending"
)

// Evaluator runs the distribution rules for one transaction.
type Evaluator interface {
	EvaluateTransaction(ctx context.Context, txID string) (services.RuleEvaluation, error)
}

// Config holds the sweep settings.
type Config struct {
	// SweepInterval is how often the current month is re-scanned for
	// income that never reached the queue (default: 15m).
	SweepInterval time.Duration
}

func DefaultConfig() Config {
	return Config{SweepInterval: 15 * time.Minute}
}

// IncomeWorker evaluates rules for newly detected income at most once per
// transaction. Processed ids are claimed in the key-value store before the
// evaluation runs, so redelivered messages and the periodic sweep never
// distribute twice. Concurrent work on one id is collapsed into one call.
type IncomeWorker struct {
	evaluator    Evaluator
	transactions catalog.TransactionReader
	processed    catalog.KeyValueStore
	config       Config
	now          func() time.Time
	inflight     singleflight.Group

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewIncomeWorker(evaluator Evaluator, transactions catalog.TransactionReader, processed catalog.KeyValueStore, config Config) *IncomeWorker {
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultConfig().SweepInterval
	}
	return &IncomeWorker{
		evaluator:    evaluator,
		transactions: transactions,
		processed:    processed,
		config:       config,
		now:          time.Now,
	}
}

// HandleIncomeDetected processes one queue message. Unknown transactions are
// reported as permanent failures so the message is dropped, not requeued.
func (w *IncomeWorker) HandleIncomeDetected(ctx context.Context, msg *amqp.IncomeDetectedMessage) error {
	slog.InfoContext(ctx, "Processing income message", "transaction_id", msg.TransactionID)
	_, err := w.process(ctx, msg.TransactionID)
	var verr *core.ValidationError
	if errors.Is(err, core.ErrNotFound) || errors.As(err, &verr) {
		return &amqp.PermanentError{Err: err}
	}
	return err
}

// process reports whether this call evaluated the transaction.
func (w *IncomeWorker) process(ctx context.Context, txID string) (bool, error) {
	v, err, _ := w.inflight.Do(txID, func() (any, error) {
		return w.evaluateOnce(ctx, txID)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (w *IncomeWorker) evaluateOnce(ctx context.Context, txID string) (bool, error) {
	key := processedPrefix + txID
	_, done, err := w.processed.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check processed %s: %w", txID, err)
	}
	if done {
		slog.DebugContext(ctx, "Transaction already evaluated", "transaction_id", txID)
		return false, nil
	}
	if err := w.processed.Put(ctx, key, claimPending); err != nil {
		return false, fmt.Errorf("claim transaction %s: %w", txID, err)
	}

	eval, err := w.evaluator.EvaluateTransaction(ctx, txID)
	if err != nil {
		if derr := w.processed.Delete(ctx, key); derr != nil {
			slog.ErrorContext(ctx, "Failed to release transaction claim", "transaction_id", txID, "error", derr)
		}
		return false, fmt.Errorf("evaluate transaction %s: %w", txID, err)
	}
	// The pending claim already blocks a second evaluation.
	if err := w.processed.Put(ctx, key, w.now().UTC().Format(time.RFC3339)); err != nil {
		slog.WarnContext(ctx, "Failed to record processed time, keeping claim", "transaction_id", txID, "error", err)
	}

	slog.InfoContext(ctx, "Income evaluated",
		"transaction_id", txID,
		"matched_rules", len(eval.MatchedRuleIDs),
		"rule_id", eval.TriggeredRuleID,
		"distributed", eval.Distribution != nil)
	return true, nil
}

// Sweep evaluates every income transaction of the month that was not seen yet.
// It is the backup path for messages lost while the worker was down.
func (w *IncomeWorker) Sweep(ctx context.Context, month core.YearMonth) (int, error) {
	txs, err := w.transactions.ListIncomeTransactions(ctx, month)
	if err != nil {
		return 0, fmt.Errorf("list income transactions: %w", err)
	}
	evaluated := 0
	for _, tx := range txs {
		if ctx.Err() != nil {
			return evaluated, ctx.Err()
		}
		ran, err := w.process(ctx, tx.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Sweep failed for transaction", "transaction_id", tx.ID, "error", err)
			continue
		}
		if ran {
			evaluated++
		}
	}
	return evaluated, nil
}

// Start runs the sweep immediately and then on every interval.
func (w *IncomeWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("income worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx)

	slog.InfoContext(ctx, "Income sweep started", "interval", w.config.SweepInterval)
	return nil
}

// Stop signals the sweep loop and waits for it to finish.
func (w *IncomeWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)

	select {
	case <-w.doneCh:
		slog.InfoContext(ctx, "Income sweep stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Income sweep stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

func (w *IncomeWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *IncomeWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.SweepInterval)
	defer ticker.Stop()

	w.sweepCurrentMonth(ctx)
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepCurrentMonth(ctx)
		}
	}
}

func (w *IncomeWorker) sweepCurrentMonth(ctx context.Context) {
	month := core.YearMonthOf(w.now())
	n, err := w.Sweep(ctx, month)
	if err != nil {
		slog.ErrorContext(ctx, "Income sweep failed", "month", month.String(), "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Income sweep evaluated transactions", "month", month.String(), "count", n)
	}
}

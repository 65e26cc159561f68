package orchestrators

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"rollcall/internal/adapters/email"
	domain "rollcall/internal/domain/outbox"
)

// ProcessorOutboxStore defines the outbox store interface needed by the processor.
type ProcessorOutboxStore interface {
	ListRetryable(ctx context.Context, limit int) ([]domain.Entry, error)
	Update(ctx context.Context, value domain.Entry) error
}

// OutboxProcessor drains the alert outbox with bounded retries. A
// provider outage leaves entries in retrying state; the next pass picks
// them up after the backoff delay.
type OutboxProcessor struct {
	store     ProcessorOutboxStore
	sender    email.Sender
	baseDelay time.Duration
	maxDelay  time.Duration
	batchSize int
	now       func() time.Time
}

// NewOutboxProcessor creates a new outbox processor.
// PRE: store and sender are non-nil
// POST: Returns a processor with default backoff settings
func NewOutboxProcessor(store ProcessorOutboxStore, sender email.Sender) *OutboxProcessor {
	return &OutboxProcessor{
		store:     store,
		sender:    sender,
		baseDelay: 30 * time.Second,
		maxDelay:  time.Hour,
		batchSize: 10,
		now:       time.Now,
	}
}

// ProcessPending attempts delivery for every eligible entry.
// PRE: Context is valid
// POST: Each attempted entry is updated with its outcome
func (p *OutboxProcessor) ProcessPending(ctx context.Context) error {
	entries, err := p.store.ListRetryable(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("list retryable outbox entries: %w", err)
	}

	for _, entry := range entries {
		if err := p.processEntry(ctx, entry); err != nil {
			slog.Error("outbox_process_failed", "entry_id", entry.ID, "action_type", entry.ActionType, "error", err.Error())
		}
	}
	return nil
}

// processEntry attempts one entry, honoring the backoff window.
func (p *OutboxProcessor) processEntry(ctx context.Context, entry domain.Entry) error {
	if !entry.LastAttemptedAt.IsZero() {
		if p.now().Sub(entry.LastAttemptedAt) < p.retryDelay(entry.Attempts) {
			return nil // not ready to retry yet
		}
	}

	sendErr := p.deliver(ctx, entry)
	entry.MarkAttempt(p.now(), sendErr)

	if sendErr != nil {
		slog.Warn("outbox_send_failed", "entry_id", entry.ID, "attempt", entry.Attempts, "status", entry.Status, "error", sendErr.Error())
	} else {
		slog.Info("outbox_send_succeeded", "entry_id", entry.ID, "action_type", entry.ActionType)
	}
	return p.store.Update(ctx, entry)
}

// deliver dispatches the entry's payload to the external provider.
func (p *OutboxProcessor) deliver(ctx context.Context, entry domain.Entry) error {
	switch entry.ActionType {
	case domain.ActionTypeAlertEmail:
		var payload AlertEmailPayload
		if err := json.Unmarshal([]byte(entry.Payload), &payload); err != nil {
			return fmt.Errorf("decode alert payload: %w", err)
		}
		_, err := p.sender.Send(ctx, email.SendRequest{
			To:      payload.To,
			Subject: payload.Subject,
			HTML:    payload.HTML,
		})
		return err
	default:
		return fmt.Errorf("no handler for action type %s", entry.ActionType)
	}
}

// retryDelay doubles per attempt up to the cap.
func (p *OutboxProcessor) retryDelay(attempts int) time.Duration {
	delay := p.baseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= p.maxDelay {
			return p.maxDelay
		}
	}
	return delay
}

// RunLoop processes the outbox on an interval until the context ends.
// PRE: interval > 0
// POST: Returns when ctx is done
func (p *OutboxProcessor) RunLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.ProcessPending(ctx); err != nil {
				slog.Error("outbox_loop_error", "error", err.Error())
			}
		}
	}
}

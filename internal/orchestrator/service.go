package orchestrator

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/pettrail/pettrail/internal/queue"
	"github.com/pettrail/pettrail/pkg/models"
)

// The methods below complete the caller boundary: cache reads, queue
// management, and the caller-driven drain that replays queued operations once
// connectivity returns.

// GetTodaySummary returns the subject's summary for today, or nil on a miss.
func (o *Orchestrator) GetTodaySummary(ctx context.Context, ownerID, subjectID string) (*models.DailySummary, error) {
	return o.cache.Get(ctx, ownerID, subjectID)
}

// EnqueueOperation wraps a session into a durable operation after a failed
// write. The validation context is snapshotted so a later retry validates
// against the same inputs.
func (o *Orchestrator) EnqueueOperation(ctx context.Context, kind models.OperationKind, session models.Session, vctx models.ValidationContext) (*queue.Warning, error) {
	op := models.NewLoggingOperation(kind, session, vctx, o.clock.Now())
	return o.queue.Enqueue(ctx, op)
}

// PendingOperations returns queued operations in creation order.
func (o *Orchestrator) PendingOperations(ctx context.Context) ([]models.LoggingOperation, error) {
	return o.queue.Pending(ctx)
}

// FailedOperations returns operations parked for manual retry.
func (o *Orchestrator) FailedOperations(ctx context.Context) ([]models.LoggingOperation, error) {
	return o.queue.Failed(ctx)
}

// QueueSize returns the number of stored operations.
func (o *Orchestrator) QueueSize(ctx context.Context) (int, error) {
	return o.queue.Size(ctx)
}

// ShouldShowWarning reports whether the queue has reached its soft cap.
func (o *Orchestrator) ShouldShowWarning(ctx context.Context) (bool, error) {
	return o.queue.ShouldWarn(ctx)
}

// ClearExpiredCaches drops every summary entry whose date is not today.
func (o *Orchestrator) ClearExpiredCaches(ctx context.Context) error {
	return o.cache.EvictExpired(ctx)
}

// ClearSubjectCache drops one subject's summary entries.
func (o *Orchestrator) ClearSubjectCache(ctx context.Context, ownerID, subjectID string) error {
	return o.cache.EvictForSubject(ctx, ownerID, subjectID)
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Replayed  int `json:"replayed"`
	Parked    int `json:"parked"`
	Remaining int `json:"remaining"`
}

// DrainQueue replays pending operations in creation order. It is driven by
// the caller on a connectivity-restored signal, never by an internal timer.
// Replay stops at the first connectivity failure, leaving the remainder
// pending; operations that now fail validation (a duplicate logged since, a
// schedule change) are parked as failed for manual review.
func (o *Orchestrator) DrainQueue(ctx context.Context) (*DrainResult, error) {
	pending, err := o.queue.Pending(ctx)
	if err != nil {
		return nil, err
	}

	result := &DrainResult{Remaining: len(pending)}
	for i := range pending {
		op := &pending[i]

		err := o.replay(ctx, op)

		var batchErr *BatchWriteError
		switch {
		case err == nil:
			if markErr := o.queue.MarkSucceeded(ctx, op.ID); markErr != nil {
				return result, markErr
			}
			result.Replayed++
			result.Remaining--

		case errors.As(err, &batchErr) && batchErr.Retryable():
			// Still offline; stop and leave the rest pending.
			log.Debug().Str("operation_id", op.ID).Msg("drain stopped, remote still unreachable")
			return result, nil

		default:
			if markErr := o.queue.MarkFailed(ctx, op.ID); markErr != nil {
				return result, markErr
			}
			log.Warn().Err(err).Str("operation_id", op.ID).Msg("queued operation parked after replay failure")
			result.Parked++
			result.Remaining--
		}
	}
	return result, nil
}

func (o *Orchestrator) replay(ctx context.Context, op *models.LoggingOperation) error {
	switch op.Kind {
	case models.OperationCreateMedication, models.OperationCreateFluid:
		_, _, err := o.LogSession(ctx, &op.Session, op.Context.TodaysSchedules, op.Context.RecentSessions)
		return err
	case models.OperationUpdate:
		return o.UpdateSession(ctx, &op.Session, op.Context.TodaysSchedules, op.Context.RecentSessions)
	case models.OperationDelete:
		return o.DeleteSession(ctx, &op.Session)
	default:
		return &models.ValidationError{Issues: []models.ValidationIssue{{
			Field:   "kind",
			Message: "unknown operation kind " + string(op.Kind),
			Kind:    models.IssueInvalid,
		}}}
	}
}

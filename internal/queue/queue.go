// Package queue implements the durable offline operation queue: ordered,
// bounded, TTL-expiring storage for writes that could not reach the remote
// store.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/pettrail/pettrail/internal/clock"
	"github.com/pettrail/pettrail/internal/db"
	"github.com/pettrail/pettrail/pkg/models"
)

const (
	// DefaultSoftCap is the size at which enqueue starts signaling a warning.
	DefaultSoftCap = 50

	// DefaultHardCap is the size beyond which enqueue rejects outright.
	DefaultHardCap = 200

	// DefaultTTL is how long an accepted operation may sit queued before the
	// next enqueue sweeps it.
	DefaultTTL = 30 * 24 * time.Hour
)

// ErrQueueFull is returned when the hard cap would be exceeded. The operation
// is not stored; the caller must surface this as a blocking failure.
var ErrQueueFull = errors.New("operation queue is full")

// Warning is the soft-capacity signal. The enqueue it accompanies succeeded.
type Warning struct {
	Size    int
	SoftCap int
}

func (w *Warning) Error() string {
	return fmt.Sprintf("operation queue holds %d entries (soft cap %d)", w.Size, w.SoftCap)
}

// Options tunes queue capacity and expiry.
type Options struct {
	SoftCap int
	HardCap int
	TTL     time.Duration
}

// Queue is a durable, ordered operation queue over the local store. A new
// Queue constructed on the same store observes the operations a previous
// instance accepted.
type Queue struct {
	store *db.Store
	clock clock.Clock
	opts  Options
}

// New creates a queue over the local store.
func New(store *db.Store, clk clock.Clock, opts Options) *Queue {
	if opts.SoftCap <= 0 {
		opts.SoftCap = DefaultSoftCap
	}
	if opts.HardCap <= 0 {
		opts.HardCap = DefaultHardCap
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &Queue{store: store, clock: clk, opts: opts}
}

// Enqueue stores op durably. Expired operations are swept first. When the
// queue reaches the soft cap the returned *Warning is non-nil and the
// operation is still accepted; at the hard cap ErrQueueFull is returned and
// the operation is not stored.
func (q *Queue) Enqueue(ctx context.Context, op *models.LoggingOperation) (*Warning, error) {
	if _, err := q.SweepExpired(ctx); err != nil {
		return nil, fmt.Errorf("sweep expired operations: %w", err)
	}

	size, err := q.Size(ctx)
	if err != nil {
		return nil, err
	}
	if size >= q.opts.HardCap {
		return nil, ErrQueueFull
	}

	payload, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("marshal operation: %w", err)
	}

	now := q.clock.Now()
	row := db.QueuedOperation{
		OperationID:    op.ID,
		OwnerID:        op.OwnerID,
		SubjectID:      op.SubjectID,
		Kind:           string(op.Kind),
		Status:         string(models.OperationStatusPending),
		Payload:        payload,
		CreatedAt:      op.CreatedAt.Format(time.RFC3339),
		CreatedAtEpoch: op.CreatedAt.UnixMilli(),
	}
	if op.CreatedAt.IsZero() {
		row.CreatedAt = now.Format(time.RFC3339)
		row.CreatedAtEpoch = now.UnixMilli()
	}

	if err := q.store.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("store operation: %w", err)
	}

	size++
	if size >= q.opts.SoftCap {
		log.Warn().Int("size", size).Int("soft_cap", q.opts.SoftCap).
			Msg("operation queue approaching capacity")
		return &Warning{Size: size, SoftCap: q.opts.SoftCap}, nil
	}
	return nil, nil
}

// Pending returns all pending operations in chronological creation order, so
// retried writes apply in the order the user performed them.
func (q *Queue) Pending(ctx context.Context) ([]models.LoggingOperation, error) {
	return q.byStatus(ctx, models.OperationStatusPending)
}

// Failed returns operations parked after exhausting immediate retry.
func (q *Queue) Failed(ctx context.Context) ([]models.LoggingOperation, error) {
	return q.byStatus(ctx, models.OperationStatusFailed)
}

// Size returns the number of stored operations.
func (q *Queue) Size(ctx context.Context) (int, error) {
	var count int64
	err := q.store.DB.WithContext(ctx).Model(&db.QueuedOperation{}).Count(&count).Error
	return int(count), err
}

// ShouldWarn reports whether the queue has reached the soft cap.
func (q *Queue) ShouldWarn(ctx context.Context) (bool, error) {
	size, err := q.Size(ctx)
	if err != nil {
		return false, err
	}
	return size >= q.opts.SoftCap, nil
}

// MarkSucceeded removes a completed operation.
func (q *Queue) MarkSucceeded(ctx context.Context, operationID string) error {
	return q.store.DB.WithContext(ctx).
		Delete(&db.QueuedOperation{}, "operation_id = ?", operationID).Error
}

// MarkFailed parks an operation for manual or scheduled retry.
func (q *Queue) MarkFailed(ctx context.Context, operationID string) error {
	return q.setStatus(ctx, operationID, models.OperationStatusFailed)
}

// RetryFailed moves all failed operations back to pending.
func (q *Queue) RetryFailed(ctx context.Context) error {
	return q.store.DB.WithContext(ctx).
		Model(&db.QueuedOperation{}).
		Where("status = ?", string(models.OperationStatusFailed)).
		Update("status", string(models.OperationStatusPending)).Error
}

// SweepExpired deletes operations older than the TTL and returns how many
// were removed. Expiry is silent: expired intents are stale enough that
// replaying them would surprise the user more than dropping them.
func (q *Queue) SweepExpired(ctx context.Context) (int, error) {
	cutoff := q.clock.Now().Add(-q.opts.TTL).UnixMilli()

	result := q.store.DB.WithContext(ctx).
		Delete(&db.QueuedOperation{}, "created_at_epoch < ?", cutoff)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		log.Debug().Int64("count", result.RowsAffected).Msg("swept expired queued operations")
	}
	return int(result.RowsAffected), nil
}

func (q *Queue) setStatus(ctx context.Context, operationID string, status models.OperationStatus) error {
	return q.store.DB.WithContext(ctx).
		Model(&db.QueuedOperation{}).
		Where("operation_id = ?", operationID).
		Update("status", string(status)).Error
}

func (q *Queue) byStatus(ctx context.Context, status models.OperationStatus) ([]models.LoggingOperation, error) {
	var rows []db.QueuedOperation
	err := q.store.DB.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at_epoch ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	ops := make([]models.LoggingOperation, 0, len(rows))
	for _, row := range rows {
		var op models.LoggingOperation
		if err := json.Unmarshal(row.Payload, &op); err != nil {
			// A payload we can no longer decode is unreplayable; skip it
			// rather than wedge the whole drain.
			log.Warn().Err(err).Str("operation_id", row.OperationID).
				Msg("undecodable queued operation payload")
			continue
		}
		op.Status = models.OperationStatus(row.Status)
		ops = append(ops, op)
	}
	return ops, nil
}

// Package orchestrator coordinates a validated session's journey to the
// remote store: one atomic batch covering the session record and the daily,
// weekly and monthly summary documents, a synchronous summary-cache update on
// success, and a typed failure the caller converts into a queued operation
// when the store is unreachable.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pettrail/pettrail/internal/cache"
	"github.com/pettrail/pettrail/internal/clock"
	"github.com/pettrail/pettrail/internal/queue"
	"github.com/pettrail/pettrail/internal/remote"
	"github.com/pettrail/pettrail/internal/validate"
	"github.com/pettrail/pettrail/pkg/models"
	"github.com/pettrail/pettrail/pkg/monthly"
)

const (
	// DefaultMaxPerDaySessions clamps the monthly per-day count arrays; more
	// than ten sessions of one kind in a day is a data-entry error.
	DefaultMaxPerDaySessions = 10

	// DefaultWriteTimeout bounds one remote attempt. On timeout the write is
	// treated as failed and deferred to the queue path.
	DefaultWriteTimeout = 10 * time.Second
)

// BatchWriteError wraps a failed remote write. Retryable reports whether the
// failure was connectivity (queue the operation) or a remote rejection
// (surface to the user).
type BatchWriteError struct {
	Err error
}

func (e *BatchWriteError) Error() string {
	return fmt.Sprintf("remote batch write failed: %v", e.Err)
}

func (e *BatchWriteError) Unwrap() error { return e.Err }

// Retryable reports whether queueing the operation for later makes sense.
func (e *BatchWriteError) Retryable() bool {
	return errors.Is(e.Err, remote.ErrUnavailable) || errors.Is(e.Err, context.DeadlineExceeded)
}

// Options tunes the orchestrator.
type Options struct {
	MaxPerDaySessions float64       // clamp for monthly count slots; zero selects the default
	WriteTimeout      time.Duration // per remote attempt; zero selects the default
}

// Orchestrator is the caller boundary of the logging core. Callers must
// serialize calls per (owner, subject); the orchestrator provides no mutual
// exclusion of its own.
type Orchestrator struct {
	gate  *validate.Gate
	store remote.Store
	cache *cache.SummaryCache
	queue *queue.Queue
	clock clock.Clock
	opts  Options
}

// New wires the orchestrator from its collaborators.
func New(gate *validate.Gate, store remote.Store, summaryCache *cache.SummaryCache, q *queue.Queue, clk clock.Clock, opts Options) *Orchestrator {
	if opts.MaxPerDaySessions <= 0 {
		opts.MaxPerDaySessions = DefaultMaxPerDaySessions
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	return &Orchestrator{
		gate:  gate,
		store: store,
		cache: summaryCache,
		queue: q,
		clock: clk,
		opts:  opts,
	}
}

// LogSession validates and writes one session. On success the session ID and
// any non-blocking warnings are returned and the summary cache reflects the
// write immediately. Validation failures return *models.ValidationError with
// no write attempted; remote failures return *BatchWriteError and leave the
// caller to enqueue the operation.
func (o *Orchestrator) LogSession(ctx context.Context, session *models.Session, todaysSchedules []models.ScheduleSlot, recentSessions []models.Session) (string, []validate.Warning, error) {
	vctx := models.ValidationContext{TodaysSchedules: todaysSchedules, RecentSessions: recentSessions}
	outcome := o.gate.Validate(session, vctx)
	if !outcome.Valid() {
		return "", nil, outcome.Err()
	}

	wctx, cancel := context.WithTimeout(ctx, o.opts.WriteTimeout)
	defer cancel()

	writes, err := o.createWrites(wctx, session)
	if err != nil {
		return "", nil, &BatchWriteError{Err: err}
	}
	if err := o.store.CommitBatch(wctx, writes); err != nil {
		return "", nil, &BatchWriteError{Err: err}
	}

	o.updateCache(ctx, session)

	log.Debug().Str("session_id", session.ID).Str("type", string(session.Type)).
		Str("subject", session.SubjectID).Msg("session written")
	return session.ID, outcome.Warnings, nil
}

// UpdateSession replaces an existing session and rewrites the affected
// summary documents with recomputed values. The session keeps its ID, type
// and calendar day; a day change is modeled as delete plus create.
func (o *Orchestrator) UpdateSession(ctx context.Context, session *models.Session, todaysSchedules []models.ScheduleSlot, recentSessions []models.Session) error {
	vctx := models.ValidationContext{TodaysSchedules: todaysSchedules, RecentSessions: recentSessions}
	outcome := o.gate.Validate(session, vctx)
	if !outcome.Valid() {
		return outcome.Err()
	}

	wctx, cancel := context.WithTimeout(ctx, o.opts.WriteTimeout)
	defer cancel()

	writes, err := o.rewriteWrites(wctx, session, session, false)
	if err != nil {
		return &BatchWriteError{Err: err}
	}
	if err := o.store.CommitBatch(wctx, writes); err != nil {
		return &BatchWriteError{Err: err}
	}

	// The cached counters may now be stale; drop them and let the next read
	// rebuild from the remote truth.
	if err := o.cache.EvictForSubject(ctx, session.OwnerID, session.SubjectID); err != nil {
		log.Warn().Err(err).Str("subject", session.SubjectID).Msg("failed to evict subject cache after update")
	}
	return nil
}

// DeleteSession removes a session and recomputes (never merely decrements)
// the affected summary documents, so removing the day's only contribution
// cannot leave negative or phantom aggregates.
func (o *Orchestrator) DeleteSession(ctx context.Context, session *models.Session) error {
	wctx, cancel := context.WithTimeout(ctx, o.opts.WriteTimeout)
	defer cancel()

	writes, err := o.rewriteWrites(wctx, session, nil, true)
	if err != nil {
		return &BatchWriteError{Err: err}
	}
	if err := o.store.CommitBatch(wctx, writes); err != nil {
		return &BatchWriteError{Err: err}
	}

	if err := o.cache.EvictForSubject(ctx, session.OwnerID, session.SubjectID); err != nil {
		log.Warn().Err(err).Str("subject", session.SubjectID).Msg("failed to evict subject cache after delete")
	}
	return nil
}

// createWrites builds the atomic batch for a new session: the session record,
// increment merges for the daily and weekly summaries, and the recomputed
// monthly per-day slot.
func (o *Orchestrator) createWrites(ctx context.Context, session *models.Session) ([]remote.Write, error) {
	dayStart, dayEnd := dayBounds(session.Timestamp)
	daySessions, err := o.store.SessionsInRange(ctx, session.OwnerID, session.SubjectID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	dayCount := 1
	for i := range daySessions {
		if daySessions[i].Type == session.Type && daySessions[i].ID != session.ID {
			dayCount++
		}
	}

	monthlyWrite, err := o.monthlySlotWrite(ctx, session.OwnerID, session.SubjectID, session.Timestamp, session.Type, dayCount)
	if err != nil {
		return nil, err
	}

	increments := map[string]float64{}
	switch session.Type {
	case models.SessionTypeMedication:
		increments["medication_session_count"] = 1
		increments["total_dose_given"] = session.Medication.Dosage
	case models.SessionTypeFluid:
		increments["fluid_session_count"] = 1
		increments["total_fluid_volume_given"] = session.Fluid.VolumeML
	}

	owner, subject := session.OwnerID, session.SubjectID
	return []remote.Write{
		{Collection: remote.CollectionSessions, DocID: session.ID, Session: session},
		{
			Collection: remote.CollectionDailySummaries,
			DocID:      summaryDocID(owner, subject, session.DateKey()),
			Set:        map[string]any{"date": session.DateKey()},
			Increment:  increments,
		},
		{
			Collection: remote.CollectionWeeklySummaries,
			DocID:      summaryDocID(owner, subject, isoWeekKey(session.Timestamp)),
			Set:        map[string]any{"week": isoWeekKey(session.Timestamp)},
			Increment:  increments,
		},
		monthlyWrite,
	}, nil
}

// rewriteWrites builds the batch for updates and deletes: the affected daily,
// weekly and monthly documents are recomputed from the remote session set
// with the changed session substituted (or removed), then written as full
// replacements.
func (o *Orchestrator) rewriteWrites(ctx context.Context, original *models.Session, replacement *models.Session, remove bool) ([]remote.Write, error) {
	weekStart, weekEnd := weekBounds(original.Timestamp)
	weekSessions, err := o.store.SessionsInRange(ctx, original.OwnerID, original.SubjectID, weekStart, weekEnd)
	if err != nil {
		return nil, err
	}

	adjusted := make([]models.Session, 0, len(weekSessions)+1)
	for i := range weekSessions {
		if weekSessions[i].ID == original.ID {
			continue
		}
		adjusted = append(adjusted, weekSessions[i])
	}
	if !remove && replacement != nil {
		adjusted = append(adjusted, *replacement)
	}

	dayKey := original.DateKey()
	var daySessions []models.Session
	for i := range adjusted {
		if adjusted[i].DateKey() == dayKey {
			daySessions = append(daySessions, adjusted[i])
		}
	}

	dayCounts := map[models.SessionType]int{}
	for i := range daySessions {
		dayCounts[daySessions[i].Type]++
	}

	monthlyWrite, err := o.monthlySlotWrite(ctx, original.OwnerID, original.SubjectID, original.Timestamp, original.Type, dayCounts[original.Type])
	if err != nil {
		return nil, err
	}

	owner, subject := original.OwnerID, original.SubjectID
	writes := []remote.Write{
		{
			Collection: remote.CollectionDailySummaries,
			DocID:      summaryDocID(owner, subject, dayKey),
			Set:        summaryFields(daySessions, map[string]any{"date": dayKey}),
		},
		{
			Collection: remote.CollectionWeeklySummaries,
			DocID:      summaryDocID(owner, subject, isoWeekKey(original.Timestamp)),
			Set:        summaryFields(adjusted, map[string]any{"week": isoWeekKey(original.Timestamp)}),
		},
		monthlyWrite,
	}

	if remove {
		writes = append(writes, remote.Write{
			Collection: remote.CollectionSessions,
			DocID:      original.ID,
			Delete:     true,
		})
	} else {
		writes = append(writes, remote.Write{
			Collection: remote.CollectionSessions,
			DocID:      replacement.ID,
			Session:    replacement,
		})
	}
	return writes, nil
}

// monthlySlotWrite reads the month document and rewrites the per-day count
// slot for the session's type through the monthly aggregator.
func (o *Orchestrator) monthlySlotWrite(ctx context.Context, ownerID, subjectID string, at time.Time, sessionType models.SessionType, dayCount int) (remote.Write, error) {
	docID := summaryDocID(ownerID, subjectID, at.Format("2006-01"))

	doc, err := o.store.GetDocument(ctx, remote.CollectionMonthlySummaries, docID)
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		return remote.Write{}, err
	}

	field := "medication_daily_counts"
	if sessionType == models.SessionTypeFluid {
		field = "fluid_daily_counts"
	}

	current := floatSlice(doc[field])
	updated := monthly.UpdateSlot(current, at.Day(), daysInMonth(at), float64(dayCount), o.opts.MaxPerDaySessions)

	return remote.Write{
		Collection: remote.CollectionMonthlySummaries,
		DocID:      docID,
		Set:        map[string]any{"month": at.Format("2006-01"), field: updated},
	}, nil
}

// updateCache mirrors a successful write into the daily summary cache so
// duplicate checks in the same app session see it without a round trip.
// Cache failures are absorbed: the cache is an accelerator, not a record.
func (o *Orchestrator) updateCache(ctx context.Context, session *models.Session) {
	if session.DateKey() != o.clock.Now().Format("2006-01-02") {
		return
	}

	var err error
	switch session.Type {
	case models.SessionTypeMedication:
		err = o.cache.RecordMedication(ctx, session.OwnerID, session.SubjectID, session.Medication.Name, session.Medication.Dosage)
	case models.SessionTypeFluid:
		err = o.cache.RecordFluid(ctx, session.OwnerID, session.SubjectID, session.Fluid.VolumeML)
	}
	if err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to update summary cache after write")
	}
}

func summaryFields(sessions []models.Session, base map[string]any) map[string]any {
	var medCount, fluidCount int
	var dose, volume float64
	for i := range sessions {
		switch sessions[i].Type {
		case models.SessionTypeMedication:
			medCount++
			if sessions[i].Medication != nil {
				dose += sessions[i].Medication.Dosage
			}
		case models.SessionTypeFluid:
			fluidCount++
			if sessions[i].Fluid != nil {
				volume += sessions[i].Fluid.VolumeML
			}
		}
	}

	base["medication_session_count"] = float64(medCount)
	base["fluid_session_count"] = float64(fluidCount)
	base["total_dose_given"] = dose
	base["total_fluid_volume_given"] = volume
	return base
}

func summaryDocID(ownerID, subjectID, key string) string {
	return fmt.Sprintf("%s_%s_%s", ownerID, subjectID, key)
}

func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// weekBounds returns the ISO week (Monday start) containing t.
func weekBounds(t time.Time) (time.Time, time.Time) {
	dayStart, _ := dayBounds(t)
	offset := (int(t.Weekday()) + 6) % 7
	start := dayStart.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7)
}

func isoWeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// floatSlice coerces a stored array field back to []float64. Document stores
// round-trip numeric arrays as []any, so both shapes are accepted.
func floatSlice(v any) []float64 {
	switch arr := v.(type) {
	case []float64:
		return arr
	case []any:
		out := make([]float64, 0, len(arr))
		for _, e := range arr {
			f, ok := e.(float64)
			if !ok {
				return nil
			}
			out = append(out, f)
		}
		return out
	default:
		return nil
	}
}

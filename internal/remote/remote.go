// Package remote defines the consumed remote document-store boundary: an
// atomic multi-document write primitive and a session range query. The real
// transport lives outside this module; tests and the standalone serve mode
// use the in-memory implementation.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/pettrail/pettrail/pkg/models"
)

var (
	// ErrUnavailable marks connectivity failures. Writes failing this way
	// are retryable through the operation queue.
	ErrUnavailable = errors.New("remote store unavailable")

	// ErrRejected marks writes the remote store refused on validity grounds.
	// Retrying without correction will not help.
	ErrRejected = errors.New("remote store rejected write")

	// ErrNotFound is returned by GetDocument for absent documents.
	ErrNotFound = errors.New("document not found")
)

// Collections used by the orchestrator.
const (
	CollectionSessions         = "sessions"
	CollectionDailySummaries   = "daily_summaries"
	CollectionWeeklySummaries  = "weekly_summaries"
	CollectionMonthlySummaries = "monthly_summaries"
)

// Write is one document mutation inside an atomic batch. Exactly one of
// Session, Delete, or the Set/Increment pair describes the mutation.
type Write struct {
	Collection string
	DocID      string

	// Session upserts a full session record.
	Session *models.Session

	// Delete removes the document.
	Delete bool

	// Set merge-writes fields verbatim; Increment adds to numeric fields,
	// treating absent fields as zero.
	Set       map[string]any
	Increment map[string]float64
}

// Store is the remote document store as this core consumes it. CommitBatch
// is all-or-nothing: either every write in the batch applies or none do.
type Store interface {
	CommitBatch(ctx context.Context, writes []Write) error

	// GetDocument returns a document's fields, or ErrNotFound.
	GetDocument(ctx context.Context, collection, docID string) (map[string]any, error)

	// SessionsInRange returns the subject's sessions with timestamps in
	// [from, to), ordered by timestamp.
	SessionsInRange(ctx context.Context, ownerID, subjectID string, from, to time.Time) ([]models.Session, error)
}

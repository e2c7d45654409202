package models

import (
	"time"

	"github.com/google/uuid"
)

// OperationKind is the closed set of write intents the queue can hold.
type OperationKind string

const (
	OperationCreateMedication OperationKind = "create_medication"
	OperationCreateFluid      OperationKind = "create_fluid"
	OperationUpdate           OperationKind = "update"
	OperationDelete           OperationKind = "delete"
)

// OperationStatus tracks a queued operation through its lifecycle.
// Succeeded operations are removed from the queue; expired ones are
// swept silently on the next enqueue.
type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "pending"
	OperationStatusSucceeded OperationStatus = "succeeded"
	OperationStatusFailed    OperationStatus = "failed"
)

// LoggingOperation is a durable intent to write a session (or its update or
// delete) to the remote store. It embeds the session payload plus the
// validation context snapshotted at enqueue time, so a retry validates
// against the same inputs the user saw.
type LoggingOperation struct {
	ID        string            `json:"id"`
	Kind      OperationKind     `json:"kind"`
	OwnerID   string            `json:"owner_id"`
	SubjectID string            `json:"subject_id"`
	CreatedAt time.Time         `json:"created_at"`
	Status    OperationStatus   `json:"status"`
	Session   Session           `json:"session"`
	Context   ValidationContext `json:"context"`
}

// NewLoggingOperation wraps a session into a pending queue operation.
func NewLoggingOperation(kind OperationKind, session Session, vctx ValidationContext, createdAt time.Time) *LoggingOperation {
	return &LoggingOperation{
		ID:        uuid.NewString(),
		Kind:      kind,
		OwnerID:   session.OwnerID,
		SubjectID: session.SubjectID,
		CreatedAt: createdAt,
		Status:    OperationStatusPending,
		Session:   session,
		Context:   vctx,
	}
}

// KindForCreate maps a session type to its create-operation kind.
func KindForCreate(t SessionType) OperationKind {
	if t == SessionTypeFluid {
		return OperationCreateFluid
	}
	return OperationCreateMedication
}

package db

import "time"

// QueuedOperation is the persisted row backing one LoggingOperation.
// Payload carries the full serialized operation (session plus validation
// context) so retried validation sees the inputs captured at enqueue time.
type QueuedOperation struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	OperationID    string `gorm:"uniqueIndex;not null"`
	OwnerID        string `gorm:"index:idx_queued_ops_subject;not null"`
	SubjectID      string `gorm:"index:idx_queued_ops_subject;not null"`
	Kind           string `gorm:"not null"`
	Status         string `gorm:"type:text;check:status IN ('pending', 'succeeded', 'failed');default:'pending';index"`
	Payload        []byte `gorm:"not null"`
	CreatedAt      string `gorm:"not null"`
	CreatedAtEpoch int64  `gorm:"index:idx_queued_ops_created;not null"`
}

func (QueuedOperation) TableName() string { return "queued_operations" }

// KVEntry is one row of the flat key-value persistence boundary. The summary
// cache serializes DailySummary entries into Value.
type KVEntry struct {
	Key       string `gorm:"primaryKey"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}

func (KVEntry) TableName() string { return "kv_entries" }

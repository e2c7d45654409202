package models

import "time"

// ScheduleSlot is one planned treatment time for a subject, captured into
// validation context so queued operations can be re-validated deterministically.
type ScheduleSlot struct {
	TreatmentName string      `json:"treatment_name"`
	Type          SessionType `json:"type"`
	ScheduledAt   time.Time   `json:"scheduled_at"`
}

// ValidationContext carries the inputs the validation gate needs beyond the
// candidate session itself. It is snapshotted at enqueue time.
type ValidationContext struct {
	TodaysSchedules []ScheduleSlot `json:"todays_schedules,omitempty"`
	RecentSessions  []Session      `json:"recent_sessions,omitempty"`
}

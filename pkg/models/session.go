// Package models contains domain models for pettrail.
package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionType identifies the kind of treatment a session records.
type SessionType string

const (
	SessionTypeMedication SessionType = "medication"
	SessionTypeFluid      SessionType = "fluid"
)

// MedicationDetail is the type-specific payload of a medication session.
type MedicationDetail struct {
	Name   string  `json:"name"`
	Dosage float64 `json:"dosage"`
	Unit   string  `json:"unit"`
}

// FluidDetail is the type-specific payload of a fluid-therapy session.
type FluidDetail struct {
	VolumeML      float64 `json:"volume_ml"`
	InjectionSite string  `json:"injection_site"`
}

// Session is one recorded treatment event. Sessions are immutable once
// durably written; updates and deletes are expressed as new operations
// referencing the original ID.
type Session struct {
	ID         string            `json:"id"`
	OwnerID    string            `json:"owner_id"`
	SubjectID  string            `json:"subject_id"`
	Type       SessionType       `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	CreatedAt  time.Time         `json:"created_at"`
	Completed  bool              `json:"completed"`
	Medication *MedicationDetail `json:"medication,omitempty"`
	Fluid      *FluidDetail      `json:"fluid,omitempty"`
}

// NewMedicationSession creates a medication session with a fresh ID.
func NewMedicationSession(ownerID, subjectID, name string, dosage float64, unit string, timestamp, createdAt time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		SubjectID: subjectID,
		Type:      SessionTypeMedication,
		Timestamp: timestamp,
		CreatedAt: createdAt,
		Completed: true,
		Medication: &MedicationDetail{
			Name:   name,
			Dosage: dosage,
			Unit:   unit,
		},
	}
}

// NewFluidSession creates a fluid-therapy session with a fresh ID.
func NewFluidSession(ownerID, subjectID string, volumeML float64, injectionSite string, timestamp, createdAt time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		SubjectID: subjectID,
		Type:      SessionTypeFluid,
		Timestamp: timestamp,
		CreatedAt: createdAt,
		Completed: true,
		Fluid: &FluidDetail{
			VolumeML:      volumeML,
			InjectionSite: injectionSite,
		},
	}
}

// MedicationName returns the medication name, or "" for non-medication sessions.
func (s *Session) MedicationName() string {
	if s.Medication == nil {
		return ""
	}
	return s.Medication.Name
}

// DateKey returns the calendar date of the session timestamp as yyyy-mm-dd.
func (s *Session) DateKey() string {
	return s.Timestamp.Format("2006-01-02")
}

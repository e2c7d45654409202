package models

import (
	"slices"
	"time"
)

// DailySummary is the per-(owner, subject, day) rolling counter entry held in
// the local summary cache. It exists only for "today" at read time; stale
// entries are purged on access rather than served.
type DailySummary struct {
	Date                   string   `json:"date"`
	MedicationSessionCount int      `json:"medication_session_count"`
	FluidSessionCount      int      `json:"fluid_session_count"`
	MedicationNames        []string `json:"medication_names,omitempty"`
	TotalDoseGiven         float64  `json:"total_dose_given"`
	TotalFluidVolumeGiven  float64  `json:"total_fluid_volume_given"`
}

// NewDailySummary creates an empty summary for the given day.
func NewDailySummary(day time.Time) *DailySummary {
	return &DailySummary{Date: day.Format("2006-01-02")}
}

// AddMedication records one medication session. The session count always
// increments, but the distinct-name set grows idempotently.
func (d *DailySummary) AddMedication(name string, dosage float64) {
	d.MedicationSessionCount++
	d.TotalDoseGiven += dosage
	if !slices.Contains(d.MedicationNames, name) {
		d.MedicationNames = append(d.MedicationNames, name)
	}
}

// AddFluid records one fluid-therapy session.
func (d *DailySummary) AddFluid(volumeML float64) {
	d.FluidSessionCount++
	d.TotalFluidVolumeGiven += volumeML
}

// IsFor reports whether the entry belongs to the given day.
func (d *DailySummary) IsFor(day time.Time) bool {
	return d.Date == day.Format("2006-01-02")
}

// HasMedication reports whether the given medication name was logged today.
func (d *DailySummary) HasMedication(name string) bool {
	return slices.Contains(d.MedicationNames, name)
}

// Package validate implements the stateless rules gate applied to candidate
// sessions before any write: structural checks, duplicate detection against
// recent-session context, and non-fatal schedule-drift warnings.
package validate

import (
	"fmt"
	"time"

	"github.com/pettrail/pettrail/internal/clock"
	"github.com/pettrail/pettrail/pkg/models"
)

const (
	// DefaultDuplicateWindow is the span within which two same-key sessions
	// are considered the same real-world event.
	DefaultDuplicateWindow = 15 * time.Minute

	// maxDosage is the sanity ceiling on a single dose; anything at or above
	// it is a data-entry error, whatever the unit.
	maxDosage = 1000

	minFluidVolumeML = 1
	maxFluidVolumeML = 500
)

// Options tunes the gate per caller.
type Options struct {
	// DuplicateWindow widens or narrows duplicate detection. Zero selects
	// DefaultDuplicateWindow.
	DuplicateWindow time.Duration

	// MaxScheduleDrift is how far a session may drift from its scheduled
	// time before a warning is emitted. Zero disables the check.
	MaxScheduleDrift time.Duration
}

// Warning is a non-blocking quality signal attached to an otherwise
// acceptable session.
type Warning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Outcome is the gate's verdict on one candidate.
type Outcome struct {
	Issues   []models.ValidationIssue
	Warnings []Warning
	Conflict *models.Session
}

// Valid reports whether the candidate may be written. Warnings alone never
// block a write.
func (o Outcome) Valid() bool {
	return len(o.Issues) == 0 && o.Conflict == nil
}

// Err converts a failing outcome into the typed error the orchestrator
// raises. Returns nil for valid outcomes.
func (o Outcome) Err() error {
	if o.Valid() {
		return nil
	}
	return &models.ValidationError{Issues: o.Issues, Conflict: o.Conflict}
}

// Gate applies validation rules in order: structure, duplicates, schedule
// drift. It holds no mutable state.
type Gate struct {
	clock clock.Clock
	opts  Options
}

// New creates a gate with the given clock and options.
func New(clk clock.Clock, opts Options) *Gate {
	if opts.DuplicateWindow <= 0 {
		opts.DuplicateWindow = DefaultDuplicateWindow
	}
	return &Gate{clock: clk, opts: opts}
}

// Validate checks a candidate session against its context. Structural
// failures short-circuit duplicate detection; the drift warning is computed
// only for candidates that pass both.
func (g *Gate) Validate(session *models.Session, vctx models.ValidationContext) Outcome {
	var out Outcome

	out.Issues = g.structuralIssues(session)
	if len(out.Issues) > 0 {
		return out
	}

	if conflict := g.findDuplicate(session, vctx.RecentSessions); conflict != nil {
		out.Conflict = conflict
		out.Issues = append(out.Issues, models.ValidationIssue{
			Field:   "timestamp",
			Message: fmt.Sprintf("a matching session was logged at %s", conflict.Timestamp.Format(time.RFC3339)),
			Kind:    models.IssueDuplicate,
		})
		return out
	}

	out.Warnings = g.scheduleDriftWarnings(session, vctx.TodaysSchedules)
	return out
}

func (g *Gate) structuralIssues(session *models.Session) []models.ValidationIssue {
	var issues []models.ValidationIssue

	add := func(field, message string) {
		issues = append(issues, models.ValidationIssue{Field: field, Message: message, Kind: models.IssueInvalid})
	}

	if session.ID == "" {
		add("id", "must not be empty")
	}
	if session.OwnerID == "" {
		add("owner_id", "must not be empty")
	}
	if session.SubjectID == "" {
		add("subject_id", "must not be empty")
	}
	if session.Timestamp.IsZero() {
		add("timestamp", "must be set")
	} else if session.Timestamp.After(g.clock.Now()) {
		add("timestamp", "must not be in the future")
	}

	switch session.Type {
	case models.SessionTypeMedication:
		if session.Medication == nil {
			add("medication", "payload missing for medication session")
			break
		}
		if session.Medication.Name == "" {
			add("medication.name", "must not be empty")
		}
		if session.Medication.Dosage < 0 {
			add("medication.dosage", "must not be negative")
		} else if session.Medication.Dosage >= maxDosage {
			add("medication.dosage", fmt.Sprintf("must be below %d", maxDosage))
		}
	case models.SessionTypeFluid:
		if session.Fluid == nil {
			add("fluid", "payload missing for fluid session")
			break
		}
		if session.Fluid.VolumeML < minFluidVolumeML || session.Fluid.VolumeML > maxFluidVolumeML {
			add("fluid.volume_ml", fmt.Sprintf("must be between %d and %d", minFluidVolumeML, maxFluidVolumeML))
		}
	default:
		add("type", "unknown session type")
	}

	return issues
}

// findDuplicate scans recent sessions for one sharing the candidate's
// logical key within the duplicate window. Medication sessions key on
// owner, subject and exact-case medication name; fluid sessions key on
// owner and subject only.
func (g *Gate) findDuplicate(candidate *models.Session, recent []models.Session) *models.Session {
	for i := range recent {
		other := &recent[i]
		if other.ID == candidate.ID {
			continue
		}
		if other.OwnerID != candidate.OwnerID || other.SubjectID != candidate.SubjectID {
			continue
		}
		if other.Type != candidate.Type {
			continue
		}
		if candidate.Type == models.SessionTypeMedication &&
			other.MedicationName() != candidate.MedicationName() {
			continue
		}

		gap := candidate.Timestamp.Sub(other.Timestamp)
		if gap < 0 {
			gap = -gap
		}
		if gap <= g.opts.DuplicateWindow {
			return other
		}
	}
	return nil
}

func (g *Gate) scheduleDriftWarnings(session *models.Session, schedules []models.ScheduleSlot) []Warning {
	if g.opts.MaxScheduleDrift <= 0 {
		return nil
	}

	matched := false
	var closest time.Duration
	for _, slot := range schedules {
		if slot.Type != session.Type {
			continue
		}
		if session.Type == models.SessionTypeMedication && slot.TreatmentName != session.MedicationName() {
			continue
		}

		drift := session.Timestamp.Sub(slot.ScheduledAt)
		if drift < 0 {
			drift = -drift
		}
		if !matched || drift < closest {
			matched = true
			closest = drift
		}
	}

	if !matched || closest <= g.opts.MaxScheduleDrift {
		return nil
	}
	return []Warning{{
		Field:   "timestamp",
		Message: fmt.Sprintf("logged %s away from the scheduled time", closest.Round(time.Minute)),
	}}
}

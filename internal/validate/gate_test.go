package validate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/pettrail/pettrail/internal/clock"
	"github.com/pettrail/pettrail/pkg/models"
)

var testNow = time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

// GateSuite is a test suite for the validation gate.
type GateSuite struct {
	suite.Suite
	clock *clock.Fixed
	gate  *Gate
}

func (s *GateSuite) SetupTest() {
	s.clock = clock.NewFixed(testNow)
	s.gate = New(s.clock, Options{})
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func medSession(name string, dosage float64, at time.Time) *models.Session {
	return models.NewMedicationSession("u1", "p1", name, dosage, "mg", at, at)
}

func fluidSession(volume float64, at time.Time) *models.Session {
	return models.NewFluidSession("u1", "p1", volume, "left flank", at, at)
}

func (s *GateSuite) TestValidMedicationSession() {
	out := s.gate.Validate(medSession("Benazepril", 2.5, testNow.Add(-time.Hour)), models.ValidationContext{})

	s.True(out.Valid())
	s.NoError(out.Err())
	s.Empty(out.Warnings)
}

func (s *GateSuite) TestStructuralRules_TableDriven() {
	past := testNow.Add(-time.Hour)

	tests := []struct {
		name      string
		session   *models.Session
		wantField string
	}{
		{
			name: "empty owner",
			session: func() *models.Session {
				m := medSession("Benazepril", 2.5, past)
				m.OwnerID = ""
				return m
			}(),
			wantField: "owner_id",
		},
		{
			name: "empty subject",
			session: func() *models.Session {
				m := medSession("Benazepril", 2.5, past)
				m.SubjectID = ""
				return m
			}(),
			wantField: "subject_id",
		},
		{
			name:      "negative dosage",
			session:   medSession("Benazepril", -1, past),
			wantField: "medication.dosage",
		},
		{
			name:      "dosage above sanity ceiling",
			session:   medSession("Benazepril", 1000, past),
			wantField: "medication.dosage",
		},
		{
			name:      "empty medication name",
			session:   medSession("", 2.5, past),
			wantField: "medication.name",
		},
		{
			name:      "volume below range",
			session:   fluidSession(0, past),
			wantField: "fluid.volume_ml",
		},
		{
			name:      "volume above range",
			session:   fluidSession(501, past),
			wantField: "fluid.volume_ml",
		},
		{
			name:      "future timestamp",
			session:   medSession("Benazepril", 2.5, testNow.Add(time.Minute)),
			wantField: "timestamp",
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			out := s.gate.Validate(tt.session, models.ValidationContext{})

			require.False(s.T(), out.Valid())
			require.NotEmpty(s.T(), out.Issues)
			assert.Equal(s.T(), tt.wantField, out.Issues[0].Field)
			assert.Equal(s.T(), models.IssueInvalid, out.Issues[0].Kind)
		})
	}
}

func (s *GateSuite) TestDuplicateWithinWindow() {
	prior := medSession("Benazepril", 2.5, testNow.Add(-70*time.Minute))
	candidate := medSession("Benazepril", 2.5, testNow.Add(-60*time.Minute))

	out := s.gate.Validate(candidate, models.ValidationContext{
		RecentSessions: []models.Session{*prior},
	})

	require.False(s.T(), out.Valid())
	require.NotNil(s.T(), out.Conflict)
	s.Equal(prior.ID, out.Conflict.ID)
	s.Equal(models.IssueDuplicate, out.Issues[0].Kind)

	var verr *models.ValidationError
	require.True(s.T(), errors.As(out.Err(), &verr))
	s.True(verr.IsDuplicate())
	s.Equal(prior.ID, verr.Conflict.ID)
}

func (s *GateSuite) TestDuplicateRules_TableDriven() {
	base := testNow.Add(-2 * time.Hour)

	tests := []struct {
		name          string
		prior         *models.Session
		candidate     *models.Session
		window        time.Duration
		wantDuplicate bool
	}{
		{
			name:          "same name inside default window",
			prior:         medSession("Benazepril", 2.5, base),
			candidate:     medSession("Benazepril", 2.5, base.Add(14*time.Minute)),
			wantDuplicate: true,
		},
		{
			name:          "same name outside default window",
			prior:         medSession("Benazepril", 2.5, base),
			candidate:     medSession("Benazepril", 2.5, base.Add(16*time.Minute)),
			wantDuplicate: false,
		},
		{
			name:          "different name at identical timestamp",
			prior:         medSession("Benazepril", 2.5, base),
			candidate:     medSession("Semintra", 1.0, base),
			wantDuplicate: false,
		},
		{
			name:          "name match is case-sensitive",
			prior:         medSession("benazepril", 2.5, base),
			candidate:     medSession("Benazepril", 2.5, base),
			wantDuplicate: false,
		},
		{
			name: "different subject never collides",
			prior: func() *models.Session {
				m := medSession("Benazepril", 2.5, base)
				m.SubjectID = "p2"
				return m
			}(),
			candidate:     medSession("Benazepril", 2.5, base),
			wantDuplicate: false,
		},
		{
			name:          "widened window catches later session",
			prior:         medSession("Benazepril", 2.5, base),
			candidate:     medSession("Benazepril", 2.5, base.Add(25*time.Minute)),
			window:        30 * time.Minute,
			wantDuplicate: true,
		},
		{
			name:          "fluid sessions key on time only",
			prior:         fluidSession(100, base),
			candidate:     fluidSession(80, base.Add(10*time.Minute)),
			wantDuplicate: true,
		},
		{
			name:          "fluid outside window",
			prior:         fluidSession(100, base),
			candidate:     fluidSession(80, base.Add(20*time.Minute)),
			wantDuplicate: false,
		},
		{
			name:          "prior earlier or later both collide",
			prior:         medSession("Benazepril", 2.5, base.Add(10*time.Minute)),
			candidate:     medSession("Benazepril", 2.5, base),
			wantDuplicate: true,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			gate := New(s.clock, Options{DuplicateWindow: tt.window})
			out := gate.Validate(tt.candidate, models.ValidationContext{
				RecentSessions: []models.Session{*tt.prior},
			})

			if tt.wantDuplicate {
				assert.NotNil(s.T(), out.Conflict)
			} else {
				assert.True(s.T(), out.Valid(), "issues: %v", out.Issues)
			}
		})
	}
}

func (s *GateSuite) TestCandidateDoesNotConflictWithItself() {
	session := medSession("Benazepril", 2.5, testNow.Add(-time.Hour))

	out := s.gate.Validate(session, models.ValidationContext{
		RecentSessions: []models.Session{*session},
	})

	s.True(out.Valid())
}

func (s *GateSuite) TestScheduleDriftWarningIsNonFatal() {
	gate := New(s.clock, Options{MaxScheduleDrift: 30 * time.Minute})

	at := testNow.Add(-time.Hour)
	session := medSession("Benazepril", 2.5, at)
	vctx := models.ValidationContext{
		TodaysSchedules: []models.ScheduleSlot{
			{TreatmentName: "Benazepril", Type: models.SessionTypeMedication, ScheduledAt: at.Add(-2 * time.Hour)},
		},
	}

	out := gate.Validate(session, vctx)

	s.True(out.Valid())
	require.Len(s.T(), out.Warnings, 1)
	s.Equal("timestamp", out.Warnings[0].Field)
}

func (s *GateSuite) TestNoDriftWarningInsideTolerance() {
	gate := New(s.clock, Options{MaxScheduleDrift: 30 * time.Minute})

	at := testNow.Add(-time.Hour)
	session := medSession("Benazepril", 2.5, at)
	vctx := models.ValidationContext{
		TodaysSchedules: []models.ScheduleSlot{
			{TreatmentName: "Benazepril", Type: models.SessionTypeMedication, ScheduledAt: at.Add(10 * time.Minute)},
		},
	}

	out := gate.Validate(session, vctx)

	s.True(out.Valid())
	s.Empty(out.Warnings)
}

func (s *GateSuite) TestDriftCheckDisabledByDefault() {
	at := testNow.Add(-time.Hour)
	session := medSession("Benazepril", 2.5, at)
	vctx := models.ValidationContext{
		TodaysSchedules: []models.ScheduleSlot{
			{TreatmentName: "Benazepril", Type: models.SessionTypeMedication, ScheduledAt: at.Add(-6 * time.Hour)},
		},
	}

	out := s.gate.Validate(session, vctx)

	s.True(out.Valid())
	s.Empty(out.Warnings)
}

package models

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// SummarySuite is a test suite for DailySummary operations.
type SummarySuite struct {
	suite.Suite
}

func TestSummarySuite(t *testing.T) {
	suite.Run(t, new(SummarySuite))
}

func (s *SummarySuite) TestNewDailySummary() {
	day := time.Date(2026, 8, 23, 15, 30, 0, 0, time.UTC)
	summary := NewDailySummary(day)

	s.Equal("2026-08-23", summary.Date)
	s.Zero(summary.MedicationSessionCount)
	s.Zero(summary.FluidSessionCount)
	s.Empty(summary.MedicationNames)
}

func (s *SummarySuite) TestAddMedicationIdempotentNames() {
	summary := NewDailySummary(time.Now())

	summary.AddMedication("Benazepril", 2.5)
	summary.AddMedication("Benazepril", 2.5)
	summary.AddMedication("Semintra", 1.0)

	s.Equal(3, summary.MedicationSessionCount)
	s.Equal([]string{"Benazepril", "Semintra"}, summary.MedicationNames)
	s.Equal(6.0, summary.TotalDoseGiven)
	s.True(summary.HasMedication("Benazepril"))
	s.False(summary.HasMedication("benazepril"))
}

func (s *SummarySuite) TestAddFluidTotals() {
	summary := NewDailySummary(time.Now())

	summary.AddFluid(80)
	summary.AddFluid(20)

	s.Equal(2, summary.FluidSessionCount)
	s.Equal(100.0, summary.TotalFluidVolumeGiven)
}

func (s *SummarySuite) TestIsFor() {
	day := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	summary := NewDailySummary(day)

	s.True(summary.IsFor(day.Add(23 * time.Hour)))
	s.False(summary.IsFor(day.AddDate(0, 0, 1)))
}

func (s *SummarySuite) TestJSONRoundTrip() {
	summary := NewDailySummary(time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC))
	summary.AddMedication("Benazepril", 2.5)
	summary.AddFluid(100)

	data, err := json.Marshal(summary)
	require.NoError(s.T(), err)

	var decoded DailySummary
	require.NoError(s.T(), json.Unmarshal(data, &decoded))
	s.Equal(*summary, decoded)
}

// SessionSuite is a test suite for Session constructors.
type SessionSuite struct {
	suite.Suite
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) TestNewMedicationSession() {
	at := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	session := NewMedicationSession("u1", "p1", "Benazepril", 2.5, "mg", at, at)

	s.NotEmpty(session.ID)
	s.Equal(SessionTypeMedication, session.Type)
	s.Equal("Benazepril", session.MedicationName())
	s.Equal("2026-08-23", session.DateKey())
	s.True(session.Completed)
	s.Nil(session.Fluid)
}

func (s *SessionSuite) TestNewFluidSession() {
	at := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	session := NewFluidSession("u1", "p1", 100, "left flank", at, at)

	s.NotEmpty(session.ID)
	s.Equal(SessionTypeFluid, session.Type)
	s.Empty(session.MedicationName())
	require.NotNil(s.T(), session.Fluid)
	s.Equal(100.0, session.Fluid.VolumeML)
}

func (s *SessionSuite) TestValidationErrorMessages() {
	verr := &ValidationError{Issues: []ValidationIssue{
		{Field: "owner_id", Message: "must not be empty", Kind: IssueInvalid},
	}}
	s.False(verr.IsDuplicate())
	s.Contains(verr.Error(), "owner_id")

	conflict := NewFluidSession("u1", "p1", 100, "", time.Now(), time.Now())
	dup := &ValidationError{Conflict: conflict}
	s.True(dup.IsDuplicate())
	s.Contains(dup.Error(), conflict.ID)
}

func (s *SessionSuite) TestKindForCreate() {
	s.Equal(OperationCreateFluid, KindForCreate(SessionTypeFluid))
	s.Equal(OperationCreateMedication, KindForCreate(SessionTypeMedication))
}

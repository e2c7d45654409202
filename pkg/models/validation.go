package models

import (
	"fmt"
	"strings"
)

// IssueKind is the machine-readable tag on a validation issue.
type IssueKind string

const (
	IssueInvalid   IssueKind = "invalid"
	IssueDuplicate IssueKind = "duplicate"
)

// ValidationIssue is one problem found in a candidate session.
type ValidationIssue struct {
	Field   string    `json:"field"`
	Message string    `json:"message"`
	Kind    IssueKind `json:"kind"`
}

// ValidationError is the typed failure the orchestrator raises when the gate
// rejects a candidate. For duplicates, Conflict references the existing
// session so callers can offer an "update existing" affordance.
type ValidationError struct {
	Issues   []ValidationIssue
	Conflict *Session
}

func (e *ValidationError) Error() string {
	if e.Conflict != nil {
		return fmt.Sprintf("duplicate of session %s", e.Conflict.ID)
	}
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Field + ": " + issue.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// IsDuplicate reports whether the failure was duplicate detection.
func (e *ValidationError) IsDuplicate() bool {
	return e.Conflict != nil
}

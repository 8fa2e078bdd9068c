package models

import (
	"errors"
	"time"
)

// IssueType classifies a civic issue into a fixed category.
type IssueType string

const (
	IssueTypePothole         IssueType = "POTHOLE"
	IssueTypeGarbage         IssueType = "GARBAGE"
	IssueTypeWater           IssueType = "WATER"
	IssueTypeStreetlight     IssueType = "STREETLIGHT"
	IssueTypeElectricity     IssueType = "ELECTRICITY"
	IssueTypeDrainage        IssueType = "DRAINAGE"
	IssueTypeRoadObstruction IssueType = "ROAD_OBSTRUCTION"
	// IssueTypeOther is the catch-all and the default sentinel: an issue still
	// typed OTHER is considered unclassified and may be overwritten by AI.
	IssueTypeOther IssueType = "OTHER"
)

// IssueTypes lists all valid issue types in display order.
var IssueTypes = []IssueType{
	IssueTypePothole,
	IssueTypeGarbage,
	IssueTypeWater,
	IssueTypeStreetlight,
	IssueTypeElectricity,
	IssueTypeDrainage,
	IssueTypeRoadObstruction,
	IssueTypeOther,
}

var issueTypeLabels = map[IssueType]string{
	IssueTypePothole:         "Potholes",
	IssueTypeGarbage:         "Garbage overflow",
	IssueTypeWater:           "Water leakage",
	IssueTypeStreetlight:     "Broken streetlights",
	IssueTypeElectricity:     "Electricity failure",
	IssueTypeDrainage:        "Drainage blockage",
	IssueTypeRoadObstruction: "Road obstruction",
	IssueTypeOther:           "Other",
}

// IsValid reports whether t is one of the fixed issue types.
func (t IssueType) IsValid() bool {
	_, ok := issueTypeLabels[t]
	return ok
}

// Label returns the human-readable name for the issue type.
func (t IssueType) Label() string {
	if label, ok := issueTypeLabels[t]; ok {
		return label
	}
	return issueTypeLabels[IssueTypeOther]
}

// ParseIssueType maps a raw string to a valid issue type, falling back to
// OTHER for anything unrecognized.
func ParseIssueType(s string) IssueType {
	t := IssueType(s)
	if t.IsValid() {
		return t
	}
	return IssueTypeOther
}

// IssueStatus is the workflow state of an issue.
type IssueStatus string

const (
	StatusPending    IssueStatus = "PENDING"
	StatusInProgress IssueStatus = "IN_PROGRESS"
	StatusResolved   IssueStatus = "RESOLVED"
	StatusRejected   IssueStatus = "REJECTED"
)

// IssueStatuses lists all valid statuses.
var IssueStatuses = []IssueStatus{StatusPending, StatusInProgress, StatusResolved, StatusRejected}

// IsValid reports whether s is one of the fixed statuses.
func (s IssueStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved, StatusRejected:
		return true
	}
	return false
}

// IssuePriority is the urgency tier of an issue.
type IssuePriority string

const (
	PriorityLow      IssuePriority = "LOW"
	PriorityMedium   IssuePriority = "MEDIUM"
	PriorityHigh     IssuePriority = "HIGH"
	PriorityCritical IssuePriority = "CRITICAL"
)

// IssuePriorities lists all valid priorities.
var IssuePriorities = []IssuePriority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// IsValid reports whether p is one of the fixed priorities.
func (p IssuePriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ParseIssuePriority maps a raw string to a valid priority, falling back to
// MEDIUM for anything unrecognized.
func ParseIssuePriority(s string) IssuePriority {
	p := IssuePriority(s)
	if p.IsValid() {
		return p
	}
	return PriorityMedium
}

// MaxReporterPhoneLen bounds the reporter_phone column.
const MaxReporterPhoneLen = 15

// Issue represents a civic issue reported by a citizen.
//
// issue_type and priority are the authoritative fields that drive workflow
// and dashboards. The ai_* fields are shadow fields written only by the
// classification pass; they record what the AI said even when the submitter's
// explicit choice wins.
type Issue struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IssueType   IssueType `json:"issue_type"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
	Area      string  `json:"area"`
	City      string  `json:"city"`

	ImageURL    *string `json:"image_url,omitempty"`
	ImageLabels *string `json:"image_labels,omitempty"`

	Status   IssueStatus   `json:"status"`
	Priority IssuePriority `json:"priority"`

	AIClassification *IssueType     `json:"ai_classification,omitempty"`
	AIPriority       *IssuePriority `json:"ai_priority,omitempty"`
	AIAnalysis       *string        `json:"ai_analysis,omitempty"`

	ReportedBy    string  `json:"reported_by"`
	ReporterName  string  `json:"reporter_name"`
	ReporterPhone string  `json:"reporter_phone"`
	ReporterEmail *string `json:"reporter_email,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	AuthorityNotes *string `json:"authority_notes,omitempty"`
	AssignedTo     *string `json:"assigned_to,omitempty"`
}

// Comment is an authority remark attached to an issue. Comments are
// append-only and never mutate the issue they reference.
type Comment struct {
	ID          int64     `json:"id"`
	IssueID     int64     `json:"issue_id"`
	Comment     string    `json:"comment"`
	CommentedBy string    `json:"commented_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// AreaDashboard is the cached per-area statistics row. It is recomputed by a
// full recount on each refresh, never maintained incrementally.
type AreaDashboard struct {
	Area             string    `json:"area"`
	TotalIssues      int       `json:"total_issues"`
	PendingIssues    int       `json:"pending_issues"`
	InProgressIssues int       `json:"in_progress_issues"`
	ResolvedIssues   int       `json:"resolved_issues"`
	CriticalIssues   int       `json:"critical_issues"`
	LastUpdated      time.Time `json:"last_updated"`
}

// Sentinel errors surfaced by the service and database layers.
var (
	ErrIssueNotFound = errors.New("issue not found")
	ErrValidation    = errors.New("validation failed")
	ErrNoIssues      = errors.New("no issues to analyze")
)

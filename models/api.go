package models

import "time"

// SubmitIssueRequest is the citizen-facing submission payload.
//
// Caller identity is passed explicitly (reported_by / reporter_name /
// reporter_email) rather than pulled from ambient request state; the HTTP
// layer fills these from its session handling before calling the service.
type SubmitIssueRequest struct {
	Description string  `json:"description" binding:"required"`
	IssueType   string  `json:"issue_type"`
	Latitude    float64 `json:"latitude" binding:"required"`
	Longitude   float64 `json:"longitude" binding:"required"`
	Address     string  `json:"address" binding:"required"`
	Area        string  `json:"area" binding:"required"`
	City        string  `json:"city"`

	ImageURL    *string `json:"image_url,omitempty"`
	ImageLabels *string `json:"image_labels,omitempty"`

	ReportedBy    string  `json:"reported_by" binding:"required"`
	ReporterName  string  `json:"reporter_name"`
	ReporterEmail *string `json:"reporter_email,omitempty"`
	ReporterPhone string  `json:"reporter_phone"`
}

// IssuePatch is a partial authority-side update. Only non-nil fields are
// applied.
type IssuePatch struct {
	Status         *IssueStatus   `json:"status,omitempty"`
	Priority       *IssuePriority `json:"priority,omitempty"`
	AuthorityNotes *string        `json:"authority_notes,omitempty"`
	AssignedTo     *string        `json:"assigned_to,omitempty"`
}

// IssueFilter narrows an issue listing. Area matches by substring, everything
// else by equality; Reporter scopes the listing to one submitter.
type IssueFilter struct {
	Status    *IssueStatus
	Priority  *IssuePriority
	Area      string
	IssueType *IssueType
	Reporter  string
}

// TypeCount is one entry of a per-type breakdown, keyed by the human-readable
// type label.
type TypeCount map[string]int

// AreaStat annotates one area in the overview top-ten ranking.
type AreaStat struct {
	Area     string `json:"area"`
	Total    int    `json:"total"`
	Pending  int    `json:"pending"`
	Resolved int    `json:"resolved"`
}

// OverviewReport is the live, non-persisted dashboard aggregate over the
// entire issue corpus.
type OverviewReport struct {
	TotalIssues        int `json:"total_issues"`
	PendingIssues      int `json:"pending_issues"`
	InProgressIssues   int `json:"in_progress_issues"`
	ResolvedIssues     int `json:"resolved_issues"`
	CriticalIssues     int `json:"critical_issues"`
	HighPriorityIssues int `json:"high_priority_issues"`

	IssueTypes      TypeCount `json:"issue_types"`
	PendingTypes    TypeCount `json:"pending_types"`
	InProgressTypes TypeCount `json:"inprogress_types"`
	ResolvedTypes   TypeCount `json:"resolved_types"`

	RecentIssues []Issue    `json:"recent_issues"`
	AreasStats   []AreaStat `json:"areas_stats"`
}

// DailyCount is one day bucket of the trailing issue-creation series.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// AnalyticsResponse carries chart data: the day-bucketed trailing series plus
// the fixed-cardinality status and priority distributions.
type AnalyticsResponse struct {
	DailyCounts          []DailyCount   `json:"daily_counts"`
	StatusDistribution   map[string]int `json:"status_distribution"`
	PriorityDistribution map[string]int `json:"priority_distribution"`
}

// RefreshSnapshotsResponse reports which areas had their dashboard row
// recomputed.
type RefreshSnapshotsResponse struct {
	Count int      `json:"count"`
	Areas []string `json:"areas"`
}

// AuthorityReportResponse wraps an AI-generated executive summary.
type AuthorityReportResponse struct {
	Report              string    `json:"report"`
	GeneratedAt         time.Time `json:"generated_at"`
	Area                string    `json:"area"`
	TotalIssuesAnalyzed int       `json:"total_issues_analyzed"`
}

// IssueMapPoint is the lightweight projection served to the city-wide
// heatmap.
type IssueMapPoint struct {
	ID        int64         `json:"id"`
	Title     string        `json:"title"`
	IssueType IssueType     `json:"issue_type"`
	Status    IssueStatus   `json:"status"`
	Priority  IssuePriority `json:"priority"`
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Area      string        `json:"area"`
	City      string        `json:"city"`
	CreatedAt time.Time     `json:"created_at"`
}

// ClassifyTask is the deferred-reconciliation queue message published after
// the base issue write commits.
type ClassifyTask struct {
	IssueID int64 `json:"issue_id"`
}

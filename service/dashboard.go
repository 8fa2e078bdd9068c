package service

import (
	"context"
	"strings"
	"time"

	"citypulse/gemini"
	"citypulse/metrics"
	"citypulse/models"

	"github.com/apex/log"
)

// RefreshAreaSnapshot recomputes and upserts one area's dashboard row.
func (s *IssueService) RefreshAreaSnapshot(ctx context.Context, area string) (*models.AreaDashboard, error) {
	return s.db.RefreshAreaSnapshot(ctx, area)
}

// RefreshAllSnapshots recomputes the dashboard row for every area that has
// at least one issue. The refresh is best-effort per area: one failing area
// aborts the sweep so the caller sees a consistent count.
func (s *IssueService) RefreshAllSnapshots(ctx context.Context) (*models.RefreshSnapshotsResponse, error) {
	areas, err := s.db.ListIssueAreas(ctx)
	if err != nil {
		return nil, err
	}

	refreshed := make([]string, 0, len(areas))
	for _, area := range areas {
		if _, err := s.db.RefreshAreaSnapshot(ctx, area); err != nil {
			return nil, err
		}
		refreshed = append(refreshed, area)
	}

	log.Infof("Refreshed %d area snapshots", len(refreshed))
	return &models.RefreshSnapshotsResponse{Count: len(refreshed), Areas: refreshed}, nil
}

// GetAreaDashboard returns the cached snapshot for one area, refreshing it
// first when no row exists yet.
func (s *IssueService) GetAreaDashboard(ctx context.Context, area string) (*models.AreaDashboard, error) {
	dash, err := s.db.GetAreaDashboard(ctx, area)
	if err != nil {
		return s.db.RefreshAreaSnapshot(ctx, area)
	}
	return dash, nil
}

// GetOverview builds the live full-corpus dashboard aggregate.
func (s *IssueService) GetOverview(ctx context.Context) (*models.OverviewReport, error) {
	return s.db.GetOverview(ctx)
}

// GetAnalytics assembles the chart payload: the trailing daily-creation
// series plus the status and priority distributions.
func (s *IssueService) GetAnalytics(ctx context.Context) (*models.AnalyticsResponse, error) {
	daily, err := s.db.GetDailyCounts(ctx, s.analyticsWindowDays, time.Now())
	if err != nil {
		return nil, err
	}
	statusDist, err := s.db.GetStatusDistribution(ctx)
	if err != nil {
		return nil, err
	}
	priorityDist, err := s.db.GetPriorityDistribution(ctx)
	if err != nil {
		return nil, err
	}

	return &models.AnalyticsResponse{
		DailyCounts:          daily,
		StatusDistribution:   statusDist,
		PriorityDistribution: priorityDist,
	}, nil
}

// GenerateAuthorityReport produces an AI executive summary over the issue
// corpus, optionally scoped to one area. With zero matching issues there is
// nothing to summarize and the call fails before reaching the model.
func (s *IssueService) GenerateAuthorityReport(ctx context.Context, area string) (*models.AuthorityReportResponse, error) {
	filter := models.IssueFilter{Area: strings.TrimSpace(area)}
	issues, err := s.db.ListIssues(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, models.ErrNoIssues
	}

	stats := gemini.ReportStats{
		TypeBreakdown:     map[string]int{},
		PriorityBreakdown: map[string]int{},
	}
	for _, issue := range issues {
		stats.TotalIssues++
		switch issue.Status {
		case models.StatusPending:
			stats.PendingIssues++
		case models.StatusInProgress:
			stats.InProgressIssues++
		case models.StatusResolved:
			stats.ResolvedIssues++
		}
		stats.TypeBreakdown[issue.IssueType.Label()]++
		stats.PriorityBreakdown[strings.ToLower(string(issue.Priority))]++
	}

	report := s.classifier.GenerateAuthorityReport(ctx, stats)
	if strings.HasPrefix(report, gemini.DegradedReportPrefix) {
		metrics.ReportsGeneratedTotal.WithLabelValues("degraded").Inc()
	} else {
		metrics.ReportsGeneratedTotal.WithLabelValues("success").Inc()
	}

	return &models.AuthorityReportResponse{
		Report:              report,
		GeneratedAt:         time.Now().UTC(),
		Area:                strings.TrimSpace(area),
		TotalIssuesAnalyzed: len(issues),
	}, nil
}

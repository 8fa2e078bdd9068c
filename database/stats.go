package database

import (
	"context"
	"fmt"

	"citypulse/models"

	"github.com/apex/log"
)

// RefreshAreaSnapshot recomputes one area's dashboard row from scratch and
// upserts it. Counts come from a full recount of the issues table; the
// snapshot is never adjusted incrementally.
func (d *Database) RefreshAreaSnapshot(ctx context.Context, area string) (*models.AreaDashboard, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(status = 'PENDING'), 0),
			COALESCE(SUM(status = 'IN_PROGRESS'), 0),
			COALESCE(SUM(status = 'RESOLVED'), 0),
			COALESCE(SUM(priority = 'CRITICAL'), 0)
		FROM issues
		WHERE area = ?
	`

	var dash models.AreaDashboard
	dash.Area = area
	err := d.db.QueryRowContext(ctx, query, area).Scan(
		&dash.TotalIssues,
		&dash.PendingIssues,
		&dash.InProgressIssues,
		&dash.ResolvedIssues,
		&dash.CriticalIssues,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count issues for area %s: %w", area, err)
	}

	upsert := `
		INSERT INTO authority_dashboards (area, total_issues, pending_issues, in_progress_issues, resolved_issues, critical_issues)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			total_issues = VALUES(total_issues),
			pending_issues = VALUES(pending_issues),
			in_progress_issues = VALUES(in_progress_issues),
			resolved_issues = VALUES(resolved_issues),
			critical_issues = VALUES(critical_issues)
	`

	_, err = d.db.ExecContext(ctx, upsert,
		dash.Area,
		dash.TotalIssues,
		dash.PendingIssues,
		dash.InProgressIssues,
		dash.ResolvedIssues,
		dash.CriticalIssues,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert dashboard for area %s: %w", area, err)
	}

	log.Infof("Dashboard snapshot refreshed for area %s (%d issues)", area, dash.TotalIssues)
	return &dash, nil
}

// ListIssueAreas returns every distinct area that has at least one issue.
func (d *Database) ListIssueAreas(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT DISTINCT area FROM issues ORDER BY area")
	if err != nil {
		return nil, fmt.Errorf("failed to list areas: %w", err)
	}
	defer rows.Close()

	var areas []string
	for rows.Next() {
		var area string
		if err := rows.Scan(&area); err != nil {
			return nil, fmt.Errorf("failed to scan area: %w", err)
		}
		areas = append(areas, area)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating areas: %w", err)
	}

	return areas, nil
}

// GetAreaDashboard returns the cached snapshot for one area.
func (d *Database) GetAreaDashboard(ctx context.Context, area string) (*models.AreaDashboard, error) {
	query := `
		SELECT area, total_issues, pending_issues, in_progress_issues, resolved_issues, critical_issues, last_updated
		FROM authority_dashboards
		WHERE area = ?
	`

	var dash models.AreaDashboard
	err := d.db.QueryRowContext(ctx, query, area).Scan(
		&dash.Area,
		&dash.TotalIssues,
		&dash.PendingIssues,
		&dash.InProgressIssues,
		&dash.ResolvedIssues,
		&dash.CriticalIssues,
		&dash.LastUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get dashboard for area %s: %w", area, err)
	}

	return &dash, nil
}

// GetOverview builds the live full-corpus dashboard aggregate. Nothing here
// is cached; every call recounts the issues table.
func (d *Database) GetOverview(ctx context.Context) (*models.OverviewReport, error) {
	overview := &models.OverviewReport{
		IssueTypes:      models.TypeCount{},
		PendingTypes:    models.TypeCount{},
		InProgressTypes: models.TypeCount{},
		ResolvedTypes:   models.TypeCount{},
	}

	// Headline counters.
	headline := `
		SELECT
			COUNT(*),
			COALESCE(SUM(status = 'PENDING'), 0),
			COALESCE(SUM(status = 'IN_PROGRESS'), 0),
			COALESCE(SUM(status = 'RESOLVED'), 0),
			COALESCE(SUM(priority = 'CRITICAL'), 0),
			COALESCE(SUM(priority = 'HIGH'), 0)
		FROM issues
	`
	err := d.db.QueryRowContext(ctx, headline).Scan(
		&overview.TotalIssues,
		&overview.PendingIssues,
		&overview.InProgressIssues,
		&overview.ResolvedIssues,
		&overview.CriticalIssues,
		&overview.HighPriorityIssues,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count overview totals: %w", err)
	}

	// Per-type breakdowns for the whole corpus and per-status cohorts, built
	// from one grouped query. Keys are human-readable labels; zero-count
	// types are simply absent.
	breakdown := `
		SELECT status, issue_type, COUNT(*)
		FROM issues
		GROUP BY status, issue_type
	`
	rows, err := d.db.QueryContext(ctx, breakdown)
	if err != nil {
		return nil, fmt.Errorf("failed to query type breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status models.IssueStatus
		var issueType models.IssueType
		var count int
		if err := rows.Scan(&status, &issueType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan type breakdown: %w", err)
		}

		label := issueType.Label()
		overview.IssueTypes[label] += count
		switch status {
		case models.StatusPending:
			overview.PendingTypes[label] += count
		case models.StatusInProgress:
			overview.InProgressTypes[label] += count
		case models.StatusResolved:
			overview.ResolvedTypes[label] += count
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating type breakdown: %w", err)
	}

	// Ten most recent issues, full records.
	recentQuery := `SELECT ` + issueColumns + ` FROM issues ORDER BY created_at DESC LIMIT 10`
	recentRows, err := d.db.QueryContext(ctx, recentQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent issues: %w", err)
	}
	defer recentRows.Close()

	for recentRows.Next() {
		issue, err := scanIssue(recentRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recent issue: %w", err)
		}
		overview.RecentIssues = append(overview.RecentIssues, *issue)
	}
	if err = recentRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recent issues: %w", err)
	}

	// Top ten areas by total volume.
	areasQuery := `
		SELECT area, COUNT(*) AS total,
			COALESCE(SUM(status = 'PENDING'), 0),
			COALESCE(SUM(status = 'RESOLVED'), 0)
		FROM issues
		GROUP BY area
		ORDER BY total DESC
		LIMIT 10
	`
	areaRows, err := d.db.QueryContext(ctx, areasQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query area stats: %w", err)
	}
	defer areaRows.Close()

	for areaRows.Next() {
		var stat models.AreaStat
		if err := areaRows.Scan(&stat.Area, &stat.Total, &stat.Pending, &stat.Resolved); err != nil {
			return nil, fmt.Errorf("failed to scan area stat: %w", err)
		}
		overview.AreasStats = append(overview.AreasStats, stat)
	}
	if err = areaRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating area stats: %w", err)
	}

	return overview, nil
}

package database

import (
	"context"
	"fmt"
	"time"

	"citypulse/models"
)

// GetDailyCounts returns one bucket per calendar day for the trailing
// windowDays days, most recent day first. Days with no issues are
// zero-filled; the series length is always windowDays.
func (d *Database) GetDailyCounts(ctx context.Context, windowDays int, now time.Time) ([]models.DailyCount, error) {
	today := now.UTC().Truncate(24 * time.Hour)
	windowStart := today.AddDate(0, 0, -(windowDays - 1))

	query := `
		SELECT DATE_FORMAT(created_at, '%Y-%m-%d'), COUNT(*)
		FROM issues
		WHERE created_at >= ?
		GROUP BY DATE_FORMAT(created_at, '%Y-%m-%d')
	`

	rows, err := d.db.QueryContext(ctx, query, windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily counts: %w", err)
	}
	defer rows.Close()

	byDay := make(map[string]int, windowDays)
	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("failed to scan daily count: %w", err)
		}
		byDay[day] = count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily counts: %w", err)
	}

	counts := make([]models.DailyCount, 0, windowDays)
	for i := 0; i < windowDays; i++ {
		day := today.AddDate(0, 0, -i).Format("2006-01-02")
		counts = append(counts, models.DailyCount{Date: day, Count: byDay[day]})
	}

	return counts, nil
}

// GetStatusDistribution counts issues per workflow status. All four statuses
// are always present, zero-valued when empty, under lowercase keys.
func (d *Database) GetStatusDistribution(ctx context.Context) (map[string]int, error) {
	dist := map[string]int{
		"pending":     0,
		"in_progress": 0,
		"resolved":    0,
		"rejected":    0,
	}

	rows, err := d.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM issues GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to query status distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status models.IssueStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		switch status {
		case models.StatusPending:
			dist["pending"] = count
		case models.StatusInProgress:
			dist["in_progress"] = count
		case models.StatusResolved:
			dist["resolved"] = count
		case models.StatusRejected:
			dist["rejected"] = count
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status distribution: %w", err)
	}

	return dist, nil
}

// GetPriorityDistribution counts issues per priority tier. All four tiers are
// always present, zero-valued when empty, under lowercase keys.
func (d *Database) GetPriorityDistribution(ctx context.Context) (map[string]int, error) {
	dist := map[string]int{
		"low":      0,
		"medium":   0,
		"high":     0,
		"critical": 0,
	}

	rows, err := d.db.QueryContext(ctx, "SELECT priority, COUNT(*) FROM issues GROUP BY priority")
	if err != nil {
		return nil, fmt.Errorf("failed to query priority distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var priority models.IssuePriority
		var count int
		if err := rows.Scan(&priority, &count); err != nil {
			return nil, fmt.Errorf("failed to scan priority count: %w", err)
		}
		switch priority {
		case models.PriorityLow:
			dist["low"] = count
		case models.PriorityMedium:
			dist["medium"] = count
		case models.PriorityHigh:
			dist["high"] = count
		case models.PriorityCritical:
			dist["critical"] = count
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating priority distribution: %w", err)
	}

	return dist, nil
}

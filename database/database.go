package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"citypulse/config"
	"citypulse/models"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"
)

// Database handles all database operations
type Database struct {
	db *sql.DB
}

// NewDatabase creates a new database connection
func NewDatabase(cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Infof("Database connected successfully to %s:%s/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)

	return &Database{db: db}, nil
}

// NewDatabaseFromConn wraps an existing connection; used by tests.
func NewDatabaseFromConn(db *sql.DB) *Database {
	return &Database{db: db}
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// EnsureIssuesTable creates the issues table if it doesn't exist
func (d *Database) EnsureIssuesTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS issues (
			id BIGINT NOT NULL AUTO_INCREMENT,
			title VARCHAR(200) NOT NULL,
			description TEXT NOT NULL,
			issue_type VARCHAR(20) NOT NULL DEFAULT 'OTHER',
			latitude DECIMAL(9,6) NOT NULL,
			longitude DECIMAL(9,6) NOT NULL,
			address VARCHAR(500) NOT NULL,
			area VARCHAR(100) NOT NULL,
			city VARCHAR(100) NOT NULL DEFAULT 'Unknown',
			image_url VARCHAR(500),
			image_labels TEXT,
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			priority VARCHAR(20) NOT NULL DEFAULT 'MEDIUM',
			ai_classification VARCHAR(20),
			ai_priority VARCHAR(20),
			ai_analysis TEXT,
			reported_by VARCHAR(100) NOT NULL,
			reporter_name VARCHAR(100) NOT NULL,
			reporter_phone VARCHAR(15) NOT NULL,
			reporter_email VARCHAR(255),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			resolved_at TIMESTAMP NULL,
			authority_notes TEXT,
			assigned_to VARCHAR(100),
			PRIMARY KEY (id),
			INDEX status_created_idx (status, created_at),
			INDEX type_area_idx (issue_type, area),
			INDEX lat_lng_idx (latitude, longitude)
		)
	`

	_, err := d.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create issues table: %w", err)
	}

	log.Info("Issues table ensured")
	return nil
}

// EnsureCommentsTable creates the issue_comments table if it doesn't exist
func (d *Database) EnsureCommentsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS issue_comments (
			id BIGINT NOT NULL AUTO_INCREMENT,
			issue_id BIGINT NOT NULL,
			comment TEXT NOT NULL,
			commented_by VARCHAR(100) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (id),
			INDEX issue_id_idx (issue_id),
			FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE
		)
	`

	_, err := d.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create issue_comments table: %w", err)
	}

	log.Info("Issue comments table ensured")
	return nil
}

// EnsureDashboardsTable creates the authority_dashboards table if it doesn't exist
func (d *Database) EnsureDashboardsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS authority_dashboards (
			area VARCHAR(100) NOT NULL,
			total_issues INT NOT NULL DEFAULT 0,
			pending_issues INT NOT NULL DEFAULT 0,
			in_progress_issues INT NOT NULL DEFAULT 0,
			resolved_issues INT NOT NULL DEFAULT 0,
			critical_issues INT NOT NULL DEFAULT 0,
			last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			PRIMARY KEY (area)
		)
	`

	_, err := d.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create authority_dashboards table: %w", err)
	}

	log.Info("Authority dashboards table ensured")
	return nil
}

const issueColumns = `id, title, description, issue_type, latitude, longitude, address, area, city,
		image_url, image_labels, status, priority, ai_classification, ai_priority, ai_analysis,
		reported_by, reporter_name, reporter_phone, reporter_email,
		created_at, updated_at, resolved_at, authority_notes, assigned_to`

func scanIssue(scanner interface{ Scan(...interface{}) error }) (*models.Issue, error) {
	var issue models.Issue
	var imageURL, imageLabels, aiClassification, aiPriority, aiAnalysis sql.NullString
	var reporterEmail, authorityNotes, assignedTo sql.NullString
	var resolvedAt sql.NullTime

	err := scanner.Scan(
		&issue.ID,
		&issue.Title,
		&issue.Description,
		&issue.IssueType,
		&issue.Latitude,
		&issue.Longitude,
		&issue.Address,
		&issue.Area,
		&issue.City,
		&imageURL,
		&imageLabels,
		&issue.Status,
		&issue.Priority,
		&aiClassification,
		&aiPriority,
		&aiAnalysis,
		&issue.ReportedBy,
		&issue.ReporterName,
		&issue.ReporterPhone,
		&reporterEmail,
		&issue.CreatedAt,
		&issue.UpdatedAt,
		&resolvedAt,
		&authorityNotes,
		&assignedTo,
	)
	if err != nil {
		return nil, err
	}

	if imageURL.Valid {
		issue.ImageURL = &imageURL.String
	}
	if imageLabels.Valid {
		issue.ImageLabels = &imageLabels.String
	}
	if aiClassification.Valid {
		t := models.IssueType(aiClassification.String)
		issue.AIClassification = &t
	}
	if aiPriority.Valid {
		p := models.IssuePriority(aiPriority.String)
		issue.AIPriority = &p
	}
	if aiAnalysis.Valid {
		issue.AIAnalysis = &aiAnalysis.String
	}
	if reporterEmail.Valid {
		issue.ReporterEmail = &reporterEmail.String
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		issue.ResolvedAt = &t
	}
	if authorityNotes.Valid {
		issue.AuthorityNotes = &authorityNotes.String
	}
	if assignedTo.Valid {
		issue.AssignedTo = &assignedTo.String
	}

	return &issue, nil
}

// InsertIssue persists a new issue and fills in its generated id.
func (d *Database) InsertIssue(ctx context.Context, issue *models.Issue) error {
	query := `
		INSERT INTO issues (title, description, issue_type, latitude, longitude, address, area, city,
			image_url, image_labels, status, priority, reported_by, reporter_name, reporter_phone,
			reporter_email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := d.db.ExecContext(ctx, query,
		issue.Title,
		issue.Description,
		string(issue.IssueType),
		issue.Latitude,
		issue.Longitude,
		issue.Address,
		issue.Area,
		issue.City,
		issue.ImageURL,
		issue.ImageLabels,
		string(issue.Status),
		string(issue.Priority),
		issue.ReportedBy,
		issue.ReporterName,
		issue.ReporterPhone,
		issue.ReporterEmail,
		issue.CreatedAt,
		issue.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert issue: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get issue id: %w", err)
	}
	issue.ID = id

	log.Infof("Issue %d created in area %s", id, issue.Area)
	return nil
}

// GetIssue fetches an issue by id.
func (d *Database) GetIssue(ctx context.Context, id int64) (*models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id = ?`

	issue, err := scanIssue(d.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrIssueNotFound
		}
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}

	return issue, nil
}

// ListIssues returns issues matching the filter, newest first.
func (d *Database) ListIssues(ctx context.Context, filter models.IssueFilter) ([]models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues`

	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Priority != nil {
		conditions = append(conditions, "priority = ?")
		args = append(args, string(*filter.Priority))
	}
	if filter.IssueType != nil {
		conditions = append(conditions, "issue_type = ?")
		args = append(args, string(*filter.IssueType))
	}
	if filter.Area != "" {
		conditions = append(conditions, "area LIKE ?")
		args = append(args, "%"+filter.Area+"%")
	}
	if filter.Reporter != "" {
		conditions = append(conditions, "reported_by = ?")
		args = append(args, filter.Reporter)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var issues []models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, *issue)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating issues: %w", err)
	}

	return issues, nil
}

// GetIssuesNearby returns issues within a rectangular bounding box around the
// given point. The box is a flat approximation: one degree of latitude is
// taken as 111 km and one degree of longitude as 111*|lat| km. This is not
// great-circle distance and is not meant to be.
func (d *Database) GetIssuesNearby(ctx context.Context, latitude, longitude, radiusKm float64) ([]models.Issue, error) {
	latDelta := radiusKm / 111.0
	absLat := math.Abs(latitude)
	if absLat == 0 {
		absLat = 1 // avoid division by zero at the equator
	}
	lngDelta := radiusKm / (111.0 * absLat)

	query := `SELECT ` + issueColumns + ` FROM issues
		WHERE latitude BETWEEN ? AND ?
		AND longitude BETWEEN ? AND ?
		ORDER BY created_at DESC`

	rows, err := d.db.QueryContext(ctx, query,
		latitude-latDelta, latitude+latDelta,
		longitude-lngDelta, longitude+lngDelta,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get nearby issues: %w", err)
	}
	defer rows.Close()

	var issues []models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, *issue)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nearby issues: %w", err)
	}

	return issues, nil
}

// GetMapPoints returns the lightweight projection of every issue for the
// city-wide heatmap.
func (d *Database) GetMapPoints(ctx context.Context) ([]models.IssueMapPoint, error) {
	query := `
		SELECT id, title, issue_type, status, priority, latitude, longitude, area, city, created_at
		FROM issues
		ORDER BY created_at DESC
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get map points: %w", err)
	}
	defer rows.Close()

	var points []models.IssueMapPoint
	for rows.Next() {
		var p models.IssueMapPoint
		err := rows.Scan(
			&p.ID,
			&p.Title,
			&p.IssueType,
			&p.Status,
			&p.Priority,
			&p.Latitude,
			&p.Longitude,
			&p.Area,
			&p.City,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan map point: %w", err)
		}
		points = append(points, p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating map points: %w", err)
	}

	return points, nil
}

// UpdateIssueFields applies a partial authority-side patch. When the patch
// moves a not-yet-resolved issue to RESOLVED, resolved_at is stamped in the
// same UPDATE; once set it is never overwritten by later RESOLVED patches.
func (d *Database) UpdateIssueFields(ctx context.Context, id int64, patch models.IssuePatch) (*models.Issue, error) {
	current, err := d.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}

	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))

		if *patch.Status == models.StatusResolved && current.Status != models.StatusResolved && current.ResolvedAt == nil {
			sets = append(sets, "resolved_at = ?")
			args = append(args, time.Now().UTC())
		}
	}
	if patch.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, string(*patch.Priority))
	}
	if patch.AuthorityNotes != nil {
		sets = append(sets, "authority_notes = ?")
		args = append(args, *patch.AuthorityNotes)
	}
	if patch.AssignedTo != nil {
		sets = append(sets, "assigned_to = ?")
		args = append(args, *patch.AssignedTo)
	}

	query := "UPDATE issues SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)

	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update issue %d: %w", id, err)
	}

	return d.GetIssue(ctx, id)
}

// UpdateAIFields writes the classification-pass outcome: the shadow fields
// unconditionally, plus the authoritative type/priority when the reconciled
// values differ from what is stored.
func (d *Database) UpdateAIFields(ctx context.Context, issue *models.Issue) error {
	query := `
		UPDATE issues
		SET issue_type = ?, priority = ?, ai_classification = ?, ai_priority = ?, ai_analysis = ?, updated_at = ?
		WHERE id = ?
	`

	var aiClassification, aiPriority, aiAnalysis interface{}
	if issue.AIClassification != nil {
		aiClassification = string(*issue.AIClassification)
	}
	if issue.AIPriority != nil {
		aiPriority = string(*issue.AIPriority)
	}
	if issue.AIAnalysis != nil {
		aiAnalysis = *issue.AIAnalysis
	}

	issue.UpdatedAt = time.Now().UTC()

	_, err := d.db.ExecContext(ctx, query,
		string(issue.IssueType),
		string(issue.Priority),
		aiClassification,
		aiPriority,
		aiAnalysis,
		issue.UpdatedAt,
		issue.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update AI fields for issue %d: %w", issue.ID, err)
	}

	return nil
}

// InsertComment appends a comment to an issue's ledger.
func (d *Database) InsertComment(ctx context.Context, issueID int64, text, author string) (*models.Comment, error) {
	// The ledger references issues; reject comments on nonexistent ones.
	var exists int
	err := d.db.QueryRowContext(ctx, "SELECT 1 FROM issues WHERE id = ?", issueID).Scan(&exists)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrIssueNotFound
		}
		return nil, fmt.Errorf("failed to check issue existence: %w", err)
	}

	now := time.Now().UTC()
	result, err := d.db.ExecContext(ctx,
		"INSERT INTO issue_comments (issue_id, comment, commented_by, created_at) VALUES (?, ?, ?, ?)",
		issueID, text, author, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert comment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get comment id: %w", err)
	}

	return &models.Comment{
		ID:          id,
		IssueID:     issueID,
		Comment:     text,
		CommentedBy: author,
		CreatedAt:   now,
	}, nil
}

// ListComments returns an issue's comments, newest first.
func (d *Database) ListComments(ctx context.Context, issueID int64) ([]models.Comment, error) {
	query := `
		SELECT id, issue_id, comment, commented_by, created_at
		FROM issue_comments
		WHERE issue_id = ?
		ORDER BY created_at DESC
	`

	rows, err := d.db.QueryContext(ctx, query, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.IssueID, &c.Comment, &c.CommentedBy, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}

	return comments, nil
}

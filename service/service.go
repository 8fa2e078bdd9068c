package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"citypulse/database"
	"citypulse/gemini"
	"citypulse/metrics"
	"citypulse/models"

	"github.com/apex/log"
)

// TaskPublisher hands classification work to the queue. The RabbitMQ
// publisher satisfies it; when the queue is not configured the service runs
// the classification pass inline instead.
type TaskPublisher interface {
	PublishClassifyTask(ctx context.Context, task models.ClassifyTask) error
}

// IssueService implements the issue lifecycle: submission, AI-assisted
// classification, authority updates, comments, dashboards and analytics.
type IssueService struct {
	db         *database.Database
	classifier gemini.Classifier
	publisher  TaskPublisher

	analyticsWindowDays int
	defaultRadiusKm     float64
}

// NewIssueService creates the lifecycle service. publisher may be nil, in
// which case classification runs synchronously after each submission.
func NewIssueService(db *database.Database, classifier gemini.Classifier, publisher TaskPublisher, analyticsWindowDays int, defaultRadiusKm float64) *IssueService {
	return &IssueService{
		db:                  db,
		classifier:          classifier,
		publisher:           publisher,
		analyticsWindowDays: analyticsWindowDays,
		defaultRadiusKm:     defaultRadiusKm,
	}
}

// SubmitIssue validates and persists a new issue, then schedules the AI
// classification pass. The submission never waits on, and never fails
// because of, the classifier.
func (s *IssueService) SubmitIssue(ctx context.Context, req *models.SubmitIssueRequest) (*models.Issue, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, fmt.Errorf("%w: description is required", models.ErrValidation)
	}
	area := strings.TrimSpace(req.Area)
	if area == "" {
		return nil, fmt.Errorf("%w: area is required", models.ErrValidation)
	}
	if strings.TrimSpace(req.Address) == "" {
		return nil, fmt.Errorf("%w: address is required", models.ErrValidation)
	}
	if req.Latitude < -90 || req.Latitude > 90 {
		return nil, fmt.Errorf("%w: latitude must be between -90 and 90", models.ErrValidation)
	}
	if req.Longitude < -180 || req.Longitude > 180 {
		return nil, fmt.Errorf("%w: longitude must be between -180 and 180", models.ErrValidation)
	}
	if strings.TrimSpace(req.ReportedBy) == "" {
		return nil, fmt.Errorf("%w: reported_by is required", models.ErrValidation)
	}

	issueType := models.ParseIssueType(strings.ToUpper(strings.TrimSpace(req.IssueType)))

	city := strings.TrimSpace(req.City)
	if city == "" {
		city = "Unknown"
	}

	reporterName := strings.TrimSpace(req.ReporterName)
	if reporterName == "" {
		reporterName = req.ReportedBy
	}

	// Reporters without a phone on file get their identity as contact
	// handle, bounded by the column width.
	phone := strings.TrimSpace(req.ReporterPhone)
	if phone == "" {
		phone = req.ReportedBy
	}
	if len(phone) > models.MaxReporterPhoneLen {
		phone = phone[:models.MaxReporterPhoneLen]
	}

	now := time.Now().UTC()
	issue := &models.Issue{
		Title:         fmt.Sprintf("%s reported in %s", issueType.Label(), area),
		Description:   req.Description,
		IssueType:     issueType,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Address:       req.Address,
		Area:          area,
		City:          city,
		ImageURL:      req.ImageURL,
		ImageLabels:   req.ImageLabels,
		Status:        models.StatusPending,
		Priority:      models.PriorityMedium,
		ReportedBy:    req.ReportedBy,
		ReporterName:  reporterName,
		ReporterPhone: phone,
		ReporterEmail: req.ReporterEmail,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.db.InsertIssue(ctx, issue); err != nil {
		return nil, err
	}
	metrics.IssuesSubmittedTotal.Inc()

	if s.publisher != nil {
		if err := s.publisher.PublishClassifyTask(ctx, models.ClassifyTask{IssueID: issue.ID}); err != nil {
			// The issue is already committed; fall back to the inline pass.
			log.Errorf("Failed to publish classify task for issue %d, classifying inline: %v", issue.ID, err)
			s.classifyInline(ctx, issue.ID)
		} else {
			metrics.ClassifyTasksPublishedTotal.Inc()
		}
	} else {
		s.classifyInline(ctx, issue.ID)
	}

	return s.db.GetIssue(ctx, issue.ID)
}

func (s *IssueService) classifyInline(ctx context.Context, issueID int64) {
	if err := s.ClassifyAndReconcile(ctx, issueID); err != nil {
		log.Errorf("Classification pass failed for issue %d: %v", issueID, err)
	}
}

// ClassifyAndReconcile runs the AI classification pass for one issue and
// reconciles the result against what the submitter said: the AI's type wins
// only while the stored type is still the OTHER sentinel, and the AI's
// priority only while the stored priority is still the MEDIUM default. The
// ai_* shadow fields are written unconditionally on success.
//
// A gateway failure leaves the issue untouched; the error is returned for
// logging and retry accounting, never surfaced to the submitter.
func (s *IssueService) ClassifyAndReconcile(ctx context.Context, issueID int64) error {
	if s.classifier == nil {
		return nil
	}

	start := time.Now()

	issue, err := s.db.GetIssue(ctx, issueID)
	if err != nil {
		return err
	}

	result, err := s.classifier.ClassifyIssue(ctx, issue.Title, issue.Description, issue.Address)
	if err != nil {
		metrics.ClassificationsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("classification failed for issue %d: %w", issueID, err)
	}

	if issue.IssueType == models.IssueTypeOther {
		issue.IssueType = result.IssueType
	}
	if issue.Priority == models.PriorityMedium {
		issue.Priority = result.Priority
	}

	aiType := result.IssueType
	aiPriority := result.Priority
	analysis := result.Analysis
	issue.AIClassification = &aiType
	issue.AIPriority = &aiPriority
	issue.AIAnalysis = &analysis

	if err := s.db.UpdateAIFields(ctx, issue); err != nil {
		metrics.ClassificationsTotal.WithLabelValues("failure").Inc()
		return err
	}

	metrics.ClassificationsTotal.WithLabelValues("success").Inc()
	metrics.ClassificationDurationSeconds.Observe(time.Since(start).Seconds())

	log.WithFields(log.Fields{
		"issue_id":   issueID,
		"issue_type": issue.IssueType,
		"priority":   issue.Priority,
		"source":     s.classifier.SourceName(),
	}).Info("Issue classified")

	return nil
}

// GetIssue fetches one issue by id.
func (s *IssueService) GetIssue(ctx context.Context, id int64) (*models.Issue, error) {
	return s.db.GetIssue(ctx, id)
}

// ListIssues returns issues matching the filter, newest first.
func (s *IssueService) ListIssues(ctx context.Context, filter models.IssueFilter) ([]models.Issue, error) {
	return s.db.ListIssues(ctx, filter)
}

// UpdateIssue applies an authority-side patch after validating its enums.
func (s *IssueService) UpdateIssue(ctx context.Context, id int64, patch models.IssuePatch) (*models.Issue, error) {
	if patch.Status == nil && patch.Priority == nil && patch.AuthorityNotes == nil && patch.AssignedTo == nil {
		return nil, fmt.Errorf("%w: no fields to update", models.ErrValidation)
	}
	if patch.Status != nil && !patch.Status.IsValid() {
		return nil, fmt.Errorf("%w: invalid status %q", models.ErrValidation, *patch.Status)
	}
	if patch.Priority != nil && !patch.Priority.IsValid() {
		return nil, fmt.Errorf("%w: invalid priority %q", models.ErrValidation, *patch.Priority)
	}

	return s.db.UpdateIssueFields(ctx, id, patch)
}

// GetIssuesNearby returns issues inside the bounding box around a point.
// A non-positive radius falls back to the configured default.
func (s *IssueService) GetIssuesNearby(ctx context.Context, latitude, longitude, radiusKm float64) ([]models.Issue, error) {
	if latitude < -90 || latitude > 90 {
		return nil, fmt.Errorf("%w: latitude must be between -90 and 90", models.ErrValidation)
	}
	if longitude < -180 || longitude > 180 {
		return nil, fmt.Errorf("%w: longitude must be between -180 and 180", models.ErrValidation)
	}
	if radiusKm <= 0 {
		radiusKm = s.defaultRadiusKm
	}

	return s.db.GetIssuesNearby(ctx, latitude, longitude, radiusKm)
}

// GetMapPoints returns the heatmap projection of the whole corpus.
func (s *IssueService) GetMapPoints(ctx context.Context) ([]models.IssueMapPoint, error) {
	return s.db.GetMapPoints(ctx)
}

// AddComment appends an authority comment to an issue's ledger. A blank
// author is recorded as "Authority".
func (s *IssueService) AddComment(ctx context.Context, issueID int64, text, author string) (*models.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: comment is required", models.ErrValidation)
	}
	if strings.TrimSpace(author) == "" {
		author = "Authority"
	}

	return s.db.InsertComment(ctx, issueID, text, author)
}

// ListComments returns an issue's comments, newest first. The issue must
// exist; an empty ledger is a valid result.
func (s *IssueService) ListComments(ctx context.Context, issueID int64) ([]models.Comment, error) {
	if _, err := s.db.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	return s.db.ListComments(ctx, issueID)
}

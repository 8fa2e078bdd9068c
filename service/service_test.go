package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"citypulse/database"
	"citypulse/gemini"
	"citypulse/models"
	"citypulse/parser"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jknair0/beforeeach"
)

var (
	db   *sql.DB
	mock sqlmock.Sqlmock
)

func setUp() {
	db, mock, _ = sqlmock.New()
}

func tearDown() {
	db.Close()
}

var it = beforeeach.Create(setUp, tearDown)

// fakeClassifier scripts the gateway without HTTP.
type fakeClassifier struct {
	result *parser.Classification
	err    error
	report string

	classifyCalls int
	lastStats     gemini.ReportStats
}

func (f *fakeClassifier) ClassifyIssue(ctx context.Context, title, description, address string) (*parser.Classification, error) {
	f.classifyCalls++
	return f.result, f.err
}

func (f *fakeClassifier) GenerateAuthorityReport(ctx context.Context, stats gemini.ReportStats) string {
	f.lastStats = stats
	return f.report
}

func (f *fakeClassifier) SourceName() string { return "fake" }

type fakePublisher struct {
	tasks []models.ClassifyTask
	err   error
}

func (f *fakePublisher) PublishClassifyTask(ctx context.Context, task models.ClassifyTask) error {
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

var issueTestColumns = []string{
	"id", "title", "description", "issue_type", "latitude", "longitude", "address", "area", "city",
	"image_url", "image_labels", "status", "priority", "ai_classification", "ai_priority", "ai_analysis",
	"reported_by", "reporter_name", "reporter_phone", "reporter_email",
	"created_at", "updated_at", "resolved_at", "authority_notes", "assigned_to",
}

func issueRow(id int64, issueType models.IssueType, status models.IssueStatus, priority models.IssuePriority) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(issueTestColumns).AddRow(
		id, string(issueType)+" reported in Indiranagar", "Deep pothole near the bus stop", string(issueType),
		12.9716, 77.5946, "100 Feet Road", "Indiranagar", "Bengaluru",
		nil, nil, string(status), string(priority), nil, nil, nil,
		"0xreporter", "Asha", "0xreporter", nil,
		now, now, nil, nil, nil,
	)
}

func newService(classifier gemini.Classifier, publisher TaskPublisher) *IssueService {
	return NewIssueService(database.NewDatabaseFromConn(db), classifier, publisher, 30, 5.0)
}

func TestSubmitIssueValidation(t *testing.T) {
	it(func() {
		s := newService(&fakeClassifier{}, nil)

		testCases := []struct {
			name string
			req  models.SubmitIssueRequest
		}{
			{
				name: "Missing description",
				req:  models.SubmitIssueRequest{Area: "Indiranagar", Address: "100 Feet Road", Latitude: 12.9, Longitude: 77.5, ReportedBy: "0xreporter"},
			},
			{
				name: "Blank area",
				req:  models.SubmitIssueRequest{Description: "pothole", Area: "   ", Address: "100 Feet Road", Latitude: 12.9, Longitude: 77.5, ReportedBy: "0xreporter"},
			},
			{
				name: "Latitude out of range",
				req:  models.SubmitIssueRequest{Description: "pothole", Area: "Indiranagar", Address: "100 Feet Road", Latitude: 91, Longitude: 77.5, ReportedBy: "0xreporter"},
			},
			{
				name: "Longitude out of range",
				req:  models.SubmitIssueRequest{Description: "pothole", Area: "Indiranagar", Address: "100 Feet Road", Latitude: 12.9, Longitude: -181, ReportedBy: "0xreporter"},
			},
			{
				name: "Missing reporter",
				req:  models.SubmitIssueRequest{Description: "pothole", Area: "Indiranagar", Address: "100 Feet Road", Latitude: 12.9, Longitude: 77.5},
			},
		}

		for _, testCase := range testCases {
			_, err := s.SubmitIssue(context.Background(), &testCase.req)
			if !errors.Is(err, models.ErrValidation) {
				t.Errorf("%s: expected validation error, got %v", testCase.name, err)
			}
		}
	})
}

func TestSubmitIssueDefaults(t *testing.T) {
	it(func() {
		// Classifier failure is absorbed; the submission still succeeds with
		// the PENDING/MEDIUM defaults.
		classifier := &fakeClassifier{err: errors.New("quota exceeded")}
		s := newService(classifier, nil)

		longIdentity := "0x123456789012345678901234567890"

		mock.ExpectExec("INSERT INTO issues").
			WithArgs(
				"Potholes reported in Indiranagar",
				"Deep pothole near the bus stop",
				"POTHOLE",
				12.9716, 77.5946,
				"100 Feet Road", "Indiranagar", "Unknown",
				nil, nil,
				"PENDING", "MEDIUM",
				longIdentity, longIdentity, longIdentity[:models.MaxReporterPhoneLen],
				nil,
				sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(42, 1))
		// Inline classification pass loads the issue before calling the
		// gateway, which then fails.
		mock.ExpectQuery("SELECT (.+) FROM issues WHERE id = \\?").
			WithArgs(int64(42)).
			WillReturnRows(issueRow(42, models.IssueTypePothole, models.StatusPending, models.PriorityMedium))
		mock.ExpectQuery("SELECT (.+) FROM issues WHERE id = \\?").
			WithArgs(int64(42)).
			WillReturnRows(issueRow(42, models.IssueTypePothole, models.StatusPending, models.PriorityMedium))

		issue, err := s.SubmitIssue(context.Background(), &models.SubmitIssueRequest{
			Description: "Deep pothole near the bus stop",
			IssueType:   "pothole",
			Latitude:    12.9716,
			Longitude:   77.5946,
			Address:     "100 Feet Road",
			Area:        "  Indiranagar  ",
			ReportedBy:  longIdentity,
		})
		if err != nil {
			t.Fatalf("SubmitIssue: unexpected error: %v", err)
		}
		if issue.ID != 42 {
			t.Errorf("SubmitIssue: expected id 42, got %d", issue.ID)
		}
		if classifier.classifyCalls != 1 {
			t.Errorf("SubmitIssue: expected 1 inline classification attempt, got %d", classifier.classifyCalls)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})
}

func TestSubmitIssuePublishesTask(t *testing.T) {
	it(func() {
		classifier := &fakeClassifier{}
		publisher := &fakePublisher{}
		s := newService(classifier, publisher)

		mock.ExpectExec("INSERT INTO issues").
			WillReturnResult(sqlmock.NewResult(7, 1))
		mock.ExpectQuery("SELECT (.+) FROM issues WHERE id = \\?").
			WithArgs(int64(7)).
			WillReturnRows(issueRow(7, models.IssueTypeOther, models.StatusPending, models.PriorityMedium))

		_, err := s.SubmitIssue(context.Background(), &models.SubmitIssueRequest{
			Description: "Streetlight out on the corner",
			Latitude:    12.9716,
			Longitude:   77.5946,
			Address:     "80 Feet Road",
			Area:        "Koramangala",
			ReportedBy:  "0xreporter",
		})
		if err != nil {
			t.Fatalf("SubmitIssue: unexpected error: %v", err)
		}
		if len(publisher.tasks) != 1 || publisher.tasks[0].IssueID != 7 {
			t.Errorf("SubmitIssue: expected one published task for issue 7, got %v", publisher.tasks)
		}
		if classifier.classifyCalls != 0 {
			t.Errorf("SubmitIssue: expected no inline classification when publishing, got %d calls", classifier.classifyCalls)
		}
	})
}

func TestClassifyAndReconcilePrecedence(t *testing.T) {
	it(func() {
		testCases := []struct {
			name           string
			storedType     models.IssueType
			storedPriority models.IssuePriority
			aiType         models.IssueType
			aiPriority     models.IssuePriority

			expectType     string
			expectPriority string
		}{
			{
				name:           "Unclassified issue takes both AI values",
				storedType:     models.IssueTypeOther,
				storedPriority: models.PriorityMedium,
				aiType:         models.IssueTypeGarbage,
				aiPriority:     models.PriorityHigh,
				expectType:     "GARBAGE",
				expectPriority: "HIGH",
			},
			{
				name:           "Explicit submitter type is kept",
				storedType:     models.IssueTypePothole,
				storedPriority: models.PriorityMedium,
				aiType:         models.IssueTypeGarbage,
				aiPriority:     models.PriorityCritical,
				expectType:     "POTHOLE",
				expectPriority: "CRITICAL",
			},
			{
				name:           "Authority-set priority is kept",
				storedType:     models.IssueTypeOther,
				storedPriority: models.PriorityLow,
				aiType:         models.IssueTypeWater,
				aiPriority:     models.PriorityHigh,
				expectType:     "WATER",
				expectPriority: "LOW",
			},
		}

		for _, testCase := range testCases {
			setUp()
			classifier := &fakeClassifier{result: &parser.Classification{
				IssueType: testCase.aiType,
				Priority:  testCase.aiPriority,
				Analysis:  "analysis text",
			}}
			s := newService(classifier, nil)

			mock.ExpectQuery("SELECT (.+) FROM issues WHERE id = \\?").
				WithArgs(int64(42)).
				WillReturnRows(issueRow(42, testCase.storedType, models.StatusPending, testCase.storedPriority))
			mock.ExpectExec("UPDATE issues SET issue_type = \\?, priority = \\?, ai_classification = \\?, ai_priority = \\?, ai_analysis = \\?, updated_at = \\? WHERE id = \\?").
				WithArgs(
					testCase.expectType, testCase.expectPriority,
					string(testCase.aiType), string(testCase.aiPriority), "analysis text",
					sqlmock.AnyArg(), int64(42),
				).
				WillReturnResult(sqlmock.NewResult(0, 1))

			if err := s.ClassifyAndReconcile(context.Background(), 42); err != nil {
				t.Errorf("%s: unexpected error: %v", testCase.name, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("%s: %v", testCase.name, err)
			}
		}
	})
}

func TestClassifyAndReconcileGatewayFailure(t *testing.T) {
	it(func() {
		classifier := &fakeClassifier{err: errors.New("upstream 500")}
		s := newService(classifier, nil)

		mock.ExpectQuery("SELECT (.+) FROM issues WHERE id = \\?").
			WithArgs(int64(42)).
			WillReturnRows(issueRow(42, models.IssueTypeOther, models.StatusPending, models.PriorityMedium))

		err := s.ClassifyAndReconcile(context.Background(), 42)
		if err == nil {
			t.Fatal("ClassifyAndReconcile: expected error on gateway failure")
		}
		// No UPDATE was expected; a failed pass must leave the row untouched.
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})
}

func TestUpdateIssueValidation(t *testing.T) {
	it(func() {
		s := newService(&fakeClassifier{}, nil)

		badStatus := models.IssueStatus("DONE")
		badPriority := models.IssuePriority("URGENT")

		testCases := []struct {
			name  string
			patch models.IssuePatch
		}{
			{name: "Empty patch", patch: models.IssuePatch{}},
			{name: "Invalid status", patch: models.IssuePatch{Status: &badStatus}},
			{name: "Invalid priority", patch: models.IssuePatch{Priority: &badPriority}},
		}

		for _, testCase := range testCases {
			_, err := s.UpdateIssue(context.Background(), 42, testCase.patch)
			if !errors.Is(err, models.ErrValidation) {
				t.Errorf("%s: expected validation error, got %v", testCase.name, err)
			}
		}
	})
}

func TestGetIssuesNearbyDefaultRadius(t *testing.T) {
	it(func() {
		s := newService(&fakeClassifier{}, nil)

		lat, lng := 12.9716, 77.5946
		latDelta := 5.0 / 111.0
		lngDelta := 5.0 / (111.0 * lat)

		mock.ExpectQuery("WHERE latitude BETWEEN \\? AND \\? AND longitude BETWEEN \\? AND \\?").
			WithArgs(lat-latDelta, lat+latDelta, lng-lngDelta, lng+lngDelta).
			WillReturnRows(issueRow(3, models.IssueTypePothole, models.StatusPending, models.PriorityMedium))

		issues, err := s.GetIssuesNearby(context.Background(), lat, lng, 0)
		if err != nil {
			t.Fatalf("GetIssuesNearby: unexpected error: %v", err)
		}
		if len(issues) != 1 {
			t.Errorf("GetIssuesNearby: expected 1 issue, got %d", len(issues))
		}
	})
}

func TestGenerateAuthorityReport(t *testing.T) {
	it(func() {
		classifier := &fakeClassifier{report: "Executive summary prose."}
		s := newService(classifier, nil)

		mock.ExpectQuery("FROM issues ORDER BY created_at DESC").
			WillReturnRows(issueRow(1, models.IssueTypePothole, models.StatusPending, models.PriorityHigh).
				AddRow(
					2, "Garbage overflow reported in Indiranagar", "Overflowing bin", "GARBAGE",
					12.97, 77.59, "CMH Road", "Indiranagar", "Bengaluru",
					nil, nil, "RESOLVED", "MEDIUM", nil, nil, nil,
					"0xreporter", "Asha", "0xreporter", nil,
					time.Now().UTC(), time.Now().UTC(), nil, nil, nil,
				))

		resp, err := s.GenerateAuthorityReport(context.Background(), "")
		if err != nil {
			t.Fatalf("GenerateAuthorityReport: unexpected error: %v", err)
		}
		if resp.Report != "Executive summary prose." {
			t.Errorf("GenerateAuthorityReport: unexpected report %q", resp.Report)
		}
		if resp.TotalIssuesAnalyzed != 2 {
			t.Errorf("GenerateAuthorityReport: expected 2 issues analyzed, got %d", resp.TotalIssuesAnalyzed)
		}
		if classifier.lastStats.TotalIssues != 2 || classifier.lastStats.PendingIssues != 1 || classifier.lastStats.ResolvedIssues != 1 {
			t.Errorf("GenerateAuthorityReport: unexpected stats %+v", classifier.lastStats)
		}
		if classifier.lastStats.TypeBreakdown["Potholes"] != 1 || classifier.lastStats.PriorityBreakdown["high"] != 1 {
			t.Errorf("GenerateAuthorityReport: unexpected breakdowns %+v", classifier.lastStats)
		}
	})
}

func TestGenerateAuthorityReportNoIssues(t *testing.T) {
	it(func() {
		s := newService(&fakeClassifier{report: "unused"}, nil)

		mock.ExpectQuery("FROM issues ORDER BY created_at DESC").
			WillReturnRows(sqlmock.NewRows(issueTestColumns))

		_, err := s.GenerateAuthorityReport(context.Background(), "")
		if !errors.Is(err, models.ErrNoIssues) {
			t.Errorf("GenerateAuthorityReport: expected ErrNoIssues, got %v", err)
		}
	})
}

func TestAddComment(t *testing.T) {
	it(func() {
		s := newService(&fakeClassifier{}, nil)

		if _, err := s.AddComment(context.Background(), 42, "  ", "ward-office"); !errors.Is(err, models.ErrValidation) {
			t.Errorf("AddComment: expected validation error for blank comment, got %v", err)
		}

		// Blank author is recorded as "Authority".
		mock.ExpectQuery("SELECT 1 FROM issues WHERE id = \\?").
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
		mock.ExpectExec("INSERT INTO issue_comments").
			WithArgs(int64(42), "Crew dispatched", "Authority", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(5, 1))

		comment, err := s.AddComment(context.Background(), 42, "Crew dispatched", "")
		if err != nil {
			t.Fatalf("AddComment: unexpected error: %v", err)
		}
		if comment.CommentedBy != "Authority" {
			t.Errorf("AddComment: expected default author, got %q", comment.CommentedBy)
		}
	})
}

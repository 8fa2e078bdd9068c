package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"citypulse/database"
	"citypulse/gemini"
	"citypulse/parser"
	"citypulse/service"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jknair0/beforeeach"
)

var (
	db     *sql.DB
	mock   sqlmock.Sqlmock
	router *gin.Engine
)

type stubClassifier struct{}

func (stubClassifier) ClassifyIssue(ctx context.Context, title, description, address string) (*parser.Classification, error) {
	return nil, context.Canceled
}

func (stubClassifier) GenerateAuthorityReport(ctx context.Context, stats gemini.ReportStats) string {
	return "stub report"
}

func (stubClassifier) SourceName() string { return "stub" }

func setUp() {
	gin.SetMode(gin.TestMode)
	db, mock, _ = sqlmock.New()

	svc := service.NewIssueService(database.NewDatabaseFromConn(db), stubClassifier{}, nil, 30, 5.0)
	h := NewHandlers(svc)

	router = gin.New()
	api := router.Group("/api/v1")
	issues := api.Group("/issues")
	issues.POST("", h.SubmitIssue)
	issues.GET("", h.ListIssues)
	issues.GET("/nearby", h.GetIssuesNearby)
	issues.GET("/:id", h.GetIssue)
	issues.PATCH("/:id", h.UpdateIssue)
	issues.POST("/:id/comments", h.AddComment)
	issues.GET("/:id/comments", h.ListComments)
	api.GET("/dashboard/overview", h.GetOverview)
	api.GET("/dashboard/report", h.GenerateReport)
	api.GET("/analytics", h.GetAnalytics)
}

func tearDown() {
	db.Close()
}

var it = beforeeach.Create(setUp, tearDown)

func doRequest(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

var issueTestColumns = []string{
	"id", "title", "description", "issue_type", "latitude", "longitude", "address", "area", "city",
	"image_url", "image_labels", "status", "priority", "ai_classification", "ai_priority", "ai_analysis",
	"reported_by", "reporter_name", "reporter_phone", "reporter_email",
	"created_at", "updated_at", "resolved_at", "authority_notes", "assigned_to",
}

func TestGetIssueNotFound(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT (.+) FROM issues WHERE id = \\?").
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows(issueTestColumns))

		w := doRequest(http.MethodGet, "/api/v1/issues/99", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestGetIssueInvalidID(t *testing.T) {
	it(func() {
		testCases := []string{"/api/v1/issues/abc", "/api/v1/issues/-5", "/api/v1/issues/0"}
		for _, path := range testCases {
			setUp()
			w := doRequest(http.MethodGet, path, "")
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s: expected 400, got %d", path, w.Code)
			}
		}
	})
}

func TestSubmitIssueInvalidBody(t *testing.T) {
	it(func() {
		testCases := []struct {
			name string
			body string
		}{
			{name: "Empty body", body: `{}`},
			{name: "Missing description", body: `{"latitude": 12.9, "longitude": 77.5, "address": "x", "area": "y", "reported_by": "z"}`},
			{name: "Malformed JSON", body: `{"description":`},
		}

		for _, testCase := range testCases {
			setUp()
			w := doRequest(http.MethodPost, "/api/v1/issues", testCase.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s: expected 400, got %d: %s", testCase.name, w.Code, w.Body.String())
			}
		}
	})
}

func TestSubmitIssueOutOfRangeCoordinates(t *testing.T) {
	it(func() {
		body := `{"description": "pothole", "latitude": 95, "longitude": 77.5, "address": "100 Feet Road", "area": "Indiranagar", "reported_by": "0xreporter"}`
		w := doRequest(http.MethodPost, "/api/v1/issues", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestNearbyValidation(t *testing.T) {
	it(func() {
		testCases := []struct {
			name string
			path string
		}{
			{name: "Missing lat and lng", path: "/api/v1/issues/nearby"},
			{name: "Missing lng", path: "/api/v1/issues/nearby?lat=12.9"},
			{name: "Bad lat", path: "/api/v1/issues/nearby?lat=abc&lng=77.5"},
			{name: "Negative radius", path: "/api/v1/issues/nearby?lat=12.9&lng=77.5&radius=-2"},
			{name: "Latitude out of range", path: "/api/v1/issues/nearby?lat=91&lng=77.5"},
		}

		for _, testCase := range testCases {
			setUp()
			w := doRequest(http.MethodGet, testCase.path, "")
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s: expected 400, got %d: %s", testCase.name, w.Code, w.Body.String())
			}
		}
	})
}

func TestNearbyHappyPath(t *testing.T) {
	it(func() {
		mock.ExpectQuery("WHERE latitude BETWEEN \\? AND \\? AND longitude BETWEEN \\? AND \\?").
			WillReturnRows(sqlmock.NewRows(issueTestColumns))

		w := doRequest(http.MethodGet, "/api/v1/issues/nearby?lat=12.9&lng=77.5&radius=2", "")
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), `"count":0`) {
			t.Errorf("expected empty result count, got %s", w.Body.String())
		}
	})
}

func TestListIssuesInvalidFilters(t *testing.T) {
	it(func() {
		testCases := []string{
			"/api/v1/issues?status=DONE",
			"/api/v1/issues?priority=URGENT",
			"/api/v1/issues?issue_type=SINKHOLE",
		}

		for _, path := range testCases {
			setUp()
			w := doRequest(http.MethodGet, path, "")
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s: expected 400, got %d", path, w.Code)
			}
		}
	})
}

func TestUpdateIssueInvalidPatch(t *testing.T) {
	it(func() {
		testCases := []struct {
			name string
			body string
		}{
			{name: "Invalid status", body: `{"status": "DONE"}`},
			{name: "Invalid priority", body: `{"priority": "URGENT"}`},
			{name: "Empty patch", body: `{}`},
		}

		for _, testCase := range testCases {
			setUp()
			w := doRequest(http.MethodPatch, "/api/v1/issues/42", testCase.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s: expected 400, got %d: %s", testCase.name, w.Code, w.Body.String())
			}
		}
	})
}

func TestAddCommentValidation(t *testing.T) {
	it(func() {
		w := doRequest(http.MethodPost, "/api/v1/issues/42/comments", `{"commented_by": "ward-office"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for missing comment, got %d", w.Code)
		}
	})
}

func TestAddCommentDefaultAuthor(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT 1 FROM issues WHERE id = \\?").
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
		mock.ExpectExec("INSERT INTO issue_comments").
			WithArgs(int64(42), "Crew dispatched", "Authority", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		w := doRequest(http.MethodPost, "/api/v1/issues/42/comments", `{"comment": "Crew dispatched"}`)
		if w.Code != http.StatusCreated {
			t.Errorf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), `"commented_by":"Authority"`) {
			t.Errorf("expected default author in response, got %s", w.Body.String())
		}
	})
}

func TestGenerateReportNoIssues(t *testing.T) {
	it(func() {
		mock.ExpectQuery("FROM issues ORDER BY created_at DESC").
			WillReturnRows(sqlmock.NewRows(issueTestColumns))

		w := doRequest(http.MethodGet, "/api/v1/dashboard/report", "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400 when no issues exist, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestGetAnalytics(t *testing.T) {
	it(func() {
		mock.ExpectQuery("GROUP BY DATE_FORMAT\\(created_at, '%Y-%m-%d'\\)").
			WillReturnRows(sqlmock.NewRows([]string{"day", "count"}))
		mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) FROM issues GROUP BY status").
			WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).AddRow("PENDING", 2))
		mock.ExpectQuery("SELECT priority, COUNT\\(\\*\\) FROM issues GROUP BY priority").
			WillReturnRows(sqlmock.NewRows([]string{"priority", "count"}).AddRow("MEDIUM", 2))

		w := doRequest(http.MethodGet, "/api/v1/analytics", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		body := w.Body.String()
		if !strings.Contains(body, `"pending":2`) || !strings.Contains(body, `"rejected":0`) {
			t.Errorf("expected zero-filled status distribution, got %s", body)
		}
	})
}

package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"citypulse/models"
	"citypulse/service"

	"github.com/gin-gonic/gin"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	service *service.IssueService
}

// NewHandlers creates a new handlers instance
func NewHandlers(svc *service.IssueService) *Handlers {
	return &Handlers{service: svc}
}

func issueIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid issue id",
		})
		return 0, false
	}
	return id, true
}

func respondError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, models.ErrIssueNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Issue not found",
		})
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": err.Error(),
		})
	case errors.Is(err, models.ErrNoIssues):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "No issues to analyze",
		})
	default:
		log.Printf("Failed to %s: %v", action, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to " + action,
			"error":   err.Error(),
		})
	}
}

// SubmitIssue handles a citizen issue submission
func (h *Handlers) SubmitIssue(c *gin.Context) {
	var req models.SubmitIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("Invalid request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request body",
			"error":   err.Error(),
		})
		return
	}

	issue, err := h.service.SubmitIssue(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "submit issue")
		return
	}

	c.JSON(http.StatusCreated, issue)
}

// GetIssue returns one issue by id
func (h *Handlers) GetIssue(c *gin.Context) {
	id, ok := issueIDParam(c)
	if !ok {
		return
	}

	issue, err := h.service.GetIssue(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "get issue")
		return
	}

	c.JSON(http.StatusOK, issue)
}

// ListIssues returns issues matching the query filters, newest first
func (h *Handlers) ListIssues(c *gin.Context) {
	var filter models.IssueFilter

	if v := c.Query("status"); v != "" {
		status := models.IssueStatus(v)
		if !status.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Invalid status filter",
			})
			return
		}
		filter.Status = &status
	}
	if v := c.Query("priority"); v != "" {
		priority := models.IssuePriority(v)
		if !priority.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Invalid priority filter",
			})
			return
		}
		filter.Priority = &priority
	}
	if v := c.Query("issue_type"); v != "" {
		issueType := models.IssueType(v)
		if !issueType.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Invalid issue_type filter",
			})
			return
		}
		filter.IssueType = &issueType
	}
	filter.Area = c.Query("area")
	filter.Reporter = c.Query("reported_by")

	issues, err := h.service.ListIssues(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "list issues")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"issues": issues,
		"count":  len(issues),
	})
}

// UpdateIssue applies an authority patch to an issue
func (h *Handlers) UpdateIssue(c *gin.Context) {
	id, ok := issueIDParam(c)
	if !ok {
		return
	}

	var patch models.IssuePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request body",
			"error":   err.Error(),
		})
		return
	}

	issue, err := h.service.UpdateIssue(c.Request.Context(), id, patch)
	if err != nil {
		respondError(c, err, "update issue")
		return
	}

	c.JSON(http.StatusOK, issue)
}

// GetIssuesNearby returns issues inside a bounding box around a point
func (h *Handlers) GetIssuesNearby(c *gin.Context) {
	latStr := c.Query("lat")
	lngStr := c.Query("lng")
	if latStr == "" || lngStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "lat and lng are required",
		})
		return
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid lat",
		})
		return
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid lng",
		})
		return
	}

	radius := 0.0
	if v := c.Query("radius"); v != "" {
		radius, err = strconv.ParseFloat(v, 64)
		if err != nil || radius < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Invalid radius",
			})
			return
		}
	}

	issues, err := h.service.GetIssuesNearby(c.Request.Context(), lat, lng, radius)
	if err != nil {
		respondError(c, err, "get nearby issues")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"issues": issues,
		"count":  len(issues),
	})
}

// GetMapPoints returns the heatmap projection of all issues
func (h *Handlers) GetMapPoints(c *gin.Context) {
	points, err := h.service.GetMapPoints(c.Request.Context())
	if err != nil {
		respondError(c, err, "get map points")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"points": points,
		"count":  len(points),
	})
}

// AddComment appends an authority comment to an issue
func (h *Handlers) AddComment(c *gin.Context) {
	id, ok := issueIDParam(c)
	if !ok {
		return
	}

	var req struct {
		Comment     string `json:"comment" binding:"required"`
		CommentedBy string `json:"commented_by"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request body",
			"error":   err.Error(),
		})
		return
	}

	comment, err := h.service.AddComment(c.Request.Context(), id, req.Comment, req.CommentedBy)
	if err != nil {
		respondError(c, err, "add comment")
		return
	}

	c.JSON(http.StatusCreated, comment)
}

// ListComments returns an issue's comments, newest first
func (h *Handlers) ListComments(c *gin.Context) {
	id, ok := issueIDParam(c)
	if !ok {
		return
	}

	comments, err := h.service.ListComments(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "list comments")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"comments": comments,
		"count":    len(comments),
	})
}

// GetOverview returns the live full-corpus dashboard aggregate
func (h *Handlers) GetOverview(c *gin.Context) {
	overview, err := h.service.GetOverview(c.Request.Context())
	if err != nil {
		respondError(c, err, "get overview")
		return
	}

	c.JSON(http.StatusOK, overview)
}

// GetAreaDashboard returns one area's cached snapshot
func (h *Handlers) GetAreaDashboard(c *gin.Context) {
	area := c.Param("area")
	if area == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Area is required",
		})
		return
	}

	dash, err := h.service.GetAreaDashboard(c.Request.Context(), area)
	if err != nil {
		respondError(c, err, "get area dashboard")
		return
	}

	c.JSON(http.StatusOK, dash)
}

// RefreshSnapshots recomputes every area's dashboard snapshot
func (h *Handlers) RefreshSnapshots(c *gin.Context) {
	resp, err := h.service.RefreshAllSnapshots(c.Request.Context())
	if err != nil {
		respondError(c, err, "refresh snapshots")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GenerateReport produces an AI executive summary for the authority
func (h *Handlers) GenerateReport(c *gin.Context) {
	resp, err := h.service.GenerateAuthorityReport(c.Request.Context(), c.Query("area"))
	if err != nil {
		respondError(c, err, "generate report")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetAnalytics returns the chart payload
func (h *Handlers) GetAnalytics(c *gin.Context) {
	resp, err := h.service.GetAnalytics(c.Request.Context())
	if err != nil {
		respondError(c, err, "get analytics")
		return
	}

	c.JSON(http.StatusOK, resp)
}

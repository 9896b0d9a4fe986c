package controllers

import (
	"net/http"
	"time"

	"cityfix-be/middlewares"
	"cityfix-be/models"
	"cityfix-be/services"

	"github.com/gin-gonic/gin"
)

type IssueController struct {
	issues  *services.IssueService
	timeout time.Duration
}

func NewIssueController(issues *services.IssueService, timeout time.Duration) *IssueController {
	return &IssueController{issues: issues, timeout: timeout}
}

type listIssuesQuery struct {
	Search      string `form:"search"`
	Status      string `form:"status"`
	Category    string `form:"category"`
	Priority    string `form:"priority"`
	SubmittedBy string `form:"submittedBy"`
	Page        int64  `form:"page" binding:"omitempty,min=1"`
	Limit       int64  `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (q listIssuesQuery) toService() services.ListIssuesQuery {
	return services.ListIssuesQuery{
		Search:      q.Search,
		Status:      q.Status,
		Category:    q.Category,
		Priority:    q.Priority,
		SubmittedBy: q.SubmittedBy,
		Page:        q.Page,
		Limit:       q.Limit,
	}
}

// CreateIssue handles the creation of a new issue
func (ic *IssueController) CreateIssue(c *gin.Context) {
	var input struct {
		Title       string           `json:"title" binding:"required,notblank,max=200"`
		Category    string           `json:"category" binding:"required,notblank,max=100"`
		Location    string           `json:"location" binding:"required,notblank,max=200"`
		Description string           `json:"description" binding:"required,notblank,max=2000"`
		Images      models.ImageList `json:"images" binding:"required,min=1,max=10"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, "create_issue", err)
		return
	}

	ctx, cancel := requestContext(c, ic.timeout)
	defer cancel()

	issue, err := ic.issues.Create(ctx, middlewares.CurrentEmail(c), services.CreateIssueInput{
		Title:       input.Title,
		Category:    input.Category,
		Location:    input.Location,
		Description: input.Description,
		Images:      input.Images,
	})
	if err != nil {
		respondError(c, "create_issue", err)
		return
	}

	c.JSON(http.StatusCreated, issue)
}

// GetAllIssues serves the public feed with filtering and pagination
func (ic *IssueController) GetAllIssues(c *gin.Context) {
	var query listIssuesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondBindError(c, "list_issues", err)
		return
	}

	ctx, cancel := requestContext(c, ic.timeout)
	defer cancel()

	page, err := ic.issues.List(ctx, query.toService())
	if err != nil {
		respondError(c, "list_issues", err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (ic *IssueController) GetIssue(c *gin.Context) {
	ctx, cancel := requestContext(c, ic.timeout)
	defer cancel()

	issue, err := ic.issues.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, "get_issue", err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

func (ic *IssueController) GetRecentResolved(c *gin.Context) {
	ctx, cancel := requestContext(c, ic.timeout)
	defer cancel()

	issues, err := ic.issues.RecentResolved(ctx)
	if err != nil {
		respondError(c, "recent_resolved_issues", err)
		return
	}

	c.JSON(http.StatusOK, issues)
}

func (ic *IssueController) GetMyIssues(c *gin.Context) {
	ctx, cancel := requestContext(c, ic.timeout)
	defer cancel()

	issues, err := ic.issues.Mine(ctx, middlewares.CurrentEmail(c))
	if err != nil {
		respondError(c, "my_issues", err)
		return
	}

	c.JSON(http.StatusOK, issues)
}

func (ic *IssueController) GetStaffAssignedIssues(c *gin.Context) {
	ctx, cancel := requestContext(c, ic.timeout)
	defer cancel()

	issues, err := ic.issues.AssignedTo(ctx, middlewares.CurrentEmail(c))
	if err != nil {
		respondError(c, "staff_assigned_issues", err)
		return
	}

	c.JSON(http.StatusOK, issues)
}

func (ic *IssueController) GetAdminAllIssues(c *gin.Context) {
	var query listIssuesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondBindError(c, "admin_all_issues", err)
		return
	}

	ctx, cancel := requestContext(c, ic.timeout)
	defer cancel()

	issues, err := ic.issues.All(ctx, query.toService())
	if err != nil {
		respondError(c, "admin_all_issues", err)
		return
	}

	c.JSON(http.StatusOK, issues)
}

// UpdateIssue edits the caller's own issue. Absent fields are left alone.
func (ic *IssueController) UpdateIssue(c *gin.Context) {
	var input struct {
		Title       *string          `json:"title" binding:"omitempty,notblank,max=200"`
		Category    *string          `json:"category" binding:"omitempty,notblank,max=100"`
		Location    *string          `json:"location" binding:"omitempty,notblank,max=200"`
		Description *string          `json:"description" binding:"omitempty,notblank,max=2000"`
		Images      models.ImageList `json:"images" binding:"omitempty,max=10"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, "update_issue", err)
		return
	}

	ctx, cancel := requestContext(c, ic.timeout)
	defer cancel()

	issue, err := ic.issues.Update(ctx, middlewares.CurrentEmail(c), c.Param("id"), services.UpdateIssueInput{
		Title:       input.Title,
		Category:    input.Category,
		Location:    input.Location,
		Description: input.Description,
		Images:      input.Images,
	})
	if err != nil {
		respondError(c, "update_issue", err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

func (ic *IssueController) DeleteIssue(c *gin.Context) {
	ctx, cancel := requestContext(c, ic.timeout)
	defer cancel()

	if err := ic.issues.Delete(ctx, middlewares.CurrentEmail(c), c.Param("id")); err != nil {
		respondError(c, "delete_issue", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Issue deleted successfully"})
}

func (ic *IssueController) ToggleUpvote(c *gin.Context) {
	ctx, cancel := requestContext(c, ic.timeout)
	defer cancel()

	result, err := ic.issues.ToggleUpvote(ctx, middlewares.CurrentEmail(c), c.Param("id"))
	if err != nil {
		respondError(c, "toggle_upvote", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (ic *IssueController) AssignStaff(c *gin.Context) {
	var input struct {
		StaffID string `json:"staffId" binding:"required,notblank"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, "assign_staff", err)
		return
	}

	ctx, cancel := requestContext(c, ic.timeout)
	defer cancel()

	issue, err := ic.issues.AssignStaff(ctx, middlewares.CurrentAccount(c), c.Param("id"), input.StaffID)
	if err != nil {
		respondError(c, "assign_staff", err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

func (ic *IssueController) UnassignStaff(c *gin.Context) {
	ctx, cancel := requestContext(c, ic.timeout)
	defer cancel()

	issue, err := ic.issues.UnassignStaff(ctx, middlewares.CurrentAccount(c), c.Param("id"))
	if err != nil {
		respondError(c, "unassign_staff", err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

func (ic *IssueController) ChangeStatus(c *gin.Context) {
	var input struct {
		Status string `json:"status" binding:"required,notblank"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, "change_status", err)
		return
	}

	ctx, cancel := requestContext(c, ic.timeout)
	defer cancel()

	issue, err := ic.issues.ChangeStatus(ctx, middlewares.CurrentAccount(c), c.Param("id"), input.Status)
	if err != nil {
		respondError(c, "change_status", err)
		return
	}

	c.JSON(http.StatusOK, issue)
}

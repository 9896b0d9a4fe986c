package routes

import (
	"cityfix-be/middlewares"

	"github.com/gin-gonic/gin"
)

// IssueRoutes sets up the issue routes
func IssueRoutes(r *gin.Engine, d Dependencies) {
	auth := middlewares.AuthMiddleware(d.Verifier)
	ic := d.Issues

	create := []gin.HandlerFunc{auth, d.Gate.NotBlocked()}
	if d.IssueLimiter != nil {
		create = append(create, d.IssueLimiter)
	}
	create = append(create, ic.CreateIssue)

	r.GET("/issues", ic.GetAllIssues)
	r.GET("/issues/:id", ic.GetIssue)
	r.GET("/recent-resolved-issues", ic.GetRecentResolved)

	r.POST("/issues", create...)
	r.PATCH("/issues/:id", auth, d.Gate.NotBlocked(), ic.UpdateIssue)
	r.DELETE("/issues/:id", auth, d.Gate.NotBlocked(), ic.DeleteIssue)
	r.PATCH("/issues/upvote/:id", auth, ic.ToggleUpvote)
	r.GET("/my-issues", auth, ic.GetMyIssues)

	r.PATCH("/issues/:id/assign-staff", auth, d.Gate.Admin(), ic.AssignStaff)
	r.PATCH("/issues/:id/unassign-staff", auth, d.Gate.Admin(), ic.UnassignStaff)
	r.GET("/admin-all-issues", auth, d.Gate.Admin(), ic.GetAdminAllIssues)

	r.PATCH("/issues/:id/status", auth, d.Gate.Staff(), ic.ChangeStatus)
	r.GET("/staff-assigned-issues", auth, d.Gate.Staff(), ic.GetStaffAssignedIssues)
}

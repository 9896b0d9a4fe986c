package routes

import (
	"cityfix-be/middlewares"

	"github.com/gin-gonic/gin"
)

func UserRoutes(r *gin.Engine, d Dependencies) {
	auth := middlewares.AuthMiddleware(d.Verifier)
	uc := d.Users

	r.POST("/users", uc.RegisterUser)
	r.GET("/users", auth, uc.GetMe)
	r.GET("/users/:email", auth, uc.GetUser)
	r.PUT("/users/:email", auth, uc.UpdateUser)

	admin := r.Group("/", auth, d.Gate.Admin())
	{
		admin.GET("/admin-all-users", uc.GetAllUsers())
		admin.GET("/admin-citizens", uc.GetCitizens())
		admin.PATCH("/users-block/:id", uc.ToggleBlock)

		admin.GET("/users-staff", uc.GetStaff())
		admin.POST("/users-staff", uc.CreateStaff)
		admin.PUT("/users-staff/:id", uc.UpdateStaff)
		admin.DELETE("/users-staff/:id", uc.DeleteStaff)
	}
}

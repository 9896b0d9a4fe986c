package controllers

import (
	"net/http"
	"time"

	"cityfix-be/middlewares"
	"cityfix-be/models"
	"cityfix-be/services"

	"github.com/gin-gonic/gin"
)

type UserController struct {
	users   *services.UserService
	timeout time.Duration
}

func NewUserController(users *services.UserService, timeout time.Duration) *UserController {
	return &UserController{users: users, timeout: timeout}
}

type profileInput struct {
	Name     *string `json:"name" binding:"omitempty,notblank,max=50"`
	Phone    *string `json:"phone" binding:"omitempty,max=30"`
	PhotoURL *string `json:"photoURL" binding:"omitempty,max=500"`
}

func (in profileInput) toService() services.ProfileInput {
	return services.ProfileInput{Name: in.Name, Phone: in.Phone, PhotoURL: in.PhotoURL}
}

// RegisterUser stores the profile of a freshly signed-in account. The route is
// anonymous, so an existing account is acknowledged without its record.
func (uc *UserController) RegisterUser(c *gin.Context) {
	var input struct {
		Name     string `json:"name" binding:"required,notblank,max=50"`
		Email    string `json:"email" binding:"required,email"`
		Phone    string `json:"phone" binding:"omitempty,max=30"`
		PhotoURL string `json:"photoURL" binding:"omitempty,max=500"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, "register_user", err)
		return
	}

	ctx, cancel := requestContext(c, uc.timeout)
	defer cancel()

	user, created, err := uc.users.Bootstrap(ctx, services.BootstrapInput{
		Name:     input.Name,
		Email:    input.Email,
		Phone:    input.Phone,
		PhotoURL: input.PhotoURL,
	})
	if err != nil {
		respondError(c, "register_user", err)
		return
	}
	if !created {
		c.JSON(http.StatusOK, gin.H{"message": "User already exists"})
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (uc *UserController) GetMe(c *gin.Context) {
	ctx, cancel := requestContext(c, uc.timeout)
	defer cancel()

	user, err := uc.users.Me(ctx, middlewares.CurrentEmail(c))
	if err != nil {
		respondError(c, "get_me", err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func (uc *UserController) GetUser(c *gin.Context) {
	ctx, cancel := requestContext(c, uc.timeout)
	defer cancel()

	user, err := uc.users.Get(ctx, middlewares.CurrentEmail(c), c.Param("email"))
	if err != nil {
		respondError(c, "get_user", err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func (uc *UserController) UpdateUser(c *gin.Context) {
	var input profileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, "update_user", err)
		return
	}

	ctx, cancel := requestContext(c, uc.timeout)
	defer cancel()

	user, err := uc.users.UpdateProfile(ctx, middlewares.CurrentEmail(c), c.Param("email"), input.toService())
	if err != nil {
		respondError(c, "update_user", err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func (uc *UserController) listByRole(operation string, role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c, uc.timeout)
		defer cancel()

		users, err := uc.users.List(ctx, role)
		if err != nil {
			respondError(c, operation, err)
			return
		}

		c.JSON(http.StatusOK, users)
	}
}

func (uc *UserController) GetAllUsers() gin.HandlerFunc {
	return uc.listByRole("admin_all_users", "")
}

func (uc *UserController) GetCitizens() gin.HandlerFunc {
	return uc.listByRole("admin_citizens", models.RoleCitizen)
}

func (uc *UserController) GetStaff() gin.HandlerFunc {
	return uc.listByRole("list_staff", models.RoleStaff)
}

func (uc *UserController) ToggleBlock(c *gin.Context) {
	ctx, cancel := requestContext(c, uc.timeout)
	defer cancel()

	user, err := uc.users.ToggleBlock(ctx, middlewares.CurrentAccount(c), c.Param("id"))
	if err != nil {
		respondError(c, "toggle_block", err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func (uc *UserController) CreateStaff(c *gin.Context) {
	var input struct {
		Name     string `json:"name" binding:"required,notblank,max=50"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
		Phone    string `json:"phone" binding:"omitempty,max=30"`
		PhotoURL string `json:"photoURL" binding:"omitempty,max=500"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, "create_staff", err)
		return
	}

	ctx, cancel := requestContext(c, uc.timeout)
	defer cancel()

	staff, err := uc.users.CreateStaff(ctx, services.StaffInput{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
		Phone:    input.Phone,
		PhotoURL: input.PhotoURL,
	})
	if err != nil {
		respondError(c, "create_staff", err)
		return
	}

	c.JSON(http.StatusCreated, staff)
}

func (uc *UserController) UpdateStaff(c *gin.Context) {
	var input profileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, "update_staff", err)
		return
	}

	ctx, cancel := requestContext(c, uc.timeout)
	defer cancel()

	staff, err := uc.users.UpdateStaff(ctx, c.Param("id"), input.toService())
	if err != nil {
		respondError(c, "update_staff", err)
		return
	}

	c.JSON(http.StatusOK, staff)
}

func (uc *UserController) DeleteStaff(c *gin.Context) {
	ctx, cancel := requestContext(c, uc.timeout)
	defer cancel()

	if err := uc.users.DeleteStaff(ctx, c.Param("id")); err != nil {
		respondError(c, "delete_staff", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Staff member deleted successfully"})
}

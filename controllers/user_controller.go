package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shridhar/dispatch-api/config"
	"github.com/shridhar/dispatch-api/middleware"
	"github.com/shridhar/dispatch-api/models"
	"github.com/shridhar/dispatch-api/services"
	"gorm.io/gorm"
)

// UpdateUserRequest represents the request body for updating a user profile
type UpdateUserRequest struct {
	Name  string `json:"name" binding:"omitempty"`
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone" binding:"omitempty,max=20"`
}

// AvailabilityRequest toggles whether a technician takes jobs
type AvailabilityRequest struct {
	IsOnline *bool `json:"is_online" binding:"required"`
}

// VerifyTechnicianRequest sets a technician's verification flag
type VerifyTechnicianRequest struct {
	IsVerified *bool `json:"is_verified" binding:"required"`
}

// userInfoProvider builds the Auth0 client for CreateUser; tests may replace it
var userInfoProvider = func() services.UserInfoProvider {
	return services.NewAuth0Service(config.GetConfig())
}

// CreateUser handles POST /api/v1/users - creates a new user from Auth0 userinfo
// The role comes from the token's custom role claim and defaults to customer.
func CreateUser(c *gin.Context) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user ID from token")
		return
	}

	accessToken, err := middleware.GetAccessToken(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "MISSING_TOKEN", "Access token not found")
		return
	}

	userInfo, err := userInfoProvider().GetUserInfo(c.Request.Context(), accessToken)
	if err != nil {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "AUTH0_ERROR", "Failed to fetch user information from Auth0")
		return
	}

	if userInfo.Email == "" {
		respondError(c, http.StatusBadRequest, "MISSING_EMAIL", "Email not provided by Auth0")
		return
	}
	if userInfo.Name == "" {
		respondError(c, http.StatusBadRequest, "MISSING_NAME", "Name not provided by Auth0")
		return
	}

	role := models.RoleCustomer
	if claims, err := middleware.GetClaims(c); err == nil {
		if customClaims, ok := claims.CustomClaims.(*middleware.CustomClaims); ok && customClaims.Role != "" {
			role = models.Role(customClaims.Role)
		}
	}
	if !role.Valid() {
		respondError(c, http.StatusBadRequest, "INVALID_ROLE", "Role must be customer, technician or admin")
		return
	}

	user := models.User{
		Auth0ID: auth0ID,
		Name:    userInfo.Name,
		Email:   userInfo.Email,
		Phone:   userInfo.PhoneNumber,
		Role:    role,
	}

	db := config.GetDB()
	if err := db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		if isUniqueViolation(err) {
			respondError(c, http.StatusConflict, "USER_EXISTS", "A user with this Auth0 ID or email already exists")
			return
		}
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create user")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    user,
	})
}

// GetMyProfile handles GET /api/v1/users/me - gets current user's profile
func GetMyProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    user,
	})
}

// UpdateMyProfile handles PUT /api/v1/users/me - updates current user's profile
func UpdateMyProfile(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	user, ok := currentUser(c)
	if !ok {
		return
	}

	updates := make(map[string]interface{})
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Email != "" {
		updates["email"] = req.Email
	}
	if req.Phone != "" {
		updates["phone"] = req.Phone
	}

	if len(updates) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    user,
		})
		return
	}

	saveUser(c, user, updates, "EMAIL_EXISTS", "A user with this email already exists")
}

// UpdateMyAvailability handles PUT /api/v1/users/me/availability - technicians go online or offline
func UpdateMyAvailability(c *gin.Context) {
	var req AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	user, ok := currentUser(c)
	if !ok {
		return
	}
	if user.Role != models.RoleTechnician {
		respondError(c, http.StatusForbidden, "FORBIDDEN", "Only technicians can change availability")
		return
	}

	saveUser(c, user, map[string]interface{}{"is_online": *req.IsOnline}, "", "")
}

// VerifyTechnician handles PUT /api/v1/admin/technicians/:id/verify
func VerifyTechnician(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req VerifyTechnicianRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	db := config.GetDB()
	var user models.User
	if err := db.WithContext(c.Request.Context()).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "USER_NOT_FOUND", "Technician not found")
			return
		}
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load technician")
		return
	}
	if user.Role != models.RoleTechnician {
		respondError(c, http.StatusBadRequest, "NOT_A_TECHNICIAN", "User is not a technician")
		return
	}

	saveUser(c, &user, map[string]interface{}{"is_verified": *req.IsVerified}, "", "")
}

// ListTechnicians handles GET /api/v1/admin/technicians?available=true
func ListTechnicians(c *gin.Context) {
	db := config.GetDB()
	var users []models.User
	err := db.WithContext(c.Request.Context()).
		Where("role = ?", models.RoleTechnician).
		Order("name ASC").
		Find(&users).Error
	if err != nil {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to list technicians")
		return
	}

	// Only those the dispatcher could assign right now
	if c.Query("available") == "true" {
		available := make([]models.User, 0, len(users))
		for _, u := range users {
			if u.CanTakeJobs() {
				available = append(available, u)
			}
		}
		users = available
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    users,
	})
}

// currentUser loads the caller's profile by the token subject, writing a 4xx when it cannot.
func currentUser(c *gin.Context) (*models.User, bool) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
		return nil, false
	}

	var user models.User
	if err := config.GetDB().WithContext(c.Request.Context()).Where("auth0_id = ?", auth0ID).First(&user).Error; err != nil {
		respondError(c, http.StatusNotFound, "USER_NOT_FOUND", "User profile not found. Please create a profile first.")
		return nil, false
	}
	return &user, true
}

// saveUser applies updates and responds with the reloaded user.
func saveUser(c *gin.Context, user *models.User, updates map[string]interface{}, conflictCode, conflictMessage string) {
	db := config.GetDB().WithContext(c.Request.Context())
	if err := db.Model(user).Updates(updates).Error; err != nil {
		if conflictCode != "" && isUniqueViolation(err) {
			respondError(c, http.StatusConflict, conflictCode, conflictMessage)
			return
		}
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update user")
		return
	}

	if err := db.First(user, user.ID).Error; err != nil {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to fetch updated user")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    user,
	})
}

// isUniqueViolation matches duplicate-key errors from both PostgreSQL and SQLite
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}

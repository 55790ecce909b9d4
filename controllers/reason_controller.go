package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shridhar/dispatch-api/config"
	"github.com/shridhar/dispatch-api/models"
	"gorm.io/gorm"
)

// CreateReasonRequest represents the request body for adding a price-increase reason
type CreateReasonRequest struct {
	Description string            `json:"description" binding:"required,max=255"`
	Type        models.ReasonType `json:"type" binding:"required,oneof=REGULAR TRANSPORT"`
}

// ListReasons handles GET /api/v1/reasons?type= - active reasons technicians can cite
func ListReasons(c *gin.Context) {
	db := config.GetDB()
	query := db.WithContext(c.Request.Context()).Where("is_active = ?", true)

	if t := c.Query("type"); t != "" {
		if t != string(models.ReasonRegular) && t != string(models.ReasonTransport) {
			respondError(c, http.StatusBadRequest, "INVALID_TYPE", "Type must be REGULAR or TRANSPORT")
			return
		}
		query = query.Where("type = ?", t)
	}

	var reasons []models.Reason
	if err := query.Order("id ASC").Find(&reasons).Error; err != nil {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to list reasons")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    reasons,
	})
}

// CreateReason handles POST /api/v1/reasons (admin)
func CreateReason(c *gin.Context) {
	var req CreateReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	reason := models.Reason{
		Description: req.Description,
		Type:        req.Type,
		IsActive:    true,
	}
	if err := config.GetDB().WithContext(c.Request.Context()).Create(&reason).Error; err != nil {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create reason")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    reason,
	})
}

// DeactivateReason handles DELETE /api/v1/reasons/:id (admin)
// Reasons are never removed so bookings citing them keep resolving.
func DeactivateReason(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	db := config.GetDB().WithContext(c.Request.Context())
	var reason models.Reason
	if err := db.First(&reason, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "REASON_NOT_FOUND", "Reason not found")
			return
		}
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load reason")
		return
	}

	if err := db.Model(&reason).Update("is_active", false).Error; err != nil {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to deactivate reason")
		return
	}
	reason.IsActive = false

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    reason,
	})
}

// ListCategories handles GET /api/v1/categories - active bookable service types
func ListCategories(c *gin.Context) {
	var categories []models.Category
	err := config.GetDB().WithContext(c.Request.Context()).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&categories).Error
	if err != nil {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to list categories")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    categories,
	})
}

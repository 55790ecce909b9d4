package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shridhar/dispatch-api/middleware"
	"github.com/shridhar/dispatch-api/services"
)

var bookingErrorStatus = map[services.ErrorCode]int{
	services.CodeValidation:                 http.StatusBadRequest,
	services.CodeInvalidTransition:          http.StatusConflict,
	services.CodeNotEligible:                http.StatusForbidden,
	services.CodeAlreadyAssigned:            http.StatusConflict,
	services.CodeAlreadyTerminal:            http.StatusConflict,
	services.CodePriceJustificationRequired: http.StatusUnprocessableEntity,
	services.CodeInvalidPin:                 http.StatusUnprocessableEntity,
	services.CodeNotFound:                   http.StatusNotFound,
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondEngineError maps engine failures onto the JSON error envelope.
func respondEngineError(c *gin.Context, err error) {
	var be *services.BookingError
	if !errors.As(err, &be) {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong processing the request")
		return
	}

	status, ok := bookingErrorStatus[be.Code]
	if !ok {
		status = http.StatusBadRequest
	}
	body := gin.H{
		"code":    be.Code,
		"message": be.Error(),
	}
	if be.From != "" || be.To != "" || be.Guard != "" {
		body["details"] = gin.H{
			"from":  be.From,
			"to":    be.To,
			"guard": be.Guard,
		}
	}
	c.JSON(status, gin.H{"success": false, "error": body})
}

func respondValidation(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": "Invalid request data",
			"details": err.Error(),
		},
	})
}

// actorOrAbort returns the request actor, writing a 401 when it is missing.
func actorOrAbort(c *gin.Context) (services.Actor, bool) {
	actor, err := middleware.GetActor(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
		return services.Actor{}, false
	}
	return actor, true
}

// idParam parses a positive integer path parameter, writing a 400 when invalid.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}

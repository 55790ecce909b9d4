package controllers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shridhar/dispatch-api/middleware"
	"github.com/shridhar/dispatch-api/models"
	"github.com/shridhar/dispatch-api/services"
	"github.com/shridhar/dispatch-api/utils"
	"go.uber.org/zap"
)

// BookingController exposes the booking engine over HTTP
type BookingController struct {
	engine *services.BookingEngine
	images services.ImageService
	log    *zap.Logger
}

// NewBookingController creates the booking handlers
func NewBookingController(engine *services.BookingEngine, images services.ImageService, log *zap.Logger) *BookingController {
	return &BookingController{engine: engine, images: images, log: log}
}

// RegisterRoutes mounts the booking and technician-stats routes on an authenticated group
func (bc *BookingController) RegisterRoutes(rg *gin.RouterGroup) {
	bookings := rg.Group("/bookings")
	{
		bookings.POST("", middleware.RequireRole(models.RoleCustomer), bc.CreateBooking)
		bookings.GET("", bc.ListBookings)
		bookings.GET("/stats", middleware.RequireRole(models.RoleTechnician), bc.GetMyStats)
		bookings.GET("/:id", bc.GetBooking)
		bookings.POST("/:id/assign", middleware.RequireRole(models.RoleAdmin, models.RoleTechnician), bc.AssignBooking)
		bookings.POST("/:id/accept", middleware.RequireRole(models.RoleTechnician), bc.AcceptBooking)
		bookings.POST("/:id/reject", middleware.RequireRole(models.RoleTechnician), bc.RejectBooking)
		bookings.POST("/:id/cancel", middleware.RequireRole(models.RoleCustomer, models.RoleAdmin), bc.CancelBooking)
		bookings.POST("/:id/start", middleware.RequireRole(models.RoleTechnician), bc.StartWork)
		bookings.POST("/:id/proof", middleware.RequireRole(models.RoleTechnician), bc.SubmitProof)
		bookings.POST("/:id/complete", middleware.RequireRole(models.RoleTechnician), bc.CompleteBooking)
		bookings.PUT("/:id/payment", middleware.AdminOnly(), bc.RecordPayment)
	}

	technicians := rg.Group("/technicians", middleware.AdminOnly())
	{
		technicians.GET("/:id/stats", bc.GetTechnicianStats)
		technicians.POST("/:id/stats/rebuild", bc.RebuildTechnicianStats)
	}
}

// CreateBookingRequest represents the request body for requesting a service.
// It is accepted as JSON or as a multipart form with an optional
// reference_image file; in a form the locations are JSON-encoded fields.
type CreateBookingRequest struct {
	CategoryID     uint            `json:"category_id" form:"category_id" binding:"required"`
	Price          float64         `json:"price" form:"price" binding:"required"`
	ScheduledAt    time.Time       `json:"scheduled_at" form:"scheduled_at" binding:"required"`
	Notes          string          `json:"notes" form:"notes"`
	Location       models.GeoPoint `json:"location" form:"location"`
	PickupLocation models.GeoPoint `json:"pickup_location" form:"pickup_location"`
	DropLocation   models.GeoPoint `json:"drop_location" form:"drop_location"`
}

// AssignBookingRequest names the technician to dispatch
type AssignBookingRequest struct {
	TechnicianID uint `json:"technician_id" binding:"required"`
}

// ReasonRequest carries an optional free-text reason
type ReasonRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// SubmitProofRequest is accepted as JSON or as multipart form with part_images files
type SubmitProofRequest struct {
	FinalAmount    float64  `json:"final_amount" form:"final_amount" binding:"required"`
	ReasonID       *uint    `json:"reason_id" form:"reason_id"`
	ReasonText     string   `json:"reason_text" form:"reason_text"`
	WorkProof      []string `json:"work_proof" form:"work_proof"`
	TechnicianNote string   `json:"technician_note" form:"technician_note"`
}

// CompleteBookingRequest carries the customer's Happy PIN
type CompleteBookingRequest struct {
	Pin string `json:"pin" binding:"required"`
}

// RecordPaymentRequest carries the payment outcome
type RecordPaymentRequest struct {
	PaymentStatus models.PaymentStatus `json:"payment_status" binding:"required"`
}

// BookingResponse is a booking as shown to one actor. The PIN is only
// included for the customer who owns the booking.
type BookingResponse struct {
	*models.Booking
	SecurityPin       string   `json:"security_pin,omitempty"`
	WorkProofURLs     []string `json:"work_proof_urls"`
	ReferenceImageURL string   `json:"reference_image_url,omitempty"`
}

// CreateBooking handles POST /api/v1/bookings
func (bc *BookingController) CreateBooking(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req CreateBookingRequest
	if err := c.ShouldBind(&req); err != nil {
		respondValidation(c, err)
		return
	}

	// Store the reference image first so the booking can point at it
	reference, ok := bc.uploadReferenceImage(c, actor.ID)
	if !ok {
		return
	}

	booking, err := bc.engine.CreateBooking(c.Request.Context(), actor, services.CreateBookingInput{
		CategoryID:     req.CategoryID,
		Price:          req.Price,
		ScheduledAt:    req.ScheduledAt,
		Notes:          req.Notes,
		ReferenceImage: reference,
		Location:       req.Location,
		PickupLocation: req.PickupLocation,
		DropLocation:   req.DropLocation,
	})
	if err != nil {
		if reference != "" {
			bc.discardUploads(c, []string{reference})
		}
		respondEngineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    bc.present(c, actor, booking),
	})
}

// ListBookings handles GET /api/v1/bookings?status=&available=&page=&limit=
func (bc *BookingController) ListBookings(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	filter := services.BookingFilter{
		Status:     models.BookingStatus(c.Query("status")),
		Unassigned: c.Query("available") == "true",
		Page:       queryInt(c, "page", 1),
		Limit:      queryInt(c, "limit", 20),
	}
	if actor.IsAdmin() {
		filter.CustomerID = queryUint(c, "customer_id")
		filter.TechnicianID = queryUint(c, "technician_id")
	}

	bookings, total, err := bc.engine.ListBookings(c.Request.Context(), actor, filter)
	if err != nil {
		respondEngineError(c, err)
		return
	}

	data := make([]BookingResponse, 0, len(bookings))
	for i := range bookings {
		data = append(data, bc.present(c, actor, &bookings[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
		"pagination": gin.H{
			"page":  filter.Page,
			"limit": filter.Limit,
			"total": total,
		},
	})
}

// GetBooking handles GET /api/v1/bookings/:id
func (bc *BookingController) GetBooking(c *gin.Context) {
	bc.respond(c, http.StatusOK, func(actor services.Actor, id uint) (*models.Booking, error) {
		return bc.engine.GetBooking(c.Request.Context(), actor, id)
	})
}

// AssignBooking handles POST /api/v1/bookings/:id/assign
func (bc *BookingController) AssignBooking(c *gin.Context) {
	var req AssignBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	bc.respond(c, http.StatusOK, func(actor services.Actor, id uint) (*models.Booking, error) {
		return bc.engine.Assign(c.Request.Context(), actor, id, req.TechnicianID)
	})
}

// AcceptBooking handles POST /api/v1/bookings/:id/accept
func (bc *BookingController) AcceptBooking(c *gin.Context) {
	bc.respond(c, http.StatusOK, func(actor services.Actor, id uint) (*models.Booking, error) {
		return bc.engine.AcceptBooking(c.Request.Context(), actor, id)
	})
}

// RejectBooking handles POST /api/v1/bookings/:id/reject
func (bc *BookingController) RejectBooking(c *gin.Context) {
	req, ok := bindReason(c)
	if !ok {
		return
	}
	bc.respond(c, http.StatusOK, func(actor services.Actor, id uint) (*models.Booking, error) {
		return bc.engine.RejectBooking(c.Request.Context(), actor, id, req.Reason)
	})
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel
func (bc *BookingController) CancelBooking(c *gin.Context) {
	req, ok := bindReason(c)
	if !ok {
		return
	}
	bc.respond(c, http.StatusOK, func(actor services.Actor, id uint) (*models.Booking, error) {
		return bc.engine.CancelBooking(c.Request.Context(), actor, id, req.Reason)
	})
}

// StartWork handles POST /api/v1/bookings/:id/start
func (bc *BookingController) StartWork(c *gin.Context) {
	bc.respond(c, http.StatusOK, func(actor services.Actor, id uint) (*models.Booking, error) {
		return bc.engine.StartWork(c.Request.Context(), actor, id)
	})
}

// SubmitProof handles POST /api/v1/bookings/:id/proof
// Multipart requests may attach up to five part_images which are stored and
// appended to the work proof.
func (bc *BookingController) SubmitProof(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req SubmitProofRequest
	if err := c.ShouldBind(&req); err != nil {
		respondValidation(c, err)
		return
	}

	// Refuse before any file reaches storage
	if c.ContentType() == "multipart/form-data" {
		if err := bc.engine.CheckProofTarget(c.Request.Context(), actor, id); err != nil {
			respondEngineError(c, err)
			return
		}
	}

	uploaded, ok := bc.uploadEvidence(c, id)
	if !ok {
		return
	}

	booking, err := bc.engine.SubmitProof(c.Request.Context(), actor, id, services.ProofInput{
		FinalAmount:    req.FinalAmount,
		ReasonID:       req.ReasonID,
		ReasonText:     req.ReasonText,
		Evidence:       append(req.WorkProof, uploaded...),
		TechnicianNote: req.TechnicianNote,
	})
	if err != nil {
		bc.discardUploads(c, uploaded)
		respondEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    bc.present(c, actor, booking),
	})
}

// CompleteBooking handles POST /api/v1/bookings/:id/complete
func (bc *BookingController) CompleteBooking(c *gin.Context) {
	var req CompleteBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	bc.respond(c, http.StatusOK, func(actor services.Actor, id uint) (*models.Booking, error) {
		return bc.engine.CompleteBooking(c.Request.Context(), actor, id, req.Pin)
	})
}

// RecordPayment handles PUT /api/v1/bookings/:id/payment
func (bc *BookingController) RecordPayment(c *gin.Context) {
	var req RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	bc.respond(c, http.StatusOK, func(actor services.Actor, id uint) (*models.Booking, error) {
		return bc.engine.RecordPayment(c.Request.Context(), actor, id, req.PaymentStatus)
	})
}

// GetMyStats handles GET /api/v1/bookings/stats for the calling technician
func (bc *BookingController) GetMyStats(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	stats, err := bc.engine.StatsFor(c.Request.Context(), actor, actor.ID)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}

// GetTechnicianStats handles GET /api/v1/technicians/:id/stats
func (bc *BookingController) GetTechnicianStats(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	stats, err := bc.engine.StatsFor(c.Request.Context(), actor, id)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}

// RebuildTechnicianStats handles POST /api/v1/technicians/:id/stats/rebuild
func (bc *BookingController) RebuildTechnicianStats(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	stats, err := bc.engine.RebuildStats(c.Request.Context(), actor, id)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}

// respond runs op for the :id booking and writes the presented result.
func (bc *BookingController) respond(c *gin.Context, status int, op func(actor services.Actor, id uint) (*models.Booking, error)) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	booking, err := op(actor, id)
	if err != nil {
		respondEngineError(c, err)
		return
	}

	c.JSON(status, gin.H{
		"success": true,
		"data":    bc.present(c, actor, booking),
	})
}

func (bc *BookingController) present(c *gin.Context, actor services.Actor, booking *models.Booking) BookingResponse {
	resp := BookingResponse{Booking: booking, WorkProofURLs: make([]string, 0, len(booking.WorkProofs))}
	if actor.Owns(booking) {
		resp.SecurityPin = booking.SecurityPin
	}
	for _, ref := range booking.EvidenceRefs() {
		url, err := bc.images.GetImageURL(c.Request.Context(), ref)
		if err != nil {
			bc.log.Warn("failed to resolve work proof url", zap.Uint("booking_id", booking.ID), zap.String("ref", ref), zap.Error(err))
			url = ref
		}
		resp.WorkProofURLs = append(resp.WorkProofURLs, url)
	}
	if booking.ReferenceImage != "" {
		url, err := bc.images.GetImageURL(c.Request.Context(), booking.ReferenceImage)
		if err != nil {
			bc.log.Warn("failed to resolve reference image url", zap.Uint("booking_id", booking.ID), zap.Error(err))
			url = booking.ReferenceImage
		}
		resp.ReferenceImageURL = url
	}
	return resp
}

// uploadReferenceImage stores the optional reference_image of a multipart
// create request and returns its ref, or "" when none was sent.
func (bc *BookingController) uploadReferenceImage(c *gin.Context, customerID uint) (string, bool) {
	if c.ContentType() != "multipart/form-data" {
		return "", true
	}
	fh, err := c.FormFile("reference_image")
	if errors.Is(err, http.ErrMissingFile) {
		return "", true
	}
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid multipart form")
		return "", false
	}

	ref, err := bc.images.UploadImage(c.Request.Context(), fh, fmt.Sprintf("customer-%d", customerID))
	if err != nil {
		var uploadErr *utils.FileUploadError
		if errors.As(err, &uploadErr) {
			respondError(c, http.StatusBadRequest, uploadErr.Code, uploadErr.Message)
			return "", false
		}
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "UPLOAD_FAILED", "Failed to store reference image")
		return "", false
	}
	return ref, true
}

// uploadEvidence stores any part_images of a multipart request and returns their refs.
func (bc *BookingController) uploadEvidence(c *gin.Context, bookingID uint) ([]string, bool) {
	if c.ContentType() != "multipart/form-data" {
		return nil, true
	}
	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid multipart form")
		return nil, false
	}

	files := form.File["part_images"]
	if len(files) > utils.MaxEvidenceFiles {
		respondError(c, http.StatusBadRequest, "TOO_MANY_FILES", fmt.Sprintf("At most %d part images are allowed", utils.MaxEvidenceFiles))
		return nil, false
	}

	var refs []string
	for _, fh := range files {
		ref, err := bc.storeImage(c, fh, bookingID)
		if err != nil {
			bc.discardUploads(c, refs)
			var uploadErr *utils.FileUploadError
			if errors.As(err, &uploadErr) {
				respondError(c, http.StatusBadRequest, uploadErr.Code, uploadErr.Message)
				return nil, false
			}
			c.Error(err)
			respondError(c, http.StatusInternalServerError, "UPLOAD_FAILED", "Failed to store part image")
			return nil, false
		}
		refs = append(refs, ref)
	}
	return refs, true
}

func (bc *BookingController) storeImage(c *gin.Context, fh *multipart.FileHeader, bookingID uint) (string, error) {
	return bc.images.UploadImage(c.Request.Context(), fh, fmt.Sprintf("booking-%d", bookingID))
}

func (bc *BookingController) discardUploads(c *gin.Context, refs []string) {
	for _, ref := range refs {
		if err := bc.images.DeleteImage(c.Request.Context(), ref); err != nil {
			bc.log.Warn("failed to discard uploaded image", zap.String("ref", ref), zap.Error(err))
		}
	}
}

func bindReason(c *gin.Context) (ReasonRequest, bool) {
	var req ReasonRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return req, false
	}
	return req, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return v
}

func queryUint(c *gin.Context, key string) *uint {
	v, err := strconv.ParseUint(c.Query(key), 10, 64)
	if err != nil || v == 0 {
		return nil
	}
	id := uint(v)
	return &id
}

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shridhar/dispatch-api/models"
	"github.com/shridhar/dispatch-api/services"
	"github.com/shridhar/dispatch-api/tests/testutil"
	"github.com/shridhar/dispatch-api/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// EvidenceUploadIntegrationTestSuite covers work-proof images sent with a proof submission
type EvidenceUploadIntegrationTestSuite struct {
	suite.Suite
	router         *gin.Engine
	db             *gorm.DB
	uploadDir      string
	savedUploadDir string

	tech      models.User
	bookingID uint
}

// SetupSuite runs once before all tests
func (suite *EvidenceUploadIntegrationTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	testutil.MustSetTestEnvironment(suite.T())
	suite.savedUploadDir = utils.UploadDir
}

// TearDownSuite restores the upload directory
func (suite *EvidenceUploadIntegrationTestSuite) TearDownSuite() {
	utils.UploadDir = suite.savedUploadDir
}

// SetupTest prepares a booking that is IN_PROGRESS
func (suite *EvidenceUploadIntegrationTestSuite) SetupTest() {
	suite.db = testutil.NewTestDB(suite.T())
	suite.uploadDir = suite.T().TempDir()
	utils.UploadDir = suite.uploadDir

	customer := testutil.SeedUser(suite.T(), suite.db, "auth0|customer", models.RoleCustomer)
	suite.tech = testutil.SeedUser(suite.T(), suite.db, "auth0|tech", models.RoleTechnician)
	category := testutil.SeedCategory(suite.T(), suite.db, "Electrical")

	engine := testutil.NewEngine(suite.db, services.NewRecordingNotifier(), services.EngineOptions{})
	suite.router = testutil.NewRouter(suite.db, engine, services.NewLocalImageService(suite.uploadDir), testutil.HeaderAuth())

	ctx := suite.T().Context()
	customerActor := services.Actor{ID: customer.ID, Role: customer.Role}
	techActor := services.Actor{ID: suite.tech.ID, Role: suite.tech.Role}

	booking, err := engine.CreateBooking(ctx, customerActor, services.CreateBookingInput{
		CategoryID:  category.ID,
		Price:       800,
		ScheduledAt: time.Now().Add(time.Hour),
	})
	suite.Require().NoError(err)
	_, err = engine.AcceptBooking(ctx, techActor, booking.ID)
	suite.Require().NoError(err)
	_, err = engine.StartWork(ctx, techActor, booking.ID)
	suite.Require().NoError(err)
	suite.bookingID = booking.ID
}

type upload struct {
	name    string
	content []byte
}

// createMultipartRequest builds a proof submission with part_images files
func (suite *EvidenceUploadIntegrationTestSuite) createMultipartRequest(finalAmount string, files ...upload) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	suite.Require().NoError(writer.WriteField("final_amount", finalAmount))
	for _, f := range files {
		part, err := writer.CreateFormFile("part_images", f.name)
		suite.Require().NoError(err)
		_, err = part.Write(f.content)
		suite.Require().NoError(err)
	}
	suite.Require().NoError(writer.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/proof", suite.bookingID), body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(testutil.TestUserHeader, suite.tech.Auth0ID)
	return req
}

func (suite *EvidenceUploadIntegrationTestSuite) serve(req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var response map[string]interface{}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return w, response
}

func (suite *EvidenceUploadIntegrationTestSuite) storedBooking() models.Booking {
	var booking models.Booking
	suite.Require().NoError(suite.db.Preload("WorkProofs", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&booking, suite.bookingID).Error)
	return booking
}

// TestSubmitProof_WithImages stores images and serves them back
func (suite *EvidenceUploadIntegrationTestSuite) TestSubmitProof_WithImages() {
	pngContent := []byte("\x89PNG fake image content")
	w, response := suite.serve(suite.createMultipartRequest("800",
		upload{"meter.png", pngContent},
		upload{"wiring.jpg", []byte("jpeg content")},
	))
	suite.Require().Equal(http.StatusOK, w.Code, "response: %v", response)

	urls := response["data"].(map[string]interface{})["work_proof_urls"].([]interface{})
	suite.Require().Len(urls, 2)

	booking := suite.storedBooking()
	suite.Require().Len(booking.WorkProofs, 2)
	assert.True(suite.T(), strings.HasSuffix(booking.EvidenceRefs()[0], "meter.png"))

	w = httptest.NewRecorder()
	suite.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, urls[0].(string), nil))
	suite.Require().Equal(http.StatusOK, w.Code)
	assert.Equal(suite.T(), "image/png", w.Header().Get("Content-Type"))
	body, err := io.ReadAll(w.Body)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), pngContent, body)
}

// TestSubmitProof_AppendsAcrossSubmissions tests that evidence accumulates and duplicates collapse
func (suite *EvidenceUploadIntegrationTestSuite) TestSubmitProof_AppendsAcrossSubmissions() {
	w, _ := suite.serve(suite.createMultipartRequest("800", upload{"before.png", []byte("a")}))
	suite.Require().Equal(http.StatusOK, w.Code)

	payload, _ := json.Marshal(map[string]interface{}{
		"final_amount": 800,
		"work_proof":   []string{"https://cdn.example.com/after.png", "https://cdn.example.com/after.png"},
	})
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/proof", suite.bookingID), bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(testutil.TestUserHeader, suite.tech.Auth0ID)
	w, response := suite.serve(req)
	suite.Require().Equal(http.StatusOK, w.Code, "response: %v", response)

	urls := response["data"].(map[string]interface{})["work_proof_urls"].([]interface{})
	suite.Require().Len(urls, 2)
	assert.Contains(suite.T(), urls[0], "/api/v1/uploads/")
	assert.Equal(suite.T(), "https://cdn.example.com/after.png", urls[1])
}

// TestSubmitProof_Rejections tests files refused before the booking changes
func (suite *EvidenceUploadIntegrationTestSuite) TestSubmitProof_Rejections() {
	testCases := []struct {
		name string
		file upload
		code string
	}{
		{"invalid format", upload{"animation.gif", []byte("GIF89a")}, "INVALID_FILE_FORMAT"},
		{"too large", upload{"huge.png", make([]byte, utils.MaxFileSize+1)}, "FILE_TOO_LARGE"},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			w, response := suite.serve(suite.createMultipartRequest("800", tc.file))
			assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
			assert.Equal(suite.T(), tc.code, response["error"].(map[string]interface{})["code"])
		})
	}

	booking := suite.storedBooking()
	assert.Empty(suite.T(), booking.WorkProofs)
	assert.Nil(suite.T(), booking.FinalAmount)
	assert.Equal(suite.T(), 3, booking.Version)
}

func TestEvidenceUploadIntegrationSuite(t *testing.T) {
	suite.Run(t, new(EvidenceUploadIntegrationTestSuite))
}

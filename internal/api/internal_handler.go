package api

import (
	"net/http"
	"time"

	"alcyxob/wellness-program/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InternalHandler serves hooks called by other backend services.
type InternalHandler struct {
	programs service.ProgramService
}

func NewInternalHandler(programs service.ProgramService) *InternalHandler {
	return &InternalHandler{programs: programs}
}

// EnrollmentRequest is posted by the payment collaborator once a payment clears.
type EnrollmentRequest struct {
	PatientID string                      `json:"patientId" binding:"required"`
	Payment   service.PaymentConfirmation `json:"payment"`
	StartDate *time.Time                  `json:"startDate"`
}

// Enroll godoc
// @Summary Enroll a patient after a verified payment
// @Tags Internal
// @Param X-Internal-Auth header string true "Shared service token"
// @Failure 409 {object} gin.H "Already enrolled"
// @Router /internal/enrollments [post]
func (h *InternalHandler) Enroll(c *gin.Context) {
	var req EnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	patientID, err := parseObjectID(req.PatientID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid patientId format.")
		return
	}
	enrollment, err := h.programs.EnrollPatient(c.Request.Context(), patientID, req.Payment, req.StartDate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, enrollment)
}

func parseObjectID(hex string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(hex)
}

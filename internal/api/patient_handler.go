package api

import (
	"net/http"
	"time"

	"alcyxob/wellness-program/internal/service"

	"github.com/gin-gonic/gin"
)

// PatientHandler serves the routes a patient calls about their own program.
type PatientHandler struct {
	tasks    service.TaskService
	zones    service.ZoneService
	programs service.ProgramService
	wellness service.WellnessService
}

func NewPatientHandler(tasks service.TaskService, zones service.ZoneService, programs service.ProgramService, wellness service.WellnessService) *PatientHandler {
	return &PatientHandler{tasks: tasks, zones: zones, programs: programs, wellness: wellness}
}

// LogCompletionRequest optionally backdates a completion.
type LogCompletionRequest struct {
	CompletionDate *time.Time `json:"completionDate"`
}

// SubmitBodyMetrics godoc
// @Summary Submit a body-metrics reading and get fresh recommendations
// @Tags Patient
// @Router /patient/metrics [post]
func (h *PatientHandler) SubmitBodyMetrics(c *gin.Context) {
	patientID, ok := userID(c)
	if !ok {
		return
	}
	var req service.BodyMetricsInput
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	bundle, err := h.wellness.SubmitBodyMetrics(c.Request.Context(), patientID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bundle)
}

func (h *PatientHandler) ListBodyMetrics(c *gin.Context) {
	patientID, ok := userID(c)
	if !ok {
		return
	}
	samples, err := h.wellness.ListBodyMetrics(c.Request.Context(), patientID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, samples)
}

func (h *PatientHandler) GetRecommendations(c *gin.Context) {
	patientID, ok := userID(c)
	if !ok {
		return
	}
	bundle, err := h.wellness.GetRecommendations(c.Request.Context(), patientID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

func (h *PatientHandler) ListTasks(c *gin.Context) {
	patientID, ok := userID(c)
	if !ok {
		return
	}
	tasks, err := h.tasks.ListPatientTasks(c.Request.Context(), patientID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// GetTodaysTasks godoc
// @Summary Tasks applicable today with their completion flag
// @Tags Patient
// @Router /patient/tasks/today [get]
func (h *PatientHandler) GetTodaysTasks(c *gin.Context) {
	patientID, ok := userID(c)
	if !ok {
		return
	}
	tasks, err := h.tasks.GetTodaysTasks(c.Request.Context(), patientID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// LogTaskCompletion godoc
// @Summary Log a task as done for today or a past day
// @Tags Patient
// @Failure 409 {object} gin.H "Already logged for that day"
// @Router /patient/tasks/{taskId}/complete [post]
func (h *PatientHandler) LogTaskCompletion(c *gin.Context) {
	patientID, ok := userID(c)
	if !ok {
		return
	}
	taskID, ok := objectIDParam(c, "taskId")
	if !ok {
		return
	}
	var req LogCompletionRequest
	// The body is optional.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}
	entry, err := h.tasks.LogTaskCompletion(c.Request.Context(), patientID, taskID, req.CompletionDate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *PatientHandler) GetProgramWeek(c *gin.Context) {
	patientID, ok := userID(c)
	if !ok {
		return
	}
	var asOf *time.Time
	if raw := c.Query("asOf"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid asOf: must be RFC3339.")
			return
		}
		asOf = &t
	}
	week, err := h.programs.GetProgramWeek(c.Request.Context(), patientID, asOf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"week": week})
}

// GetZones godoc
// @Summary Zone progress, advanced lazily on read
// @Tags Patient
// @Router /patient/zones [get]
func (h *PatientHandler) GetZones(c *gin.Context) {
	patientID, ok := userID(c)
	if !ok {
		return
	}
	zones, err := h.zones.GetZoneProgress(c.Request.Context(), patientID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, zones)
}

func (h *PatientHandler) ListZoneVideos(c *gin.Context) {
	patientID, ok := userID(c)
	if !ok {
		return
	}
	zone, ok := intParam(c, "zone", c.Param("zone"))
	if !ok {
		return
	}
	videos, err := h.zones.ListZoneVideos(c.Request.Context(), patientID, zone)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, videos)
}

func (h *PatientHandler) MarkVideoWatched(c *gin.Context) {
	patientID, ok := userID(c)
	if !ok {
		return
	}
	zone, ok := intParam(c, "zone", c.Param("zone"))
	if !ok {
		return
	}
	videoID, ok := objectIDParam(c, "videoId")
	if !ok {
		return
	}
	rec, err := h.zones.MarkVideoWatched(c.Request.Context(), patientID, zone, videoID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

package api

import (
	"net/http"

	"alcyxob/wellness-program/internal/domain"
	"alcyxob/wellness-program/internal/service"

	"github.com/gin-gonic/gin"
)

// DoctorHandler serves the clinician routes. Every patient-scoped call is
// authorized in the services against the doctor's roster.
type DoctorHandler struct {
	doctors  service.DoctorService
	tasks    service.TaskService
	zones    service.ZoneService
	programs service.ProgramService
	wellness service.WellnessService
}

func NewDoctorHandler(
	doctors service.DoctorService,
	tasks service.TaskService,
	zones service.ZoneService,
	programs service.ProgramService,
	wellness service.WellnessService,
) *DoctorHandler {
	return &DoctorHandler{doctors: doctors, tasks: tasks, zones: zones, programs: programs, wellness: wellness}
}

// --- DTOs ---

type AddPatientRequest struct {
	PatientEmail string `json:"patientEmail" binding:"required,email"`
}

type AllocateTasksRequest struct {
	Tasks []domain.TaskAllocation `json:"tasks" binding:"required,min=1"`
}

type AssignProgramRequest struct {
	TemplateID string `json:"templateId" binding:"required"`
	Replace    bool   `json:"replace"`
}

type UploadURLRequest struct {
	FileName    string `json:"fileName" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
}

// --- Roster ---

// AddPatientByEmail godoc
// @Summary Add a patient to the doctor's roster by email
// @Tags Doctor
// @Router /doctor/patients [post]
func (h *DoctorHandler) AddPatientByEmail(c *gin.Context) {
	var req AddPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	doctorID, ok := userID(c)
	if !ok {
		return
	}
	patient, err := h.doctors.AddPatientByEmail(c.Request.Context(), doctorID, req.PatientEmail)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapUserToResponse(patient))
}

func (h *DoctorHandler) GetManagedPatients(c *gin.Context) {
	doctorID, ok := userID(c)
	if !ok {
		return
	}
	patients, err := h.doctors.GetManagedPatients(c.Request.Context(), doctorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapUsersToResponse(patients))
}

// --- Tasks ---

func (h *DoctorHandler) AllocateTasks(c *gin.Context) {
	doctorID, ok := userID(c)
	if !ok {
		return
	}
	patientID, ok := objectIDParam(c, "patientId")
	if !ok {
		return
	}
	var req AllocateTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	tasks, err := h.tasks.AllocateTasks(c.Request.Context(), doctorID, patientID, req.Tasks)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tasks)
}

func (h *DoctorHandler) RescheduleTask(c *gin.Context) {
	doctorID, ok := userID(c)
	if !ok {
		return
	}
	taskID, ok := objectIDParam(c, "taskId")
	if !ok {
		return
	}
	var req domain.TaskSchedule
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	task, err := h.tasks.RescheduleTask(c.Request.Context(), doctorID, taskID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *DoctorHandler) DeleteTask(c *gin.Context) {
	doctorID, ok := userID(c)
	if !ok {
		return
	}
	taskID, ok := objectIDParam(c, "taskId")
	if !ok {
		return
	}
	if err := h.tasks.DeleteTask(c.Request.Context(), doctorID, taskID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PatientCompliance godoc
// @Summary Weekly compliance of one zone
// @Tags Doctor
// @Param zone query int true "Zone 1-5"
// @Param week query int true "Program week 1-15"
// @Router /doctor/patients/{patientId}/compliance [get]
func (h *DoctorHandler) PatientCompliance(c *gin.Context) {
	doctorID, ok := userID(c)
	if !ok {
		return
	}
	patientID, ok := objectIDParam(c, "patientId")
	if !ok {
		return
	}
	zone, ok := intParam(c, "zone", c.Query("zone"))
	if !ok {
		return
	}
	week, ok := intParam(c, "week", c.Query("week"))
	if !ok {
		return
	}
	report, err := h.tasks.PatientCompliance(c.Request.Context(), doctorID, patientID, zone, week)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// --- Program ---

// AssignProgram godoc
// @Summary Stamp a template onto a patient
// @Tags Doctor
// @Failure 409 {object} gin.H "Patient already has an active program"
// @Router /doctor/patients/{patientId}/program [post]
func (h *DoctorHandler) AssignProgram(c *gin.Context) {
	doctorID, ok := userID(c)
	if !ok {
		return
	}
	patientID, ok := objectIDParam(c, "patientId")
	if !ok {
		return
	}
	var req AssignProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	templateID, err := parseObjectID(req.TemplateID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid templateId format.")
		return
	}
	tasks, err := h.programs.AssignProgram(c.Request.Context(), doctorID, patientID, templateID, req.Replace)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tasks)
}

func (h *DoctorHandler) CreateTemplate(c *gin.Context) {
	doctorID, ok := userID(c)
	if !ok {
		return
	}
	var req domain.ProgramTemplate
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	tmpl, err := h.programs.CreateTemplate(c.Request.Context(), doctorID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tmpl)
}

func (h *DoctorHandler) ListTemplates(c *gin.Context) {
	templates, err := h.programs.ListTemplates(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, templates)
}

func (h *DoctorHandler) GetTemplate(c *gin.Context) {
	templateID, ok := objectIDParam(c, "templateId")
	if !ok {
		return
	}
	tmpl, err := h.programs.GetTemplate(c.Request.Context(), templateID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

func (h *DoctorHandler) UpdateTemplate(c *gin.Context) {
	doctorID, ok := userID(c)
	if !ok {
		return
	}
	templateID, ok := objectIDParam(c, "templateId")
	if !ok {
		return
	}
	var req domain.ProgramTemplate
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	tmpl, err := h.programs.UpdateTemplate(c.Request.Context(), doctorID, templateID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

// --- Recommendations ---

func (h *DoctorHandler) OverrideRecommendation(c *gin.Context) {
	doctorID, ok := userID(c)
	if !ok {
		return
	}
	patientID, ok := objectIDParam(c, "patientId")
	if !ok {
		return
	}
	var req service.OverrideInput
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	bundle, err := h.wellness.OverrideRecommendation(c.Request.Context(), doctorID, patientID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

// --- Zones ---

func (h *DoctorHandler) PatientZones(c *gin.Context) {
	doctorID, ok := userID(c)
	if !ok {
		return
	}
	patientID, ok := objectIDParam(c, "patientId")
	if !ok {
		return
	}
	zones, err := h.zones.PatientZones(c.Request.Context(), doctorID, patientID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, zones)
}

// CompleteZone godoc
// @Summary Complete a zone once its gate is satisfied
// @Tags Doctor
// @Failure 412 {object} gin.H "Gate not satisfied; the error lists the unmet conditions"
// @Router /doctor/patients/{patientId}/zones/{zone}/complete [post]
func (h *DoctorHandler) CompleteZone(c *gin.Context) {
	doctorID, ok := userID(c)
	if !ok {
		return
	}
	patientID, ok := objectIDParam(c, "patientId")
	if !ok {
		return
	}
	zone, ok := intParam(c, "zone", c.Param("zone"))
	if !ok {
		return
	}
	rec, err := h.zones.CompleteZone(c.Request.Context(), doctorID, patientID, zone)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// RequestVideoUploadURL godoc
// @Summary Presign a PUT for a new zone video
// @Tags Doctor
// @Router /doctor/zones/{zone}/videos/upload-url [post]
func (h *DoctorHandler) RequestVideoUploadURL(c *gin.Context) {
	zone, ok := intParam(c, "zone", c.Param("zone"))
	if !ok {
		return
	}
	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	ticket, err := h.zones.RequestVideoUploadURL(c.Request.Context(), zone, req.FileName, req.ContentType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (h *DoctorHandler) CreateZoneVideo(c *gin.Context) {
	zone, ok := intParam(c, "zone", c.Param("zone"))
	if !ok {
		return
	}
	var req service.CreateZoneVideoInput
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	req.ZoneNumber = zone
	video, err := h.zones.CreateZoneVideo(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, video)
}

func (h *DoctorHandler) DeleteZoneVideo(c *gin.Context) {
	zone, ok := intParam(c, "zone", c.Param("zone"))
	if !ok {
		return
	}
	videoID, ok := objectIDParam(c, "videoId")
	if !ok {
		return
	}
	if err := h.zones.DeleteZoneVideo(c.Request.Context(), zone, videoID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

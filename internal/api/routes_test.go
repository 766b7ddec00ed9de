package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"alcyxob/wellness-program/internal/calendar"
	"alcyxob/wellness-program/internal/config"
	"alcyxob/wellness-program/internal/domain"
	"alcyxob/wellness-program/internal/lock"
	"alcyxob/wellness-program/internal/notify"
	"alcyxob/wellness-program/internal/repository/memory"
	"alcyxob/wellness-program/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret     = "api-test-secret"
	testInternalToken = "internal-test-token"
)

type stubStorage struct{}

func (stubStorage) GeneratePresignedUploadURL(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://storage.test/" + key + "?put", nil
}

func (stubStorage) GeneratePresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://storage.test/" + key, nil
}

func (stubStorage) DeleteObject(context.Context, string) error { return nil }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	logger := zap.NewNop()
	cal := calendar.New(time.UTC)
	clock := service.SystemClock{}
	locker := lock.NewLocalLocker()
	dispatcher := notify.NewDispatcher(notify.NewLogSender(logger), time.Second, logger)
	t.Cleanup(func() { _ = dispatcher.Wait(context.Background()) })

	zones := service.NewZoneService(service.ZoneServiceDeps{
		Users:    store.Users,
		Zones:    store.Zones,
		Videos:   store.Videos,
		Tasks:    store.Tasks,
		Ledger:   store.Compliance,
		Tx:       store.Tx,
		Locker:   locker,
		Storage:  stubStorage{},
		Calendar: cal,
		Clock:    clock,
		Notifier: dispatcher,
		Logger:   logger,
		Policy:   config.ZoneConfig{MinWeeks: []int{2, 2, 2, 2, 3}, PoorComplianceBelow: 0.5},
		Bands:    service.DefaultComplianceBands,
	})
	svc := Services{
		Auth:     service.NewAuthService(store.Users, testJWTSecret, time.Hour, logger),
		Doctors:  service.NewDoctorService(store.Users, store.Tx, logger),
		Tasks:    service.NewTaskService(store.Users, store.Tasks, store.Compliance, store.Tx, cal, service.DefaultComplianceBands, clock, dispatcher, logger),
		Zones:    zones,
		Programs: service.NewProgramService(store.Users, store.Templates, store.Tasks, store.Compliance, store.Tx, locker, zones, cal, clock, dispatcher, service.ProgramPolicy{AllowReplace: true}, logger),
		Wellness: service.NewWellnessService(store.Users, store.BodyMetrics, store.Recommendations, store.Zones, clock, logger),
	}

	router := gin.New()
	SetupRoutes(router, RouterConfig{JWTSecret: testJWTSecret, InternalToken: testInternalToken}, svc, logger)
	return router
}

func do(t *testing.T, router *gin.Engine, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// signUp registers and logs in a user, returning the token and the user ID.
func signUp(t *testing.T, router *gin.Engine, role domain.Role, email string) (string, string) {
	t.Helper()
	w := do(t, router, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{
		Name: email, Email: email, Password: "correct-horse", Role: role,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Email: email, Password: "correct-horse"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[LoginResponse](t, w)
	require.NotEmpty(t, resp.Token)
	return resp.Token, resp.User.ID
}

// enrolledPatient sets up a doctor managing a patient enrolled through the
// internal route.
func enrolledPatient(t *testing.T, router *gin.Engine) (doctorToken, patientToken, patientID string) {
	t.Helper()
	doctorToken, _ = signUp(t, router, domain.RoleDoctor, "doctor@example.com")
	patientToken, patientID = signUp(t, router, domain.RolePatient, "patient@example.com")

	w := do(t, router, http.MethodPost, "/api/v1/doctor/patients", doctorToken, AddPatientRequest{PatientEmail: "patient@example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, "/api/v1/internal/enrollments", "", gin.H{
		"patientId": patientID,
		"payment":   gin.H{"verified": true, "reference": "pay-1"},
	}, InternalAuthHeader, testInternalToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return doctorToken, patientToken, patientID
}

func TestPing(t *testing.T) {
	router := newTestRouter(t)
	w := do(t, router, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestAuthFlow(t *testing.T) {
	router := newTestRouter(t)
	token, id := signUp(t, router, domain.RolePatient, "me@example.com")

	w := do(t, router, http.MethodGet, "/api/v1/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[map[string]string](t, w)
	assert.Equal(t, id, me["userId"])
	assert.Equal(t, string(domain.RolePatient), me["role"])

	w = do(t, router, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Email: "me@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{
		Name: "x", Email: "me@example.com", Password: "correct-horse", Role: domain.RolePatient,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestProtectedRoutes(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodGet, "/api/v1/patient/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, router, http.MethodGet, "/api/v1/patient/tasks", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	doctorToken, _ := signUp(t, router, domain.RoleDoctor, "doc@example.com")
	w = do(t, router, http.MethodGet, "/api/v1/patient/tasks", doctorToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestInternalAuth(t *testing.T) {
	router := newTestRouter(t)
	_, patientID := signUp(t, router, domain.RolePatient, "p@example.com")
	body := gin.H{"patientId": patientID, "payment": gin.H{"verified": true, "reference": "pay-9"}}

	w := do(t, router, http.MethodPost, "/api/v1/internal/enrollments", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/internal/enrollments", "", body, InternalAuthHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/internal/enrollments", "", body, InternalAuthHeader, testInternalToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, "/api/v1/internal/enrollments", "", body, InternalAuthHeader, testInternalToken)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestInternalAuth_DisabledWithoutToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/hook", InternalAuth(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := do(t, router, http.MethodPost, "/hook", "", nil, InternalAuthHeader, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestTaskCompletion_DuplicateIsConflict(t *testing.T) {
	router := newTestRouter(t)
	doctorToken, patientToken, patientID := enrolledPatient(t, router)

	w := do(t, router, http.MethodPost, "/api/v1/doctor/patients/"+patientID+"/tasks", doctorToken, gin.H{
		"tasks": []gin.H{{"description": "Morning walk", "frequency": "daily", "zoneNumber": 1, "programWeek": 1}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tasks := decode[[]domain.AssignedTask](t, w)
	require.Len(t, tasks, 1)
	path := fmt.Sprintf("/api/v1/patient/tasks/%s/complete", tasks[0].ID.Hex())

	w = do(t, router, http.MethodPost, path, patientToken, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, path, patientToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decode[map[string]string](t, w)["kind"])

	// Another patient's task looks like it does not exist.
	otherToken, _ := signUp(t, router, domain.RolePatient, "other@example.com")
	w = do(t, router, http.MethodPost, path, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAllocateTasks_Invalid(t *testing.T) {
	router := newTestRouter(t)
	doctorToken, _, patientID := enrolledPatient(t, router)

	w := do(t, router, http.MethodPost, "/api/v1/doctor/patients/"+patientID+"/tasks", doctorToken, gin.H{
		"tasks": []gin.H{{"description": "Stretch", "frequency": "hourly", "zoneNumber": 1, "programWeek": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/doctor/patients/not-an-id/tasks", doctorToken, gin.H{"tasks": []gin.H{{}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompleteZone_GateNotSatisfied(t *testing.T) {
	router := newTestRouter(t)
	doctorToken, patientToken, patientID := enrolledPatient(t, router)

	w := do(t, router, http.MethodPost, "/api/v1/doctor/patients/"+patientID+"/zones/1/complete", doctorToken, nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["error"], "weeks in zone")

	w = do(t, router, http.MethodGet, "/api/v1/patient/zones", patientToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	zones := decode[[]map[string]any](t, w)
	assert.Len(t, zones, 5)

	w = do(t, router, http.MethodGet, "/api/v1/patient/week", patientToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["week"])
}

func TestDoctorCannotReachUnmanagedPatient(t *testing.T) {
	router := newTestRouter(t)
	_, _, patientID := enrolledPatient(t, router)
	strangerToken, _ := signUp(t, router, domain.RoleDoctor, "stranger@example.com")

	w := do(t, router, http.MethodGet, "/api/v1/doctor/patients/"+patientID+"/zones", strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCompliance_BadQuery(t *testing.T) {
	router := newTestRouter(t)
	doctorToken, _, patientID := enrolledPatient(t, router)

	w := do(t, router, http.MethodGet, "/api/v1/doctor/patients/"+patientID+"/compliance?zone=one&week=1", doctorToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/v1/doctor/patients/"+patientID+"/compliance?zone=1&week=1", doctorToken, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

package api

import (
	"net/http"
	"time"

	"alcyxob/wellness-program/internal/domain"
	"alcyxob/wellness-program/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services bundles what the handlers call into.
type Services struct {
	Auth     service.AuthService
	Doctors  service.DoctorService
	Tasks    service.TaskService
	Zones    service.ZoneService
	Programs service.ProgramService
	Wellness service.WellnessService
}

// RouterConfig carries the HTTP-level settings.
type RouterConfig struct {
	JWTSecret     string
	InternalToken string
	CORSOrigins   []string
}

func SetupRoutes(router *gin.Engine, cfg RouterConfig, svc Services, logger *zap.Logger) {
	authHandler := NewAuthHandler(svc.Auth)
	patientHandler := NewPatientHandler(svc.Tasks, svc.Zones, svc.Programs, svc.Wellness)
	doctorHandler := NewDoctorHandler(svc.Doctors, svc.Tasks, svc.Zones, svc.Programs, svc.Wellness)
	internalHandler := NewInternalHandler(svc.Programs)

	router.Use(RequestLogger(logger))
	router.Use(corsMiddleware(cfg.CORSOrigins))

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}

		internalGroup := apiV1.Group("/internal")
		internalGroup.Use(InternalAuth(cfg.InternalToken))
		{
			// POST /api/v1/internal/enrollments
			internalGroup.POST("/enrollments", internalHandler.Enroll)
		}
	}

	protected := apiV1.Group("")
	protected.Use(AuthMiddleware(cfg.JWTSecret))
	{
		protected.GET("/me", func(c *gin.Context) {
			id, ok := userID(c)
			if !ok {
				return
			}
			role, _ := getUserRoleFromContext(c)
			c.JSON(http.StatusOK, gin.H{"userId": id.Hex(), "role": role})
		})

		patientGroup := protected.Group("/patient")
		patientGroup.Use(RoleMiddleware(domain.RolePatient))
		{
			patientGroup.POST("/metrics", patientHandler.SubmitBodyMetrics)
			patientGroup.GET("/metrics", patientHandler.ListBodyMetrics)
			patientGroup.GET("/recommendations", patientHandler.GetRecommendations)

			patientGroup.GET("/tasks", patientHandler.ListTasks)
			patientGroup.GET("/tasks/today", patientHandler.GetTodaysTasks)
			patientGroup.POST("/tasks/:taskId/complete", patientHandler.LogTaskCompletion)

			patientGroup.GET("/week", patientHandler.GetProgramWeek)

			patientGroup.GET("/zones", patientHandler.GetZones)
			patientGroup.GET("/zones/:zone/videos", patientHandler.ListZoneVideos)
			patientGroup.POST("/zones/:zone/videos/:videoId/watched", patientHandler.MarkVideoWatched)
		}

		doctorGroup := protected.Group("/doctor")
		doctorGroup.Use(RoleMiddleware(domain.RoleDoctor))
		{
			doctorGroup.POST("/patients", doctorHandler.AddPatientByEmail)
			doctorGroup.GET("/patients", doctorHandler.GetManagedPatients)

			doctorGroup.POST("/patients/:patientId/tasks", doctorHandler.AllocateTasks)
			doctorGroup.PUT("/tasks/:taskId/schedule", doctorHandler.RescheduleTask)
			doctorGroup.DELETE("/tasks/:taskId", doctorHandler.DeleteTask)
			doctorGroup.GET("/patients/:patientId/compliance", doctorHandler.PatientCompliance)

			doctorGroup.POST("/patients/:patientId/program", doctorHandler.AssignProgram)
			doctorGroup.PUT("/patients/:patientId/recommendations/override", doctorHandler.OverrideRecommendation)

			doctorGroup.GET("/patients/:patientId/zones", doctorHandler.PatientZones)
			doctorGroup.POST("/patients/:patientId/zones/:zone/complete", doctorHandler.CompleteZone)

			doctorGroup.POST("/templates", doctorHandler.CreateTemplate)
			doctorGroup.GET("/templates", doctorHandler.ListTemplates)
			doctorGroup.GET("/templates/:templateId", doctorHandler.GetTemplate)
			doctorGroup.PUT("/templates/:templateId", doctorHandler.UpdateTemplate)

			doctorGroup.POST("/zones/:zone/videos/upload-url", doctorHandler.RequestVideoUploadURL)
			doctorGroup.POST("/zones/:zone/videos", doctorHandler.CreateZoneVideo)
			doctorGroup.DELETE("/zones/:zone/videos/:videoId", doctorHandler.DeleteZoneVideo)
		}
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", RequestIDHeader},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

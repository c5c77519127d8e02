package main

import (
	"fmt"
	"strconv"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"report-workflow-service/config"
	"report-workflow-service/database"
	"report-workflow-service/handlers"
	"report-workflow-service/middleware"
	"report-workflow-service/services"
	"report-workflow-service/utils"
	"report-workflow-service/version"
)

const (
	EndPointHealth           = "/health"
	EndPointReports          = "/reports"
	EndPointReport           = "/reports/:id"
	EndPointReportHistory    = "/reports/:id/history"
	EndPointReportStatus     = "/reports/:id/status"
	EndPointReportAssign     = "/reports/:id/assign"
	EndPointReportPriority   = "/reports/:id/priority"
	EndPointReportComments   = "/reports/:id/comments"
	EndPointEscalations      = "/escalations"
	EndPointEscalationAction = "/escalations/:id/action"
	EndPointStaff            = "/staff"
	EndPointWebSocket        = "/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	log.Info("Starting the report workflow service...")

	db, err := utils.DBConnect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.InitSchema(db); err != nil {
		log.Fatalf("Failed to initialize database schema: %v", err)
	}

	jurisdictionService := services.NewJurisdictionService()
	if cfg.WardGeoJSONPath != "" {
		if err := jurisdictionService.LoadWards(cfg.WardGeoJSONPath); err != nil {
			log.Fatalf("Failed to load ward boundaries: %v", err)
		}
	} else {
		log.Warn("WARD_GEOJSON_PATH not set, ward lookup disabled")
	}

	hub := services.NewWebSocketHub()
	go hub.Start()

	sinks := []services.Notifier{services.LogNotifier{}, services.NewHubNotifier(hub)}
	if cfg.SendGridAPIKey != "" && cfg.OpsEmail != "" {
		sinks = append(sinks, services.NewEmailNotifier(
			cfg.SendGridAPIKey, cfg.EmailFromName, cfg.EmailFrom, cfg.OpsEmail))
	}
	notifier := services.NewMultiNotifier(sinks...)

	workflowService := database.NewWorkflowService(db, notifier)
	escalationService := services.NewEscalationService(db, cfg)

	workflowHandler := handlers.NewWorkflowHandler(workflowService, escalationService, jurisdictionService, hub)

	router := gin.Default()
	router.Use(middleware.CORSMiddleware())

	router.GET("/version", func(c *gin.Context) {
		c.JSON(200, version.Get("report-workflow-service"))
	})
	router.GET(EndPointHealth, workflowHandler.HealthCheck)

	auth := middleware.AuthMiddleware(cfg)
	submitLimiter := middleware.RateLimitMiddleware(cfg.SubmitRateLimit, cfg.SubmitRateWindow)

	apiV3 := router.Group("/api/v3")
	{
		apiV3.POST(EndPointReports, auth, submitLimiter, workflowHandler.CreateReport)
		apiV3.GET(EndPointReports, auth, workflowHandler.ListReports)
		apiV3.GET(EndPointReport, auth, workflowHandler.GetReport)
		apiV3.GET(EndPointReportHistory, auth, workflowHandler.GetHistory)
		apiV3.PUT(EndPointReportStatus, auth, workflowHandler.UpdateStatus)
		apiV3.PUT(EndPointReportAssign, auth, workflowHandler.AssignReport)
		apiV3.PUT(EndPointReportPriority, auth, workflowHandler.UpdatePriority)
		apiV3.POST(EndPointReportComments, auth, workflowHandler.AddComment)
		apiV3.GET(EndPointEscalations, auth, workflowHandler.GetEscalations)
		apiV3.POST(EndPointEscalationAction, auth, workflowHandler.EscalationAction)
		apiV3.GET(EndPointStaff, auth, workflowHandler.ListStaff)
		apiV3.POST(EndPointStaff, auth, workflowHandler.UpsertStaff)
		apiV3.GET(EndPointWebSocket, auth, workflowHandler.ListenWorkflowEvents)
	}

	serverPort, err := strconv.Atoi(cfg.Port)
	if err != nil {
		log.Fatalf("Invalid PORT configuration: %v", err)
	}

	log.Infof("Report workflow service starting on port %d", serverPort)
	if err := router.Run(fmt.Sprintf(":%d", serverPort)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

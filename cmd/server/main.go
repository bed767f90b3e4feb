// cmd/server/main.go - TeamPulse Survey Engine
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"teampulse-backend/internal/config"
	"teampulse-backend/internal/database"
	"teampulse-backend/internal/handlers"
	"teampulse-backend/internal/middleware"
	"teampulse-backend/internal/services"
	"teampulse-backend/internal/store"
	"teampulse-backend/pkg/auth"
	"teampulse-backend/pkg/validator"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	serverStartTime = time.Now()

	appVersion = "1.0.0"
	buildTime  = "unknown"
	gitCommit  = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	cfg := config.Load()

	log := setupLogging(cfg)
	printStartupInfo(log, cfg)

	log.Info("🔌 Connecting to MongoDB...")
	db, err := database.NewMongoDB(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warnf("⚠️  Error disconnecting from MongoDB: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.CreateIndexes(ctx); err != nil {
		log.Warnf("⚠️  Failed to create some indexes: %v", err)
	}
	cancel()

	validator.Init()

	jwtManager := auth.NewJWTManager(
		cfg.JWTSecret,
		time.Duration(cfg.JWTExpiration)*time.Hour,
	)

	st := store.NewMongoStore(db.Database)

	// Services
	draftService := services.NewDraftService(st, log)
	resolver := services.NewDirectoryResolver(st)
	publicationService := services.NewPublicationService(st, resolver, log)
	completionEmitter := services.NewCompletionEmitter(cfg, log)
	responseService := services.NewResponseService(st, completionEmitter, log)
	aggregationService := services.NewAggregationService(st, log)

	// Handlers
	surveyHandler := handlers.NewSurveyHandler(draftService, publicationService, st)
	responseHandler := handlers.NewResponseHandler(responseService, st)
	statsHandler := handlers.NewStatsHandler(aggregationService)

	router := setupRouter(cfg, jwtManager, surveyHandler, responseHandler, statsHandler)

	// Optional fallback sweep for deployments without the external
	// scheduler; off unless SWEEP_INTERVAL is set.
	sweepDone := make(chan struct{})
	if cfg.SweepInterval > 0 {
		go runSweep(log, publicationService, time.Duration(cfg.SweepInterval)*time.Minute, sweepDone)
	}

	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	go func() {
		log.Infof("🚀 TeamPulse Survey Engine v%s starting...", appVersion)
		log.Infof("🌐 Server running on http://%s:%s", cfg.Host, cfg.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("🛑 Shutting down server...")
	close(sweepDone)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("⚠️  Server forced to shutdown: %v", err)
	} else {
		log.Info("✅ Server gracefully stopped")
	}

	log.Info("👋 TeamPulse Survey Engine exited")
}

func setupLogging(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
		log.SetFormatter(&logrus.JSONFormatter{})
		log.SetLevel(logrus.InfoLevel)
	} else {
		gin.SetMode(gin.DebugMode)
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func printStartupInfo(log *logrus.Logger, cfg *config.Config) {
	log.Info("================================================================================")
	log.Info("📊 TeamPulse Survey Engine")
	log.Infof("📌 Version: %s | Build: %s | Commit: %s", appVersion, buildTime, gitCommit)
	log.Infof("🌍 Environment: %s", cfg.Env)
	log.Info("🔧 Configuration:")
	log.Infof("   • Host: %s", cfg.Host)
	log.Infof("   • Port: %s", cfg.Port)
	log.Infof("   • Database: %s", cfg.DatabaseName)
	log.Infof("   • CORS Origins: %s", cfg.AllowedOrigins)
	log.Infof("   • Rate Limit: %d requests per %ds", cfg.RateLimitRequests, cfg.RateLimitWindow)
	if cfg.RewardsWebhookURL != "" {
		log.Infof("   • Rewards webhook: %s", cfg.RewardsWebhookURL)
	}
	log.Info("================================================================================")
}

// runSweep periodically closes active surveys whose close date elapsed.
func runSweep(log *logrus.Logger, publication *services.PublicationService, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := publication.Sweep(ctx, time.Now())
			cancel()
			if err != nil {
				log.Warnf("⚠️  Due-survey sweep failed: %v", err)
			} else if n > 0 {
				log.Infof("⏰ Closed %d due surveys", n)
			}
		}
	}
}

func setupRouter(
	cfg *config.Config,
	jwtManager *auth.JWTManager,
	surveyHandler *handlers.SurveyHandler,
	responseHandler *handlers.ResponseHandler,
	statsHandler *handlers.StatsHandler,
) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	corsConfig := cors.Config{
		AllowOrigins:     []string{cfg.AllowedOrigins},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.AllowedOrigins == "*" {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRequests, time.Duration(cfg.RateLimitWindow)*time.Second)

	setupHealthRoutes(router)

	v1 := router.Group("/api/v1")
	{
		// Respondent routes (require JWT)
		respondent := v1.Group("/surveys")
		respondent.Use(middleware.AuthMiddleware(jwtManager))
		{
			respondent.GET("", responseHandler.ListAssigned)
			respondent.GET("/:id", responseHandler.GetSurvey)
			respondent.GET("/:id/progress", responseHandler.Progress)
			respondent.POST("/:id/sections/:sectionId/responses", rateLimiter.RateLimit(), responseHandler.SubmitSection)
		}

		// Admin routes (require JWT + admin flag)
		admin := v1.Group("/admin/surveys")
		admin.Use(middleware.AuthMiddleware(jwtManager))
		admin.Use(middleware.AdminMiddleware())
		{
			admin.POST("", surveyHandler.CreateSurvey)
			admin.GET("", surveyHandler.ListSurveys)
			admin.GET("/due", surveyHandler.DueSurveys)
			admin.POST("/sweep", surveyHandler.SweepDueSurveys)
			admin.GET("/:id", surveyHandler.GetSurvey)
			admin.PUT("/:id", surveyHandler.UpdateSurvey)
			admin.POST("/:id/sections", surveyHandler.AddSection)
			admin.DELETE("/:id/sections/:sectionId", surveyHandler.RemoveSection)
			admin.PUT("/:id/sections/order", surveyHandler.ReorderSections)
			admin.POST("/:id/sections/:sectionId/questions", surveyHandler.AddQuestion)
			admin.DELETE("/:id/sections/:sectionId/questions/:questionId", surveyHandler.RemoveQuestion)
			admin.PUT("/:id/sections/:sectionId/questions/order", surveyHandler.ReorderQuestions)
			admin.POST("/:id/publish", surveyHandler.PublishSurvey)
			admin.POST("/:id/complete", surveyHandler.CompleteSurvey)
			admin.POST("/:id/archive", surveyHandler.ArchiveSurvey)
			admin.GET("/:id/results", statsHandler.GetSurveyResults)
			admin.GET("/:id/questions/:questionId/answers", statsHandler.GetTextAnswers)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Endpoint not found",
			"path":  c.Request.URL.Path,
		})
	})

	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error":  "Method not allowed",
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		})
	})

	return router
}

func setupHealthRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
			"uptime":    time.Since(serverStartTime).String(),
			"version":   appVersion,
			"build": gin.H{
				"time":   buildTime,
				"commit": gitCommit,
			},
		})
	})

	// Kubernetes probes
	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ready": true})
	})
	router.GET("/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"alive": true})
	})

	router.GET("/api", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":        "TeamPulse Survey API",
			"version":     appVersion,
			"description": "Survey engine for the TeamPulse engagement platform",
			"endpoints": gin.H{
				"respondent_api": "/api/v1/surveys/* (requires JWT)",
				"admin_api":      "/api/v1/admin/surveys/* (requires admin)",
				"health":         "/health",
			},
		})
	})
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"guidepost/api/alert"
	"guidepost/api/config"
	"guidepost/api/database"
	"guidepost/api/handlers"
	"guidepost/api/jobs"
	"guidepost/api/middleware"
	"guidepost/api/store"
	"guidepost/api/version"
)

func main() {
	// Load .env file at the very start
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env: %v", err)
	}

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg := config.Load()

	// --- Initialize PostgreSQL Database (feedback, errors, users, counters) ---
	dbClient, err := database.NewPostgresDB()
	if err != nil {
		log.Fatalf("Failed to initialize PostgreSQL database: %v", err)
	}
	defer dbClient.Close()

	// --- Initialize ClickHouse Database (raw event stream) ---
	chClient, err := database.NewClickHouseDB()
	if err != nil {
		log.Fatalf("Failed to initialize ClickHouse database: %v", err)
	}
	defer chClient.Close()

	// --- Initialize Stores ---
	eventStore := store.NewEventStore(chClient)
	feedbackStore := store.NewFeedbackStore(dbClient.DB)
	counterStore := store.NewCounterStore(dbClient.DB)
	userStore := store.NewUserStore(dbClient.DB)
	ga4Store := store.NewGA4Store(dbClient.DB)
	errorLog := store.NewErrorLogStore(dbClient.DB)

	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer schemaCancel()
	for name, ensure := range map[string]func(context.Context) error{
		"raw_events":        eventStore.EnsureSchema,
		"feedback":          feedbackStore.EnsureSchema,
		"counter_snapshots": counterStore.EnsureSchema,
		"operators":         userStore.EnsureSchema,
		"ga4_daily":         ga4Store.EnsureSchema,
		"error_log":         errorLog.EnsureSchema,
	} {
		if err := ensure(schemaCtx); err != nil {
			log.Fatalf("Failed to ensure %s schema: %v", name, err)
		}
	}

	mailer := alert.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom, cfg.AlertEmail)

	// --- Initialize Handlers ---
	authHandlers := handlers.NewAuthHandlers(userStore)
	eventHandlers := handlers.NewEventHandlers(eventStore, feedbackStore, counterStore, mailer, errorLog, cfg.ErrorThreshold)
	statsHandlers := handlers.NewStatsHandlers(eventStore, counterStore, ga4Store)
	feedbackProxy := handlers.NewFeedbackProxy(cfg.FeedbackUpstreamURL)
	versionHandlers := handlers.NewVersionHandlers(version.NewFetcher())

	// --- Scheduled jobs ---
	scheduler := jobs.NewScheduler(errorLog)
	if err := scheduler.Add("0 * * * *", "counters", jobs.NewCounterJob(eventStore, counterStore)); err != nil {
		log.Fatalf("Failed to schedule counter job: %v", err)
	}
	ga4Job := jobs.NewGA4Job(cfg.GA4PropertyID, cfg.GoogleCredentialsFile, ga4Store)
	if err := scheduler.Add("0 9,18 * * *", "ga4", ga4Job); err != nil {
		log.Fatalf("Failed to schedule GA4 job: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	api := r.Group("/api")
	{
		// Authentication Endpoints (no authentication required)
		api.POST("/signup", authHandlers.Signup)
		api.POST("/login", authHandlers.Login)
		api.POST("/logout", authHandlers.Logout)

		// Public intake surface
		api.POST("/events", eventHandlers.HandleEvent)
		api.GET("/events", eventHandlers.HandleEventGet)
		api.Any("/feedback", feedbackProxy.Handle)
		api.GET("/version", versionHandlers.GetLatest)
		api.GET("/version/tools", versionHandlers.ListTools)

		// Protected Routes (require a valid JWT token)
		protected := api.Group("/")
		protected.Use(middleware.AuthRequired())
		{
			statsGroup := protected.Group("/stats")
			{
				statsGroup.GET("/event-counts", statsHandlers.GetEventCountsOverTime)
				statsGroup.GET("/unique-users", statsHandlers.GetUniqueUsersOverTime)
				statsGroup.GET("/average-event-duration", statsHandlers.GetAverageEventDuration)
				statsGroup.GET("/top-pages", statsHandlers.GetTopPages)
				statsGroup.GET("/counters", statsHandlers.GetCounterHistory)
				statsGroup.GET("/ga4", statsHandlers.GetGA4Daily)
			}
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Guidepost API server starting on http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Guidepost API server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}

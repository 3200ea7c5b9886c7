package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/sparks-care/sparks-api/internal/config"
	"github.com/sparks-care/sparks-api/internal/database"
	"github.com/sparks-care/sparks-api/internal/handlers"
	"github.com/sparks-care/sparks-api/internal/logger"
	"github.com/sparks-care/sparks-api/internal/middleware"
	"github.com/sparks-care/sparks-api/internal/payhere"
	"github.com/sparks-care/sparks-api/internal/services"
	"github.com/sparks-care/sparks-api/internal/storage"
	"github.com/sparks-care/sparks-api/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	appLog := logger.New(cfg.RollbarToken, cfg.Env)
	if rl, ok := appLog.(*logger.RollbarLogger); ok {
		defer rl.Close()
	}
	log.Printf("API_PORT: %s", cfg.Port)
	log.Printf("ENV: %s", cfg.Env)

	utils.SetJWTSecret(cfg.JWTSecret, cfg.JWTTTL)
	utils.RegisterValidators()

	// --- Database Connection ---
	db, err := database.Open(cfg.DatabaseURL, !cfg.IsProduction())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)
	log.Println("Successfully connected to the database!")

	ctx := context.Background()
	mongoClient, mongoDB, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	var messages services.MessageStore
	if mongoClient != nil {
		defer mongoClient.Disconnect(context.Background())
		store := services.NewMongoMessageStore(mongoDB)
		if err := store.EnsureIndexes(ctx); err != nil {
			appLog.Warn("message indexes", err)
		}
		messages = store
		log.Println("Successfully connected to MongoDB!")
	} else {
		log.Println("MONGO_URI is NOT SET; messaging is disabled.")
	}

	// --- Initialize Services ---
	notificationSvc := services.NewNotificationService(db, services.NewBroadcaster(), appLog)
	if cfg.SendgridAPIKey != "" {
		notificationSvc.SetMailer(services.NewSendgridMailer(cfg.SendgridAPIKey, cfg.MailFrom, cfg.MailFromName))
	}
	if cfg.TextbeltAPIKey != "" {
		notificationSvc.SetSMS(services.NewTextbeltSMS(cfg.TextbeltAPIKey))
	}
	if cfg.FirebaseCredentialsFile != "" {
		pusher, err := services.NewFCMPusher(ctx, cfg.FirebaseCredentialsFile)
		if err != nil {
			appLog.Warn("push notifications disabled", err)
		} else {
			notificationSvc.SetPusher(pusher)
		}
	}
	defer notificationSvc.Wait()

	var provider services.MeetingProvider
	if cfg.GoogleCredentialsFile != "" {
		meet, err := services.NewGoogleMeetProvider(ctx, cfg.GoogleCredentialsFile, cfg.GoogleCalendarID)
		if err != nil {
			appLog.Warn("Google Meet disabled, using fallback links", err)
		} else {
			provider = meet
		}
	}
	meetings := services.NewMeetingService(provider, cfg.FallbackMeetingBase, appLog)
	payments := services.NewPaymentReconciler(db, cfg.PayHere.MerchantID, cfg.PayHere.MerchantSecret, meetings, notificationSvc, appLog)

	reminders := services.NewReminderService(db, notificationSvc, appLog, cfg.ReminderLead)
	scheduler, err := reminders.Start(cfg.ReminderInterval)
	if err != nil {
		log.Fatalf("Failed to start reminders: %v", err)
	}
	defer scheduler.Stop()

	// --- Initialize Handlers with DB and Services ---
	h := handlers.NewHandler(db, notificationSvc, payments, appLog)
	h.Reminders = reminders
	h.Messages = messages
	h.Storage = storage.NewLocal(cfg.UploadDir, "/uploads")
	h.Currency = cfg.PayHere.Currency
	h.Merchant = payhere.Merchant{
		MerchantID: cfg.PayHere.MerchantID,
		Secret:     cfg.PayHere.MerchantSecret,
		Sandbox:    cfg.PayHere.Sandbox,
		ReturnURL:  cfg.PayHere.ReturnURL,
		CancelURL:  cfg.PayHere.CancelURL,
		NotifyURL:  cfg.PayHere.NotifyURL,
	}

	// --- Gin Router ---
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// ---  Middleware ---
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
	}))
	r.Use(gzip.Gzip(gzip.BestSpeed, gzip.WithExcludedPaths([]string{"/api/notifications/stream", "/uploads"})))

	limiter := middleware.NewRateLimiter(cfg.LoginRate, cfg.LoginBurst)
	defer limiter.Stop()

	// --- Routes ---
	h.Register(r, limiter)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// --- Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("%v: Start shutdown...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("could not stop server gracefully", err)
		_ = srv.Close()
	}
}

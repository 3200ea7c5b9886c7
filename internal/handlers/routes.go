package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/sparks-care/sparks-api/internal/middleware"
	"github.com/sparks-care/sparks-api/internal/models"
)

// Register mounts every route on r. limiter guards login, registration and
// donations; it may be nil in tests. The PayHere notify URL is left out:
// deliveries come from a few gateway addresses and carry their own signature.
func (h *Handler) Register(r *gin.Engine, limiter *middleware.RateLimiter) {
	var limited gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if limiter != nil {
		limited = middleware.RateLimit(limiter)
	}

	if h.Storage != nil {
		r.Static(h.Storage.BaseURL, h.Storage.Dir)
	}

	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", limited, h.RegisterUser)
		authRoutes.POST("/login", limited, h.Login)
	}

	public := r.Group("/api")
	{
		public.GET("/therapists", h.ListTherapists)
		public.GET("/blogs", h.ListBlogs)
		public.GET("/blogs/:slug", h.GetBlog)
		public.POST("/payments/notify", h.PayHereNotify)
		public.POST("/donations", limited, h.CreateDonation)
	}

	apiRoutes := r.Group("/api")
	apiRoutes.Use(middleware.AuthMiddleware(h.DB))
	{
		apiRoutes.GET("/me", h.GetCurrentUser)
		apiRoutes.PUT("/me", h.UpdateCurrentUser)
		apiRoutes.POST("/devices", h.RegisterDevice)

		apiRoutes.GET("/sessions", h.GetSessions)
		apiRoutes.PATCH("/sessions/:id/cancel", h.CancelSession)
		apiRoutes.GET("/payments", h.MyPayments)
		apiRoutes.GET("/payments/:orderId", h.PaymentStatus)

		apiRoutes.GET("/notifications", h.GetNotifications)
		apiRoutes.GET("/notifications/stream", h.NotificationStream)
		apiRoutes.PATCH("/notifications/read-all", h.MarkAllNotificationsRead)
		apiRoutes.PATCH("/notifications/:id/read", h.MarkNotificationRead)

		apiRoutes.POST("/messages", h.SendMessage)
		apiRoutes.GET("/messages/unread", h.UnreadMessages)
		apiRoutes.GET("/messages/:userId", h.GetThread)

		apiRoutes.POST("/support/tickets", h.CreateTicket)
		apiRoutes.GET("/support/tickets", h.MyTickets)
	}

	booking := apiRoutes.Group("", middleware.RequireRoles(models.RolePatient, models.RoleGuardian))
	{
		booking.POST("/payments/checkout", h.Checkout)
		booking.GET("/patient/medications", h.PatientMedications)
		booking.POST("/patient/medications/:id/logs", h.LogMedication)
		booking.GET("/patient/medications/:id/logs", h.MedicationLogs)
	}

	parent := apiRoutes.Group("/parent", middleware.RequireRoles(models.RoleGuardian))
	{
		parent.GET("/children", h.ParentChildren)
		parent.POST("/children", h.CreateChild)
		parent.GET("/children/:id/sessions", h.ChildSessions)
	}

	therapist := apiRoutes.Group("/therapist", middleware.RequireRoles(models.RoleTherapist))
	{
		therapist.GET("/patients", h.TherapistPatients)
		therapist.PATCH("/sessions/:id/complete", h.CompleteSession)
		therapist.PUT("/profile", h.UpdateTherapistProfile)
		therapist.POST("/patients/:id/medications", h.PrescribeMedication)
		therapist.PUT("/medications/:id", h.UpdateMedication)
		therapist.DELETE("/medications/:id", h.DeactivateMedication)
	}

	authors := apiRoutes.Group("/blogs", middleware.RequireRoles(models.RoleTherapist, models.RoleManager, models.RoleAdmin))
	{
		authors.GET("/mine", h.MyBlogs)
		authors.POST("", h.CreateBlog)
		authors.PUT("/:id", h.UpdateBlog)
		authors.DELETE("/:id", h.DeleteBlog)
		authors.POST("/:id/cover", h.UploadBlogCover)
	}

	staff := apiRoutes.Group("/admin", middleware.RequireRoles(models.RoleAdmin, models.RoleManager))
	{
		staff.GET("/users", h.AdminUsers)
		staff.GET("/payments", h.AdminPayments)
		staff.POST("/payments/:id/session", h.BookPaidSession)
		staff.GET("/sessions", h.AdminSessions)
		staff.GET("/donations", h.AdminDonations)
		staff.GET("/stats", h.AdminStats)
		staff.GET("/tickets", h.AdminTickets)
		staff.PATCH("/tickets/:id", h.UpdateTicket)

		staff.GET("/export/payments.csv", h.ExportPaymentsCSV)
		staff.GET("/export/payments.xlsx", h.ExportPaymentsXLSX)
		staff.GET("/export/sessions.csv", h.ExportSessionsCSV)
		staff.GET("/export/donations.csv", h.ExportDonationsCSV)
	}

	admin := apiRoutes.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	{
		admin.PATCH("/users/:id/status", h.SetUserStatus)
		admin.PATCH("/therapists/:id/approve", h.ApproveTherapist)
	}
}

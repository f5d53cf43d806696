package routes

import (
	"net/http"
	"time"

	"merchantcrm/internal/alerts"
	"merchantcrm/internal/auth"
	"merchantcrm/internal/config"
	"merchantcrm/internal/controllers"
	"merchantcrm/internal/dashboard"
	"merchantcrm/internal/db"
	"merchantcrm/internal/forms"
	"merchantcrm/internal/metrics"
	"merchantcrm/internal/middleware"
	"merchantcrm/internal/models"
	"merchantcrm/internal/tasks"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the collaborators the router wires into controllers.
type Deps struct {
	DB        *gorm.DB
	Config    *config.Config
	Logger    *zap.Logger
	Queue     tasks.Enqueuer
	Metrics   *metrics.Metrics
	Extractor forms.FieldExtractor
	Labeler   forms.Labeler
	// Now overrides the clock of every service; tests pin it.
	Now func() time.Time
}

// SetupRouter initializes all services, controllers, and API routes
func SetupRouter(deps Deps) *gin.Engine {
	cfg := deps.Config
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Extractor == nil {
		deps.Extractor = forms.PDFExtractor{}
	}
	if deps.Labeler == nil {
		deps.Labeler = forms.NewSuggestingLabeler(nil, deps.Logger)
	}

	authService := auth.NewService(deps.DB, auth.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL), deps.Queue, deps.Logger, auth.OptionsFromConfig(cfg)).WithClock(now)
	notifier := alerts.NewNotifier(deps.DB, deps.Queue, deps.Logger).WithClock(now)
	wizard := forms.NewWizard(deps.DB).WithClock(now)
	dashboards := dashboard.NewService(deps.DB, dashboard.DefaultRegistry()).WithClock(now)

	authController := controllers.AuthController{Auth: authService, Metrics: deps.Metrics, Logger: deps.Logger, CookieSecure: cfg.CookieSecure, SessionTTL: cfg.SessionTTL}
	userController := controllers.UserController{DB: deps.DB, Auth: authService, Logger: deps.Logger}
	agentController := controllers.AgentController{DB: deps.DB, Logger: deps.Logger}
	acquirerController := controllers.AcquirerController{DB: deps.DB, Logger: deps.Logger}
	campaignController := controllers.CampaignController{DB: deps.DB, Logger: deps.Logger, Now: now}
	prospectController := controllers.ProspectController{DB: deps.DB, Alerts: notifier, Logger: deps.Logger, UploadMaxBytes: cfg.UploadMaxBytes}
	merchantController := controllers.MerchantController{DB: deps.DB, Alerts: notifier, Logger: deps.Logger}
	locationController := controllers.LocationController{DB: deps.DB, Logger: deps.Logger}
	pdfFormController := controllers.PdfFormController{DB: deps.DB, Wizard: wizard, Extractor: deps.Extractor, Labeler: deps.Labeler, Logger: deps.Logger, UploadMaxBytes: cfg.UploadMaxBytes}
	submissionController := controllers.SubmissionController{DB: deps.DB, Wizard: wizard, Alerts: notifier, Metrics: deps.Metrics, Logger: deps.Logger}
	dashboardController := controllers.DashboardController{Dashboard: dashboards, Logger: deps.Logger}
	alertController := controllers.AlertController{DB: deps.DB, Alerts: notifier, Logger: deps.Logger}

	router := gin.New()
	router.MaxMultipartMemory = cfg.UploadMaxBytes
	// ClientIP only honours forwarding headers from configured proxies.
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		deps.Logger.Error("invalid trusted proxies, forwarding headers ignored", zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(middleware.Recovery(deps.Logger), middleware.RequestLogger(deps.Logger), middleware.Metrics(deps.Metrics))
	if len(cfg.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.CORSOrigins
		corsConfig.AllowCredentials = true
		corsConfig.AddAllowHeaders("Authorization")
		router.Use(cors.New(corsConfig))
	}

	// Health check pings the database
	router.GET("/health", func(c *gin.Context) {
		if err := db.Ping(deps.DB); err != nil {
			deps.Logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "status": "DOWN"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "status": "UP"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{})))

	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleAgent)
	limiter := middleware.NewRateLimiter(cfg.AuthRatePerSecond, cfg.AuthRateBurst)

	api := router.Group("/api")
	{
		// Public auth endpoints, rate limited per client IP
		public := api.Group("/auth", limiter.Handler())
		{
			public.POST("/login", authController.Login)
			public.POST("/verify-2fa", authController.VerifyTwoFactor)
			public.POST("/resend-2fa", authController.ResendTwoFactor)
			public.POST("/forgot-password", authController.ForgotPassword)
			public.POST("/reset-password", authController.ResetPassword)
		}

		secured := api.Group("", middleware.SessionAuth(authService, deps.Logger))

		session := secured.Group("/auth")
		{
			session.GET("/me", authController.Me)
			session.POST("/logout", authController.Logout)
			session.POST("/change-password", authController.ChangePassword)
		}

		users := secured.Group("/users", admin)
		{
			users.GET("", userController.List)
			users.POST("", userController.Create)
			users.GET("/:id", userController.Get)
			users.PUT("/:id", userController.Update)
			users.DELETE("/:id", userController.Delete)
			users.POST("/:id/unlock", userController.Unlock)
		}

		agents := secured.Group("/agents", staff)
		{
			agents.GET("", agentController.List)
			agents.GET("/:id", agentController.Get)
			agents.POST("", admin, agentController.Create)
			agents.PUT("/:id", admin, agentController.Update)
			agents.DELETE("/:id", admin, agentController.Delete)
		}

		acquirers := secured.Group("/acquirers")
		{
			acquirers.GET("", acquirerController.List)
			acquirers.GET("/:id", acquirerController.Get)
			acquirers.POST("", admin, acquirerController.Create)
			acquirers.PUT("/:id", admin, acquirerController.Update)
			acquirers.DELETE("/:id", admin, acquirerController.Delete)
		}

		campaigns := secured.Group("/campaigns")
		{
			campaigns.GET("", campaignController.List)
			campaigns.GET("/active", campaignController.Active)
			campaigns.GET("/:id", campaignController.Get)
			campaigns.POST("", admin, campaignController.Create)
			campaigns.PUT("/:id", admin, campaignController.Update)
			campaigns.DELETE("/:id", admin, campaignController.Delete)
		}

		prospects := secured.Group("/prospects", staff)
		{
			prospects.GET("", prospectController.List)
			prospects.POST("", prospectController.Create)
			prospects.POST("/import", prospectController.Import)
			prospects.GET("/:id", prospectController.Get)
			prospects.PUT("/:id", prospectController.Update)
			prospects.DELETE("/:id", prospectController.Delete)
			prospects.POST("/:id/convert", prospectController.Convert)
		}

		merchants := secured.Group("/merchants")
		{
			merchants.GET("", merchantController.List)
			merchants.GET("/export", staff, merchantController.Export)
			merchants.POST("", staff, merchantController.Create)
			merchants.GET("/:id", merchantController.Get)
			merchants.PUT("/:id", staff, merchantController.Update)
			merchants.DELETE("/:id", admin, merchantController.Delete)
			merchants.POST("/:id/status", admin, merchantController.ChangeStatus)
			merchants.GET("/:id/locations", locationController.List)
			merchants.POST("/:id/locations", staff, locationController.Create)
		}

		locations := secured.Group("/locations")
		{
			locations.GET("/:id", locationController.Get)
			locations.PUT("/:id", staff, locationController.Update)
			locations.DELETE("/:id", staff, locationController.Delete)
			locations.PUT("/:id/mid", admin, locationController.AssignMID)
		}

		pdfForms := secured.Group("/pdf-forms")
		{
			pdfForms.GET("", pdfFormController.List)
			pdfForms.POST("", admin, pdfFormController.Upload)
			pdfForms.GET("/:id", pdfFormController.Get)
			pdfForms.PUT("/:id", admin, pdfFormController.Update)
			pdfForms.DELETE("/:id", admin, pdfFormController.Delete)
			pdfForms.GET("/:id/file", pdfFormController.File)
			pdfForms.PUT("/:id/fields", admin, pdfFormController.UpdateFields)
			pdfForms.GET("/:id/wizard", pdfFormController.Wizard)
			pdfForms.POST("/:id/submissions", submissionController.Start)
		}

		submissions := secured.Group("/submissions")
		{
			submissions.GET("", submissionController.List)
			submissions.GET("/:id", submissionController.Get)
			submissions.PATCH("/:id/autosave", submissionController.AutoSave)
			submissions.POST("/:id/step", submissionController.Step)
			submissions.POST("/:id/submit", submissionController.Submit)
			submissions.POST("/:id/review", admin, submissionController.Review)
			submissions.DELETE("/:id", submissionController.Delete)
		}

		widgets := secured.Group("/dashboard/widgets")
		{
			widgets.GET("", dashboardController.Widgets)
			widgets.PUT("", dashboardController.SaveWidgets)
			widgets.GET("/:key", dashboardController.WidgetData)
		}

		alertRoutes := secured.Group("/alerts")
		{
			alertRoutes.GET("", alertController.List)
			alertRoutes.POST("", admin, alertController.Create)
			alertRoutes.POST("/read-all", alertController.ReadAll)
			alertRoutes.POST("/:id/read", alertController.Read)
			alertRoutes.DELETE("/:id", admin, alertController.Delete)
		}
	}

	return router
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"qrfeedback/internal/config"
	"qrfeedback/internal/middleware"
	"qrfeedback/internal/observability"
	"qrfeedback/internal/services"
	"qrfeedback/internal/version"
)

// NewRouter creates the Gin engine with all middleware and routes wired up.
func NewRouter(
	cfg *config.Config,
	locationService *services.LocationService,
	feedbackService *services.FeedbackService,
	staffService *services.StaffService,
	notifyService *services.NotificationService,
	logger *observability.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Add HTTP request logging middleware using our observability logger
	router.Use(func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		fields := map[string]interface{}{
			"http.method":      c.Request.Method,
			"http.path":        c.Request.URL.Path,
			"http.status_code": statusCode,
			"http.latency_ms":  latency.Milliseconds(),
			"http.client_ip":   c.ClientIP(),
			"http.user_agent":  c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			fields["http.error"] = c.Errors.String()
		}

		if statusCode >= 500 {
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		} else if statusCode >= 400 {
			logger.Warn(c.Request.Context(), "HTTP request warning", fields)
		} else {
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	})

	// Health check endpoint (defined before any middleware)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "qrfeedback",
			"version": version.Version,
		})
	})

	// Add OpenTelemetry middleware for HTTP tracing and context propagation with automatic error attributes
	router.Use(observability.GinMiddlewareWithErrorHandling("qrfeedback"))

	// Disable automatic redirection for trailing slashes, which is better for APIs
	router.RedirectTrailingSlash = false

	// Setup CORS middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Setup session middleware
	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	sessionOpts := sessions.Options{
		Path:     config.SessionPath,
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		HttpOnly: config.SessionHTTPOnly,
		Secure:   config.SessionSecure,
	}
	if cfg.Server.Debug {
		sessionOpts.SameSite = http.SameSiteDefaultMode
	} else {
		sessionOpts.SameSite = http.SameSiteLaxMode
		sessionOpts.Secure = true
	}
	store.Options(sessionOpts)
	router.Use(sessions.Sessions(config.SessionName, store))

	// Setup Gin mode
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}

	// Security middleware
	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	// HTML templates for the public form and dashboards
	router.SetHTMLTemplate(LoadTemplates())

	// QR images are served from the artifact directory
	router.Static("/static/qrcodes", cfg.QR.Dir)

	// Initialize handlers
	feedbackHandler := NewFeedbackHandler(locationService, feedbackService, notifyService, cfg, logger)
	adminHandler := NewAdminHandler(locationService, feedbackService, staffService, cfg, logger)
	staffHandler := NewStaffHandler(staffService, feedbackService, cfg, logger)

	// Public surface
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/admin")
	})
	router.GET("/feedback", feedbackHandler.GetFeedbackPage)
	router.POST("/api/feedback", middleware.ValidateFeedbackSubmission(logger), feedbackHandler.SubmitFeedback)

	// Admin surface
	router.GET("/admin", adminHandler.GetAdminPage)
	router.POST("/admin/login", adminHandler.Login)
	router.POST("/admin/logout", adminHandler.Logout)

	adminOnly := router.Group("", middleware.RequireAdmin())
	{
		adminOnly.GET("/api/unresolved", adminHandler.ListUnresolved)
		adminOnly.GET("/api/locations", adminHandler.ListLocations)
		adminOnly.POST("/admin/locations/add", adminHandler.AddLocation)
		adminOnly.POST("/admin/locations/delete", adminHandler.DeleteLocation)
		adminOnly.POST("/admin/staff/add", adminHandler.AddStaff)
		adminOnly.POST("/admin/staff/delete", adminHandler.DeleteStaff)
		adminOnly.GET("/api/staff", adminHandler.ListStaff)
	}

	// Resolve is shared: admins resolve anything, staff only their floors.
	router.POST("/admin/resolve", middleware.RequireStaff(staffService), adminHandler.Resolve)

	// Staff surface
	router.GET("/staff/login", staffHandler.GetLoginPage)
	router.POST("/staff/login", staffHandler.Login)
	router.POST("/staff/logout", staffHandler.Logout)

	staffOnly := router.Group("", middleware.RequireStaff(staffService))
	{
		staffOnly.GET("/staff", staffHandler.GetDashboard)
		staffOnly.GET("/staff/api/unresolved", staffHandler.ListUnresolved)
	}

	return router
}

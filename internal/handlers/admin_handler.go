package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"qrfeedback/internal/config"
	"qrfeedback/internal/middleware"
	"qrfeedback/internal/models"
	"qrfeedback/internal/observability"
	"qrfeedback/internal/services"
	contextutils "qrfeedback/internal/utils"
)

// AdminHandler serves the facility manager surface: the dashboard, location
// and staff management, and report resolution.
type AdminHandler struct {
	locationService *services.LocationService
	feedbackService *services.FeedbackService
	staffService    *services.StaffService
	cfg             *config.Config
	logger          *observability.Logger
}

// NewAdminHandler creates a new AdminHandler instance.
func NewAdminHandler(
	locationService *services.LocationService,
	feedbackService *services.FeedbackService,
	staffService *services.StaffService,
	cfg *config.Config,
	logger *observability.Logger,
) *AdminHandler {
	return &AdminHandler{
		locationService: locationService,
		feedbackService: feedbackService,
		staffService:    staffService,
		cfg:             cfg,
		logger:          logger,
	}
}

// loginRequest is shared by the admin and staff login endpoints.
type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

func bindLogin(c *gin.Context) (loginRequest, error) {
	var req loginRequest
	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&req); err != nil {
			return req, err
		}
		return req, nil
	}
	req.Username = c.PostForm("username")
	req.Password = c.PostForm("password")
	return req, nil
}

// GetAdminPage renders the dashboard for a logged-in admin, the login form
// otherwise.
func (h *AdminHandler) GetAdminPage(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_admin_page")
	defer observability.FinishSpan(span, nil)

	session := sessions.Default(c)
	if isAdmin, ok := session.Get(middleware.IsAdminKey).(bool); ok && isAdmin {
		c.HTML(http.StatusOK, "admin.html", gin.H{
			"username": session.Get(middleware.UsernameKey),
		})
		return
	}
	c.HTML(http.StatusOK, "login.html", gin.H{"action": "/admin/login"})
}

// Login authenticates against the configured admin credential pair.
func (h *AdminHandler) Login(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_login")
	defer observability.FinishSpan(span, nil)

	req, err := bindLogin(c)
	if err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request body",
			"",
			err,
		))
		return
	}
	span.SetAttributes(attribute.String("auth.username", req.Username))

	usernameOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.cfg.Server.AdminUsername)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.Server.AdminPassword)) == 1
	if !usernameOK || !passwordOK {
		h.logger.Warn(c.Request.Context(), "Admin login failed", map[string]interface{}{
			"username": req.Username,
		})
		HandleAppError(c, contextutils.ErrInvalidCredentials)
		return
	}

	session := sessions.Default(c)
	// Drop any prior identity so an earlier staff login cannot linger
	// alongside the admin flag.
	session.Clear()
	session.Set(middleware.IsAdminKey, true)
	session.Set(middleware.UsernameKey, req.Username)
	if err := session.Save(); err != nil {
		h.logger.Error(c.Request.Context(), "Failed to save admin session", err)
		HandleAppError(c, contextutils.WrapError(err, "failed to save session"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "redirect": "/admin"})
}

// Logout clears the admin session.
func (h *AdminHandler) Logout(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_logout")
	defer observability.FinishSpan(span, nil)

	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		h.logger.Error(c.Request.Context(), "Failed to clear admin session", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListUnresolved returns all unresolved reports for the admin dashboard.
func (h *AdminHandler) ListUnresolved(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_list_unresolved")
	defer observability.FinishSpan(span, nil)

	list, err := h.feedbackService.ListUnresolved(c.Request.Context(), nil)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedbacks": list})
}

type resolveRequest struct {
	ID int `json:"id" form:"id" binding:"required"`
}

// Resolve marks a report handled.
func (h *AdminHandler) Resolve(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_resolve")
	defer observability.FinishSpan(span, nil)

	var req resolveRequest
	if err := c.ShouldBind(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Feedback ID is required",
			"",
			err,
		))
		return
	}
	if req.ID < 0 {
		HandleValidationError(c, "id", req.ID, "must be a positive feedback id")
		return
	}
	span.SetAttributes(observability.AttributeFeedbackID(req.ID))

	who, _ := middleware.IdentityFromContext(c)
	if err := h.feedbackService.ResolveFeedback(c.Request.Context(), req.ID, who); err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListLocations returns every registered location with its feedback URL.
func (h *AdminHandler) ListLocations(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_list_locations")
	defer observability.FinishSpan(span, nil)

	list, err := h.locationService.ListLocations(c.Request.Context())
	if err != nil {
		HandleAppError(c, err)
		return
	}

	out := make([]gin.H, 0, len(list))
	for _, loc := range list {
		out = append(out, gin.H{
			"location": loc,
			"qr_url":   h.cfg.PublicFeedbackURL(loc.Code),
		})
	}
	c.JSON(http.StatusOK, gin.H{"locations": out})
}

type addLocationRequest struct {
	Code     string `json:"code" form:"code"`
	Name     string `json:"name" form:"name"`
	Category string `json:"category" form:"category"`
	Floor    *int64 `json:"floor" form:"floor"`
}

// AddLocation registers a new location.
func (h *AdminHandler) AddLocation(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_add_location")
	defer observability.FinishSpan(span, nil)

	var req addLocationRequest
	if err := c.ShouldBind(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request body",
			"",
			err,
		))
		return
	}
	span.SetAttributes(observability.AttributeLocationCode(req.Code))

	loc, err := h.locationService.CreateLocation(c.Request.Context(), req.Code, req.Name, req.Category, req.Floor)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"location": loc,
		"qr_url":   h.cfg.PublicFeedbackURL(loc.Code),
	})
}

type deleteLocationRequest struct {
	Code string `json:"code" form:"code" binding:"required"`
}

// DeleteLocation removes a location and its reports.
func (h *AdminHandler) DeleteLocation(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_delete_location")
	defer observability.FinishSpan(span, nil)

	var req deleteLocationRequest
	if err := c.ShouldBind(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Location code is required",
			"",
			err,
		))
		return
	}
	span.SetAttributes(observability.AttributeLocationCode(req.Code))

	if err := h.locationService.DeleteLocation(c.Request.Context(), req.Code); err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type addStaffRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	Floors   []int  `json:"floors" form:"floors"`
}

// AddStaff registers a staff account with floor assignments.
func (h *AdminHandler) AddStaff(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_add_staff")
	defer observability.FinishSpan(span, nil)

	var req addStaffRequest
	if err := c.ShouldBind(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request body",
			"",
			err,
		))
		return
	}
	span.SetAttributes(
		attribute.String("staff.username", req.Username),
		attribute.Int("staff.floor_count", len(req.Floors)),
	)

	user, err := h.staffService.CreateStaff(c.Request.Context(), req.Username, req.Password, req.Floors)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "user": user})
}

type deleteStaffRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
}

// DeleteStaff removes a staff account.
func (h *AdminHandler) DeleteStaff(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_delete_staff")
	defer observability.FinishSpan(span, nil)

	var req deleteStaffRequest
	if err := c.ShouldBind(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Username is required",
			"",
			err,
		))
		return
	}
	span.SetAttributes(attribute.String("staff.username", req.Username))

	if err := h.staffService.DeleteStaff(c.Request.Context(), req.Username); err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListStaff returns all staff accounts with their floor sets.
func (h *AdminHandler) ListStaff(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_list_staff")
	defer observability.FinishSpan(span, nil)

	list, err := h.staffService.ListStaff(c.Request.Context())
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if list == nil {
		list = []models.StaffUser{}
	}
	c.JSON(http.StatusOK, gin.H{"staff": list})
}

package handlers

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"qrfeedback/internal/config"
	"qrfeedback/internal/middleware"
	"qrfeedback/internal/observability"
	"qrfeedback/internal/services"
	contextutils "qrfeedback/internal/utils"
)

// StaffHandler serves the floor staff surface: login, the scoped dashboard
// and the scoped unresolved listing.
type StaffHandler struct {
	staffService    *services.StaffService
	feedbackService *services.FeedbackService
	cfg             *config.Config
	logger          *observability.Logger
}

// NewStaffHandler creates a new StaffHandler instance.
func NewStaffHandler(
	staffService *services.StaffService,
	feedbackService *services.FeedbackService,
	cfg *config.Config,
	logger *observability.Logger,
) *StaffHandler {
	return &StaffHandler{
		staffService:    staffService,
		feedbackService: feedbackService,
		cfg:             cfg,
		logger:          logger,
	}
}

// GetLoginPage renders the staff login form.
func (h *StaffHandler) GetLoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", gin.H{"action": "/staff/login"})
}

// Login authenticates a staff account against the database.
func (h *StaffHandler) Login(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "staff_login")
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

	user, err := h.staffService.AuthenticateStaff(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Warn(c.Request.Context(), "Staff login failed", map[string]interface{}{
			"username": req.Username,
		})
		HandleAppError(c, contextutils.ErrInvalidCredentials)
		return
	}
	span.SetAttributes(observability.AttributeUserID(user.ID))

	session := sessions.Default(c)
	// Drop any prior identity so an earlier admin login cannot outrank
	// this staff account's floor scope.
	session.Clear()
	session.Set(middleware.UserIDKey, user.ID)
	session.Set(middleware.UsernameKey, user.Username)
	if err := session.Save(); err != nil {
		h.logger.Error(c.Request.Context(), "Failed to save staff session", err)
		HandleAppError(c, contextutils.WrapError(err, "failed to save session"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "redirect": "/staff", "floors": user.Floors})
}

// Logout clears the staff session.
func (h *StaffHandler) Logout(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "staff_logout")
	defer observability.FinishSpan(span, nil)

	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		h.logger.Error(c.Request.Context(), "Failed to clear staff session", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetDashboard renders the staff dashboard scoped to the caller's floors.
func (h *StaffHandler) GetDashboard(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "staff_dashboard")
	defer observability.FinishSpan(span, nil)

	who, ok := middleware.IdentityFromContext(c)
	if !ok {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	c.HTML(http.StatusOK, "staff.html", gin.H{
		"username": who.Username,
		"floors":   who.Floors,
		"is_admin": who.IsAdmin,
	})
}

// ListUnresolved returns unresolved reports on the caller's floors. An
// account with no assigned floors gets an empty list.
func (h *StaffHandler) ListUnresolved(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "staff_list_unresolved")
	defer observability.FinishSpan(span, nil)

	who, ok := middleware.IdentityFromContext(c)
	if !ok {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	floors := who.Floors
	if who.IsAdmin {
		floors = nil
	} else if floors == nil {
		floors = []int{}
	}
	span.SetAttributes(attribute.Int("staff.floor_count", len(floors)))

	list, err := h.feedbackService.ListUnresolved(c.Request.Context(), floors)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedbacks": list, "floors": who.Floors})
}

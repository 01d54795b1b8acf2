package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"qrfeedback/internal/config"
	"qrfeedback/internal/models"
	"qrfeedback/internal/observability"
	"qrfeedback/internal/services"
	contextutils "qrfeedback/internal/utils"
)

// FeedbackHandler serves the public visitor surface: the QR landing page and
// the submission API.
type FeedbackHandler struct {
	locationService *services.LocationService
	feedbackService *services.FeedbackService
	notifyService   *services.NotificationService
	cfg             *config.Config
	logger          *observability.Logger
}

// NewFeedbackHandler creates a new FeedbackHandler instance.
func NewFeedbackHandler(
	locationService *services.LocationService,
	feedbackService *services.FeedbackService,
	notifyService *services.NotificationService,
	cfg *config.Config,
	logger *observability.Logger,
) *FeedbackHandler {
	return &FeedbackHandler{
		locationService: locationService,
		feedbackService: feedbackService,
		notifyService:   notifyService,
		cfg:             cfg,
		logger:          logger,
	}
}

// GetFeedbackPage renders the visitor form for the location in the loc query
// parameter.
func (h *FeedbackHandler) GetFeedbackPage(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_feedback_page")
	defer observability.FinishSpan(span, nil)

	code := strings.TrimSpace(c.Query("loc"))
	if code == "" {
		c.HTML(http.StatusBadRequest, "feedback_error.html", gin.H{
			"message": "Eksik konum kodu",
		})
		return
	}
	span.SetAttributes(observability.AttributeLocationCode(code))

	loc, err := h.locationService.GetLocationByCode(c.Request.Context(), code)
	if err != nil {
		if contextutils.IsError(err, contextutils.ErrRecordNotFound) {
			c.HTML(http.StatusNotFound, "feedback_error.html", gin.H{
				"message": "Konum bulunamadı",
			})
			return
		}
		h.logger.Error(c.Request.Context(), "Failed to load location for feedback page", err)
		c.HTML(http.StatusInternalServerError, "feedback_error.html", gin.H{
			"message": "Bir hata oluştu",
		})
		return
	}

	c.HTML(http.StatusOK, "feedback.html", gin.H{
		"location": loc,
		"issues":   h.cfg.OptionsForCategory(loc.Category),
	})
}

// feedbackRequest is the decoded submission body. The location code may
// arrive under three field names depending on the client; Issues is kept raw
// because clients send it as a JSON array, a JSON-encoded string, or a single
// value.
type feedbackRequest struct {
	Loc          string          `json:"loc" form:"loc"`
	Location     string          `json:"location" form:"location"`
	LocationCode string          `json:"location_code" form:"location_code"`
	Issues       json.RawMessage `json:"issues"`
	Note         string          `json:"note" form:"note"`
}

// locationCode returns the first non-empty location field.
func (r feedbackRequest) locationCode() string {
	for _, candidate := range []string{r.Loc, r.LocationCode, r.Location} {
		if code := strings.TrimSpace(candidate); code != "" {
			return code
		}
	}
	return ""
}

// normalizeIssues flattens the accepted issue encodings into a string slice.
func normalizeIssues(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil {
		return asList
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		asString = strings.TrimSpace(asString)
		if asString == "" {
			return nil
		}
		// A JSON-encoded array hidden inside a string
		if strings.HasPrefix(asString, "[") {
			var nested []string
			if err := json.Unmarshal([]byte(asString), &nested); err == nil {
				return nested
			}
		}
		return []string{asString}
	}

	return nil
}

// normalizeFormIssue decodes a single form issues value. Form clients send
// either a plain issue id or the JSON-encoded array the JS form posts; a
// value that is not valid JSON stands for itself.
func normalizeFormIssue(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if decoded := normalizeIssues(json.RawMessage(value)); decoded != nil {
		return decoded
	}
	return []string{value}
}

// SubmitFeedback accepts a visitor submission as JSON or a form post.
func (h *FeedbackHandler) SubmitFeedback(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "submit_feedback")
	defer observability.FinishSpan(span, nil)

	var req feedbackRequest
	var issues []string
	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleAppError(c, contextutils.NewAppErrorWithCause(
				contextutils.ErrorCodeInvalidInput,
				contextutils.SeverityWarn,
				"Invalid request body",
				"",
				err,
			))
			return
		}
		issues = normalizeIssues(req.Issues)
	} else {
		req.Loc = c.PostForm("loc")
		req.Location = c.PostForm("location")
		req.LocationCode = c.PostForm("location_code")
		req.Note = c.PostForm("note")
		issues = c.PostFormArray("issues")
		if len(issues) == 1 {
			issues = normalizeFormIssue(issues[0])
		}
	}

	code := req.locationCode()
	if code == "" {
		HandleAppError(c, contextutils.NewAppError(
			contextutils.ErrorCodeMissingRequired,
			contextutils.SeverityWarn,
			"Location code is required",
			"",
		))
		return
	}
	span.SetAttributes(
		observability.AttributeLocationCode(code),
		attribute.Int("feedback.issue_count", len(issues)),
	)

	fb, err := h.feedbackService.SubmitFeedback(c.Request.Context(), services.Submission{
		LocationCode: code,
		IssueIDs:     issues,
		Note:         req.Note,
	})
	if err != nil {
		// Unknown codes surface as a client error on the public API; the
		// code value comes from the QR query string, not a resource path.
		if contextutils.IsError(err, contextutils.ErrRecordNotFound) {
			HandleAppError(c, contextutils.NewAppError(
				contextutils.ErrorCodeInvalidInput,
				contextutils.SeverityWarn,
				"Unknown location code",
				code,
			))
			return
		}
		HandleAppError(c, err)
		return
	}

	h.notifyAfterSubmit(c, fb)

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"id":      fb.ID,
		"message": fb.Message,
	})
}

// notifyAfterSubmit fans out best-effort notifications for a stored report.
func (h *FeedbackHandler) notifyAfterSubmit(c *gin.Context, fb *models.Feedback) {
	loc, err := h.locationService.GetLocationByID(c.Request.Context(), fb.LocationID)
	if err != nil {
		h.logger.Warn(c.Request.Context(), "Failed to load location for notification", map[string]interface{}{
			"feedback_id": fb.ID,
			"error":       err.Error(),
		})
		return
	}

	var meta models.FeedbackMeta
	if fb.Meta.Valid {
		if err := json.Unmarshal([]byte(fb.Meta.String), &meta); err != nil {
			h.logger.Warn(c.Request.Context(), "Failed to decode feedback meta for notification", map[string]interface{}{
				"feedback_id": fb.ID,
			})
			return
		}
	}

	h.notifyService.NotifyNewFeedback(c.Request.Context(), loc, meta)
}

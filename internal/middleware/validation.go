package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/xeipuuv/gojsonschema"

	"qrfeedback/internal/observability"
)

// feedbackSubmissionSchema validates the visitor submission body. The
// location code is accepted under three field names for client
// compatibility; the issues field accepts both an array of IDs and a single
// string because plain HTML form posts serialize a lone checkbox as one
// value.
const feedbackSubmissionSchema = `{
	"type": "object",
	"properties": {
		"loc": {"type": "string", "minLength": 1, "maxLength": 64},
		"location": {"type": "string", "minLength": 1, "maxLength": 64},
		"location_code": {"type": "string", "minLength": 1, "maxLength": 64},
		"issues": {
			"oneOf": [
				{"type": "array", "items": {"type": "string"}, "maxItems": 32},
				{"type": "string"}
			]
		},
		"note": {"type": "string", "maxLength": 2000}
	},
	"anyOf": [
		{"required": ["loc"]},
		{"required": ["location"]},
		{"required": ["location_code"]}
	],
	"additionalProperties": false
}`

var (
	feedbackSchemaOnce sync.Once
	feedbackSchema     *gojsonschema.Schema
	feedbackSchemaErr  error
)

func loadFeedbackSchema() (*gojsonschema.Schema, error) {
	feedbackSchemaOnce.Do(func() {
		loader := gojsonschema.NewStringLoader(feedbackSubmissionSchema)
		feedbackSchema, feedbackSchemaErr = gojsonschema.NewSchema(loader)
	})
	return feedbackSchema, feedbackSchemaErr
}

// ValidateFeedbackSubmission checks the JSON body of a visitor submission
// against the schema before the handler binds it. The body is restored for
// the handler to read again.
func ValidateFeedbackSubmission(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Form posts are bound and validated by the handler itself.
		if !strings.HasPrefix(c.ContentType(), "application/json") {
			c.Next()
			return
		}

		ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "validate_feedback_submission")
		defer span.End()

		schema, err := loadFeedbackSchema()
		if err != nil {
			logger.Error(ctx, "Failed to compile feedback submission schema", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Internal server error",
				"code":  "INTERNAL_SERVER_ERROR",
			})
			c.Abort()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Unable to read request body",
				"code":  "INVALID_INPUT",
			})
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Request body must be valid JSON",
				"code":  "INVALID_INPUT",
			})
			c.Abort()
			return
		}
		if !result.Valid() {
			details := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				details = append(details, e.String())
			}
			logger.Debug(ctx, "Feedback submission failed schema validation", map[string]interface{}{
				"errors": details,
			})
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid submission",
				"code":    "INVALID_INPUT",
				"details": details,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrfeedback/internal/config"
	"qrfeedback/internal/observability"
)

func newValidationRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := observability.NewLogger(&config.OpenTelemetryConfig{})

	router := gin.New()
	router.POST("/submit", ValidateFeedbackSubmission(logger), func(c *gin.Context) {
		// Echo the body to prove it survived validation intact.
		body, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		c.String(http.StatusOK, string(body))
	})
	return router
}

func postBody(router *gin.Engine, contentType, body string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/submit", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestValidateFeedbackSubmission(t *testing.T) {
	router := newValidationRouter(t)

	t.Run("valid body passes and is restored", func(t *testing.T) {
		body := `{"loc":"F01-W","issues":["dirty"],"note":"deneme"}`
		recorder := postBody(router, "application/json", body)
		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, body, recorder.Body.String())
	})

	t.Run("issues as a plain string passes", func(t *testing.T) {
		recorder := postBody(router, "application/json", `{"loc":"F01-W","issues":"dirty"}`)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("location_code alias passes", func(t *testing.T) {
		recorder := postBody(router, "application/json", `{"location_code":"F01-W","issues":["dirty"]}`)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("malformed JSON rejected", func(t *testing.T) {
		recorder := postBody(router, "application/json", `{"loc":`)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "INVALID_INPUT")
	})

	t.Run("missing loc rejected", func(t *testing.T) {
		recorder := postBody(router, "application/json", `{"issues":["dirty"]}`)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("unexpected fields rejected", func(t *testing.T) {
		recorder := postBody(router, "application/json", `{"loc":"F01-W","resolved":true}`)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "details")
	})

	t.Run("oversized note rejected", func(t *testing.T) {
		note := strings.Repeat("a", 2001)
		recorder := postBody(router, "application/json", `{"loc":"F01-W","note":"`+note+`"}`)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("form posts are left to the handler", func(t *testing.T) {
		recorder := postBody(router, "application/x-www-form-urlencoded", "loc=F01-W&issues=dirty")
		assert.Equal(t, http.StatusOK, recorder.Code)
	})
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrfeedback/internal/config"
	"qrfeedback/internal/database"
	"qrfeedback/internal/observability"
	"qrfeedback/internal/services"
)

type testEnv struct {
	cfg             *config.Config
	server          *httptest.Server
	locationService *services.LocationService
	feedbackService *services.FeedbackService
	staffService    *services.StaffService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:          "8080",
			AdminUsername: "admin",
			AdminPassword: "secret",
			SessionSecret: "test-secret",
			Debug:         true,
			AppBaseURL:    "http://localhost:8080",
			CORSOrigins:   []string{"http://localhost:8080"},
		},
		Database: config.DatabaseConfig{
			Path:            filepath.Join(dir, "test.db"),
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: config.DatabaseConnMaxLifetime,
		},
		Catalog: config.DefaultCatalog(),
		QR: config.QRConfig{
			Dir:  filepath.Join(dir, "qrcodes"),
			Size: 128,
		},
		IsTest: true,
	}

	logger := observability.NewLogger(&config.OpenTelemetryConfig{})
	dbManager := database.NewManager(logger)
	db, err := dbManager.InitDBWithConfig(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	locationService := services.NewLocationService(db, cfg, logger, nil)
	feedbackService := services.NewFeedbackService(db, cfg, logger)
	staffService := services.NewStaffService(db, logger)
	notifyService := services.NewNotificationService(cfg, logger)

	router := NewRouter(cfg, locationService, feedbackService, staffService, notifyService, logger)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{
		cfg:             cfg,
		server:          server,
		locationService: locationService,
		feedbackService: feedbackService,
		staffService:    staffService,
	}
}

// newClient returns an HTTP client with a cookie jar for session flows.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func postJSON(t *testing.T, client *http.Client, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func getJSON(t *testing.T, client *http.Client, url string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func adminLogin(t *testing.T, env *testEnv, client *http.Client) {
	t.Helper()
	resp, _ := postJSON(t, client, env.server.URL+"/admin/login", map[string]string{
		"username": "admin",
		"password": "secret",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	client := newClient(t)

	resp, body := getJSON(t, client, env.server.URL+"/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "qrfeedback", body["service"])
}

func TestAdminLogin(t *testing.T) {
	env := newTestEnv(t)

	t.Run("wrong credentials rejected", func(t *testing.T) {
		client := newClient(t)
		resp, body := postJSON(t, client, env.server.URL+"/admin/login", map[string]string{
			"username": "admin",
			"password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "INVALID_CREDENTIALS", body["code"])
	})

	t.Run("correct credentials establish a session", func(t *testing.T) {
		client := newClient(t)
		adminLogin(t, env, client)

		resp, _ := getJSON(t, client, env.server.URL+"/api/unresolved")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("logout drops the session", func(t *testing.T) {
		client := newClient(t)
		adminLogin(t, env, client)

		resp, _ := postJSON(t, client, env.server.URL+"/admin/logout", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = getJSON(t, client, env.server.URL+"/api/unresolved")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAdminEndpointsRequireSession(t *testing.T) {
	env := newTestEnv(t)
	client := newClient(t)

	for _, route := range []struct {
		method string
		path   string
	}{
		{"GET", "/api/unresolved"},
		{"GET", "/api/locations"},
		{"GET", "/api/staff"},
		{"POST", "/admin/locations/add"},
		{"POST", "/admin/locations/delete"},
		{"POST", "/admin/staff/add"},
		{"POST", "/admin/staff/delete"},
		{"POST", "/admin/resolve"},
	} {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			var resp *http.Response
			if route.method == "GET" {
				resp, _ = getJSON(t, client, env.server.URL+route.path)
			} else {
				resp, _ = postJSON(t, client, env.server.URL+route.path, map[string]interface{}{})
			}
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestLocationManagement(t *testing.T) {
	env := newTestEnv(t)
	client := newClient(t)
	adminLogin(t, env, client)

	resp, body := postJSON(t, client, env.server.URL+"/admin/locations/add", map[string]interface{}{
		"code":     "F01-W",
		"name":     "1. Kat - Bayan WC",
		"category": "toilet",
		"floor":    1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:8080/feedback?loc=F01-W", body["qr_url"])

	// Duplicate code rejected
	resp, _ = postJSON(t, client, env.server.URL+"/admin/locations/add", map[string]interface{}{
		"code":     "F01-W",
		"name":     "Kopya",
		"category": "toilet",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = getJSON(t, client, env.server.URL+"/api/locations")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	locations, ok := body["locations"].([]interface{})
	require.True(t, ok)
	require.Len(t, locations, 1)

	// Delete and verify
	resp, _ = postJSON(t, client, env.server.URL+"/admin/locations/delete", map[string]interface{}{
		"code": "F01-W",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = getJSON(t, client, env.server.URL+"/api/locations")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["locations"])
}

func TestFeedbackSubmissionFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	floor := int64(1)
	_, err := env.locationService.CreateLocation(ctx, "F01-W", "1. Kat - Bayan WC", "toilet", &floor)
	require.NoError(t, err)

	client := newClient(t)

	t.Run("feedback page renders for a known code", func(t *testing.T) {
		resp, err := client.Get(env.server.URL + "/feedback?loc=F01-W")
		require.NoError(t, err)
		defer func() {
			_ = resp.Body.Close()
		}()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	})

	t.Run("feedback page 404s for unknown code", func(t *testing.T) {
		resp, err := client.Get(env.server.URL + "/feedback?loc=NOPE")
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("JSON submission with issues array", func(t *testing.T) {
		resp, body := postJSON(t, client, env.server.URL+"/api/feedback", map[string]interface{}{
			"loc":    "F01-W",
			"issues": []string{"dirty", "soap_out"},
			"note":   "",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Tuvalet genel temizliği gerekli, Sıvı sabun tükenmiş", body["message"])
	})

	t.Run("JSON submission with issues as encoded string", func(t *testing.T) {
		resp, body := postJSON(t, client, env.server.URL+"/api/feedback", map[string]interface{}{
			"loc":    "F01-W",
			"issues": `["paper_out"]`,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Tuvalet kağıdı bitmiş", body["message"])
	})

	t.Run("form submission with single issue value", func(t *testing.T) {
		form := url.Values{}
		form.Set("loc", "F01-W")
		form.Set("issues", "floor_wet")
		resp, err := client.Post(env.server.URL+"/api/feedback", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
		require.NoError(t, err)
		defer func() {
			_ = resp.Body.Close()
		}()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "Zemin ıslak / kaygan", body["message"])
	})

	t.Run("form submission with JSON-encoded issues array", func(t *testing.T) {
		form := url.Values{}
		form.Set("loc", "F01-W")
		form.Set("issues", `["paper_out"]`)
		resp, err := client.Post(env.server.URL+"/api/feedback", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
		require.NoError(t, err)
		defer func() {
			_ = resp.Body.Close()
		}()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "Tuvalet kağıdı bitmiş", body["message"])
	})

	t.Run("location_code alias accepted", func(t *testing.T) {
		resp, body := postJSON(t, client, env.server.URL+"/api/feedback", map[string]interface{}{
			"location_code": "F01-W",
			"note":          "Musluk damlatıyor",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Musluk damlatıyor", body["message"])
	})

	t.Run("unknown code is a 400 on the API", func(t *testing.T) {
		resp, _ := postJSON(t, client, env.server.URL+"/api/feedback", map[string]interface{}{
			"loc":    "NOPE",
			"issues": []string{"dirty"},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("empty submission is a 400", func(t *testing.T) {
		resp, _ := postJSON(t, client, env.server.URL+"/api/feedback", map[string]interface{}{
			"loc": "F01-W",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("schema rejects unexpected fields", func(t *testing.T) {
		resp, _ := postJSON(t, client, env.server.URL+"/api/feedback", map[string]interface{}{
			"loc":      "F01-W",
			"issues":   []string{"dirty"},
			"sneaky":   true,
			"resolved": 1,
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestStaffFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Two floors, one report each
	for _, floor := range []int64{1, 2} {
		f := floor
		code := fmt.Sprintf("F%02d-W", floor)
		_, err := env.locationService.CreateLocation(ctx, code, code, "toilet", &f)
		require.NoError(t, err)
		_, err = env.feedbackService.SubmitFeedback(ctx, services.Submission{
			LocationCode: code,
			IssueIDs:     []string{"dirty"},
		})
		require.NoError(t, err)
	}

	_, err := env.staffService.CreateStaff(ctx, "kat1", "parola", []int{1})
	require.NoError(t, err)

	client := newClient(t)

	t.Run("staff endpoints require a session", func(t *testing.T) {
		resp, _ := getJSON(t, client, env.server.URL+"/staff/api/unresolved")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("staff login and scoped listing", func(t *testing.T) {
		resp, body := postJSON(t, client, env.server.URL+"/staff/login", map[string]string{
			"username": "kat1",
			"password": "parola",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "/staff", body["redirect"])

		resp, body = getJSON(t, client, env.server.URL+"/staff/api/unresolved")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		feedbacks, ok := body["feedbacks"].([]interface{})
		require.True(t, ok)
		require.Len(t, feedbacks, 1)
		row := feedbacks[0].(map[string]interface{})
		assert.Equal(t, "F01-W", row["location_code"])
	})

	t.Run("staff cannot resolve another floor's report", func(t *testing.T) {
		// Find the floor-2 report through an admin session
		adminClient := newClient(t)
		adminLogin(t, env, adminClient)
		_, body := getJSON(t, adminClient, env.server.URL+"/api/unresolved")
		feedbacks := body["feedbacks"].([]interface{})
		var floor2ID float64
		for _, raw := range feedbacks {
			row := raw.(map[string]interface{})
			if row["location_code"] == "F02-W" {
				floor2ID = row["id"].(float64)
			}
		}
		require.NotZero(t, floor2ID)

		resp, _ := postJSON(t, client, env.server.URL+"/admin/resolve", map[string]interface{}{
			"id": floor2ID,
		})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		// But the admin can
		resp, _ = postJSON(t, adminClient, env.server.URL+"/admin/resolve", map[string]interface{}{
			"id": floor2ID,
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("staff resolves own floor's report", func(t *testing.T) {
		_, body := getJSON(t, client, env.server.URL+"/staff/api/unresolved")
		feedbacks := body["feedbacks"].([]interface{})
		require.Len(t, feedbacks, 1)
		id := feedbacks[0].(map[string]interface{})["id"].(float64)

		resp, _ := postJSON(t, client, env.server.URL+"/admin/resolve", map[string]interface{}{
			"id": id,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		_, body = getJSON(t, client, env.server.URL+"/staff/api/unresolved")
		assert.Empty(t, body["feedbacks"])
	})

	t.Run("staff without floors sees nothing", func(t *testing.T) {
		_, err := env.staffService.CreateStaff(ctx, "bos", "parola", nil)
		require.NoError(t, err)

		emptyClient := newClient(t)
		resp, _ := postJSON(t, emptyClient, env.server.URL+"/staff/login", map[string]string{
			"username": "bos",
			"password": "parola",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := getJSON(t, emptyClient, env.server.URL+"/staff/api/unresolved")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, body["feedbacks"])
	})
}

func TestResolveRejectsNegativeID(t *testing.T) {
	env := newTestEnv(t)
	client := newClient(t)
	adminLogin(t, env, client)

	resp, body := postJSON(t, client, env.server.URL+"/admin/resolve", map[string]interface{}{
		"id": -5,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", body["code"])
}

func TestLoginReplacesSessionIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Two floors, one report each
	for _, floor := range []int64{1, 2} {
		f := floor
		code := fmt.Sprintf("F%02d-W", floor)
		_, err := env.locationService.CreateLocation(ctx, code, code, "toilet", &f)
		require.NoError(t, err)
		_, err = env.feedbackService.SubmitFeedback(ctx, services.Submission{
			LocationCode: code,
			IssueIDs:     []string{"dirty"},
		})
		require.NoError(t, err)
	}
	_, err := env.staffService.CreateStaff(ctx, "kat1", "parola", []int{1})
	require.NoError(t, err)

	client := newClient(t)

	t.Run("staff login after admin login drops the admin flag", func(t *testing.T) {
		adminLogin(t, env, client)
		resp, _ := getJSON(t, client, env.server.URL+"/api/unresolved")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = postJSON(t, client, env.server.URL+"/staff/login", map[string]string{
			"username": "kat1",
			"password": "parola",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = getJSON(t, client, env.server.URL+"/api/unresolved")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp, body := getJSON(t, client, env.server.URL+"/staff/api/unresolved")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		feedbacks := body["feedbacks"].([]interface{})
		require.Len(t, feedbacks, 1)
		assert.Equal(t, "F01-W", feedbacks[0].(map[string]interface{})["location_code"])
	})

	t.Run("admin login after staff login drops the floor scope", func(t *testing.T) {
		adminLogin(t, env, client)

		resp, body := getJSON(t, client, env.server.URL+"/api/unresolved")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, body["feedbacks"].([]interface{}), 2)

		resp, body = getJSON(t, client, env.server.URL+"/staff/api/unresolved")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, body["feedbacks"].([]interface{}), 2)
	})
}

func TestStaffManagementEndpoints(t *testing.T) {
	env := newTestEnv(t)
	client := newClient(t)
	adminLogin(t, env, client)

	resp, body := postJSON(t, client, env.server.URL+"/admin/staff/add", map[string]interface{}{
		"username": "yeni",
		"password": "parola",
		"floors":   []int{2, 1, 2},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "yeni", user["username"])

	resp, body = getJSON(t, client, env.server.URL+"/api/staff")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	staff := body["staff"].([]interface{})
	require.Len(t, staff, 1)
	row := staff[0].(map[string]interface{})
	assert.Equal(t, []interface{}{float64(1), float64(2)}, row["floors"])
	assert.NotContains(t, row, "password_hash")

	resp, _ = postJSON(t, client, env.server.URL+"/admin/staff/delete", map[string]interface{}{
		"username": "yeni",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = getJSON(t, client, env.server.URL+"/api/staff")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["staff"])
}

func TestRootRedirectsToAdmin(t *testing.T) {
	env := newTestEnv(t)
	client := newClient(t)
	client.CheckRedirect = func(_ *http.Request, _ []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := client.Get(env.server.URL + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/admin", resp.Header.Get("Location"))
}

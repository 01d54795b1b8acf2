package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrfeedback/internal/models"
)

func TestNotifyNewFeedback_Telegram(t *testing.T) {
	cfg := testConfig(t)

	var gotPath string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	cfg.Telegram.BotToken = "testtoken"
	cfg.Telegram.ChatID = "42"
	cfg.Telegram.APIBaseURL = server.URL

	notifyService := NewNotificationService(cfg, testLogger())

	loc := &models.Location{
		ID:       1,
		Code:     "F01-W",
		Name:     "1. Kat - Bayan WC",
		Category: "toilet",
		Floor:    sql.NullInt64{Int64: 1, Valid: true},
	}
	meta := models.FeedbackMeta{
		Issues: []models.IssueRef{
			{ID: "dirty", Label: "Tuvalet genel temizliği gerekli"},
		},
		Note:       "Acil",
		ReportedAt: time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC),
	}

	notifyService.NotifyNewFeedback(context.Background(), loc, meta)

	assert.Equal(t, "/bottesttoken/sendMessage", gotPath)
	require.NotNil(t, gotBody)
	assert.Equal(t, "42", gotBody["chat_id"])
	assert.Contains(t, gotBody["text"], "1. Kat - Bayan WC")
	assert.Contains(t, gotBody["text"], "Tuvalet genel temizliği gerekli")
	assert.Contains(t, gotBody["text"], "Acil")
	assert.Contains(t, gotBody["text"], "Kat: 1")
}

func TestNotifyNewFeedback_DisabledChannelsAreSilent(t *testing.T) {
	cfg := testConfig(t)
	notifyService := NewNotificationService(cfg, testLogger())

	// No token, no chat id, no SMTP: must not panic or block
	notifyService.NotifyNewFeedback(context.Background(), &models.Location{Code: "X", Name: "X"}, models.FeedbackMeta{})
}

func TestNotifyNewFeedback_ServerErrorDoesNotPropagate(t *testing.T) {
	cfg := testConfig(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg.Telegram.BotToken = "tok"
	cfg.Telegram.ChatID = "1"
	cfg.Telegram.APIBaseURL = server.URL

	notifyService := NewNotificationService(cfg, testLogger())

	// Delivery failure is logged only; the call itself never fails
	notifyService.NotifyNewFeedback(context.Background(), &models.Location{Code: "X", Name: "X"}, models.FeedbackMeta{
		ReportedAt: time.Now(),
	})
}

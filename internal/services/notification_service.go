package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"qrfeedback/internal/config"
	"qrfeedback/internal/models"
	"qrfeedback/internal/observability"
	contextutils "qrfeedback/internal/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	mail "gopkg.in/mail.v2"
)

const telegramAPIBase = "https://api.telegram.org"

// NotificationService pushes new-report alerts to Telegram and optionally
// email. All sends are best effort; a delivery failure is logged and never
// surfaces to the visitor.
type NotificationService struct {
	cfg        *config.Config
	logger     *observability.Logger
	httpClient *http.Client
	dialer     *mail.Dialer
}

// NewNotificationService creates a new NotificationService instance.
func NewNotificationService(cfg *config.Config, logger *observability.Logger) *NotificationService {
	if cfg == nil {
		panic("NewNotificationService: cfg is nil")
	}
	if logger == nil {
		panic("NewNotificationService: logger is nil")
	}

	var dialer *mail.Dialer
	if cfg.Email.Enabled && cfg.Email.Host != "" {
		dialer = mail.NewDialer(
			cfg.Email.Host,
			cfg.Email.Port,
			cfg.Email.Username,
			cfg.Email.Password,
		)
	}

	return &NotificationService{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: config.NotifyHTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
			),
		},
		dialer: dialer,
	}
}

// NotifyNewFeedback fans a new report out to the configured channels.
func (s *NotificationService) NotifyNewFeedback(ctx context.Context, loc *models.Location, meta models.FeedbackMeta) {
	ctx, span := observability.TraceNotifyFunction(ctx, "notify_new_feedback",
		observability.AttributeLocationCode(loc.Code),
		attribute.Int("notify.issue_count", len(meta.Issues)),
	)
	defer span.End()

	text := s.formatMessage(loc, meta)

	if err := s.sendTelegram(ctx, text); err != nil {
		s.logger.Warn(ctx, "Telegram notification failed", map[string]interface{}{
			"location_code": loc.Code,
			"error":         err.Error(),
		})
	}
	if err := s.sendEmail(ctx, loc, text); err != nil {
		s.logger.Warn(ctx, "Email notification failed", map[string]interface{}{
			"location_code": loc.Code,
			"error":         err.Error(),
		})
	}
}

// formatMessage renders the alert body shared by all channels.
func (s *NotificationService) formatMessage(loc *models.Location, meta models.FeedbackMeta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Yeni bildirim: %s (%s)\n", loc.Name, loc.Code)
	if loc.Floor.Valid {
		fmt.Fprintf(&b, "Kat: %d\n", loc.Floor.Int64)
	}
	for _, issue := range meta.Issues {
		fmt.Fprintf(&b, "- %s\n", issue.Label)
	}
	if meta.Note != "" {
		fmt.Fprintf(&b, "Not: %s\n", meta.Note)
	}
	fmt.Fprintf(&b, "Zaman: %s", meta.ReportedAt.Format("2006-01-02 15:04"))
	return b.String()
}

// sendTelegram posts the message to the Telegram bot API.
func (s *NotificationService) sendTelegram(ctx context.Context, text string) (err error) {
	if s.cfg.Telegram.BotToken == "" || s.cfg.Telegram.ChatID == "" {
		return nil
	}

	ctx, span := observability.TraceNotifyFunction(ctx, "send_telegram")
	defer observability.FinishSpan(span, &err)

	base := s.cfg.Telegram.APIBaseURL
	if base == "" {
		base = telegramAPIBase
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(base, "/"), s.cfg.Telegram.BotToken)

	payload, err := json.Marshal(map[string]string{
		"chat_id": s.cfg.Telegram.ChatID,
		"text":    text,
	})
	if err != nil {
		return contextutils.WrapError(err, "failed to marshal telegram payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return contextutils.WrapError(err, "failed to build telegram request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return contextutils.WrapError(contextutils.ErrExternalService, err.Error())
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return contextutils.NewAppError(contextutils.ErrorCodeExternalService, contextutils.SeverityWarn,
			"telegram API returned non-200", fmt.Sprintf("status=%d body=%s", resp.StatusCode, body))
	}
	return nil
}

// sendEmail sends the alert over SMTP when the email channel is configured.
func (s *NotificationService) sendEmail(ctx context.Context, loc *models.Location, text string) (err error) {
	if s.dialer == nil || s.cfg.Email.ToAddress == "" {
		return nil
	}

	_, span := observability.TraceNotifyFunction(ctx, "send_email")
	defer observability.FinishSpan(span, &err)

	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.Email.FromAddress)
	m.SetHeader("To", s.cfg.Email.ToAddress)
	m.SetHeader("Subject", fmt.Sprintf("Yeni bildirim: %s", loc.Name))
	m.SetBody("text/plain", text)

	if err := s.dialer.DialAndSend(m); err != nil {
		return contextutils.WrapError(contextutils.ErrExternalService, err.Error())
	}
	return nil
}

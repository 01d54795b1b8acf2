package services

import (
	"context"
	"os"
	"path/filepath"

	"qrfeedback/internal/config"
	"qrfeedback/internal/observability"
	contextutils "qrfeedback/internal/utils"

	qrcode "github.com/skip2/go-qrcode"
	"go.opentelemetry.io/otel/attribute"
)

// QRService writes QR code PNG images for location feedback URLs.
type QRService struct {
	cfg    *config.Config
	logger *observability.Logger
}

// NewQRService creates a new QRService instance.
func NewQRService(cfg *config.Config, logger *observability.Logger) *QRService {
	if cfg == nil {
		panic("NewQRService: cfg is nil")
	}
	if logger == nil {
		panic("NewQRService: logger is nil")
	}
	return &QRService{cfg: cfg, logger: logger}
}

// ArtifactPath returns the on-disk path of the QR image for a code.
func (s *QRService) ArtifactPath(code string) string {
	return filepath.Join(s.cfg.QR.Dir, code+".png")
}

// Generate encodes the URL into a PNG under the configured directory and
// returns the file path.
func (s *QRService) Generate(ctx context.Context, code, url string) (result0 string, err error) {
	_, span := observability.TraceLocationFunction(ctx, "generate_qr",
		observability.AttributeLocationCode(code),
		attribute.String("qr.url", url),
	)
	defer observability.FinishSpan(span, &err)

	if err := os.MkdirAll(s.cfg.QR.Dir, 0o755); err != nil {
		return "", contextutils.WrapError(err, "failed to create QR directory")
	}

	path := s.ArtifactPath(code)
	if err := qrcode.WriteFile(url, qrcode.Medium, s.cfg.QR.Size, path); err != nil {
		return "", contextutils.WrapError(err, "failed to write QR image")
	}
	return path, nil
}

// Remove deletes the QR image for a code. A missing file is not an error.
func (s *QRService) Remove(ctx context.Context, code string) (err error) {
	_, span := observability.TraceLocationFunction(ctx, "remove_qr",
		observability.AttributeLocationCode(code),
	)
	defer observability.FinishSpan(span, &err)

	if err := os.Remove(s.ArtifactPath(code)); err != nil && !os.IsNotExist(err) {
		return contextutils.WrapError(err, "failed to remove QR image")
	}
	return nil
}

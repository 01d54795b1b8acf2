package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	t.Setenv("FEEDBACK_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "data.db", cfg.Database.Path)
	assert.Equal(t, 1, cfg.Database.MaxOpenConns)
	assert.Equal(t, "static/qrcodes", cfg.QR.Dir)
	assert.Equal(t, 256, cfg.QR.Size)
	assert.Len(t, cfg.Catalog, 2)
	assert.False(t, cfg.OpenTelemetry.EnableTracing)
}

func TestNewConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: "9090"
  admin_username: patron
  app_base_url: https://geribildirim.example.com/
database:
  path: /tmp/feedback.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("FEEDBACK_CONFIG_FILE", path)

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "patron", cfg.Server.AdminUsername)
	assert.Equal(t, "/tmp/feedback.db", cfg.Database.Path)

	// Unset fields are filled from the defaults
	assert.Equal(t, "secret", cfg.Server.AdminPassword)
	assert.Equal(t, 1, cfg.Database.MaxOpenConns)
	assert.Len(t, cfg.Catalog, 2)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FEEDBACK_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("SERVER_ADMIN_PASSWORD", "env-secret")
	t.Setenv("DATABASE_PATH", "/var/lib/feedback.db")
	t.Setenv("SERVER_CORS_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("OPEN_TELEMETRY_ENABLE_TRACING", "true")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "env-secret", cfg.Server.AdminPassword)
	assert.Equal(t, "/var/lib/feedback.db", cfg.Database.Path)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.OpenTelemetry.EnableTracing)
}

func TestCatalogFromFileReplacesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
catalog:
  - category: Lobby
    aliases: [LOBİ]
    issues:
      - id: lights_out
        label: Aydınlatma arızalı
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("FEEDBACK_CONFIG_FILE", path)

	cfg, err := NewConfig()
	require.NoError(t, err)

	require.Len(t, cfg.Catalog, 1)
	assert.Equal(t, "lobby", cfg.Catalog[0].Category)

	options := cfg.OptionsForCategory("LOBBY")
	require.Len(t, options, 1)
	assert.Equal(t, "lights_out", options[0].ID)

	// Unlisted categories land on the generic fallback
	fallback := cfg.OptionsForCategory("toilet")
	require.Len(t, fallback, 1)
	assert.Equal(t, FallbackIssue, fallback[0])
}

func TestCatalogValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
catalog:
  - category: toilet
    issues:
      - id: ""
        label: Etiketli ama kimliksiz
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("FEEDBACK_CONFIG_FILE", path)

	_, err := NewConfig()
	assert.Error(t, err)
}

func TestOptionsForCategory(t *testing.T) {
	cfg := &Config{Catalog: DefaultCatalog()}

	tests := []struct {
		name     string
		category string
		firstID  string
		count    int
	}{
		{"canonical name", "toilet", "dirty", 4},
		{"turkish alias", "tuvalet", "dirty", 4},
		{"case insensitive", "ROOM", "cleaning_needed", 5},
		{"alias with whitespace", "  oda ", "cleaning_needed", 5},
		{"unknown category", "garage", FallbackIssue.ID, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			options := cfg.OptionsForCategory(tt.category)
			require.Len(t, options, tt.count)
			assert.Equal(t, tt.firstID, options[0].ID)
		})
	}
}

func TestIssueLabels(t *testing.T) {
	cfg := &Config{Catalog: DefaultCatalog()}

	labels := cfg.IssueLabels("toilet")
	assert.Equal(t, "Tuvalet kağıdı bitmiş", labels["paper_out"])
	assert.Len(t, labels, 4)
}

func TestPublicFeedbackURL(t *testing.T) {
	cfg := &Config{Server: ServerConfig{AppBaseURL: "https://example.com/"}}
	assert.Equal(t, "https://example.com/feedback?loc=F01-W", cfg.PublicFeedbackURL("F01-W"))

	cfg.Server.AppBaseURL = "https://example.com"
	assert.Equal(t, "https://example.com/feedback?loc=F01-W", cfg.PublicFeedbackURL("F01-W"))
}

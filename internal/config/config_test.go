package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/doctype/internal/access"
	"github.com/roach88/doctype/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doctype.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "doctype.db", cfg.Database.Path)
	assert.Equal(t, 30*time.Second, cfg.Engine.WebhookTimeout)
	assert.Equal(t, 10, cfg.Engine.HookFailureLimit)
	assert.NoError(t, cfg.Validate())
	assert.IsType(t, access.AllowAll{}, cfg.Authorizer())
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/doctype/prod.db
engine:
  webhook_timeout: 5s
  strict_final_states: true
  version_retention: 50
mail:
  site_url: https://erp.example.com
log:
  format: json
access:
  default:
    delete: [admin]
  doctypes:
    Invoice:
      submit: [accounts-manager]
directory:
  u1: alice@example.com
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/doctype/prod.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.Engine.WebhookTimeout)
	assert.Equal(t, 30*time.Second, cfg.Engine.EmailTimeout, "unset keys keep defaults")
	assert.Equal(t, "noreply@example.com", cfg.Mail.From)

	s := cfg.Settings()
	assert.True(t, s.StrictFinalStates)
	assert.Equal(t, 50, s.VersionRetention)
	assert.Equal(t, "https://erp.example.com", s.SiteURL)

	auth := cfg.Authorizer()
	ctx := context.Background()
	clerk := model.Actor{ID: "c", Roles: []string{"clerk"}}
	assert.False(t, auth.HasPermission(ctx, clerk, &model.Document{Doctype: "Note"}, access.Delete))
	assert.False(t, auth.HasPermission(ctx, clerk, &model.Document{Doctype: "Invoice"}, access.Submit))
	assert.True(t, auth.HasPermission(ctx, clerk, &model.Document{Doctype: "Invoice"}, access.Write))

	addr, ok := cfg.Directory().Email(ctx, "u1")
	assert.True(t, ok)
	assert.Equal(t, "alice@example.com", addr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeConfig(t, `
database:
  path: ""
engine:
  hook_failure_limit: 0
log:
  level: loud
  format: xml
access:
  default:
    approve: [x]
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	for _, want := range []string{"database.path", "hook_failure_limit", "log.level", "log.format", "approve"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "engine: [not, a, map]"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf, false).Info("hidden")
	assert.Empty(t, buf.String())

	LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf, true).Debug("shown", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"schedulease/internal/api"
	"schedulease/internal/models"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "auth:\n  jwt_secret: cli-secret\nlogging:\n  format: json\n  level: error\ndatabase:\n  path: " + filepath.Join(dir, "app.db") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := run(t, "--config", cfgPath, "token", "--user", "u-1", "--role", "admin", "--email", "a@example.com")
	require.NoError(t, err)

	id, err := api.NewAuthenticator("cli-secret", time.Hour).Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, models.Identity{UserID: "u-1", Role: models.RoleAdmin, Email: "a@example.com"}, id)

	_, err = run(t, "--config", cfgPath, "token", "--user", "u-1", "--role", "root")
	assert.Error(t, err)

	_, err = run(t, "--config", cfgPath, "token")
	assert.Error(t, err)
}

func TestExportAuditCommand(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	dest := filepath.Join(dir, "audit.xlsx")

	out, err := run(t, "--config", cfgPath, "export-audit", "--out", dest)
	require.NoError(t, err)
	assert.Contains(t, out, dest)

	f, err := excelize.OpenFile(dest)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "appointments")
}

func TestSyncSheetsRequiresEnabled(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	_, err := run(t, "--config", cfgPath, "sync-sheets")
	assert.ErrorContains(t, err, "sheets.enabled")
}

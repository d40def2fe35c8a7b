package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/idsrv/internal/idsrv/app"
	"github.com/aussiebroadwan/idsrv/pkg/authsdk"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetContext(t.Context())
	err := cmd.Execute()
	return out.String(), err
}

// useTempStore points the configuration at a fresh SQLite file.
func useTempStore(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AUTH_DATABASE_FILE", filepath.Join(dir, "idsrv.db"))
	t.Setenv("AUTH_PEPPER_FILE", filepath.Join(dir, "pepper"))
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version", "--json")
	require.NoError(t, err)

	var v versionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	require.Equal(t, app.BuildVersion, v.Version)
	require.NotEmpty(t, v.Go)
}

func TestSeedCommandIsRepeatable(t *testing.T) {
	useTempStore(t)

	out, err := run(t, "seed")
	require.NoError(t, err)
	require.Contains(t, out, "alice")
	require.Contains(t, out, "created")
	require.NotContains(t, out, "already_exists")

	out, err = run(t, "seed")
	require.NoError(t, err)
	require.Contains(t, out, "already_exists")
	require.NotContains(t, out, "created")
}

func TestSeedCommandFromFile(t *testing.T) {
	dir := useTempStore(t)
	file := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
users:
  - username: dave
    password: "Pass123$"
    claims:
      - type: name
        value: Dave Jones
  - username: eve
    password: "Pass123$"
    claims:
      - type: address
        value: "{not json"
        value_type: json
`), 0o600))

	out, err := run(t, "seed", "--file", file)
	require.Error(t, err)
	require.Contains(t, err.Error(), "user eve")
	require.Contains(t, out, "dave")

	_, err = run(t, "seed", "--file", filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestMigrateCommands(t *testing.T) {
	useTempStore(t)

	out, err := run(t, "migrate", "up")
	require.NoError(t, err)
	require.Contains(t, out, "migrate up: ok")

	out, err = run(t, "migrate", "down")
	require.NoError(t, err)
	require.Contains(t, out, "migrate down: ok")
}

func TestInvalidConfigurationIsReported(t *testing.T) {
	useTempStore(t)
	t.Setenv("AUTH_DATABASE_DRIVER", "oracle")

	_, err := run(t, "migrate", "up")
	require.ErrorContains(t, err, "AUTH_DATABASE_DRIVER")
}

func TestDemoAndHealthCommands(t *testing.T) {
	useTempStore(t)
	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	cfg.LogOutput = io.Discard

	application, err := app.New(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })
	application.Seed(t.Context(), nil)

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)

	out, err := run(t, "demo", "--url", srv.URL)
	require.NoError(t, err)
	require.Contains(t, out, "issuer:          http://localhost:8080")
	require.Contains(t, out, `"type": "scope"`)

	_, err = run(t, "demo", "--url", srv.URL, "--password", "wrong")
	require.ErrorIs(t, err, authsdk.ErrInvalidGrant)

	out, err = run(t, "health", "--url", srv.URL)
	require.NoError(t, err)
	require.Contains(t, out, "database: ok")
}

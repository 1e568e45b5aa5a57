package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austral/ipc-engine/config"
	"github.com/austral/ipc-engine/series"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ipc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValidAndComplete(t *testing.T) {
	// GIVEN: The built-in configuration
	// WHEN: Validating it
	// THEN: It passes and carries the four dataset 145 endpoints

	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	require.Len(t, cfg.Sources, 4)
	assert.Equal(t, "divisions-incidence", cfg.Sources[0].Name)
	assert.Equal(t, "headline-index", cfg.Sources[3].Name)
	assert.Equal(t, config.RoleIndex, cfg.Sources[3].Role)

	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout())
	assert.Equal(t, "2023-12", cfg.StartMonth().String())
	assert.Equal(t, series.TieFirstWins, cfg.Policy())

	axis, ok := cfg.Sources[0].AxisValue()
	require.True(t, ok)
	assert.Equal(t, series.AxisDivision, axis)
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	// GIVEN: A YAML file overriding some keys and replacing the sources
	// WHEN: Loading it
	// THEN: Named keys win, unnamed keys keep their defaults

	path := writeConfigFile(t, `
db: /var/lib/ipc/ipc.db
http_timeout_seconds: 30
sources:
  - name: divisions-incidence
    url: http://localhost:9000/divisions.csv
    axis: division
    role: incidence
    priority: 1
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ipc/ipc.db", cfg.DBPath)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout())
	assert.Equal(t, "2023-12-01", cfg.StartDate)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "http://localhost:9000/divisions.csv", cfg.Sources[0].URL)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	// GIVEN: A YAML file and environment variables naming the same keys
	// WHEN: Loading
	// THEN: The environment wins

	path := writeConfigFile(t, "db: from-file.db\nstart_date: 2024-01-01\n")

	t.Setenv("IPC_DB", "from-env.db")
	t.Setenv("IPC_START_DATE", "2024-03")
	t.Setenv("IPC_HTTP_TIMEOUT_SECONDS", "15")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env.db", cfg.DBPath)
	assert.Equal(t, "2024-03", cfg.StartMonth().String())
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout())
}

func TestLoad_SourcesFromEnvironment(t *testing.T) {
	// GIVEN: IPC_SOURCES carrying an inline YAML source table
	// WHEN: Loading without a file
	// THEN: The inline table replaces the defaults

	t.Setenv("IPC_SOURCES", `[{name: headline-index, url: "http://localhost:9000/index.csv", axis: headline, role: index, priority: 3}]`)

	cfg, err := config.Load("")
	require.NoError(t, err)

	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "headline-index", cfg.Sources[0].Name)
	assert.Equal(t, 3, cfg.Sources[0].Priority)
}

func TestLoad_MissingFileFails(t *testing.T) {
	// GIVEN: A path that does not exist
	// WHEN: Loading
	// THEN: The load fails rather than silently using defaults

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate_RejectsBrokenConfigurations(t *testing.T) {
	// GIVEN: Configurations broken in one field each
	// WHEN: Validating
	// THEN: Every one is rejected

	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty db path", func(c *config.Config) { c.DBPath = "" }},
		{"zero timeout", func(c *config.Config) { c.HTTPTimeoutSeconds = 0 }},
		{"negative timeout", func(c *config.Config) { c.HTTPTimeoutSeconds = -5 }},
		{"bad start date", func(c *config.Config) { c.StartDate = "diciembre 2023" }},
		{"unknown tie policy", func(c *config.Config) { c.TiePolicy = "last_wins" }},
		{"no sources", func(c *config.Config) { c.Sources = nil }},
		{"unnamed source", func(c *config.Config) { c.Sources[0].Name = "" }},
		{"duplicate source", func(c *config.Config) { c.Sources[1].Name = c.Sources[0].Name }},
		{"missing url", func(c *config.Config) { c.Sources[0].URL = "" }},
		{"unknown axis", func(c *config.Config) { c.Sources[0].Axis = "capitulo" }},
		{"unknown role", func(c *config.Config) { c.Sources[0].Role = "level" }},
		{"zero priority", func(c *config.Config) { c.Sources[0].Priority = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

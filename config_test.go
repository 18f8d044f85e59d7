package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func requireConfigError(t *testing.T, err error, field string) {
	t.Helper()
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr), "want *ConfigError, got %v", err)
	assert.Equal(t, field, cfgErr.Field)
}

func TestLoadConfigFromEnv(t *testing.T) {
	cfg, err := LoadConfig(Options{}, envMap(map[string]string{
		"PROJECT_OWNER":  "lecturer",
		"PROJECT_NUMBER": "4",
		"README_PATH":    "docs/README.md",
		"WEEK":           "2024-W05",
		"GITHUB_TOKEN":   "gh",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "lecturer", cfg.Owner)
	assert.Equal(t, OwnerUser, cfg.OwnerType)
	assert.Equal(t, 4, cfg.Number)
	assert.Equal(t, "docs/README.md", cfg.ReadmePath)
	assert.Equal(t, "2024-W05", cfg.Week)
	assert.Equal(t, "gh", cfg.Token)
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, DefaultNote, cfg.Note)
	assert.Equal(t, DefaultStartMarker, cfg.StartMarker)
	assert.Equal(t, DefaultEndMarker, cfg.EndMarker)
	assert.Equal(t, DefaultFieldAliases(), cfg.Fields)
	assert.Empty(t, cfg.HistoryDB)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(Options{}, envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, DefaultReadmePath, cfg.ReadmePath)
	assert.Empty(t, cfg.Week)
	requireConfigError(t, cfg.Validate(), "PROJECT_NUMBER")
}

func TestLoadConfigTokenPrecedence(t *testing.T) {
	base := map[string]string{"PROJECT_OWNER": "o", "PROJECT_NUMBER": "1"}

	t.Run("PROJECTS_TOKEN first", func(t *testing.T) {
		env := map[string]string{"PROJECTS_TOKEN": "p", "GH_TOKEN": "g", "GITHUB_TOKEN": "a"}
		for k, v := range base {
			env[k] = v
		}
		cfg, err := LoadConfig(Options{}, envMap(env))
		require.NoError(t, err)
		assert.Equal(t, "p", cfg.Token)
	})

	t.Run("GH_TOKEN over GITHUB_TOKEN", func(t *testing.T) {
		env := map[string]string{"PROJECTS_TOKEN": "  ", "GH_TOKEN": "g", "GITHUB_TOKEN": "a"}
		for k, v := range base {
			env[k] = v
		}
		cfg, err := LoadConfig(Options{}, envMap(env))
		require.NoError(t, err)
		assert.Equal(t, "g", cfg.Token)
	})

	t.Run("missing token", func(t *testing.T) {
		cfg, err := LoadConfig(Options{}, envMap(base))
		require.NoError(t, err)
		requireConfigError(t, cfg.Validate(), "token")
	})
}

func TestLoadConfigProjectURL(t *testing.T) {
	t.Run("user project", func(t *testing.T) {
		cfg, err := LoadConfig(Options{}, envMap(map[string]string{
			"COURSE_PROJECT_URL": "https://github.com/users/HuangShengZeBlueSky/projects/1",
			"GH_TOKEN":           "t",
		}))
		require.NoError(t, err)
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "HuangShengZeBlueSky", cfg.Owner)
		assert.Equal(t, OwnerUser, cfg.OwnerType)
		assert.Equal(t, 1, cfg.Number)
	})

	t.Run("org project", func(t *testing.T) {
		cfg, err := LoadConfig(Options{}, envMap(map[string]string{
			"COURSE_PROJECT_URL": "https://github.com/orgs/acme/projects/12/views/2",
			"GH_TOKEN":           "t",
		}))
		require.NoError(t, err)
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "acme", cfg.Owner)
		assert.Equal(t, OwnerOrg, cfg.OwnerType)
		assert.Equal(t, 12, cfg.Number)
	})

	t.Run("explicit values win", func(t *testing.T) {
		cfg, err := LoadConfig(Options{}, envMap(map[string]string{
			"PROJECT_OWNER":      "me",
			"COURSE_PROJECT_URL": "https://github.com/orgs/acme/projects/12",
			"GH_TOKEN":           "t",
		}))
		require.NoError(t, err)
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "me", cfg.Owner)
		assert.Equal(t, OwnerUser, cfg.OwnerType)
		assert.Equal(t, 12, cfg.Number)
	})

	t.Run("flag url", func(t *testing.T) {
		cfg, err := LoadConfig(Options{ProjectURL: "github.com/users/flag/projects/3"}, envMap(map[string]string{"GH_TOKEN": "t"}))
		require.NoError(t, err)
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "flag", cfg.Owner)
		assert.Equal(t, 3, cfg.Number)
	})
}

func TestLoadConfigInvalid(t *testing.T) {
	cases := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{"bad number", map[string]string{"PROJECT_OWNER": "o", "PROJECT_NUMBER": "one", "GH_TOKEN": "t"}, "PROJECT_NUMBER"},
		{"zero number", map[string]string{"PROJECT_OWNER": "o", "PROJECT_NUMBER": "0", "GH_TOKEN": "t"}, "PROJECT_NUMBER"},
		{"missing owner", map[string]string{"PROJECT_NUMBER": "1", "GH_TOKEN": "t"}, "PROJECT_OWNER"},
		{"bad owner type", map[string]string{"PROJECT_OWNER": "o", "PROJECT_NUMBER": "1", "PROJECT_OWNER_TYPE": "team", "GH_TOKEN": "t"}, "PROJECT_OWNER_TYPE"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg, err := LoadConfig(Options{}, envMap(c.env))
			require.NoError(t, err)
			requireConfigError(t, cfg.Validate(), c.field)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coursesync.yaml")
	yamlData := `
owner: file-owner
owner_type: organization
number: 9
readme: COURSE.md
note: "> generated"
markers:
  start: "<!-- S -->"
  end: "<!-- E -->"
fields:
  Topic: [Subject, 主题]
history_db: runs.db
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0o644))

	cfg, err := LoadConfig(Options{ConfigPath: path}, envMap(map[string]string{
		"README_PATH": "ENV.md",
		"GH_TOKEN":    "t",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "file-owner", cfg.Owner)
	assert.Equal(t, OwnerOrg, cfg.OwnerType)
	assert.Equal(t, 9, cfg.Number)
	assert.Equal(t, "ENV.md", cfg.ReadmePath)
	assert.Equal(t, "> generated", cfg.Note)
	assert.Equal(t, "<!-- S -->", cfg.StartMarker)
	assert.Equal(t, "<!-- E -->", cfg.EndMarker)
	assert.Equal(t, []string{"Subject", "主题"}, cfg.Fields[FieldTopic])
	assert.Equal(t, []string{"Week", "周次"}, cfg.Fields[FieldWeek])
	assert.Equal(t, "runs.db", cfg.HistoryDB)
}

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	cfg, err := LoadConfig(Options{
		Owner:     "flag-owner",
		Number:    "5",
		Readme:    "FLAG.md",
		Week:      "2024-W10",
		HistoryDB: "flag.db",
	}, envMap(map[string]string{
		"PROJECT_OWNER":         "env-owner",
		"PROJECT_NUMBER":        "2",
		"README_PATH":           "ENV.md",
		"WEEK":                  "2024-W01",
		"COURSESYNC_HISTORY_DB": "env.db",
		"GH_TOKEN":              "t",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "flag-owner", cfg.Owner)
	assert.Equal(t, 5, cfg.Number)
	assert.Equal(t, "FLAG.md", cfg.ReadmePath)
	assert.Equal(t, "2024-W10", cfg.Week)
	assert.Equal(t, "flag.db", cfg.HistoryDB)
}

func TestLoadConfigFileErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("explicit missing file", func(t *testing.T) {
		_, err := LoadConfig(Options{ConfigPath: filepath.Join(dir, "nope.yaml")}, envMap(nil))
		requireConfigError(t, err, "config")
	})

	t.Run("env missing file is ignored", func(t *testing.T) {
		_, err := LoadConfig(Options{}, envMap(map[string]string{"COURSESYNC_CONFIG": filepath.Join(dir, "nope.yaml")}))
		assert.NoError(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("owner: [unclosed"), 0o644))
		_, err := LoadConfig(Options{ConfigPath: path}, envMap(nil))
		requireConfigError(t, err, "config")
	})

	t.Run("same markers", func(t *testing.T) {
		path := filepath.Join(dir, "markers.yaml")
		require.NoError(t, os.WriteFile(path, []byte("owner: o\nnumber: 1\nmarkers:\n  start: X\n  end: X\n"), 0o644))
		cfg, err := LoadConfig(Options{ConfigPath: path}, envMap(map[string]string{"GH_TOKEN": "t"}))
		require.NoError(t, err)
		requireConfigError(t, cfg.Validate(), "markers")
	})
}

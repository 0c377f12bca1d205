package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	// No config file: defaults only
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "warn", cfg.Logging.ConsoleLevel)
	assert.NotEmpty(t, cfg.Paths.DataDir)
	assert.Equal(t, "aapt2", cfg.Tools.Aapt2)
	assert.Equal(t, "adb", cfg.Tools.Adb)
	assert.Equal(t, 4, cfg.Audit.Workers)
	assert.Equal(t, DefaultVersionQualified, cfg.Audit.VersionQualifiedPackages)
	assert.Equal(t, time.Minute, cfg.Tools.Timeout())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("APKAUDIT_TOOLS_ADB", "/opt/platform-tools/adb")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/opt/platform-tools/adb", cfg.Tools.Adb)
}

func TestToolsTimeout(t *testing.T) {
	assert.Equal(t, time.Duration(0), ToolsConfig{}.Timeout())
	assert.Equal(t, time.Duration(0), ToolsConfig{TimeoutSecs: -1}.Timeout())
	assert.Equal(t, 5*time.Second, ToolsConfig{TimeoutSecs: 5}.Timeout())
}

func TestLoadBaselineConfig(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	t.Run("json", func(t *testing.T) {
		path := write("baseline.json", `{
  "excludePackages": ["com.example.kiosk", "com.example.debug"],
  "appendVersionCodeToPackage": ["com.google.android.trichromelibrary"]
}`)
		bc, err := LoadBaselineConfig(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"com.example.kiosk", "com.example.debug"}, bc.ExcludePackages)
		assert.Equal(t, []string{"com.google.android.trichromelibrary"}, bc.AppendVersionCodeToPackage)
	})

	t.Run("toml", func(t *testing.T) {
		path := write("baseline.toml", `excludePackages = ["com.example.kiosk"]
appendVersionCodeToPackage = []
`)
		bc, err := LoadBaselineConfig(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"com.example.kiosk"}, bc.ExcludePackages)
		assert.Empty(t, bc.AppendVersionCodeToPackage)
	})

	t.Run("unknown extension read as json", func(t *testing.T) {
		path := write("baseline.conf", `{"excludePackages": ["com.a.b"], "appendVersionCodeToPackage": []}`)
		bc, err := LoadBaselineConfig(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"com.a.b"}, bc.ExcludePackages)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadBaselineConfig(filepath.Join(dir, "absent.json"))
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("missing key", func(t *testing.T) {
		tests := []struct {
			name    string
			content string
			key     string
		}{
			{"no version qualified list", `{"excludePackages": ["com.android.chrome"]}`, "appendVersionCodeToPackage"},
			{"no exclude list", `{"appendVersionCodeToPackage": ["com.google.android.trichromelibrary"]}`, "excludePackages"},
			{"empty object", `{}`, "excludePackages"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				path := write("partial.json", tt.content)
				_, err := LoadBaselineConfig(path)
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrConfiguration)
				assert.Contains(t, err.Error(), tt.key)
			})
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		path := write("broken.json", `{"excludePackages": [`)
		_, err := LoadBaselineConfig(path)
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestApplyBaseline(t *testing.T) {
	cfg := &Config{Audit: AuditConfig{
		ExcludePackages:          []string{"old"},
		VersionQualifiedPackages: DefaultVersionQualified,
	}}

	cfg.ApplyBaseline(nil)
	assert.Equal(t, []string{"old"}, cfg.Audit.ExcludePackages)

	cfg.ApplyBaseline(&BaselineConfig{ExcludePackages: []string{"com.x.y"}})
	assert.Equal(t, []string{"com.x.y"}, cfg.Audit.ExcludePackages)
	assert.Empty(t, cfg.Audit.VersionQualifiedPackages)
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()
	t.Setenv("APKAUDIT_TEST_DIR", "/srv/baselines")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "empty path",
			input: "",
			want:  "",
		},
		{
			name:  "absolute path",
			input: "/usr/local/bin",
			want:  "/usr/local/bin",
		},
		{
			name:  "home expansion",
			input: "~/test",
			want:  filepath.Join(homeDir, "test"),
		},
		{
			name:  "env expansion",
			input: "$APKAUDIT_TEST_DIR/tv.zip",
			want:  "/srv/baselines/tv.zip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandPath(tt.input))
		})
	}
}

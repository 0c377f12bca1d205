package cmd

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/quantmind-br/apkaudit/internal/config"
	"github.com/quantmind-br/apkaudit/internal/helpers"
	"github.com/quantmind-br/apkaudit/internal/ui"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const oneDevice = "List of devices attached\nemulator-5554\tdevice\n\n"

// fakeAndroid answers aapt2 from the bundle files and adb from a package map.
// Mutating adb calls (install, uninstall) are recorded.
type fakeAndroid struct {
	fs       afero.Fs
	devices  string
	packages map[string]string // dumpsys output by query name
	failures map[string]string // adb output for failing operations, by last arg
	missing  map[string]bool   // tools absent from PATH

	mu    sync.Mutex
	calls [][]string
}

func newFakeAndroid(fs afero.Fs) *fakeAndroid {
	return &fakeAndroid{
		fs:       fs,
		devices:  oneDevice,
		packages: map[string]string{},
		failures: map[string]string{},
		missing:  map[string]bool{},
	}
}

func (f *fakeAndroid) runner() *helpers.MockCommandRunner {
	return &helpers.MockCommandRunner{
		CommandExistsFunc: func(name string) bool {
			return !f.missing[name]
		},
		RequireCommandFunc: func(name string) error {
			if f.missing[name] {
				return fmt.Errorf("%w: %s", helpers.ErrCommandNotFound, name)
			}
			return nil
		},
		RunCommandFunc: func(_ context.Context, name string, args ...string) (string, error) {
			last := args[len(args)-1]
			if last == "devices" {
				return f.devices, nil
			}
			if out, ok := f.packages[last]; ok {
				return out, nil
			}
			return "Unable to find package: " + last + "\n", nil
		},
		RunCommandWithOutputFunc: func(_ context.Context, name string, args ...string) (string, string, error) {
			last := args[len(args)-1]
			if name == "aapt2" {
				content, err := afero.ReadFile(f.fs, last)
				if err != nil {
					return "", "", err
				}
				return string(content), "", nil
			}

			f.mu.Lock()
			f.calls = append(f.calls, args)
			f.mu.Unlock()

			if out, ok := f.failures[last]; ok {
				return out, "", nil
			}
			return "Success", "", nil
		},
	}
}

// commands returns the recorded adb calls as command lines
func (f *fakeAndroid) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	lines := make([]string, 0, len(f.calls))
	for _, args := range f.calls {
		parts := make([]string, len(args))
		for i, arg := range args {
			// install paths live in a random scratch dir
			if strings.Contains(arg, "apkaudit-") {
				arg = filepath.Base(arg)
			}
			parts[i] = arg
		}
		lines = append(lines, strings.Join(parts, " "))
	}
	return lines
}

type apkFixture struct {
	entry   string
	pkg     string
	code    int64
	version string
}

func writeZipBundle(t *testing.T, fs afero.Fs, path string, apks []apkFixture) {
	t.Helper()

	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
	f, err := fs.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, a := range apks {
		w, err := zw.Create(a.entry)
		require.NoError(t, err)
		_, err = fmt.Fprintf(w, "package: name='%s' versionCode='%d' versionName='%s' platformBuildVersionName='14'\nsdkVersion:'21'\n", a.pkg, a.code, a.version)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

// dumpsysPackage builds `dumpsys package` output for one installed package
func dumpsysPackage(pkg, codePath string, code int64, version string) string {
	return "Packages:\n" + packageBlock(pkg, codePath, code, version)
}

// dumpsysUpdated adds a factory copy under "Hidden system packages"
func dumpsysUpdated(pkg string, code int64, version, factoryPath string, factoryCode int64, factoryVersion string) string {
	return dumpsysPackage(pkg, "/data/app/"+pkg+"-1", code, version) +
		"\nHidden system packages:\n" + packageBlock(pkg, factoryPath, factoryCode, factoryVersion)
}

func packageBlock(pkg, codePath string, code int64, version string) string {
	return fmt.Sprintf("  Package [%s] (4f1e2d3):\n    userId=10087\n    codePath=%s\n    versionCode=%d minSdk=21 targetSdk=33\n    versionName=%s\n    flags=[ HAS_CODE ]\n",
		pkg, codePath, code, version)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	return &config.Config{
		Paths: config.PathsConfig{
			DataDir: dir,
			DBFile:  filepath.Join(dir, "history.db"),
			LogFile: filepath.Join(dir, "apkaudit.log"),
		},
		Tools: config.ToolsConfig{Aapt2: "aapt2", Adb: "adb", TimeoutSecs: 5},
		Audit: config.AuditConfig{
			Workers:                  2,
			VersionQualifiedPackages: config.DefaultVersionQualified,
		},
	}
}

// testEnv uses an in-memory filesystem and approves every prompt
func testEnv(t *testing.T, runner helpers.CommandRunner) *Env {
	t.Helper()
	if runner == nil {
		runner = &helpers.MockCommandRunner{}
	}
	return &Env{
		Runner:  runner,
		Fs:      afero.NewMemMapFs(),
		Confirm: func(string) (bool, error) { return true, nil },
		Now:     func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) },
	}
}

// newFixture wires a fake device to an in-memory bundle filesystem
func newFixture(t *testing.T) (*fakeAndroid, *Env, *config.Config) {
	t.Helper()
	env := testEnv(t, nil)
	fake := newFakeAndroid(env.Fs)
	env.Runner = fake.runner()
	return fake, env, testConfig(t)
}

// captureUI sends ui output to w with colors off
func captureUI(t *testing.T, w io.Writer) {
	t.Helper()
	oldOut, oldErr, oldNoColor := ui.Stdout, ui.Stderr, color.NoColor
	ui.Stdout, ui.Stderr = w, w
	color.NoColor = true
	t.Cleanup(func() {
		ui.Stdout, ui.Stderr = oldOut, oldErr
		color.NoColor = oldNoColor
	})
}

package security

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePackageName(t *testing.T) {
	tests := []struct {
		name    string
		pkgName string
		wantErr bool
	}{
		{
			name:    "valid application id",
			pkgName: "com.google.android.youtube.tv",
			wantErr: false,
		},
		{
			name:    "valid with underscores and digits",
			pkgName: "com.example.my_app2",
			wantErr: false,
		},
		{
			name:    "version qualified library",
			pkgName: "com.google.android.trichromelibrary_611311433",
			wantErr: false,
		},
		{
			name:    "empty name",
			pkgName: "",
			wantErr: true,
		},
		{
			name:    "single segment",
			pkgName: "android",
			wantErr: true,
		},
		{
			name:    "segment starting with digit",
			pkgName: "com.1example",
			wantErr: true,
		},
		{
			name:    "dashes",
			pkgName: "com.my-app",
			wantErr: true,
		},
		{
			name:    "shell injection",
			pkgName: "com.example;reboot",
			wantErr: true,
		},
		{
			name:    "spaces",
			pkgName: "com.example app",
			wantErr: true,
		},
		{
			name:    "too long",
			pkgName: "com." + strings.Repeat("a", 300),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePackageName(tt.pkgName)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePackageName(%q) error = %v, wantErr %v", tt.pkgName, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSerial(t *testing.T) {
	tests := []struct {
		serial  string
		wantErr bool
	}{
		{"", false},
		{"emulator-5554", false},
		{"192.168.1.20:5555", false},
		{"R58M12ABCDE", false},
		{"abc def", true},
		{"abc;reboot", true},
		{strings.Repeat("a", 200), true},
	}

	for _, tt := range tests {
		t.Run(tt.serial, func(t *testing.T) {
			err := ValidateSerial(tt.serial)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSerial(%q) error = %v, wantErr %v", tt.serial, err, tt.wantErr)
			}
		})
	}
}

func TestScratchPath(t *testing.T) {
	dest := t.TempDir()

	tests := []struct {
		name  string
		entry string
		want  string
	}{
		{"plain file", "Chrome.apk", "Chrome.apk"},
		{"nested file", "priv-app/Settings/Settings.apk", "priv-app/Settings/Settings.apk"},
		{"dotted file name", "app..v2.apk", "app..v2.apk"},
		{"redundant segments", "apps/./YouTube.apk", "apps/YouTube.apk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScratchPath(dest, tt.entry)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dest, filepath.FromSlash(tt.want)), got)
		})
	}
}

func TestScratchPath_Rejects(t *testing.T) {
	dest := t.TempDir()

	for _, entry := range []string{
		"../evil.apk",
		"apps/../../evil.apk",
		"/system/app/evil.apk",
		"a\x00.apk",
	} {
		t.Run(entry, func(t *testing.T) {
			_, err := ScratchPath(dest, entry)
			assert.ErrorIs(t, err, ErrUnsafeEntry)
		})
	}
}

// SPDX-License-Identifier: MIT
package build

import (
	"errors"
	"os"
	"strings"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origFlags   ldFlags
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origFlags = *buildFlags

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	*buildFlags = origFlags

	os.Exit(exitCode)
}

func resetFlags() {
	buildFlags = &ldFlags{
		Name:        DefaultName,
		Description: DefaultDescription,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantMissing []string
	}{
		{
			"Missing BuildName",
			"",
			"2025-04-13",
			"abcdef123",
			"v1.0.0",
			[]string{"buildName"},
		},
		{
			"Missing Time And Commit",
			"firealarm",
			"",
			"",
			"v1.0.0",
			[]string{"buildTime", "buildCommit"},
		},
		{
			"Missing BuildVersion",
			"firealarm",
			"2025-04-13",
			"abcdef123",
			"",
			[]string{"buildVersion"},
		},
		{
			"Success Case",
			"firealarm",
			"2025-04-13",
			"abcdef123",
			"v1.0.0",
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()

			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if len(tt.wantMissing) > 0 {
				if !errors.Is(err, ErrMissingBuildFlags) {
					t.Fatalf("Initialize() error = %v, want ErrMissingBuildFlags", err)
				}
				for _, flag := range tt.wantMissing {
					if !strings.Contains(err.Error(), flag) {
						t.Errorf("Initialize() error %q does not name %s", err, flag)
					}
				}
				return
			}

			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}
			if buildFlags.Name != tt.buildName {
				t.Errorf("buildFlags.Name = %v, want %v", buildFlags.Name, tt.buildName)
			}
			if buildFlags.Version != tt.buildVer {
				t.Errorf("buildFlags.Version = %v, want %v", buildFlags.Version, tt.buildVer)
			}
		})
	}
}

func TestInitialize_KeepsDefaults(t *testing.T) {
	resetFlags()
	buildName, buildTime, buildCommit, buildVersion = "", "", "", ""

	_ = Initialize()

	flags := GetBuildFlags()
	if flags.Name != DefaultName {
		t.Errorf("Name = %q, want %q", flags.Name, DefaultName)
	}
	if flags.Version != "dev" {
		t.Errorf("Version = %q, want dev", flags.Version)
	}
}

func TestLdFlagsString(t *testing.T) {
	flags := &ldFlags{Name: "firealarm", Version: "v1.0.0", Commit: "abc", Time: "today"}
	want := "firealarm v1.0.0 (commit abc, built today)"
	if got := flags.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata embedded into the binary at link time:
//
//	go build -ldflags "-X firealarm/pkg/build.buildName=firealarm \
//	  -X firealarm/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds run without ldflags, in which case the defaults below
// are reported and Initialize returns ErrMissingBuildFlags.
package build

import (
	"errors"
	"fmt"
)

// ErrMissingBuildFlags is returned by Initialize when a link-time value is absent.
var ErrMissingBuildFlags = errors.New("build flags missing")

const (
	DefaultName        = "firealarm"
	DefaultDescription = "Detects audible fire alarms from a microphone feed"
)

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        DefaultName,
		Description: DefaultDescription,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// Initialize copies the link-time values into the build information. Values
// that were not provided keep their defaults and are reported together in the
// returned error.
func Initialize() error {
	var missing []error
	set := func(dst *string, value, flag string) {
		if value == "" {
			missing = append(missing, fmt.Errorf("%w: %s", ErrMissingBuildFlags, flag))
			return
		}
		*dst = value
	}

	set(&buildFlags.Name, buildName, "buildName")
	set(&buildFlags.Time, buildTime, "buildTime")
	set(&buildFlags.Commit, buildCommit, "buildCommit")
	set(&buildFlags.Version, buildVersion, "buildVersion")

	return errors.Join(missing...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// String renders the build information for --version output.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}

package version

import (
	"fmt"
	"runtime"

	goversion "github.com/hashicorp/go-version"
	"github.com/pkg/errors"
)

var (
	// Version is the version of the engine protocol and the CLI
	Version = "1.2.0"
	// BuildDate is the build date
	BuildDate = "unknown"
	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// MinCompatible is the oldest engine version this client can talk to.
const MinCompatible = "1.0.0"

// Info holds version information
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GitCommit string `json:"commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns version information
func Get() Info {
	return Info{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a formatted version string
func (i Info) String() string {
	return fmt.Sprintf("prisma-engine version %s (%s %s)", i.Version, i.Platform, i.GoVersion)
}

// FullString returns a detailed version string
func (i Info) FullString() string {
	return fmt.Sprintf(`prisma-engine version %s
Build Date: %s
Git Commit: %s
Platform: %s
Go Version: %s`, i.Version, i.BuildDate, i.GitCommit, i.Platform, i.GoVersion)
}

// Compatible reports whether an engine at version remote speaks the
// protocol of this build: same major version and at least MinCompatible.
func Compatible(remote string) error {
	v, err := goversion.NewVersion(remote)
	if err != nil {
		return errors.Wrapf(err, "invalid engine version %q", remote)
	}
	local, err := goversion.NewVersion(Version)
	if err != nil {
		return errors.Wrapf(err, "invalid version %q", Version)
	}
	major := local.Segments()[0]
	constraint, err := goversion.NewConstraint(fmt.Sprintf(">= %s, < %d.0.0", MinCompatible, major+1))
	if err != nil {
		return errors.WithStack(err)
	}
	if !constraint.Check(v) {
		return errors.Errorf("engine version %s is not compatible with client %s (want %s)", v, Version, constraint)
	}
	return nil
}

// Newer reports whether latest is a newer release than the running build.
func Newer(latest string) (bool, error) {
	l, err := goversion.NewVersion(latest)
	if err != nil {
		return false, errors.Wrapf(err, "invalid version %q", latest)
	}
	current, err := goversion.NewVersion(Version)
	if err != nil {
		return false, errors.Wrapf(err, "invalid version %q", Version)
	}
	return current.LessThan(l), nil
}

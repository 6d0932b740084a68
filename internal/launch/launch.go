// Package launch defines the collaborators that prepare a target before the
// debugger attaches: source scanning, build inspection, device selection and
// installation. Implementations live outside the adapter core.
package launch

import (
	"context"
	"fmt"

	"github.com/dshills/droidbug/internal/source"
)

// StaleBuildPolicy selects what happens when sources are newer than the build.
type StaleBuildPolicy string

const (
	StaleIgnore StaleBuildPolicy = "ignore"
	StaleWarn   StaleBuildPolicy = "warn"
	StaleStop   StaleBuildPolicy = "stop"
)

// ParseStaleBuildPolicy parses a policy name. The empty string selects
// StaleWarn; unknown names are an error.
func ParseStaleBuildPolicy(s string) (StaleBuildPolicy, error) {
	switch p := StaleBuildPolicy(s); p {
	case "":
		return StaleWarn, nil
	case StaleIgnore, StaleWarn, StaleStop:
		return p, nil
	default:
		return "", fmt.Errorf("unknown staleBuild policy %q", s)
	}
}

// Request holds the launch arguments sent by the client.
type Request struct {
	AppSrcRoot     string
	APKFile        string
	ADBPort        int
	TargetDevice   string
	LaunchActivity string
	StaleBuild     StaleBuildPolicy
	NoDebug        bool
}

// Build describes the application artifact.
type Build struct {
	// PackageName is the application package, e.g. "com.example.app".
	PackageName string

	// LauncherActivity is the activity the manifest marks as launcher.
	LauncherActivity string

	// Stale is set when a source file is newer than the artifact.
	Stale bool
}

// Launcher prepares the target.
type Launcher interface {
	// ScanSources indexes the source packages under root.
	ScanSources(ctx context.Context, root string) (*source.Packages, error)

	// InspectBuild reads the build artifact named by req.
	InspectBuild(ctx context.Context, req Request, pkgs *source.Packages) (Build, error)

	// SelectDevice picks the device to debug on. An empty serial lets the
	// launcher choose.
	SelectDevice(ctx context.Context, serial string) (string, error)

	// Installed reports whether the device already runs this build.
	Installed(ctx context.Context, device string, b Build) (bool, error)

	// Install deploys the build to the device.
	Install(ctx context.Context, device string, b Build) error
}

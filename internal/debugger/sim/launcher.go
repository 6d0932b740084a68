package sim

import (
	"context"
	"errors"
	"sync"

	"github.com/dshills/droidbug/internal/launch"
	"github.com/dshills/droidbug/internal/source"
)

// ErrNoDevice is returned when a specific device was requested that the
// scenario does not have.
var ErrNoDevice = errors.New("device not found")

// Launcher is a launch.Launcher over a scenario.
type Launcher struct {
	sc *Scenario

	mu       sync.Mutex
	installs int
}

// NewLauncher returns a launcher for sc.
func NewLauncher(sc *Scenario) *Launcher {
	return &Launcher{sc: sc}
}

// Installs returns how many times Install was called.
func (l *Launcher) Installs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.installs
}

// ScanSources implements launch.Launcher. The scenario's packages are
// returned regardless of root.
func (l *Launcher) ScanSources(_ context.Context, _ string) (*source.Packages, error) {
	return source.NewPackages(l.sc.Packages...), nil
}

// InspectBuild implements launch.Launcher.
func (l *Launcher) InspectBuild(_ context.Context, _ launch.Request, _ *source.Packages) (launch.Build, error) {
	return launch.Build{
		PackageName:      l.sc.PackageName,
		LauncherActivity: l.sc.Activity,
		Stale:            l.sc.Stale,
	}, nil
}

// SelectDevice implements launch.Launcher.
func (l *Launcher) SelectDevice(_ context.Context, serial string) (string, error) {
	device := l.sc.Device
	if device == "" {
		device = "emulator-5554"
	}
	if serial != "" && serial != device {
		return "", ErrNoDevice
	}
	return device, nil
}

// Installed implements launch.Launcher.
func (l *Launcher) Installed(_ context.Context, _ string, _ launch.Build) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sc.Installed, nil
}

// Install implements launch.Launcher.
func (l *Launcher) Install(_ context.Context, _ string, _ launch.Build) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.installs++
	l.sc.Installed = true
	return nil
}

var _ launch.Launcher = (*Launcher)(nil)

package adapter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/droidbug/internal/dap"
	"github.com/dshills/droidbug/internal/debugger"
	"github.com/dshills/droidbug/internal/launch"
)

// launchError is a launch failure whose text is shown to the user as is.
type launchError string

func (e launchError) Error() string { return string(e) }

const (
	errStaleBuild       launchError = "Build is not up-to-date"
	errNoLaunchActivity launchError = "No valid launch activity found in AndroidManifest.xml or launch.json"
)

func (s *Session) onLaunch(ctx context.Context, req *dap.Request) {
	var args dap.LaunchRequestArguments
	if !s.decode(req, &args) {
		return
	}
	policy, err := launch.ParseStaleBuildPolicy(args.StaleBuild)
	if err != nil {
		s.fail(req, err.Error())
		return
	}

	s.mu.Lock()
	if s.state != StateStopped {
		state := s.state
		s.mu.Unlock()
		s.fail(req, fmt.Sprintf("cannot launch while %s", state))
		return
	}
	s.state = StateLaunching
	s.mu.Unlock()

	lr := launch.Request{
		AppSrcRoot:     args.AppSrcRoot,
		APKFile:        args.APKFile,
		ADBPort:        args.ADBPort,
		TargetDevice:   args.TargetDevice,
		LaunchActivity: args.LaunchActivity,
		StaleBuild:     policy,
		NoDebug:        args.NoDebug,
	}
	if err := s.launch(ctx, lr); err != nil {
		s.log.Error("launch failed", zap.Error(err))
		s.info("Launch failed: " + err.Error())
		s.end()
		s.sendEvent("terminated", dap.TerminatedEventBody{})
		s.fail(req, err.Error())
		return
	}

	s.mu.Lock()
	ended := s.state == StateEnded
	s.mu.Unlock()
	if ended {
		s.fail(req, "session ended before configuration completed")
		return
	}
	s.resume(ctx, req, true)
}

// launch prepares the target, attaches the agent and waits until the client
// has sent its configuration.
func (s *Session) launch(ctx context.Context, r launch.Request) error {
	pkgs, err := s.launcher.ScanSources(ctx, r.AppSrcRoot)
	if err != nil {
		s.info(`Check the "appSrcRoot" and "apkFile" entries in launch.json`)
		return fmt.Errorf("scan sources: %w", err)
	}
	if pkgs.Len() == 0 {
		s.warn(`No source files found. Check the "appSrcRoot" setting in launch.json`)
	}
	s.mu.Lock()
	s.packages = pkgs
	s.mu.Unlock()

	s.info("Checking build")
	build, err := s.launcher.InspectBuild(ctx, r, pkgs)
	if err != nil {
		return fmt.Errorf("inspect build: %w", err)
	}
	if build.Stale {
		switch r.StaleBuild {
		case launch.StaleStop:
			return errStaleBuild
		case launch.StaleWarn:
			s.warn("Build is not up-to-date. Source files may not match execution when debugging.")
		}
	}

	activity := r.LaunchActivity
	if activity == "" {
		activity = build.LauncherActivity
	}
	if activity == "" {
		return errNoLaunchActivity
	}

	device, err := s.launcher.SelectDevice(ctx, r.TargetDevice)
	if err != nil {
		return fmt.Errorf("select device: %w", err)
	}

	installed, err := s.launcher.Installed(ctx, device, build)
	if err != nil {
		return fmt.Errorf("check installed build: %w", err)
	}
	if installed {
		s.info("Current build already installed")
	} else {
		s.info("Deploying current build...")
		if err := s.launcher.Install(ctx, device, build); err != nil {
			return fmt.Errorf("install: %w", err)
		}
	}

	s.info(fmt.Sprintf("Launching %s/%s on device %s", build.PackageName, activity, device))
	s.dbg.OnEvent(s.onEvent)
	err = s.dbg.Start(ctx, debugger.Target{
		PackageName:  build.PackageName,
		Activity:     activity,
		DeviceSerial: device,
		Packages:     pkgs.Names(),
	})
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}

	s.sendEvent("initialized", nil)
	select {
	case <-s.configured:
		return nil
	case <-s.ended:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

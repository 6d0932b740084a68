package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/droidbug/internal/debugger"
	"github.com/dshills/droidbug/internal/launch"
)

func loadBasic(t *testing.T) *Scenario {
	t.Helper()
	sc, err := LoadScenario("testdata/basic.yaml")
	require.NoError(t, err)
	return sc
}

func TestLoadScenario(t *testing.T) {
	sc := loadBasic(t)

	assert.Equal(t, "com.example.app", sc.PackageName)
	require.Len(t, sc.Threads, 1)
	require.Len(t, sc.Threads[0].Frames, 2)
	assert.Equal(t, "MainActivity.java", sc.Threads[0].Frames[0].Method.Owner.SourceFile)
	assert.Equal(t, 12, sc.Lines["m-oncreate"][4])
	assert.Equal(t, debugger.BreakpointSet, sc.BreakpointState)

	els := sc.Arrays["00000000000000a2"]
	require.Len(t, els, 3)
	assert.Equal(t, "[1]", els[1].Name)
	assert.Equal(t, debugger.KindArrayElement, els[1].Kind)
}

func TestFramesAndLines(t *testing.T) {
	ctx := context.Background()
	d := New(loadBasic(t))
	tid := debugger.FormatThreadID(1)

	frames, err := d.Frames(ctx, tid)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	_, ok := d.SourceLocation(frames[0].Method, frames[0].Location.Index)
	assert.False(t, ok, "lines not loaded yet")

	require.NoError(t, d.EnsureMethodLines(ctx, frames[0].Method))
	line, ok := d.SourceLocation(frames[0].Method, frames[0].Location.Index)
	assert.True(t, ok)
	assert.Equal(t, 12, line)

	_, err = d.Frames(ctx, debugger.FormatThreadID(9))
	assert.True(t, errors.Is(err, debugger.ErrUnknownThread))
}

func TestBreakpointLifecycle(t *testing.T) {
	ctx := context.Background()
	d := New(loadBasic(t))

	var mu sync.Mutex
	var events []debugger.Event
	d.OnEvent(func(ev debugger.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	bp, err := d.SetBreakpoint(ctx, "/com/example/app/MainActivity.java", 12)
	require.NoError(t, err)
	assert.Equal(t, debugger.BreakpointNotLoaded, bp.State)

	require.NoError(t, d.Start(ctx, debugger.Target{PackageName: "com.example.app"}))
	require.Len(t, events, 1)
	changed := events[0].(debugger.BreakpointStateEvent)
	assert.Equal(t, debugger.BreakpointSet, changed.Breakpoints[0].State)

	bp, err = d.SetBreakpoint(ctx, "/com/example/app/MainActivity.java", 20)
	require.NoError(t, err)
	assert.Equal(t, debugger.BreakpointSet, bp.State)

	require.NoError(t, d.ClearBreakpoints(ctx, func(b debugger.Breakpoint) bool { return b.Line == 12 }))
	assert.Len(t, d.Breakpoints(), 1)
}

func TestResumePlaysStops(t *testing.T) {
	ctx := context.Background()
	d := New(loadBasic(t))
	hit := make(chan debugger.StopLocation, 1)
	d.OnEvent(func(ev debugger.Event) {
		if h, ok := ev.(debugger.BreakpointHitEvent); ok {
			hit <- h.Stop
		}
	})

	assert.ErrorIs(t, d.Resume(ctx), debugger.ErrNotConnected)
	require.NoError(t, d.Start(ctx, debugger.Target{PackageName: "com.example.app"}))
	require.NoError(t, d.Resume(ctx))

	select {
	case stop := <-hit:
		assert.Equal(t, debugger.FormatThreadID(1), stop.ThreadID)
		assert.Equal(t, int64(4), stop.Location.Index)
	case <-time.After(2 * time.Second):
		t.Fatal("no breakpoint hit")
	}
	assert.False(t, d.Running())
}

func TestMaxConcurrent(t *testing.T) {
	ctx := context.Background()
	d := New(loadBasic(t), WithLatency(20*time.Millisecond))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.AllThreads(ctx)
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, d.Calls("AllThreads"))
	assert.GreaterOrEqual(t, d.MaxConcurrent(), 2)
}

func TestFailOn(t *testing.T) {
	d := New(loadBasic(t), FailOn("Locals", nil))
	_, err := d.Locals(context.Background(), debugger.FormatThreadID(1), debugger.Frame{})
	assert.ErrorIs(t, err, ErrInjected)
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()
	d := New(loadBasic(t))
	require.NoError(t, d.Start(ctx, debugger.Target{PackageName: "com.example.app"}))

	prev, err := d.Disconnect(ctx)
	require.NoError(t, err)
	assert.Equal(t, debugger.StatusConnected, prev)
	assert.Equal(t, debugger.StatusDisconnected, d.Status())
}

func TestLauncher(t *testing.T) {
	ctx := context.Background()
	l := NewLauncher(loadBasic(t))

	pkgs, err := l.ScanSources(ctx, "/work/app/src")
	require.NoError(t, err)
	assert.Equal(t, 1, pkgs.Len())

	b, err := l.InspectBuild(ctx, launch.Request{}, pkgs)
	require.NoError(t, err)
	assert.Equal(t, ".MainActivity", b.LauncherActivity)

	_, err = l.SelectDevice(ctx, "other")
	assert.ErrorIs(t, err, ErrNoDevice)

	installed, err := l.Installed(ctx, "emulator-5554", b)
	require.NoError(t, err)
	assert.False(t, installed)
	require.NoError(t, l.Install(ctx, "emulator-5554", b))
	assert.Equal(t, 1, l.Installs())
}

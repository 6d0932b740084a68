package adapter

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/droidbug/internal/dap"
	"github.com/dshills/droidbug/internal/debugger"
)

// stackTrace returns the client view of a thread's stack. Line tables of all
// frame methods are loaded first. Frames without a source line are dropped,
// and frames above the outermost one with known source are cut off, since
// they belong to the runtime that launched the application.
func (s *Session) stackTrace(ctx context.Context, args dap.StackTraceArguments) (dap.StackTraceResponseBody, error) {
	threadID := debugger.FormatThreadID(args.ThreadID)
	frames, err := s.dbg.Frames(ctx, threadID)
	if err != nil {
		return dap.StackTraceResponseBody{}, fmt.Errorf("read frames: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	seen := make(map[string]bool)
	for _, f := range frames {
		if seen[f.Method.ID] {
			continue
		}
		seen[f.Method.ID] = true
		m := f.Method
		g.Go(func() error {
			return s.dbg.EnsureMethodLines(gctx, m)
		})
	}
	if err := g.Wait(); err != nil {
		return dap.StackTraceResponseBody{}, fmt.Errorf("load line tables: %w", err)
	}

	start := max(args.StartFrame, 0)
	end := len(frames)
	if args.Levels > 0 {
		end = min(start+args.Levels, end)
	}

	lines := make(map[int]int)
	for i := start; i < end; i++ {
		if line, ok := s.dbg.SourceLocation(frames[i].Method, frames[i].Location.Index); ok {
			lines[i] = line
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stack := make([]dap.StackFrame, 0, max(end-start, 0))
	highest := 0
	for i := start; i < end; i++ {
		f := frames[i]
		id := frameID(args.ThreadID, i)
		s.handles.bind(id, frameLocals{frame: f})

		line, ok := lines[i]
		if !ok {
			continue
		}
		owner := f.Method.Owner
		var src *dap.Source
		if owner.SourceFile != "" {
			src = &dap.Source{Name: owner.SourceFile}
			if pkg, ok := s.packages.Lookup(owner.Type.Package); ok {
				src.Path = filepath.Join(pkg.Dir, owner.SourceFile)
				highest = len(stack)
			} else {
				src.SourceReference = 1
			}
		}
		stack = append(stack, dap.StackFrame{
			ID:     id,
			Name:   owner.Name + "." + f.Method.Name,
			Source: src,
			Line:   s.toClientLineLocked(line),
		})
	}
	if len(stack) > 0 {
		stack = stack[:highest+1]
	}
	return dap.StackTraceResponseBody{StackFrames: stack, TotalFrames: len(stack)}, nil
}

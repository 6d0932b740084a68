package adapter

import (
	"context"

	"go.uber.org/zap"

	"github.com/dshills/droidbug/internal/dap"
	"github.com/dshills/droidbug/internal/debugger"
)

// firstBreakpointID is the first client breakpoint id.
const firstBreakpointID = 1000

type breakpointKey struct {
	relPath string
	line    int // agent line
}

// binding ties a client breakpoint id to an agent breakpoint.
type binding struct {
	id       int
	line     int // client line
	order    int
	verified bool
}

func (b *binding) toDAP() dap.Breakpoint {
	return dap.Breakpoint{ID: b.id, Verified: b.verified, Line: b.line, Order: b.order}
}

// breakpointRegistry tracks the breakpoints the client asked for. It is not
// safe for concurrent use; the session serializes access.
type breakpointRegistry struct {
	nextID int
	bound  map[breakpointKey]*binding
}

func newBreakpointRegistry() *breakpointRegistry {
	return &breakpointRegistry{
		nextID: firstBreakpointID,
		bound:  make(map[breakpointKey]*binding),
	}
}

func (r *breakpointRegistry) newID() int {
	id := r.nextID
	r.nextID++
	return id
}

// detach forgets every binding for relPath whose line is not in keep.
func (r *breakpointRegistry) detach(relPath string, keep map[int]bool) {
	for k := range r.bound {
		if k.relPath == relPath && !keep[k.line] {
			delete(r.bound, k)
		}
	}
}

// setBreakpoints makes the agent's breakpoints for one file match lines,
// which are client line numbers. Lines that were already bound keep their
// ids. Files outside every known package get unverified breakpoints that are
// not tracked.
func (s *Session) setBreakpoints(ctx context.Context, file string, lines []int) []dap.Breakpoint {
	out := make([]dap.Breakpoint, 0, len(lines))

	s.mu.Lock()
	relPath, ok := s.packages.Resolve(file)
	if !ok {
		for i, line := range lines {
			out = append(out, dap.Breakpoint{ID: s.breakpoints.newID(), Line: line, Order: i})
		}
		s.mu.Unlock()
		s.log.Debug("breakpoints in unknown source", zap.String("file", file))
		return out
	}

	keep := make(map[int]bool, len(lines))
	for _, line := range lines {
		keep[s.toAgentLineLocked(line)] = true
	}
	s.breakpoints.detach(relPath, keep)
	s.mu.Unlock()

	err := s.dbg.ClearBreakpoints(ctx, func(bp debugger.Breakpoint) bool {
		return bp.RelPath == relPath && !keep[bp.Line]
	})
	if err != nil {
		s.log.Warn("clear breakpoints failed", zap.String("file", relPath), zap.Error(err))
	}

	for i, line := range lines {
		s.mu.Lock()
		agentLine := s.toAgentLineLocked(line)
		s.mu.Unlock()

		rb, err := s.dbg.SetBreakpoint(ctx, relPath, agentLine)

		s.mu.Lock()
		if err != nil {
			s.log.Warn("set breakpoint failed",
				zap.String("file", relPath), zap.Int("line", agentLine), zap.Error(err))
			out = append(out, dap.Breakpoint{
				ID:      s.breakpoints.newID(),
				Line:    line,
				Order:   i,
				Message: err.Error(),
			})
			s.mu.Unlock()
			continue
		}
		key := breakpointKey{relPath: relPath, line: agentLine}
		b, ok := s.breakpoints.bound[key]
		if !ok {
			b = &binding{
				id:       s.breakpoints.newID(),
				line:     s.toClientLineLocked(agentLine),
				verified: rb.State.Verified(),
			}
			s.breakpoints.bound[key] = b
		}
		b.order = i
		out = append(out, b.toDAP())
		s.mu.Unlock()
	}
	return out
}

// breakpointsChanged forwards agent state changes of bound breakpoints.
func (s *Session) breakpointsChanged(bps []debugger.Breakpoint) {
	var changed []dap.Breakpoint
	s.mu.Lock()
	for _, bp := range bps {
		b, ok := s.breakpoints.bound[breakpointKey{relPath: bp.RelPath, line: bp.Line}]
		if !ok {
			continue
		}
		b.verified = bp.State.Verified()
		changed = append(changed, b.toDAP())
	}
	s.mu.Unlock()

	for _, b := range changed {
		s.sendEvent("breakpoint", dap.BreakpointEventBody{Reason: "changed", Breakpoint: b})
	}
}

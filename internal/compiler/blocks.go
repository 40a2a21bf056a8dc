package compiler

import (
	"github.com/kolkov/stackgen/internal/ast"
)

// BlockKind tags a control-flow frame.
type BlockKind uint8

const (
	LoopBlock    BlockKind = iota // a loop: break and continue targets
	CleanupBlock                  // a protected region with a finally block
)

// BlockFrame is one active loop or cleanup region.
type BlockFrame struct {
	Kind     BlockKind
	Name     string // loop label, empty when unlabelled
	Break    Label
	Continue Label
	Finally  ast.Expr // CleanupBlock

	// Gaps are the ranges holding replays of Finally for jumps out of the
	// region; the region's handlers must not cover them.
	Gaps [][2]Label
}

// BlockStack is the stack of active control-flow frames of one method,
// innermost last.
type BlockStack struct {
	frames []*BlockFrame
}

// PushLoop enters a loop.
func (s *BlockStack) PushLoop(name string, brk, cont Label) *BlockFrame {
	f := &BlockFrame{Kind: LoopBlock, Name: name, Break: brk, Continue: cont}
	s.frames = append(s.frames, f)
	return f
}

// PushCleanup enters a region whose exits must run finally.
func (s *BlockStack) PushCleanup(finally ast.Expr) *BlockFrame {
	f := &BlockFrame{Kind: CleanupBlock, Finally: finally}
	s.frames = append(s.frames, f)
	return f
}

// Pop leaves f, which must be the innermost frame.
func (s *BlockStack) Pop(f *BlockFrame) {
	n := len(s.frames)
	if n == 0 || s.frames[n-1] != f {
		panic("control-flow frame popped out of order")
	}
	s.frames = s.frames[:n-1]
}

// Frame returns the frame at position i.
func (s *BlockStack) Frame(i int) *BlockFrame {
	return s.frames[i]
}

// Depth returns the number of active frames.
func (s *BlockStack) Depth() int {
	return len(s.frames)
}

// FindLoop scans from the innermost frame outward for the loop named
// label, or the innermost loop when label is empty. It returns the loop
// and the positions of the cleanup frames crossed on the way, innermost
// first.
func (s *BlockStack) FindLoop(label string) (*BlockFrame, []int, bool) {
	var crossed []int
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := s.frames[i]
		switch f.Kind {
		case CleanupBlock:
			crossed = append(crossed, i)
		case LoopBlock:
			if label == "" || f.Name == label {
				return f, crossed, true
			}
		}
	}
	return nil, nil, false
}

// Cleanups returns the positions of every cleanup frame, innermost first.
func (s *BlockStack) Cleanups() []int {
	var out []int
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].Kind == CleanupBlock {
			out = append(out, i)
		}
	}
	return out
}

// Replay runs fn to re-emit the finally block of the cleanup frame at
// position i. While fn runs, only the frames outside i are active, so a
// jump inside the finally block does not replay it again.
func (s *BlockStack) Replay(i int, fn func(finally ast.Expr)) {
	saved := s.frames
	s.frames = append([]*BlockFrame(nil), saved[:i]...)
	defer func() { s.frames = saved }()
	fn(saved[i].Finally)
}

package vm

import (
	"fmt"

	"github.com/kolkov/stackgen/internal/compiler"
)

// VerifyError reports a method whose operand stack is not well formed.
type VerifyError struct {
	Method  string
	PC      int
	Message string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify %s at pc %d: %s", e.Method, e.PC, e.Message)
}

// Verify checks every method of p; see VerifyMethod.
func Verify(p *compiler.Program) error {
	for _, c := range p.Classes {
		for _, m := range c.Methods {
			if _, err := VerifyMethod(m); err != nil {
				return err
			}
		}
	}
	return nil
}

// VerifyMethod checks that every reachable instruction of m sees the same
// stack height on every path, that no instruction pops more than the stack
// holds, that control never runs off the code and that slots and jump
// targets are in range. Handlers are entered with the exception alone on
// the stack. It returns the maximum stack height.
func VerifyMethod(m *compiler.Method) (int, error) {
	if m.Abstract {
		return 0, nil
	}
	fail := func(pc int, format string, args ...any) (int, error) {
		return 0, &VerifyError{Method: m.FullName(), PC: pc, Message: fmt.Sprintf(format, args...)}
	}
	n := len(m.Code)
	if n == 0 {
		return fail(0, "empty code")
	}
	depth := make([]int, n)
	for i := range depth {
		depth[i] = -1
	}
	var work []int
	enter := func(pc, d int) error {
		if pc < 0 || pc >= n {
			return &VerifyError{Method: m.FullName(), PC: pc, Message: "control leaves the code"}
		}
		switch depth[pc] {
		case -1:
			depth[pc] = d
			work = append(work, pc)
		case d:
		default:
			return &VerifyError{Method: m.FullName(), PC: pc, Message: fmt.Sprintf("stack height %d, %d on another path", d, depth[pc])}
		}
		return nil
	}

	if err := enter(0, 0); err != nil {
		return 0, err
	}
	for _, h := range m.Handlers {
		if h.Start < 0 || h.End > n || h.Start > h.End {
			return fail(h.Start, "handler range [%d, %d) out of bounds", h.Start, h.End)
		}
		if err := enter(h.Target, 1); err != nil {
			return 0, err
		}
	}

	maxDepth := 0
	for len(work) > 0 {
		pc := work[len(work)-1]
		work = work[:len(work)-1]
		in := &m.Code[pc]

		if (in.Op == compiler.Load || in.Op == compiler.Store || in.Op == compiler.Inc) &&
			(in.Slot < 0 || in.Slot >= m.MaxLocals) {
			return fail(pc, "slot %d outside %d locals", in.Slot, m.MaxLocals)
		}
		pops, pushes := stackEffect(in)
		d := depth[pc]
		if pops > d {
			return fail(pc, "%s pops %d with %d on the stack", in.Op, pops, d)
		}
		d += pushes - pops
		maxDepth = max(maxDepth, d)

		if in.Op.IsJump() {
			if err := enter(in.Target, d); err != nil {
				return 0, err
			}
		}
		if !in.Op.IsTerminal() {
			if err := enter(pc+1, d); err != nil {
				return 0, err
			}
		}
	}
	return maxDepth, nil
}

// stackEffect returns the entries in pops and pushes.
func stackEffect(in *compiler.Instr) (int, int) {
	switch in.Op {
	case compiler.Const, compiler.ConstNull, compiler.Load, compiler.GetStatic, compiler.New:
		return 0, 1
	case compiler.Store, compiler.Pop, compiler.PutStatic, compiler.Throw, compiler.Return:
		return 1, 0
	case compiler.Dup:
		return in.Arg, 2 * in.Arg
	case compiler.DupX:
		return in.Arg + 1, in.Arg + 2
	case compiler.Swap:
		return 2, 2
	case compiler.Add, compiler.Sub, compiler.Mul, compiler.Div, compiler.Rem,
		compiler.And, compiler.Or, compiler.Xor, compiler.Shl, compiler.Shr, compiler.Ushr,
		compiler.Cmp, compiler.ArrayLoad:
		return 2, 1
	case compiler.Neg, compiler.Convert, compiler.GetField, compiler.NewArray, compiler.ArrayLength,
		compiler.InstanceOf, compiler.CheckCast, compiler.Box, compiler.Unbox:
		return 1, 1
	case compiler.PutField:
		return 2, 0
	case compiler.ArrayStore:
		return 3, 0
	case compiler.InvokeStatic, compiler.InvokeVirtual, compiler.InvokeInterface, compiler.InvokeSpecial:
		pops := in.Arg
		if in.Op != compiler.InvokeStatic {
			pops++
		}
		if in.Type.IsVoid() {
			return pops, 0
		}
		return pops, 1
	}
	if in.Op.IsConditional() {
		return in.Op.Pops(), 0
	}
	return 0, 0
}

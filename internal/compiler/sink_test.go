package compiler

import (
	"strings"
	"testing"

	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/types"
)

func ops(code []Instr) string {
	names := make([]string, len(code))
	for i, in := range code {
		names[i] = in.Op.String()
	}
	return strings.Join(names, " ")
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name     string
		from, to types.Type
		want     string
	}{
		{"widen int to long", types.Int, types.Long, "Convert"},
		{"byte to int is free", types.Byte, types.Int, ""},
		{"box into Any?", types.Int, types.NullableAny, "Box"},
		{"box into Int?", types.Int, types.Int.AsNullable(), "Box"},
		{"unbox Any? into Int", types.NullableAny, types.Int, "CheckCast Unbox"},
		{"unbox Int? and widen", types.Int.AsNullable(), types.Long, "Unbox Convert"},
		{"upcast is free", types.String, types.Any, ""},
		{"downcast checks", types.Any, types.String, "CheckCast"},
		{"discard", types.Int, types.Void, "Pop"},
		{"void becomes Unit", types.Void, types.NullableAny, "GetStatic"},
		{"nothing needs nothing", types.Nothing, types.Int, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Method{Owner: "T", Name: "f"}
			e := NewEmitter(NewMethodBuilder(m), nil)
			e.Coerce(tt.from, tt.to)
			if got := ops(m.Code); got != tt.want {
				t.Errorf("Coerce(%s, %s) = %q, want %q", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestMethodBuilderLabels(t *testing.T) {
	m := &Method{Owner: "T", Name: "f", Return: types.Int, Static: true}
	b := NewMethodBuilder(m)
	e := NewEmitter(b, nil)

	start, end, handler, done := b.NewLabel(), b.NewLabel(), b.NewLabel(), b.NewLabel()
	b.Mark(start)
	b.LineNumber(3)
	e.Const(int64(1), types.Int)
	e.Jump(IfEq, done)
	b.Mark(end)
	b.TryCatch(start, end, handler, "")
	empty := b.NewLabel()
	b.Mark(empty)
	b.TryCatch(empty, empty, handler, "Exception")
	b.LineNumber(4)
	e.Const(int64(2), types.Int)
	e.TypedOp(Return, types.Int)
	b.Mark(handler)
	b.Mark(done)
	e.Const(int64(0), types.Int)
	e.TypedOp(Return, types.Int)

	got, err := b.Finish(0)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got.Code[1].Target != 4 {
		t.Errorf("jump target = %d, want 4", got.Code[1].Target)
	}
	if len(got.Handlers) != 1 {
		t.Fatalf("handlers = %v, want one (the empty range dropped)", got.Handlers)
	}
	if h := got.Handlers[0]; h.Start != 0 || h.End != 2 || h.Target != 4 {
		t.Errorf("handler = %+v", h)
	}
	if got.LineAt(0) != 3 || got.LineAt(3) != 4 {
		t.Errorf("lines = %v", got.Lines)
	}
}

func TestMethodBuilderUnboundLabel(t *testing.T) {
	m := &Method{Owner: "T", Name: "f"}
	b := NewMethodBuilder(m)
	NewEmitter(b, nil).Jump(Jump, b.NewLabel())
	if _, err := b.Finish(0); err == nil {
		t.Error("Finish succeeded with an unbound label")
	}
}

func TestMarkTwicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("second Mark did not panic")
		}
	}()
	b := NewMethodBuilder(&Method{})
	l := b.NewLabel()
	b.Mark(l)
	b.Mark(l)
}

func TestOpcodeNegate(t *testing.T) {
	for op := IfEq; op <= IfNonNull; op++ {
		if op.Negate().Negate() != op {
			t.Errorf("%s negated twice = %s", op, op.Negate().Negate())
		}
		if op.Negate() == op {
			t.Errorf("%s negates to itself", op)
		}
	}
}

func TestCompareForms(t *testing.T) {
	tests := []struct {
		name        string
		v           StackValue
		jumpIfFalse bool
		want        string
	}{
		{"int pair", Compare(ast.OpLess, types.Int), false, "IfCmpLt"},
		{"against zero", CompareZero(ast.OpGreaterEq), false, "IfGe"},
		{"against zero negated", CompareZero(ast.OpLess), true, "IfGe"},
		{"is null", CompareNull(ast.OpEq), false, "IfNull"},
		{"not null", CompareNull(ast.OpNotEq), false, "IfNonNull"},
		{"is null negated", CompareNull(ast.OpEq), true, "IfNonNull"},
		{"references", Compare(ast.OpIdentity, types.NullableAny), false, "IfRefEq"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Method{Owner: "T", Name: "f"}
			b := NewMethodBuilder(m)
			e := NewEmitter(b, nil)
			tt.v.CondJump(e, b.NewLabel(), tt.jumpIfFalse)
			if got := ops(m.Code); got != tt.want {
				t.Errorf("CondJump = %q, want %q", got, tt.want)
			}
		})
	}
	if f := CompareZero(ast.OpLess).Form; f != FormZero {
		t.Errorf("CompareZero form = %d, want FormZero", f)
	}
	if f := CompareNull(ast.OpEq).Form; f != FormNull {
		t.Errorf("CompareNull form = %d, want FormNull", f)
	}
}

package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/pattern"
	"github.com/kolkov/stackgen/internal/semantic"
	"github.com/kolkov/stackgen/internal/types"
)

// Expansion lowers a call inline instead of invoking callee. ops holds the
// receiver, if any, followed by one operand per parameter; result is the
// type the call is declared to produce.
type Expansion func(g *Generator, callee *ast.Callable, ops []Operand, result types.Type) StackValue

// Keys of the expansions beyond those the library catalog attaches.
const (
	IntrinsicIdentity = "identity"

	intrinsicArith  = semantic.IntrinsicArith
	intrinsicIncDec = semantic.IntrinsicIncDec
)

// IntrinsicTable maps callables to inline expansions. A callable is matched
// by the key the library attached to it, then by its full name, then by
// the name patterns in registration order.
//
// The table is read concurrently by function passes and must not be
// modified once compilation starts.
type IntrinsicTable struct {
	expansions map[string]Expansion
	names      map[string]string
	patterns   []intrinsicPattern
}

type intrinsicPattern struct {
	re  *pattern.Pattern
	key string
}

// patternCache is shared by all tables; configurations are usually loaded
// once and compiled many times.
var patternCache = pattern.NewCache(256)

// NewIntrinsicTable returns an empty table.
func NewIntrinsicTable() *IntrinsicTable {
	return &IntrinsicTable{
		expansions: make(map[string]Expansion),
		names:      make(map[string]string),
	}
}

// DefaultIntrinsics returns a table with the expansions of the library
// catalog's operator keys.
func DefaultIntrinsics() *IntrinsicTable {
	t := NewIntrinsicTable()
	t.Register(semantic.IntrinsicArith, expandArith)
	t.Register(semantic.IntrinsicUnary, expandUnary)
	t.Register(semantic.IntrinsicIncDec, expandIncDec)
	t.Register(semantic.IntrinsicConvert, expandConvert)
	t.Register(semantic.IntrinsicCompareTo, expandCompareTo)
	t.Register(semantic.IntrinsicRangeTo, expandRange(false))
	t.Register(semantic.IntrinsicDownTo, expandRange(true))
	t.Register(semantic.IntrinsicStringPlus, expandStringPlus)
	t.Register(semantic.IntrinsicArraySize, expandArraySize)
	t.Register(IntrinsicIdentity, expandIdentity)
	return t
}

// Register installs the expansion for key, replacing any previous one.
func (t *IntrinsicTable) Register(key string, x Expansion) {
	t.expansions[key] = x
}

// Alias expands calls of the callable named fullName ("Owner.name") with
// the expansion registered for key.
func (t *IntrinsicTable) Alias(fullName, key string) error {
	if _, ok := t.expansions[key]; !ok {
		return fmt.Errorf("unknown intrinsic %q", key)
	}
	t.names[fullName] = key
	return nil
}

// RegisterPattern expands calls whose full name matches the regular
// expression src, anchored at both ends, with the expansion of key.
func (t *IntrinsicTable) RegisterPattern(src, key string) error {
	if _, ok := t.expansions[key]; !ok {
		return fmt.Errorf("unknown intrinsic %q", key)
	}
	re, err := patternCache.Get(src)
	if err != nil {
		return fmt.Errorf("intrinsic pattern %q: %w", src, err)
	}
	t.patterns = append(t.patterns, intrinsicPattern{re: re, key: key})
	return nil
}

// ParseAlias installs a "name=key" definition. A name containing regular
// expression syntax is registered as a pattern.
func (t *IntrinsicTable) ParseAlias(def string) error {
	name, key, ok := strings.Cut(def, "=")
	name, key = strings.TrimSpace(name), strings.TrimSpace(key)
	if !ok || name == "" || key == "" {
		return fmt.Errorf("intrinsic alias %q: want name=key", def)
	}
	if !pattern.IsLiteral(name) {
		return t.RegisterPattern(name, key)
	}
	return t.Alias(name, key)
}

// Lookup returns the expansion for c.
func (t *IntrinsicTable) Lookup(c *ast.Callable) (Expansion, bool) {
	if t == nil || c == nil {
		return nil, false
	}
	if c.Intrinsic != "" {
		x, ok := t.expansions[c.Intrinsic]
		return x, ok
	}
	if len(t.names) == 0 && len(t.patterns) == 0 {
		return nil, false
	}
	name := c.FullName()
	if key, ok := t.names[name]; ok {
		return t.expansions[key], true
	}
	for _, p := range t.patterns {
		if p.re.MatchString(name) {
			return t.expansions[p.key], true
		}
	}
	return nil, false
}

// Keys returns the registered expansion keys in order.
func (t *IntrinsicTable) Keys() []string {
	keys := make([]string, 0, len(t.expansions))
	for k := range t.expansions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// -----------------------------------------------------------------------------
// Expansions
// -----------------------------------------------------------------------------

// promote returns the type binary arithmetic on a and b is carried out in.
func promote(a, b types.Type) types.Type {
	a, b = a.Unboxed(), b.Unboxed()
	if a.Kind == types.KindBoolean && b.Kind == types.KindBoolean {
		return types.Boolean
	}
	k := max(a.Kind, b.Kind, types.KindInt)
	if k > types.KindDouble {
		k = types.KindInt
	}
	return types.Type{Kind: k}
}

var arithOps = map[string]Opcode{
	"plus":  Add,
	"minus": Sub,
	"times": Mul,
	"div":   Div,
	"rem":   Rem,
	"and":   And,
	"or":    Or,
	"xor":   Xor,
	"shl":   Shl,
	"shr":   Shr,
	"ushr":  Ushr,
}

func expandArith(g *Generator, c *ast.Callable, ops []Operand, result types.Type) StackValue {
	op, ok := arithOps[c.Name]
	if !ok || len(ops) != 2 {
		g.fail(g.node, "no arithmetic expansion for %s", c.FullName())
	}
	lt, rt := ops[0].Type.Unboxed(), ops[1].Type.Unboxed()
	ot := promote(lt, rt)
	switch op {
	case Shl, Shr, Ushr:
		ot = promote(lt, lt)
		ops[0].Put(g, ot)
		ops[1].Put(g, types.Int)
	default:
		ops[0].Put(g, ot)
		ops[1].Put(g, ot)
	}
	g.e.TypedOp(op, ot)
	g.e.Coerce(ot, result)
	return OnStack(result)
}

func expandUnary(g *Generator, c *ast.Callable, ops []Operand, result types.Type) StackValue {
	if c.Name == "not" {
		if ops[0].expr != nil {
			return Not(g.gen(ops[0].expr))
		}
		ops[0].Put(g, types.Boolean)
		return Not(OnStack(types.Boolean))
	}
	ot := promote(ops[0].Type, ops[0].Type)
	ops[0].Put(g, ot)
	switch c.Name {
	case "unaryMinus":
		g.e.TypedOp(Neg, ot)
	case "inv":
		g.e.Const(int64(-1), ot)
		g.e.TypedOp(Xor, ot)
	case "unaryPlus":
	default:
		g.fail(g.node, "no unary expansion for %s", c.FullName())
	}
	g.e.Coerce(ot, result)
	return OnStack(result)
}

func expandIncDec(g *Generator, c *ast.Callable, ops []Operand, result types.Type) StackValue {
	ot := promote(ops[0].Type, ops[0].Type)
	ops[0].Put(g, ot)
	g.e.Const(int64(1), ot)
	if c.Name == "dec" {
		g.e.TypedOp(Sub, ot)
	} else {
		g.e.TypedOp(Add, ot)
	}
	g.e.Coerce(ot, result)
	return OnStack(result)
}

func expandConvert(g *Generator, c *ast.Callable, ops []Operand, result types.Type) StackValue {
	from := ops[0].Type.Unboxed()
	ops[0].Put(g, from)
	g.e.Coerce(from, result)
	return OnStack(result)
}

func expandCompareTo(g *Generator, c *ast.Callable, ops []Operand, result types.Type) StackValue {
	ot := promote(ops[0].Type, ops[1].Type)
	ops[0].Put(g, ot)
	ops[1].Put(g, ot)
	g.e.Emit(Instr{Op: Cmp, Type: ot, Arg: 1})
	return OnStack(types.Int)
}

func expandRange(reversed bool) Expansion {
	return func(g *Generator, c *ast.Callable, ops []Operand, result types.Type) StackValue {
		g.e.New(types.IntRangeName)
		g.e.Dup(1)
		ops[0].Put(g, types.Int)
		ops[1].Put(g, types.Int)
		g.e.Const(reversed, types.Boolean)
		g.e.Call(InvokeSpecial, types.IntRangeName, "<init>", 3, types.Void)
		return OnStack(types.IntRange)
	}
}

func expandStringPlus(g *Generator, c *ast.Callable, ops []Operand, result types.Type) StackValue {
	g.newBuilder()
	for _, op := range ops {
		op.Put(g, types.NullableAny)
		g.appendBuilder()
	}
	g.e.Call(InvokeVirtual, stringBuilder, "toString", 0, types.String)
	return OnStack(types.String)
}

func expandArraySize(g *Generator, c *ast.Callable, ops []Operand, result types.Type) StackValue {
	ops[0].Put(g, ops[0].Type)
	g.e.Op(ArrayLength)
	g.e.Coerce(types.Int, result)
	return OnStack(result)
}

func expandIdentity(g *Generator, c *ast.Callable, ops []Operand, result types.Type) StackValue {
	if len(ops) == 0 {
		return None()
	}
	for _, op := range ops[:len(ops)-1] {
		op.Put(g, types.Void)
	}
	ops[len(ops)-1].Put(g, result)
	return OnStack(result)
}

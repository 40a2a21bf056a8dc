package stackgen

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/kolkov/stackgen/internal/compiler"
	"github.com/kolkov/stackgen/internal/pattern"
	"github.com/kolkov/stackgen/internal/types"
	"github.com/kolkov/stackgen/internal/vm"
)

// Program is a lowered compilation unit ready for execution.
// It is safe for concurrent use; each call creates an independent
// machine, so static state is not shared between calls.
type Program struct {
	compiled *compiler.Program
	config   Config
}

var cborEncMode cbor.EncMode

func init() {
	var err error
	cborEncMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("stackgen: failed to create CBOR enc mode: %v", err))
	}
}

// MarshalCBOR encodes the program in canonical CBOR. Equal programs
// encode to equal bytes.
func (p *Program) MarshalCBOR() ([]byte, error) {
	data, err := cborEncMode.Marshal(p.compiled)
	if err != nil {
		return nil, fmt.Errorf("encode program: %w", err)
	}
	return data, nil
}

// UnmarshalProgram decodes a program written by MarshalCBOR and verifies
// its code before returning it. A nil config selects the defaults.
func UnmarshalProgram(data []byte, config *Config) (*Program, error) {
	var compiled compiler.Program
	if err := cbor.Unmarshal(data, &compiled); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	compiled.NormalizeConsts()
	if err := vm.Verify(&compiled); err != nil {
		return nil, publicError(err)
	}
	return newProgram(&compiled, config), nil
}

func newProgram(compiled *compiler.Program, config *Config) *Program {
	p := &Program{compiled: compiled}
	if config != nil {
		p.config = *config
	}
	p.config.applyDefaults()
	return p
}

// Unit returns the name of the class holding the top-level functions.
func (p *Program) Unit() string {
	return p.compiled.Unit
}

// Classes returns the names of the generated classes in generation order:
// the unit class, declared classes and the synthesized literal classes.
func (p *Program) Classes() []string {
	names := make([]string, len(p.compiled.Classes))
	for i, c := range p.compiled.Classes {
		names[i] = c.Name
	}
	return names
}

// Disassemble returns a human-readable listing of the generated classes.
func (p *Program) Disassemble() string {
	return p.compiled.Disassemble()
}

// DisassembleMatching lists only the methods whose full name
// ("Owner.name") contains a match of the regular expression expr.
func (p *Program) DisassembleMatching(expr string) (string, error) {
	re, err := pattern.Compile(expr)
	if err != nil {
		return "", fmt.Errorf("method pattern %q: %w", expr, err)
	}
	return p.compiled.DisassembleFunc(func(m *compiler.Method) bool {
		return re.MatchString(m.FullName())
	}), nil
}

// Call runs the static method named by entry with the given arguments and
// returns its result. entry is either a top-level function name or
// "Class.name". Arguments are converted to the parameter types: Go bool,
// integer, floating-point and string values are accepted, and nil for
// nullable parameters.
//
// Results are converted back: primitives to bool, rune, int8, int16, int,
// int64, float32 or float64, strings to string, Unit and null to nil,
// and any other object to its string form.
func (p *Program) Call(ctx context.Context, entry string, args ...any) (any, error) {
	return p.call(ctx, p.config, entry, args)
}

func (p *Program) call(ctx context.Context, config Config, entry string, args []any) (any, error) {
	owner, name := p.compiled.Unit, entry
	if i := strings.LastIndexByte(entry, '.'); i >= 0 {
		owner, name = entry[:i], entry[i+1:]
	}
	var m *compiler.Method
	if c := p.compiled.Class(owner); c != nil {
		m = c.Method(name)
	}
	if m == nil || !m.Static {
		return nil, &RuntimeError{Message: fmt.Sprintf("no static method %s.%s", owner, name)}
	}
	if len(args) != len(m.Params) {
		return nil, &RuntimeError{
			Method:  m.FullName(),
			Message: fmt.Sprintf("takes %d arguments, got %d", len(m.Params), len(args)),
		}
	}
	values := make([]types.Value, len(args))
	for i, a := range args {
		v, err := toValue(a, m.Params[i])
		if err != nil {
			return nil, &RuntimeError{Method: m.FullName(), Message: fmt.Sprintf("argument %d: %v", i+1, err)}
		}
		values[i] = v
	}

	machine := vm.New(p.compiled, vm.Config{Output: config.Output, MaxCallDepth: config.MaxCallDepth})
	res, err := machine.Call(ctx, owner, name, values...)
	if err != nil {
		return nil, publicError(err)
	}
	out, err := fromValue(machine, res, m.Return)
	if err != nil {
		return nil, publicError(err)
	}
	return out, nil
}

// Run runs entry with no arguments and returns what it printed. If
// config.Output is set, output is written there and the returned string
// is empty.
func (p *Program) Run(ctx context.Context, entry string) (string, error) {
	config := p.config
	var buf *bytes.Buffer
	if config.Output == nil {
		buf = &bytes.Buffer{}
		config.Output = buf
	}
	if _, err := p.call(ctx, config, entry, nil); err != nil {
		if buf != nil {
			return buf.String(), err
		}
		return "", err
	}
	if buf != nil {
		return buf.String(), nil
	}
	return "", nil
}

// toValue converts a Go argument to a value of type t.
func toValue(x any, t types.Type) (types.Value, error) {
	if x == nil {
		if !t.Nullable {
			return types.Value{}, fmt.Errorf("null passed for %s", t)
		}
		return types.Null(), nil
	}
	if s, ok := x.(string); ok {
		if t.Unboxed().IsPrimitiveKind() {
			return types.Value{}, fmt.Errorf("string passed for %s", t)
		}
		return types.Str(s), nil
	}

	k := t.Unboxed().Kind
	if !t.Unboxed().IsPrimitiveKind() {
		// Any and other reference types receive a boxed primitive of
		// the argument's own kind.
		k = goKind(x)
	}
	v, ok := primitive(x, k)
	if !ok {
		return types.Value{}, fmt.Errorf("cannot pass %T as %s", x, t)
	}
	if t.IsPrimitive() {
		return v, nil
	}
	return types.Ref(vm.Boxed{Kind: k, Value: v}), nil
}

// goKind returns the primitive kind a Go value maps to.
func goKind(x any) types.Kind {
	switch x.(type) {
	case bool:
		return types.KindBoolean
	case int8:
		return types.KindByte
	case int16:
		return types.KindShort
	case int64:
		return types.KindLong
	case float32:
		return types.KindFloat
	case float64:
		return types.KindDouble
	}
	return types.KindInt
}

// primitive converts a Go boolean or number to a value of kind k.
func primitive(x any, k types.Kind) (types.Value, bool) {
	var v types.Value
	var from types.Kind
	switch n := x.(type) {
	case bool:
		if k != types.KindBoolean {
			return types.Value{}, false
		}
		return types.BoolVal(n), true
	case int:
		v, from = types.LongVal(int64(n)), types.KindLong
	case int8:
		v, from = types.IntVal(int32(n)), types.KindInt
	case int16:
		v, from = types.IntVal(int32(n)), types.KindInt
	case int32:
		v, from = types.IntVal(n), types.KindInt
	case int64:
		v, from = types.LongVal(n), types.KindLong
	case float32:
		v, from = types.FloatVal(n), types.KindFloat
	case float64:
		v, from = types.DoubleVal(n), types.KindDouble
	default:
		return types.Value{}, false
	}
	if k == types.KindBoolean {
		return types.Value{}, false
	}
	return types.Convert(v, from, k), true
}

// fromValue converts a result of type t to its Go form.
func fromValue(machine *vm.VM, v types.Value, t types.Type) (any, error) {
	switch {
	case t.IsVoid(), t.IsUnit(), v.IsNull():
		return nil, nil
	case t.IsPrimitive():
		return goValue(v, t.Kind), nil
	}
	switch x := v.Ref().(type) {
	case vm.Boxed:
		return goValue(x.Value, x.Kind), nil
	case string:
		return x, nil
	}
	return machine.Render(v)
}

func goValue(v types.Value, k types.Kind) any {
	switch k {
	case types.KindBoolean:
		return v.AsBool()
	case types.KindChar:
		return rune(v.AsInt())
	case types.KindByte:
		return int8(v.AsInt())
	case types.KindShort:
		return int16(v.AsInt())
	case types.KindInt:
		return int(v.AsInt())
	case types.KindLong:
		return v.AsLong()
	case types.KindFloat:
		return float32(v.AsDouble())
	case types.KindDouble:
		return v.AsDouble()
	}
	return v.String()
}

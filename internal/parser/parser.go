package parser

import (
	"strconv"
	"strings"

	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/lexer"
	"github.com/kolkov/stackgen/internal/token"
	"github.com/kolkov/stackgen/internal/types"
)

// Parser decodes dump data into the ast model.
type Parser struct {
	errors   ErrorList
	filename string

	unit *ast.Unit
	fun  *ast.FunDecl  // function being decoded
	cls  *ast.ClassDecl // class being decoded
}

// flags are keywords that take no value.
var flags = map[string]bool{
	"interface": true,
	"static":    true,
	"vararg":    true,
}

// Parse reads a unit from dump source.
func Parse(src string) (*ast.Unit, error) {
	return ParseFile("", []byte(src))
}

// ParseFile reads a unit from dump source; filename is used in positions.
func ParseFile(filename string, src []byte) (*ast.Unit, error) {
	p := &Parser{filename: filename}
	data := p.readAll(src)
	if err := p.errors.Err(); err != nil {
		return nil, err
	}
	var unit *ast.Unit
	for _, d := range data {
		if d.head() != "unit" {
			p.errorf(d, "expected (unit ...), got %s", d)
			continue
		}
		if unit != nil {
			p.errorf(d, "more than one unit")
			continue
		}
		unit = p.parseUnit(d)
	}
	if unit == nil && len(p.errors) == 0 {
		p.errors.Add(token.Position{Filename: filename, Line: 1, Column: 1}, "missing (unit ...)")
	}
	if err := p.errors.Err(); err != nil {
		return nil, err
	}
	return unit, nil
}

// ParseExpr reads a single expression (useful for testing).
func ParseExpr(src string) (ast.Expr, error) {
	p := &Parser{unit: &ast.Unit{Name: "main"}}
	data := p.readAll([]byte(src))
	if err := p.errors.Err(); err != nil {
		return nil, err
	}
	if len(data) != 1 {
		return nil, &ParseError{Message: "expected exactly one expression"}
	}
	e := p.parseExpr(data[0])
	if err := p.errors.Err(); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *Parser) readAll(src []byte) []*sexp {
	r := &reader{lexer: lexer.New(src), errors: &p.errors}
	r.next()
	data := r.readAll()
	if p.filename != "" {
		for _, d := range data {
			setFilename(d, p.filename)
		}
	}
	return data
}

func setFilename(d *sexp, name string) {
	d.tok.Pos.Filename = name
	for _, it := range d.items {
		setFilename(it, name)
	}
}

func (p *Parser) errorf(d *sexp, format string, args ...any) {
	p.errors.Add(d.pos(), format, args...)
}

// split separates positional items (after the head) from :keyword values.
func (p *Parser) split(d *sexp) ([]*sexp, map[string]*sexp) {
	var args []*sexp
	kw := map[string]*sexp{}
	if len(d.items) == 0 {
		return nil, kw
	}
	items := d.items[1:]
	for i := 0; i < len(items); i++ {
		it := items[i]
		if it.list || it.tok.Type != token.KEYWORD {
			args = append(args, it)
			continue
		}
		if flags[it.tok.Value] {
			kw[it.tok.Value] = it
			continue
		}
		if i+1 >= len(items) {
			p.errorf(it, "keyword :%s needs a value", it.tok.Value)
			break
		}
		kw[it.tok.Value] = items[i+1]
		i++
	}
	return args, kw
}

// want checks the positional argument count of a form.
func (p *Parser) want(d *sexp, args []*sexp, min, max int) bool {
	if len(args) < min || (max >= 0 && len(args) > max) {
		p.errorf(d, "(%s ...) takes %s, got %d", d.head(), arity(min, max), len(args))
		return false
	}
	return true
}

func arity(min, max int) string {
	switch {
	case min == max:
		return strconv.Itoa(min) + " arguments"
	case max < 0:
		return "at least " + strconv.Itoa(min) + " arguments"
	}
	return strconv.Itoa(min) + " to " + strconv.Itoa(max) + " arguments"
}

func (p *Parser) symbol(d *sexp) string {
	if d.list || d.tok.Type != token.SYMBOL {
		p.errorf(d, "expected symbol, got %s", d)
		return "_"
	}
	return d.tok.Value
}

func (p *Parser) parseType(d *sexp) types.Type {
	name := p.symbol(d)
	t, err := types.Parse(name)
	if err != nil {
		p.errorf(d, "%v", err)
		return types.NullableAny
	}
	return t
}

// ref splits "Owner.name" at the last dot.
func (p *Parser) ref(d *sexp) (string, string) {
	s := p.symbol(d)
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		p.errorf(d, "expected Owner.name, got %s", s)
		return "", s
	}
	return s[:i], s[i+1:]
}

// callable returns an unbound callable reference for the semantic pass.
func (p *Parser) callable(d *sexp) *ast.Callable {
	owner, name := p.ref(d)
	return &ast.Callable{Owner: owner, Name: name}
}

// -----------------------------------------------------------------------------
// Declarations
// -----------------------------------------------------------------------------

func (p *Parser) parseUnit(d *sexp) *ast.Unit {
	args, _ := p.split(d)
	if !p.want(d, args, 1, -1) {
		return &ast.Unit{StartPos: d.pos()}
	}
	p.unit = &ast.Unit{StartPos: d.pos(), Name: p.symbol(args[0])}
	for _, decl := range args[1:] {
		switch decl.head() {
		case "class":
			p.unit.Classes = append(p.unit.Classes, p.parseClass(decl))
		case "fun":
			f := p.parseFun(decl, p.unit.Name, nil)
			f.Static = true
			p.unit.Functions = append(p.unit.Functions, f)
		case "global":
			p.unit.Globals = append(p.unit.Globals, p.parseGlobal(decl))
		default:
			p.errorf(decl, "expected class, fun or global declaration, got %s", decl)
		}
	}
	return p.unit
}

func (p *Parser) parseGlobal(d *sexp) *ast.GlobalDecl {
	args, _ := p.split(d)
	g := &ast.GlobalDecl{StartPos: d.pos()}
	if !p.want(d, args, 2, 3) {
		return g
	}
	g.Name = p.symbol(args[0])
	g.Type = p.parseType(args[1])
	if len(args) == 3 {
		g.Init = p.parseExpr(args[2])
	}
	g.Ref = &ast.FieldRef{Owner: p.unit.Name, Name: g.Name, Type: g.Type, Static: true}
	return g
}

func (p *Parser) parseClass(d *sexp) *ast.ClassDecl {
	args, kw := p.split(d)
	c := &ast.ClassDecl{StartPos: d.pos()}
	if !p.want(d, args, 1, -1) {
		return c
	}
	c.Name = p.symbol(args[0])
	p.classHeader(c, kw)
	p.classMembers(c, args[1:])
	return c
}

func (p *Parser) classHeader(c *ast.ClassDecl, kw map[string]*sexp) {
	if s, ok := kw["super"]; ok {
		c.SuperName = p.symbol(s)
	}
	if l, ok := kw["implements"]; ok {
		if !l.list {
			p.errorf(l, ":implements takes a list of interface names")
		}
		for _, it := range l.items {
			c.Interfaces = append(c.Interfaces, p.symbol(it))
		}
	}
	_, c.Interface = kw["interface"]
}

func (p *Parser) classMembers(c *ast.ClassDecl, members []*sexp) {
	saved := p.cls
	p.cls = c
	defer func() { p.cls = saved }()
	for _, m := range members {
		switch m.head() {
		case "field":
			args, _ := p.split(m)
			if !p.want(m, args, 2, 2) {
				continue
			}
			f := &ast.FieldDecl{StartPos: m.pos(), Name: p.symbol(args[0]), Type: p.parseType(args[1])}
			f.Ref = &ast.FieldRef{Owner: c.Name, Name: f.Name, Type: f.Type}
			c.Fields = append(c.Fields, f)
		case "property":
			c.Properties = append(c.Properties, p.parseProperty(c, m))
		case "fun":
			f := p.parseFun(m, c.Name, nil)
			f.Class = c
			c.Methods = append(c.Methods, f)
		default:
			p.errorf(m, "expected field, property or fun member, got %s", m)
		}
	}
}

func (p *Parser) parseProperty(c *ast.ClassDecl, d *sexp) *ast.PropertyDecl {
	args, _ := p.split(d)
	prop := &ast.PropertyDecl{StartPos: d.pos()}
	if !p.want(d, args, 2, 4) {
		return prop
	}
	prop.Name = p.symbol(args[0])
	prop.Type = p.parseType(args[1])
	prop.Ref = &ast.FieldRef{Owner: c.Name, Name: prop.Name, Type: prop.Type}
	suffix := strings.ToUpper(prop.Name[:1]) + prop.Name[1:]
	for _, acc := range args[2:] {
		accArgs, _ := p.split(acc)
		switch acc.head() {
		case "get":
			if !p.want(acc, accArgs, 1, 1) {
				continue
			}
			f := &ast.FunDecl{StartPos: acc.pos(), Name: "get" + suffix, Owner: c.Name, Return: prop.Type, Class: c}
			p.withFun(f, func() { f.Body = p.parseExpr(accArgs[0]) })
			prop.Getter = f
		case "set":
			if !p.want(acc, accArgs, 2, 2) || !accArgs[0].list || len(accArgs[0].items) != 1 {
				p.errorf(acc, "expected (set (v) BODY)")
				continue
			}
			f := &ast.FunDecl{StartPos: acc.pos(), Name: "set" + suffix, Owner: c.Name, Return: types.Unit, Class: c}
			v := &ast.Var{Name: p.symbol(accArgs[0].items[0]), Type: prop.Type, Kind: ast.VarParam, Pos: acc.pos(), Fun: f}
			f.Params = []*ast.Param{{Var: v}}
			p.withFun(f, func() { f.Body = p.parseExpr(accArgs[1]) })
			prop.Setter = f
		default:
			p.errorf(acc, "expected (get ...) or (set ...), got %s", acc)
		}
	}
	return prop
}

func (p *Parser) withFun(f *ast.FunDecl, fn func()) {
	saved := p.fun
	f.Outer = saved
	p.fun = f
	fn()
	p.fun = saved
}

// parseFun decodes (fun NAME [:receiver T] [:static] (PARAMS) RET [BODY]).
// A nil name item makes an anonymous function (lambda).
func (p *Parser) parseFun(d *sexp, owner string, nameless *string) *ast.FunDecl {
	args, kw := p.split(d)
	f := &ast.FunDecl{StartPos: d.pos(), Owner: owner}
	if nameless != nil {
		f.Name = *nameless
		args = append([]*sexp{nil}, args...)
	}
	if !p.want(d, args, 3, 4) {
		return f
	}
	if args[0] != nil {
		f.Name = p.symbol(args[0])
	}
	if r, ok := kw["receiver"]; ok {
		t := p.parseType(r)
		f.Receiver = &t
	}
	_, f.Static = kw["static"]
	f.Return = p.parseType(args[2])
	p.withFun(f, func() {
		if !args[1].list {
			p.errorf(args[1], "expected parameter list")
			return
		}
		for _, pd := range args[1].items {
			f.Params = append(f.Params, p.parseParam(f, pd))
		}
		if len(args) == 4 {
			f.Body = p.parseExpr(args[3])
		}
	})
	return f
}

func (p *Parser) parseParam(f *ast.FunDecl, d *sexp) *ast.Param {
	if !d.list || len(d.items) < 2 {
		p.errorf(d, "expected (name Type ...) parameter")
		return &ast.Param{Var: &ast.Var{Name: "_", Type: types.NullableAny, Kind: ast.VarParam, Fun: f}}
	}
	items := append([]*sexp{nil}, d.items...) // split skips the head slot
	args, kw := p.split(&sexp{tok: d.tok, list: true, items: items})
	if len(args) != 2 {
		p.errorf(d, "expected (name Type ...) parameter")
		return &ast.Param{Var: &ast.Var{Name: "_", Type: types.NullableAny, Kind: ast.VarParam, Fun: f}}
	}
	v := &ast.Var{Name: p.symbol(args[0]), Type: p.parseType(args[1]), Kind: ast.VarParam, Pos: d.pos(), Fun: f}
	prm := &ast.Param{Var: v}
	if def, ok := kw["default"]; ok {
		prm.Default = p.parseExpr(def)
	}
	_, prm.Vararg = kw["vararg"]
	if prm.Vararg && !v.Type.IsArray() {
		p.errorf(d, "vararg parameter %s must have an array type", v.Name)
	}
	return prm
}

// -----------------------------------------------------------------------------
// Expressions
// -----------------------------------------------------------------------------

func (p *Parser) base(d *sexp, t types.Type) ast.BaseExpr {
	return ast.MakeBaseExpr(d.pos(), t)
}

func constant(v any) *ast.Constant {
	return &ast.Constant{Value: v}
}

// placeholder stands in for an expression that failed to decode.
func (p *Parser) placeholder(d *sexp) ast.Expr {
	e := &ast.ConstExpr{BaseExpr: p.base(d, types.NullType)}
	e.Facts.Const = constant(nil)
	return e
}

func (p *Parser) parseAtom(d *sexp) ast.Expr {
	v := d.tok.Value
	switch d.tok.Type {
	case token.INT:
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			p.errorf(d, "int literal out of range: %s", v)
		}
		return p.constExpr(d, types.Int, n)
	case token.LONG:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			p.errorf(d, "long literal out of range: %s", v)
		}
		return p.constExpr(d, types.Long, n)
	case token.DOUBLE:
		f, _ := strconv.ParseFloat(v, 64)
		return p.constExpr(d, types.Double, f)
	case token.FLOAT:
		f, _ := strconv.ParseFloat(v, 32)
		return p.constExpr(d, types.Float, f)
	case token.STRING:
		return p.constExpr(d, types.String, v)
	case token.CHAR:
		return p.constExpr(d, types.Char, []rune(v)[0])
	case token.KEYWORD:
		p.errorf(d, "unexpected keyword :%s", v)
		return p.placeholder(d)
	}
	switch v {
	case "true", "false":
		return p.constExpr(d, types.Boolean, v == "true")
	case "null":
		return p.constExpr(d, types.NullType, nil)
	case "this":
		return &ast.ThisExpr{BaseExpr: p.base(d, types.Type{})}
	case "^":
		return &ast.ReceiverExpr{BaseExpr: p.base(d, types.Type{})}
	}
	return &ast.NameExpr{BaseExpr: p.base(d, types.Type{}), Name: v}
}

func (p *Parser) constExpr(d *sexp, t types.Type, v any) ast.Expr {
	e := &ast.ConstExpr{BaseExpr: p.base(d, t)}
	e.Facts.Const = constant(v)
	return e
}

// constValue converts an atom to the constant representation of t.
func (p *Parser) constValue(d *sexp, t types.Type) any {
	if d.list {
		p.errorf(d, "expected literal, got %s", d)
		return nil
	}
	v := d.tok.Value
	if d.isSymbol("null") {
		return nil
	}
	switch t.Kind {
	case types.KindBoolean:
		return v == "true"
	case types.KindChar:
		if d.tok.Type == token.CHAR {
			return []rune(v)[0]
		}
		n, _ := strconv.ParseInt(v, 10, 32)
		return rune(n)
	case types.KindByte, types.KindShort, types.KindInt, types.KindLong:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			p.errorf(d, "expected integer literal, got %s", v)
		}
		return n
	case types.KindFloat, types.KindDouble:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			p.errorf(d, "expected floating-point literal, got %s", v)
		}
		return f
	}
	if d.tok.Type == token.STRING {
		return v
	}
	// a primitive value of a nullable or boxed type
	if d.tok.Type.IsNumber() || d.tok.Type == token.CHAR || v == "true" || v == "false" {
		return p.constValue(d, t.Unboxed())
	}
	p.errorf(d, "cannot decode %s as %s constant", v, t)
	return nil
}

func (p *Parser) parseExprs(items []*sexp) []ast.Expr {
	out := make([]ast.Expr, len(items))
	for i, it := range items {
		out[i] = p.parseExpr(it)
	}
	return out
}

func (p *Parser) parseExpr(d *sexp) ast.Expr {
	if !d.list {
		return p.parseAtom(d)
	}
	head := d.head()
	if head == "" {
		p.errorf(d, "expected form, got %s", d)
		return p.placeholder(d)
	}
	args, kw := p.split(d)
	e := p.parseForm(d, head, args, kw)
	if t, ok := kw["type"]; ok && e != nil {
		e.Info().Type = p.parseType(t)
	}
	if e == nil {
		return p.placeholder(d)
	}
	return e
}

func (p *Parser) parseForm(d *sexp, head string, args []*sexp, kw map[string]*sexp) ast.Expr {
	switch head {
	case "const":
		if !p.want(d, args, 2, 2) {
			return nil
		}
		t := p.parseType(args[0])
		return p.constExpr(d, t, p.constValue(args[1], t))

	case "fold":
		if !p.want(d, args, 3, 3) {
			return nil
		}
		t := p.parseType(args[0])
		e := p.parseExpr(args[2])
		e.Info().Type = t
		e.Info().Const = constant(p.constValue(args[1], t))
		return e

	case "do":
		return &ast.BlockExpr{BaseExpr: p.base(d, types.Type{}), Stmts: p.parseExprs(args)}

	case "var", "val":
		if !p.want(d, args, 2, 3) {
			return nil
		}
		v := &ast.Var{Name: p.symbol(args[0]), Type: p.parseType(args[1]), Mutable: head == "var", Pos: d.pos(), Fun: p.fun}
		decl := &ast.VarDecl{BaseExpr: p.base(d, types.Unit), Var: v}
		if len(args) == 3 {
			decl.Init = p.parseExpr(args[2])
		}
		return decl

	case "set":
		if !p.want(d, args, 2, 2) {
			return nil
		}
		return &ast.AssignExpr{BaseExpr: p.base(d, types.Unit), Target: p.lvalue(args[0]), Value: p.parseExpr(args[1])}

	case "augset":
		if !p.want(d, args, 3, 3) {
			return nil
		}
		return &ast.AugAssignExpr{BaseExpr: p.base(d, types.Unit), Op: p.callable(args[0]),
			Target: p.lvalue(args[1]), Value: p.parseExpr(args[2])}

	case "preinc", "predec", "postinc", "postdec":
		if !p.want(d, args, 1, 1) {
			return nil
		}
		e := &ast.IncDecExpr{BaseExpr: p.base(d, types.Type{}), Target: p.lvalue(args[0]),
			Prefix: strings.HasPrefix(head, "pre"), Delta: 1}
		if strings.HasSuffix(head, "dec") {
			e.Delta = -1
		}
		if via, ok := kw["via"]; ok {
			e.Op = p.callable(via)
		}
		return e

	case "call":
		if !p.want(d, args, 1, -1) {
			return nil
		}
		e := &ast.CallExpr{BaseExpr: p.base(d, types.Type{})}
		e.Call.Callee = p.callable(args[0])
		if r, ok := kw["recv"]; ok {
			e.Call.Receiver = p.parseExpr(r)
		}
		e.Call.Args = p.parseArgs(args[1:])
		return e

	case "op":
		if !p.want(d, args, 2, 3) {
			return nil
		}
		e := &ast.CallExpr{BaseExpr: p.base(d, types.Type{})}
		e.Call.Callee = p.callable(args[0])
		e.Call.Receiver = p.parseExpr(args[1])
		e.Call.Args = p.parseArgs(args[2:])
		return e

	case "new":
		if !p.want(d, args, 1, -1) {
			return nil
		}
		t := p.parseType(args[0])
		e := &ast.CallExpr{BaseExpr: p.base(d, t)}
		e.Call.Callee = &ast.Callable{Owner: t.Name, Name: "<init>"}
		e.Call.Args = p.parseArgs(args[1:])
		return e

	case "invoke":
		if !p.want(d, args, 1, -1) {
			return nil
		}
		return &ast.InvokeExpr{BaseExpr: p.base(d, types.Type{}), Fn: p.parseExpr(args[0]), Args: p.parseExprs(args[1:])}

	case "prop", "field":
		if !p.want(d, args, 1, 2) {
			return nil
		}
		e := &ast.PropExpr{BaseExpr: p.base(d, types.Type{}), Backing: head == "field"}
		ref := args[len(args)-1]
		owner, name := p.ref(ref)
		e.Field = &ast.FieldRef{Owner: owner, Name: name}
		if len(args) == 2 {
			e.Receiver = p.parseExpr(args[0])
		}
		return e

	case "safe":
		if !p.want(d, args, 2, 2) {
			return nil
		}
		return &ast.SafeExpr{BaseExpr: p.base(d, types.Type{}), Receiver: p.parseExpr(args[0]), Selector: p.parseExpr(args[1])}

	case "<", "<=", ">", ">=", "==", "!=", "===", "!==":
		if !p.want(d, args, 2, 2) {
			return nil
		}
		e := &ast.CompareExpr{BaseExpr: p.base(d, types.Boolean), Op: compareOps[head],
			Left: p.parseExpr(args[0]), Right: p.parseExpr(args[1])}
		if via, ok := kw["via"]; ok {
			e.CompareTo = p.callable(via)
		}
		return e

	case "and", "or":
		if !p.want(d, args, 2, 2) {
			return nil
		}
		return &ast.LogicalExpr{BaseExpr: p.base(d, types.Boolean), And: head == "and",
			Left: p.parseExpr(args[0]), Right: p.parseExpr(args[1])}

	case "not":
		if !p.want(d, args, 1, 1) {
			return nil
		}
		return &ast.NotExpr{BaseExpr: p.base(d, types.Boolean), X: p.parseExpr(args[0])}

	case "elvis":
		if !p.want(d, args, 2, 2) {
			return nil
		}
		return &ast.ElvisExpr{BaseExpr: p.base(d, types.Type{}), Left: p.parseExpr(args[0]), Right: p.parseExpr(args[1])}

	case "range", "downto":
		if !p.want(d, args, 2, 2) {
			return nil
		}
		return &ast.RangeExpr{BaseExpr: p.base(d, types.IntRange), From: p.parseExpr(args[0]),
			To: p.parseExpr(args[1]), Reversed: head == "downto"}

	case "in", "!in":
		if !p.want(d, args, 2, 2) {
			return nil
		}
		e := &ast.InExpr{BaseExpr: p.base(d, types.Boolean), Negated: head == "!in",
			X: p.parseExpr(args[0]), Range: p.parseExpr(args[1])}
		if via, ok := kw["via"]; ok {
			e.Contains = p.callable(via)
		}
		return e

	case "is", "!is":
		if !p.want(d, args, 2, 2) {
			return nil
		}
		pat := p.parsePattern(args[1], true)
		if head == "!is" {
			negate(pat)
		}
		return &ast.IsExpr{BaseExpr: p.base(d, types.Boolean), X: p.parseExpr(args[0]), Pattern: pat}

	case "as", "as?":
		if !p.want(d, args, 2, 2) {
			return nil
		}
		t := p.parseType(args[0])
		rt := t
		if head == "as?" {
			rt = t.AsNullable()
		}
		return &ast.CastExpr{BaseExpr: p.base(d, rt), X: p.parseExpr(args[1]), Target: t, Safe: head == "as?"}

	case "!!":
		if !p.want(d, args, 1, 1) {
			return nil
		}
		return &ast.NotNullExpr{BaseExpr: p.base(d, types.Type{}), X: p.parseExpr(args[0])}

	case "if":
		if !p.want(d, args, 2, 3) {
			return nil
		}
		e := &ast.IfExpr{BaseExpr: p.base(d, types.Type{}), Cond: p.parseExpr(args[0]), Then: p.parseExpr(args[1])}
		if len(args) == 3 {
			e.Else = p.parseExpr(args[2])
		}
		return e

	case "while":
		if !p.want(d, args, 2, 2) {
			return nil
		}
		return &ast.WhileExpr{BaseExpr: p.base(d, types.Unit), Label: p.label(kw),
			Cond: p.parseExpr(args[0]), Body: p.parseExpr(args[1])}

	case "dowhile":
		if !p.want(d, args, 2, 2) {
			return nil
		}
		return &ast.DoWhileExpr{BaseExpr: p.base(d, types.Unit), Label: p.label(kw),
			Body: p.parseExpr(args[0]), Cond: p.parseExpr(args[1])}

	case "for":
		if !p.want(d, args, 3, 3) {
			return nil
		}
		return p.parseFor(d, args, kw)

	case "break", "continue":
		if !p.want(d, args, 0, 1) {
			return nil
		}
		label := ""
		if len(args) == 1 {
			label = p.symbol(args[0])
		}
		if head == "break" {
			return &ast.BreakExpr{BaseExpr: p.base(d, types.Nothing), Label: label}
		}
		return &ast.ContinueExpr{BaseExpr: p.base(d, types.Nothing), Label: label}

	case "return":
		if !p.want(d, args, 0, 1) {
			return nil
		}
		e := &ast.ReturnExpr{BaseExpr: p.base(d, types.Nothing)}
		if len(args) == 1 {
			e.Value = p.parseExpr(args[0])
		}
		return e

	case "throw":
		if !p.want(d, args, 1, 1) {
			return nil
		}
		return &ast.ThrowExpr{BaseExpr: p.base(d, types.Nothing), X: p.parseExpr(args[0])}

	case "try":
		if !p.want(d, args, 2, -1) {
			return nil
		}
		return p.parseTry(d, args)

	case "when":
		return p.parseWhen(d, args)

	case "str":
		return &ast.TemplateExpr{BaseExpr: p.base(d, types.String), Parts: p.parseExprs(args)}

	case "tuple":
		t := types.Class(types.TupleClass(len(args)))
		if len(args) == 0 {
			t = types.Unit
		}
		return &ast.TupleExpr{BaseExpr: p.base(d, t), Elems: p.parseExprs(args)}

	case "index":
		if !p.want(d, args, 2, -1) {
			return nil
		}
		e := &ast.IndexExpr{BaseExpr: p.base(d, types.Type{}), X: p.parseExpr(args[0]), Index: p.parseExprs(args[1:])}
		if g, ok := kw["get"]; ok {
			e.Get = p.callable(g)
		}
		if s, ok := kw["set"]; ok {
			e.Set = p.callable(s)
		}
		return e

	case "newarray":
		if !p.want(d, args, 2, 3) {
			return nil
		}
		t := p.parseType(args[0])
		if !t.IsArray() {
			p.errorf(args[0], "newarray needs an array type, got %s", t)
		}
		e := &ast.NewArrayExpr{BaseExpr: p.base(d, t), Size: p.parseExpr(args[1])}
		if len(args) == 3 {
			e.Init = p.parseExpr(args[2])
		}
		return e

	case "lambda":
		return p.parseLambda(d, "invoke")

	case "fun":
		lambda := p.parseLambda(d, "")
		if lambda == nil {
			return nil
		}
		v := &ast.Var{Name: lambda.Fun.Name, Type: lambda.Facts.Type, Kind: ast.VarFunction, Pos: d.pos(), Fun: p.fun}
		lambda.Fun.Name = "invoke"
		return &ast.LocalFunExpr{BaseExpr: p.base(d, types.Unit), Var: v, Lambda: lambda}

	case "object":
		return p.parseObject(d, args, kw)
	}
	p.errorf(d, "unknown form (%s ...)", head)
	return nil
}

var compareOps = map[string]ast.CompareOp{
	"<":   ast.OpLess,
	"<=":  ast.OpLessEq,
	">":   ast.OpGreater,
	">=":  ast.OpGreaterEq,
	"==":  ast.OpEq,
	"!=":  ast.OpNotEq,
	"===": ast.OpIdentity,
	"!==": ast.OpNotIdentity,
}

func (p *Parser) label(kw map[string]*sexp) string {
	if l, ok := kw["label"]; ok {
		return p.symbol(l)
	}
	return ""
}

func (p *Parser) lvalue(d *sexp) ast.Expr {
	e := p.parseExpr(d)
	if !ast.IsLValue(e) {
		p.errorf(d, "cannot assign to %s", d)
	}
	return e
}

// parseArgs decodes call arguments; (default) and (spread E) are markers.
func (p *Parser) parseArgs(items []*sexp) []ast.Arg {
	args := make([]ast.Arg, 0, len(items))
	for _, it := range items {
		switch it.head() {
		case "default":
			args = append(args, ast.Arg{Kind: ast.ArgDefault})
		case "spread":
			if len(it.items) != 2 {
				p.errorf(it, "(spread E) takes one argument")
				continue
			}
			args = append(args, ast.Arg{Kind: ast.ArgVararg, Elems: []ast.Expr{p.parseExpr(it.items[1])}, Spread: []bool{true}})
		default:
			args = append(args, ast.Arg{Kind: ast.ArgExpr, Expr: p.parseExpr(it)})
		}
	}
	return args
}

// binding decodes (name Type) into a variable of kind k.
func (p *Parser) binding(d *sexp, k ast.VarKind) *ast.Var {
	if !d.list || len(d.items) != 2 {
		p.errorf(d, "expected (name Type)")
		return &ast.Var{Name: "_", Type: types.NullableAny, Kind: k, Pos: d.pos(), Fun: p.fun}
	}
	return &ast.Var{Name: p.symbol(d.items[0]), Type: p.parseType(d.items[1]), Kind: k, Pos: d.pos(), Fun: p.fun}
}

func (p *Parser) parseFor(d *sexp, args []*sexp, kw map[string]*sexp) ast.Expr {
	e := &ast.ForExpr{BaseExpr: p.base(d, types.Unit), Label: p.label(kw)}
	e.Var = p.binding(args[0], ast.VarLoop)
	e.Range = p.parseExpr(args[1])
	e.Body = p.parseExpr(args[2])
	if c, ok := kw["iterator"]; ok {
		e.Iterator = p.callable(c)
	}
	if c, ok := kw["hasNext"]; ok {
		e.HasNext = p.callable(c)
	}
	if c, ok := kw["next"]; ok {
		e.Next = p.callable(c)
	}
	return e
}

func (p *Parser) parseTry(d *sexp, args []*sexp) ast.Expr {
	e := &ast.TryExpr{BaseExpr: p.base(d, types.Type{}), Body: p.parseExpr(args[0])}
	for _, c := range args[1:] {
		cargs, _ := p.split(c)
		switch c.head() {
		case "catch":
			if !p.want(c, cargs, 2, 2) {
				continue
			}
			e.Catches = append(e.Catches, &ast.CatchClause{StartPos: c.pos(),
				Var: p.binding(cargs[0], ast.VarCatch), Body: p.parseExpr(cargs[1])})
		case "finally":
			if !p.want(c, cargs, 1, 1) {
				continue
			}
			if e.Finally != nil {
				p.errorf(c, "duplicate finally")
			}
			e.Finally = p.parseExpr(cargs[0])
		default:
			p.errorf(c, "expected (catch ...) or (finally ...), got %s", c)
		}
	}
	return e
}

func (p *Parser) parseWhen(d *sexp, args []*sexp) ast.Expr {
	e := &ast.WhenExpr{BaseExpr: p.base(d, types.Type{})}
	if len(args) > 0 && args[0].head() != "case" && args[0].head() != "else" {
		e.Subject = p.parseExpr(args[0])
		args = args[1:]
	}
	for _, entry := range args {
		items, _ := p.split(entry)
		switch entry.head() {
		case "case":
			if !p.want(entry, items, 2, -1) {
				continue
			}
			we := &ast.WhenEntry{StartPos: entry.pos(), Body: p.parseExpr(items[len(items)-1])}
			for _, c := range items[:len(items)-1] {
				if e.Subject == nil {
					we.Conditions = append(we.Conditions, &ast.ExprPattern{
						BasePattern: ast.BasePattern{StartPos: c.pos()}, X: p.parseExpr(c)})
					continue
				}
				we.Conditions = append(we.Conditions, p.parsePattern(c, false))
			}
			e.Entries = append(e.Entries, we)
		case "else":
			if !p.want(entry, items, 1, 1) {
				continue
			}
			e.Entries = append(e.Entries, &ast.WhenEntry{StartPos: entry.pos(), Else: true, Body: p.parseExpr(items[0])})
		default:
			p.errorf(entry, "expected (case ...) or (else ...), got %s", entry)
		}
	}
	return e
}

// parsePattern decodes a pattern. In is-expressions (typeAtoms) a bare
// symbol is a type; otherwise bare atoms are literals and _ is a wildcard.
func (p *Parser) parsePattern(d *sexp, typeAtoms bool) ast.Pattern {
	base := ast.BasePattern{StartPos: d.pos()}
	if !d.list {
		switch {
		case d.isSymbol("_"):
			return &ast.WildcardPattern{BasePattern: base}
		case typeAtoms && d.tok.Type == token.SYMBOL:
			return &ast.TypePattern{BasePattern: base, Type: p.parseType(d)}
		}
		return &ast.ExprPattern{BasePattern: base, X: p.parseAtom(d)}
	}
	args, kw := p.split(d)
	head := d.head()
	base.Negated = strings.HasPrefix(head, "!")
	switch strings.TrimPrefix(head, "!") {
	case "is":
		if p.want(d, args, 1, 1) {
			return &ast.TypePattern{BasePattern: base, Type: p.parseType(args[0])}
		}
	case "eq":
		if p.want(d, args, 1, 1) {
			return &ast.ExprPattern{BasePattern: base, X: p.parseExpr(args[0])}
		}
	case "in":
		if p.want(d, args, 1, 1) {
			rp := &ast.RangePattern{BasePattern: base, Range: p.parseExpr(args[0])}
			if via, ok := kw["via"]; ok {
				rp.Contains = p.callable(via)
			}
			return rp
		}
	case "tuple":
		tp := &ast.TuplePattern{BasePattern: base}
		for _, a := range args {
			tp.Elems = append(tp.Elems, p.parsePattern(a, false))
		}
		return tp
	case "bind":
		if p.want(d, args, 1, 2) {
			bp := &ast.BindPattern{BasePattern: base, Var: p.binding(args[0], ast.VarPattern)}
			if len(args) == 2 {
				bp.Guard = p.parseExpr(args[1])
			}
			return bp
		}
	default:
		return &ast.ExprPattern{BasePattern: base, X: p.parseExpr(d)}
	}
	return &ast.WildcardPattern{BasePattern: base}
}

func negate(pat ast.Pattern) {
	switch n := pat.(type) {
	case *ast.TypePattern:
		n.Negated = !n.Negated
	case *ast.ExprPattern:
		n.Negated = !n.Negated
	case *ast.RangePattern:
		n.Negated = !n.Negated
	case *ast.TuplePattern:
		n.Negated = !n.Negated
	case *ast.WildcardPattern:
		n.Negated = !n.Negated
	case *ast.BindPattern:
		n.Negated = !n.Negated
	}
}

// parseLambda decodes (lambda (PARAMS) RET BODY) or, when name is empty,
// (fun NAME (PARAMS) RET BODY).
func (p *Parser) parseLambda(d *sexp, name string) *ast.LambdaExpr {
	var f *ast.FunDecl
	if name == "" {
		f = p.parseFun(d, p.ownerName(), nil)
	} else {
		f = p.parseFun(d, p.ownerName(), &name)
	}
	params := make([]types.Type, len(f.Params))
	for i, prm := range f.Params {
		params[i] = prm.Var.Type
	}
	return &ast.LambdaExpr{BaseExpr: p.base(d, types.FunctionOf(params, f.Return)), Fun: f}
}

func (p *Parser) ownerName() string {
	if p.cls != nil {
		return p.cls.Name
	}
	if p.unit != nil {
		return p.unit.Name
	}
	return ""
}

func (p *Parser) parseObject(d *sexp, args []*sexp, kw map[string]*sexp) ast.Expr {
	c := &ast.ClassDecl{StartPos: d.pos(), Synthetic: true}
	p.classHeader(c, kw)
	e := &ast.ObjectExpr{BaseExpr: p.base(d, types.Type{}), Class: c}
	if a, ok := kw["args"]; ok {
		if !a.list {
			p.errorf(a, ":args takes a list of expressions")
		} else {
			e.SuperArgs = p.parseExprs(a.items)
		}
	}
	var funs []*sexp
	for _, m := range args {
		if m.head() != "fun" {
			p.errorf(m, "object members must be functions, got %s", m)
			continue
		}
		funs = append(funs, m)
	}
	p.classMembers(c, funs)
	return e
}

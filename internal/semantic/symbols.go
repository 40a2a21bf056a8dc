package semantic

import (
	"strconv"
	"strings"

	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/types"
)

// Scope implements a lexical block scope of local variables.
// Each scope has a parent, enabling nested lookups across blocks and into
// the functions enclosing a lambda.
type Scope struct {
	parent *Scope
	vars   map[string]*ast.Var
}

// NewScope creates a new scope with the given parent.
// Pass nil for a function's outermost scope in a unit-level context.
func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, vars: make(map[string]*ast.Var)}
}

// Parent returns the enclosing scope, or nil.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Declare adds v to the scope. It returns false if the name is already
// declared in this scope.
func (s *Scope) Declare(v *ast.Var) bool {
	if _, exists := s.vars[v.Name]; exists {
		return false
	}
	s.vars[v.Name] = v
	return true
}

// Lookup searches for a variable in this scope and all parent scopes.
func (s *Scope) Lookup(name string) (*ast.Var, bool) {
	for scope := s; scope != nil; scope = scope.parent {
		if v, ok := scope.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// LookupLocal searches for a variable only in the current scope.
func (s *Scope) LookupLocal(name string) (*ast.Var, bool) {
	v, ok := s.vars[name]
	return v, ok
}

// ClassInfo holds the member tables of a class known to the resolver:
// declared in the unit, synthesized for an object literal, or taken from
// the library catalog.
type ClassInfo struct {
	Name       string
	Super      string
	Interfaces []string
	Interface  bool
	Decl       *ast.ClassDecl // nil for library classes

	Methods map[string]*ast.Callable
	Fields  map[string]*ast.FieldRef
}

func newClassInfo(name, super string) *ClassInfo {
	return &ClassInfo{
		Name:    name,
		Super:   super,
		Methods: make(map[string]*ast.Callable),
		Fields:  make(map[string]*ast.FieldRef),
	}
}

// ClassTable maps class names to their member tables.
type ClassTable struct {
	classes map[string]*ClassInfo
}

// NewClassTable returns a table preloaded with the library catalog.
func NewClassTable() *ClassTable {
	t := &ClassTable{classes: make(map[string]*ClassInfo)}
	for _, c := range library() {
		t.classes[c.Name] = c
	}
	return t
}

// Define adds a class. It returns false if the name is taken.
func (t *ClassTable) Define(c *ClassInfo) bool {
	if _, exists := t.classes[c.Name]; exists {
		return false
	}
	t.classes[c.Name] = c
	return true
}

// Lookup returns the class with the given name. Tuple and function
// classes of any arity are synthesized on first use.
func (t *ClassTable) Lookup(name string) (*ClassInfo, bool) {
	if c, ok := t.classes[name]; ok {
		return c, true
	}
	if n, ok := arity(name, types.TuplePrefix); ok {
		c := tupleClass(n)
		t.classes[name] = c
		return c, true
	}
	if n, ok := arity(name, types.FunctionPrefix); ok {
		c := functionClass(n)
		t.classes[name] = c
		return c, true
	}
	return nil, false
}

func arity(name, prefix string) (int, bool) {
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(name[len(prefix):])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Method finds a method by name in class and its supertypes.
func (t *ClassTable) Method(class, name string) (*ast.Callable, bool) {
	var found *ast.Callable
	t.walk(class, func(c *ClassInfo) bool {
		if m, ok := c.Methods[name]; ok {
			found = m
			return true
		}
		return false
	})
	if found == nil && name != "<init>" {
		if m, ok := t.classes[types.AnyName].Methods[name]; ok {
			found = m
		}
	}
	return found, found != nil
}

// Field finds a field or property by name in class and its supertypes.
func (t *ClassTable) Field(class, name string) (*ast.FieldRef, bool) {
	var found *ast.FieldRef
	t.walk(class, func(c *ClassInfo) bool {
		if f, ok := c.Fields[name]; ok {
			found = f
			return true
		}
		return false
	})
	return found, found != nil
}

// IsSubclass reports whether sub is sup or derives from it.
func (t *ClassTable) IsSubclass(sub, sup string) bool {
	if sup == types.AnyName {
		return true
	}
	return t.walk(sub, func(c *ClassInfo) bool { return c.Name == sup })
}

// walk visits class, then its superclasses, then interfaces, until fn
// returns true.
func (t *ClassTable) walk(class string, fn func(*ClassInfo) bool) bool {
	seen := map[string]bool{}
	var visit func(name string) bool
	visit = func(name string) bool {
		if name == "" || seen[name] {
			return false
		}
		seen[name] = true
		c, ok := t.Lookup(name)
		if !ok {
			return false
		}
		if fn(c) {
			return true
		}
		if visit(c.Super) {
			return true
		}
		for _, i := range c.Interfaces {
			if visit(i) {
				return true
			}
		}
		return false
	}
	return visit(class)
}

func tupleClass(n int) *ClassInfo {
	name := types.TupleClass(n)
	c := newClassInfo(name, types.AnyName)
	params := make([]ast.ParamInfo, n)
	for i := range params {
		field := "_" + strconv.Itoa(i+1)
		params[i] = ast.ParamInfo{Name: field, Type: types.NullableAny}
		c.Fields[field] = &ast.FieldRef{Owner: name, Name: field, Type: types.NullableAny}
	}
	c.Methods["<init>"] = &ast.Callable{Owner: name, Name: "<init>", Kind: ast.CallConstructor,
		Params: params, Return: types.Class(name)}
	return c
}

func functionClass(n int) *ClassInfo {
	name := types.FunctionClass(n)
	c := newClassInfo(name, types.AnyName)
	c.Interface = true
	params := make([]ast.ParamInfo, n)
	for i := range params {
		params[i] = ast.ParamInfo{Name: "p" + strconv.Itoa(i+1), Type: types.NullableAny}
	}
	c.Methods["invoke"] = &ast.Callable{Owner: name, Name: "invoke", Kind: ast.CallInterface,
		Params: params, Return: types.NullableAny}
	return c
}

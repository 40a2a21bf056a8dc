// Package pattern matches qualified callable and method names
// ("Owner.name") against regular expressions.
package pattern

import (
	"strings"
	"sync"

	"github.com/coregx/coregex"
)

// metachars are the bytes that make a pattern more than a literal name.
const metachars = `.*+?()[]{}|^$\`

// Pattern is a compiled name pattern. Patterns without regular
// expression syntax are compared as plain strings.
type Pattern struct {
	src     string
	re      *coregex.Regexp
	literal bool
	whole   bool
}

// Compile compiles a pattern that matches anywhere in a name.
func Compile(src string) (*Pattern, error) {
	return compile(src, false)
}

// CompileWhole compiles a pattern that must match the entire name.
func CompileWhole(src string) (*Pattern, error) {
	return compile(src, true)
}

func compile(src string, whole bool) (*Pattern, error) {
	if IsLiteral(src) {
		return &Pattern{src: src, literal: true, whole: whole}, nil
	}
	expr := src
	if whole {
		expr = "^(?:" + src + ")$"
	}
	re, err := coregex.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &Pattern{src: src, re: re, whole: whole}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Pattern {
	p, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return p
}

// IsLiteral reports whether src contains no regular expression syntax.
// A dot counts as syntax only when something else does too, so
// "Owner.name" is a literal.
func IsLiteral(src string) bool {
	return !strings.ContainsAny(src, strings.TrimPrefix(metachars, "."))
}

// String returns the source of the pattern.
func (p *Pattern) String() string {
	return p.src
}

// MatchString reports whether name matches p.
func (p *Pattern) MatchString(name string) bool {
	switch {
	case p.literal && p.whole:
		return name == p.src
	case p.literal:
		return strings.Contains(name, p.src)
	}
	return p.re.MatchString(name)
}

// Cache holds compiled whole-name patterns with FIFO eviction. It is safe
// for concurrent use; hits do not lock.
type Cache struct {
	cache   sync.Map // map[string]*Pattern
	orderMu sync.Mutex
	order   []string
	maxSize int
}

// NewCache creates a cache holding at most maxSize patterns.
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Cache{order: make([]string, 0, maxSize), maxSize: maxSize}
}

// Get returns the whole-name pattern for src, compiling it on a miss.
func (c *Cache) Get(src string) (*Pattern, error) {
	if p, ok := c.cache.Load(src); ok {
		return p.(*Pattern), nil
	}
	p, err := CompileWhole(src)
	if err != nil {
		return nil, err
	}
	if existing, loaded := c.cache.LoadOrStore(src, p); loaded {
		return existing.(*Pattern), nil
	}

	c.orderMu.Lock()
	c.order = append(c.order, src)
	for len(c.order) > c.maxSize {
		c.cache.Delete(c.order[0])
		c.order = c.order[1:]
	}
	c.orderMu.Unlock()
	return p, nil
}

// Len returns the number of cached patterns.
func (c *Cache) Len() int {
	c.orderMu.Lock()
	defer c.orderMu.Unlock()
	return len(c.order)
}

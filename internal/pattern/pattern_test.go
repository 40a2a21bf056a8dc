package pattern

import (
	"fmt"
	"sync"
	"testing"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		pattern string
		literal bool
		wantErr bool
	}{
		{"main.helper", true, false},
		{"main", true, false},
		{`main\.s\w*`, false, false},
		{"(Int|Long).plus", false, false},
		{"[invalid", false, true},
		{"(unclosed", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			p, err := Compile(tt.pattern)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for pattern %q", tt.pattern)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.String() != tt.pattern {
				t.Errorf("String() = %q, want %q", p.String(), tt.pattern)
			}
			if IsLiteral(tt.pattern) != tt.literal {
				t.Errorf("IsLiteral() = %v, want %v", !tt.literal, tt.literal)
			}
		})
	}
}

func TestMustCompile(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for invalid pattern")
		}
	}()
	MustCompile("[invalid")
}

func TestMatchString(t *testing.T) {
	tests := []struct {
		pattern string
		whole   bool
		name    string
		want    bool
	}{
		{"main.helper", false, "main.helper", true},
		{"main.helper", false, "main.helper$default", true},
		{"main.helper", true, "main.helper$default", false},
		{"main.helper", true, "mainXhelper", false},
		{`main\.s\w*`, false, "main.scale", true},
		{`main\.s\w*`, false, "main$lambda$1.invoke", false},
		{`Text\w*\.concat`, true, "TextUtil.concat", true},
		{`Text\w*\.concat`, true, "MyTextUtil.concat", false},
		{`Text\w*\.concat`, false, "MyTextUtil.concat", true},
		{"(Int|Long).plus", true, "Long.plus", true},
		{"(Int|Long).plus", true, "Short.plus", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v/%s", tt.pattern, tt.whole, tt.name), func(t *testing.T) {
			compile := Compile
			if tt.whole {
				compile = CompileWhole
			}
			p, err := compile(tt.pattern)
			if err != nil {
				t.Fatal(err)
			}
			if got := p.MatchString(tt.name); got != tt.want {
				t.Errorf("MatchString(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestCache(t *testing.T) {
	c := NewCache(2)
	a, err := c.Get(`a\d`)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := c.Get(`a\d`)
	if a != again {
		t.Error("cache hit returned a different pattern")
	}
	if !a.MatchString("a1") || a.MatchString("xa1") {
		t.Error("cached patterns must match whole names")
	}

	c.Get(`b\d`)
	c.Get(`c\d`)
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	evicted, _ := c.Get(`a\d`)
	if evicted == a {
		t.Error("oldest pattern was not evicted")
	}

	if _, err := c.Get("[bad"); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := NewCache(10)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p, err := c.Get(fmt.Sprintf(`p%d\w*`, j%20))
				if err != nil || p == nil {
					t.Errorf("Get() = %v, %v", p, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	if c.Len() > 10 {
		t.Errorf("Len() = %d, exceeds capacity", c.Len())
	}
}

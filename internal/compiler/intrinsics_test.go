package compiler

import (
	"testing"

	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/types"
)

func TestIntrinsicLookup(t *testing.T) {
	table := DefaultIntrinsics()
	if err := table.ParseAlias("Util.same=identity"); err != nil {
		t.Fatalf("ParseAlias: %v", err)
	}
	if err := table.ParseAlias(`Text\w*\.concat=stringPlus`); err != nil {
		t.Fatalf("ParseAlias pattern: %v", err)
	}

	tests := []struct {
		name string
		c    *ast.Callable
		want bool
	}{
		{"keyed", &ast.Callable{Owner: "Int", Name: "plus", Intrinsic: intrinsicArith}, true},
		{"unknown key", &ast.Callable{Owner: "Int", Name: "plus", Intrinsic: "nope"}, false},
		{"alias", &ast.Callable{Owner: "Util", Name: "same"}, true},
		{"pattern", &ast.Callable{Owner: "TextUtil", Name: "concat"}, true},
		{"pattern anchored", &ast.Callable{Owner: "MyTextUtil", Name: "concat"}, false},
		{"plain", &ast.Callable{Owner: "Util", Name: "other"}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, got := table.Lookup(tt.c); got != tt.want {
				t.Errorf("Lookup = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIntrinsicAliasErrors(t *testing.T) {
	table := DefaultIntrinsics()
	for _, def := range []string{"", "Util.same", "=identity", "Util.same=missing", `Bad(.x=identity`} {
		if err := table.ParseAlias(def); err == nil {
			t.Errorf("ParseAlias(%q) succeeded, want error", def)
		}
	}
}

func TestIntrinsicKeysSorted(t *testing.T) {
	keys := DefaultIntrinsics().Keys()
	if len(keys) == 0 {
		t.Fatal("no intrinsics registered")
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}
}

func TestPromote(t *testing.T) {
	tests := []struct {
		a, b types.Type
		want types.Kind
	}{
		{types.Int, types.Long, types.KindLong},
		{types.Byte, types.Short, types.KindInt},
		{types.Char, types.Int, types.KindInt},
		{types.Float, types.Long, types.KindFloat},
		{types.Int, types.Double, types.KindDouble},
		{types.Boolean, types.Boolean, types.KindBoolean},
	}
	for _, tt := range tests {
		if got := promote(tt.a, tt.b); got.Kind != tt.want {
			t.Errorf("promote(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

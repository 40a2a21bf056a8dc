package ast

import (
	"fmt"
	"io"
	"strings"
)

// Printer provides pretty-printing for model nodes.
// It outputs one node per line, indented by depth, with resolved facts.
type Printer struct {
	w      io.Writer
	indent int
	err    error
}

// NewPrinter creates a new Printer that writes to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Print writes a pretty-printed representation of the node to the writer.
func (p *Printer) Print(node Node) error {
	p.printNode(node)
	return p.err
}

// String returns the printed form of node.
func String(node Node) string {
	var sb strings.Builder
	_ = NewPrinter(&sb).Print(node)
	return sb.String()
}

func (p *Printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *Printer) writeIndent() {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, strings.Repeat("    ", p.indent))
}

// children returns the direct children of node in traversal order.
func children(node Node) []Node {
	var kids []Node
	Inspect(node, func(n, parent Node) bool {
		if n == node {
			return true
		}
		if parent == node {
			kids = append(kids, n)
		}
		return false
	})
	return kids
}

func (p *Printer) printNode(node Node) {
	if node == nil {
		p.writeIndent()
		p.printf("<nil>\n")
		return
	}
	p.writeIndent()
	p.printf("%s\n", describe(node))
	p.indent++
	for _, c := range children(node) {
		p.printNode(c)
	}
	p.indent--
}

// describe returns a one-line summary of node without its children.
func describe(node Node) string {
	var s string
	switch n := node.(type) {
	case *Unit:
		return "Unit " + n.Name
	case *ClassDecl:
		s = "Class " + n.Name
		if n.Interface {
			s = "Interface " + n.Name
		}
		for _, f := range n.Fields {
			s += fmt.Sprintf(" %s:%s", f.Name, f.Type)
		}
		return s
	case *PropertyDecl:
		return fmt.Sprintf("Property %s: %s", n.Name, n.Type)
	case *GlobalDecl:
		return fmt.Sprintf("Global %s: %s", n.Name, n.Type)
	case *FieldDecl:
		return fmt.Sprintf("Field %s: %s", n.Name, n.Type)
	case *FunDecl:
		params := make([]string, len(n.Params))
		for i, prm := range n.Params {
			params[i] = prm.Var.Name + ": " + prm.Var.Type.String()
		}
		return fmt.Sprintf("Fun %s.%s(%s): %s", n.Owner, n.Name, strings.Join(params, ", "), n.Return)
	case *CatchClause:
		return fmt.Sprintf("Catch %s: %s", n.Var.Name, n.Var.Type)
	case *WhenEntry:
		if n.Else {
			return "Else"
		}
		return "Entry"
	case Pattern:
		return describePattern(n)
	case Expr:
		s = describeExpr(n)
		info := n.Info()
		s += " : " + info.Type.String()
		if info.Const != nil {
			s += fmt.Sprintf(" = %#v", info.Const.Value)
		}
		return s
	}
	return fmt.Sprintf("%T", node)
}

func describePattern(p Pattern) string {
	var s string
	switch n := p.(type) {
	case *TypePattern:
		s = "Is " + n.Type.String()
	case *ExprPattern:
		s = "Eq"
	case *RangePattern:
		s = "In"
	case *TuplePattern:
		s = fmt.Sprintf("Tuple%d", len(n.Elems))
	case *WildcardPattern:
		s = "_"
	case *BindPattern:
		s = fmt.Sprintf("Bind %s: %s", n.Var.Name, n.Var.Type)
	}
	if b, ok := p.(interface{ negated() bool }); ok && b.negated() {
		s = "!" + s
	}
	return s
}

func (b *BasePattern) negated() bool { return b.Negated }

func describeExpr(e Expr) string {
	switch n := e.(type) {
	case *ConstExpr:
		return "Const"
	case *NameExpr:
		return "Name " + n.Name
	case *ThisExpr:
		if n.Kind == ThisReceiver {
			return "This(receiver)"
		}
		return "This"
	case *ReceiverExpr:
		return "^"
	case *PropExpr:
		return fmt.Sprintf("Prop %s.%s", n.Field.Owner, n.Field.Name)
	case *CallExpr:
		return fmt.Sprintf("Call %s [%s]", n.Call.Callee.FullName(), n.Call.Callee.Kind)
	case *CompareExpr:
		return "Compare " + n.Op.String()
	case *LogicalExpr:
		if n.And {
			return "And"
		}
		return "Or"
	case *RangeExpr:
		if n.Reversed {
			return "DownTo"
		}
		return "Range"
	case *InExpr:
		if n.Negated {
			return "NotIn"
		}
		return "In"
	case *CastExpr:
		if n.Safe {
			return "SafeCast " + n.Target.String()
		}
		return "Cast " + n.Target.String()
	case *VarDecl:
		return fmt.Sprintf("Var %s: %s", n.Var.Name, n.Var.Type)
	case *AugAssignExpr:
		return "AugAssign " + n.Op.FullName()
	case *IncDecExpr:
		pos := "post"
		if n.Prefix {
			pos = "pre"
		}
		return fmt.Sprintf("IncDec %s %+d", pos, n.Delta)
	case *WhileExpr:
		return labelled("While", n.Label)
	case *DoWhileExpr:
		return labelled("DoWhile", n.Label)
	case *ForExpr:
		return labelled("For "+n.Var.Name, n.Label)
	case *BreakExpr:
		return labelled("Break", n.Label)
	case *ContinueExpr:
		return labelled("Continue", n.Label)
	case *LocalFunExpr:
		return "LocalFun " + n.Var.Name
	}
	name := fmt.Sprintf("%T", e)
	name = strings.TrimPrefix(name, "*ast.")
	return strings.TrimSuffix(name, "Expr")
}

func labelled(s, label string) string {
	if label == "" {
		return s
	}
	return s + " @" + label
}

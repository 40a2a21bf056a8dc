package ast

// Walk traverses the model in depth-first order.
// For each node, it calls fn(node). If fn returns false,
// the children of that node are not visited.
//
// Example: find every lambda in a unit
//
//	ast.Walk(unit, func(n ast.Node) bool {
//	    if l, ok := n.(*ast.LambdaExpr); ok {
//	        lambdas = append(lambdas, l)
//	    }
//	    return true
//	})
func Walk(node Node, fn func(Node) bool) {
	Inspect(node, func(n, _ Node) bool { return fn(n) })
}

// Inspect is like Walk but also passes the parent node (nil for the root).
func Inspect(node Node, fn func(node, parent Node) bool) {
	inspect(node, nil, fn)
}

func inspectExprs(list []Expr, parent Node, fn func(node, parent Node) bool) {
	for _, e := range list {
		inspect(e, parent, fn)
	}
}

func inspectCall(c *ResolvedCall, parent Node, fn func(node, parent Node) bool) {
	if c.Receiver != nil {
		inspect(c.Receiver, parent, fn)
	}
	for _, a := range c.Args {
		switch a.Kind {
		case ArgExpr:
			inspect(a.Expr, parent, fn)
		case ArgVararg:
			inspectExprs(a.Elems, parent, fn)
		}
	}
}

func inspect(node, parent Node, fn func(node, parent Node) bool) {
	if node == nil || !fn(node, parent) {
		return
	}

	switch n := node.(type) {
	// Declarations
	case *Unit:
		for _, g := range n.Globals {
			inspect(g, n, fn)
		}
		for _, c := range n.Classes {
			inspect(c, n, fn)
		}
		for _, f := range n.Functions {
			inspect(f, n, fn)
		}
	case *ClassDecl:
		for _, p := range n.Properties {
			inspect(p, n, fn)
		}
		for _, m := range n.Methods {
			inspect(m, n, fn)
		}
	case *PropertyDecl:
		if n.Getter != nil {
			inspect(n.Getter, n, fn)
		}
		if n.Setter != nil {
			inspect(n.Setter, n, fn)
		}
	case *GlobalDecl:
		if n.Init != nil {
			inspect(n.Init, n, fn)
		}
	case *FunDecl:
		for _, p := range n.Params {
			if p.Default != nil {
				inspect(p.Default, n, fn)
			}
		}
		if n.Body != nil {
			inspect(n.Body, n, fn)
		}
	case *FieldDecl:
		// no children

	// Leaves
	case *ConstExpr, *NameExpr, *ThisExpr, *ReceiverExpr, *BreakExpr, *ContinueExpr:
		// no children

	case *TemplateExpr:
		inspectExprs(n.Parts, n, fn)
	case *TupleExpr:
		inspectExprs(n.Elems, n, fn)
	case *PropExpr:
		if n.Receiver != nil {
			inspect(n.Receiver, n, fn)
		}
	case *IndexExpr:
		inspect(n.X, n, fn)
		inspectExprs(n.Index, n, fn)
	case *CallExpr:
		inspectCall(&n.Call, n, fn)
	case *InvokeExpr:
		inspect(n.Fn, n, fn)
		inspectExprs(n.Args, n, fn)
	case *SafeExpr:
		inspect(n.Receiver, n, fn)
		inspect(n.Selector, n, fn)
	case *CompareExpr:
		inspect(n.Left, n, fn)
		inspect(n.Right, n, fn)
	case *LogicalExpr:
		inspect(n.Left, n, fn)
		inspect(n.Right, n, fn)
	case *NotExpr:
		inspect(n.X, n, fn)
	case *ElvisExpr:
		inspect(n.Left, n, fn)
		inspect(n.Right, n, fn)
	case *RangeExpr:
		inspect(n.From, n, fn)
		inspect(n.To, n, fn)
	case *InExpr:
		inspect(n.X, n, fn)
		inspect(n.Range, n, fn)
	case *IsExpr:
		inspect(n.X, n, fn)
		inspect(n.Pattern, n, fn)
	case *CastExpr:
		inspect(n.X, n, fn)
	case *NotNullExpr:
		inspect(n.X, n, fn)
	case *VarDecl:
		if n.Init != nil {
			inspect(n.Init, n, fn)
		}
	case *AssignExpr:
		inspect(n.Target, n, fn)
		inspect(n.Value, n, fn)
	case *AugAssignExpr:
		inspect(n.Target, n, fn)
		inspect(n.Value, n, fn)
	case *IncDecExpr:
		inspect(n.Target, n, fn)
	case *NewArrayExpr:
		inspect(n.Size, n, fn)
		if n.Init != nil {
			inspect(n.Init, n, fn)
		}
	case *LambdaExpr:
		inspect(n.Fun, n, fn)
	case *ObjectExpr:
		inspectExprs(n.SuperArgs, n, fn)
		inspect(n.Class, n, fn)
	case *LocalFunExpr:
		inspect(n.Lambda, n, fn)

	// Compound
	case *BlockExpr:
		inspectExprs(n.Stmts, n, fn)
	case *IfExpr:
		inspect(n.Cond, n, fn)
		if n.Then != nil {
			inspect(n.Then, n, fn)
		}
		if n.Else != nil {
			inspect(n.Else, n, fn)
		}
	case *WhileExpr:
		inspect(n.Cond, n, fn)
		inspect(n.Body, n, fn)
	case *DoWhileExpr:
		inspect(n.Body, n, fn)
		inspect(n.Cond, n, fn)
	case *ForExpr:
		inspect(n.Range, n, fn)
		inspect(n.Body, n, fn)
	case *ReturnExpr:
		if n.Value != nil {
			inspect(n.Value, n, fn)
		}
	case *ThrowExpr:
		inspect(n.X, n, fn)
	case *TryExpr:
		inspect(n.Body, n, fn)
		for _, c := range n.Catches {
			inspect(c, n, fn)
		}
		if n.Finally != nil {
			inspect(n.Finally, n, fn)
		}
	case *CatchClause:
		inspect(n.Body, n, fn)
	case *WhenExpr:
		if n.Subject != nil {
			inspect(n.Subject, n, fn)
		}
		for _, e := range n.Entries {
			inspect(e, n, fn)
		}
	case *WhenEntry:
		for _, c := range n.Conditions {
			inspect(c, n, fn)
		}
		inspect(n.Body, n, fn)

	// Patterns
	case *TypePattern, *WildcardPattern:
		// no children
	case *ExprPattern:
		inspect(n.X, n, fn)
	case *RangePattern:
		inspect(n.Range, n, fn)
	case *TuplePattern:
		for _, p := range n.Elems {
			inspect(p, n, fn)
		}
	case *BindPattern:
		if n.Guard != nil {
			inspect(n.Guard, n, fn)
		}
	}
}

package analyzer

import "github.com/covstar/luacov/internal/luacov/luasyntax"

// freeVariables returns the set of identifier names read inside fn's
// body that are not bound by fn's own parameters or by a local
// declaration/loop variable directly in its body. A non-empty result
// means fn closes over an enclosing scope, i.e. is a CLOSURE per
// the function-kind classification.
//
// This is a small bounded helper over one function body (not the main
// structural walk, which is iterative per the analyzer's budget
// notes); ordinary Lua function nesting depth never approaches the
// analyzer's node budget, so plain recursion here is safe.
func freeVariables(fn *luasyntax.FuncExpr) map[string]bool {
	bound := map[string]bool{}
	for _, p := range fn.Params {
		bound[p.Name] = true
	}
	free := map[string]bool{}
	collectBlock(fn.Body, bound, free)
	return free
}

func collectBlock(b *luasyntax.Block, bound, free map[string]bool) {
	if b == nil {
		return
	}
	for _, s := range b.Stmts {
		collectStmt(s, bound, free)
	}
}

func collectStmt(s luasyntax.Stmt, bound, free map[string]bool) {
	switch st := s.(type) {
	case *luasyntax.LocalStmt:
		for _, v := range st.Values {
			collectExpr(v, bound, free)
		}
		for _, n := range st.Names {
			bound[n.Name] = true
		}
	case *luasyntax.AssignStmt:
		for _, t := range st.Targets {
			collectExpr(t, bound, free)
		}
		for _, v := range st.Values {
			collectExpr(v, bound, free)
		}
	case *luasyntax.CallStmt:
		collectExpr(st.Call, bound, free)
	case *luasyntax.DoStmt:
		collectBlock(st.Body, bound, free)
	case *luasyntax.WhileStmt:
		collectExpr(st.Cond, bound, free)
		collectBlock(st.Body, bound, free)
	case *luasyntax.RepeatStmt:
		collectBlock(st.Body, bound, free)
		collectExpr(st.Cond, bound, free)
	case *luasyntax.IfStmt:
		for _, c := range st.Clauses {
			if c.Cond != nil {
				collectExpr(c.Cond, bound, free)
			}
			collectBlock(c.Body, bound, free)
		}
	case *luasyntax.NumForStmt:
		collectExpr(st.Start, bound, free)
		collectExpr(st.Stop, bound, free)
		if st.Step != nil {
			collectExpr(st.Step, bound, free)
		}
		bound[st.Name.Name] = true
		collectBlock(st.Body, bound, free)
	case *luasyntax.GenForStmt:
		for _, e := range st.Exprs {
			collectExpr(e, bound, free)
		}
		for _, n := range st.Names {
			bound[n.Name] = true
		}
		collectBlock(st.Body, bound, free)
	case *luasyntax.FuncStmt:
		// A nested named function declaration binds its own name in the
		// enclosing scope and is analyzed as its own function elsewhere;
		// still scan its body so its captures count against *this* scope
		// only for names it doesn't bind itself.
		inner := freeVariables(st.Func)
		for name := range inner {
			if !bound[name] {
				free[name] = true
			}
		}
		if st.Kind == luasyntax.FuncLocal && len(st.NameParts) > 0 {
			bound[st.NameParts[0]] = true
		}
	case *luasyntax.ReturnStmt:
		for _, v := range st.Values {
			collectExpr(v, bound, free)
		}
	}
}

func collectExpr(e luasyntax.Expr, bound, free map[string]bool) {
	switch ex := e.(type) {
	case *luasyntax.Ident:
		if !bound[ex.Name] {
			free[ex.Name] = true
		}
	case *luasyntax.BinaryExpr:
		collectExpr(ex.X, bound, free)
		collectExpr(ex.Y, bound, free)
	case *luasyntax.UnaryExpr:
		collectExpr(ex.X, bound, free)
	case *luasyntax.ParenExpr:
		collectExpr(ex.X, bound, free)
	case *luasyntax.IndexExpr:
		collectExpr(ex.X, bound, free)
		collectExpr(ex.Index, bound, free)
	case *luasyntax.FieldExpr:
		collectExpr(ex.X, bound, free)
	case *luasyntax.CallExpr:
		collectExpr(ex.Fn, bound, free)
		for _, a := range ex.Args {
			collectExpr(a, bound, free)
		}
	case *luasyntax.TableExpr:
		for _, f := range ex.Fields {
			if f.Key != nil {
				collectExpr(f.Key, bound, free)
			}
			collectExpr(f.Value, bound, free)
		}
	case *luasyntax.FuncExpr:
		inner := freeVariables(ex)
		for name := range inner {
			if !bound[name] {
				free[name] = true
			}
		}
	}
}

package pipesched

// BoxesRequired walks expression e over a variable scope of per-variable
// intervals, and returns the bounding box of accesses each called pipeline
// function (and input image) needs to satisfy the evaluation of e over that
// scope. valueBounds is accepted but not consulted.
//
// It works by symbolic interval arithmetic: a called function's per-argument
// access expression is evaluated as an interval by recursively bounding
// sub-expressions against the scope, producing one Interval per call
// argument, i.e. one dimension of that callee's required Box.
func BoxesRequired(e *Expr, scope DimBounds, valueBounds map[string]Box) map[string]Box {
	result := map[string]Box{}
	var walk func(e *Expr)
	walk = func(e *Expr) {
		if e == nil {
			return
		}
		if e.Kind == ExprCall && (e.CallKind == CallPipelineFunc || e.CallKind == CallImage) {
			box := make(Box, len(e.Args))
			for i, arg := range e.Args {
				box[i] = boundExpr(arg, scope)
			}
			if existing, ok := result[e.CallTarget]; ok {
				result[e.CallTarget] = existing.Hull(box)
			} else {
				result[e.CallTarget] = box
			}
		}
		walkChildren(e, walk)
	}
	walk(e)
	return result
}

// boundExpr computes the interval of possible values of e given scope,
// conservative (widening) on anything it cannot bound tightly.
func boundExpr(e *Expr, scope DimBounds) Interval {
	if e == nil {
		return Interval{}
	}
	switch e.Kind {
	case ExprIntImm:
		return LiteralInterval(e.IntVal, e.IntVal)
	case ExprVar:
		if iv, ok := scope[e.VarName]; ok {
			return iv
		}
		return Interval{}
	case ExprCast:
		return boundExpr(e.Operand, scope)
	case ExprBinOp:
		l := boundExpr(e.LHS, scope)
		r := boundExpr(e.RHS, scope)
		return boundBinOp(e.Op, l, r)
	case ExprSelect:
		t := boundExpr(e.TrueBranch, scope)
		f := boundExpr(e.FalseBranch, scope)
		return t.Hull(f)
	case ExprLet:
		val := boundExpr(e.LetValue, scope)
		inner := scope.Clone()
		inner[e.LetVar] = val
		return boundExpr(e.LetBody, inner)
	case ExprCall:
		// the value of a nested call is not itself tracked symbolically;
		// conservatively unknown.
		return Interval{}
	default:
		return Interval{}
	}
}

func boundBinOp(op BinOpKind, l, r Interval) Interval {
	switch op {
	case OpAdd:
		if l.HasLitMin && r.HasLitMin && l.HasLitMax && r.HasLitMax {
			return LiteralInterval(l.LitMin+r.LitMin, l.LitMax+r.LitMax)
		}
	case OpSub:
		if l.HasLitMin && r.HasLitMax && l.HasLitMax && r.HasLitMin {
			return LiteralInterval(l.LitMin-r.LitMax, l.LitMax-r.LitMin)
		}
	case OpMul:
		if l.HasLitMin && r.HasLitMin && l.HasLitMax && r.HasLitMax && r.LitMin >= 0 && l.LitMin >= 0 {
			return LiteralInterval(l.LitMin*r.LitMin, l.LitMax*r.LitMax)
		}
	case OpMin:
		if l.HasLitMin && r.HasLitMin && l.HasLitMax && r.HasLitMax {
			return LiteralInterval(minI64(l.LitMin, r.LitMin), minI64(l.LitMax, r.LitMax))
		}
	case OpMax:
		if l.HasLitMin && r.HasLitMin && l.HasLitMax && r.HasLitMax {
			return LiteralInterval(maxI64(l.LitMin, r.LitMin), maxI64(l.LitMax, r.LitMax))
		}
	}
	return Interval{}
}

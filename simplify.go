package pipesched

// Simplify performs conservative constant folding over an expression: literal
// binary arithmetic, literal casts, selects with a literal condition, and
// substitution of every Let binding's value into its body. It adds no calls;
// a call can drop out only with a discarded select branch or an unused Let
// value. Its purpose is resolving arithmetic that box-endpoint substitution
// produces (e.g. `min + extent - 1` once both are literals).
func Simplify(e *Expr) *Expr {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case ExprCast:
		inner := Simplify(e.Operand)
		if inner.Kind == ExprIntImm {
			return IntImm(inner.IntVal)
		}
		return &Expr{Kind: ExprCast, CastType: e.CastType, Operand: inner}
	case ExprNot:
		inner := Simplify(e.Operand)
		return &Expr{Kind: ExprNot, Operand: inner}
	case ExprSelect:
		cond := Simplify(e.Cond)
		t := Simplify(e.TrueBranch)
		f := Simplify(e.FalseBranch)
		if cond.Kind == ExprIntImm {
			if cond.IntVal != 0 {
				return t
			}
			return f
		}
		return &Expr{Kind: ExprSelect, Cond: cond, TrueBranch: t, FalseBranch: f}
	case ExprBinOp:
		lhs := Simplify(e.LHS)
		rhs := Simplify(e.RHS)
		if lhs.Kind == ExprIntImm && rhs.Kind == ExprIntImm {
			if v, ok := foldIntBinOp(e.Op, lhs.IntVal, rhs.IntVal); ok {
				return IntImm(v)
			}
		}
		return Bin(e.Op, lhs, rhs)
	case ExprLet:
		val := Simplify(e.LetValue)
		body := substituteVar(Simplify(e.LetBody), e.LetVar, val)
		return Simplify(body)
	case ExprCall:
		args := make([]*Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = Simplify(a)
		}
		out := *e
		out.Args = args
		return &out
	default:
		return e
	}
}

func foldIntBinOp(op BinOpKind, a, b int64) (int64, bool) {
	switch op {
	case OpAdd:
		return a + b, true
	case OpSub:
		return a - b, true
	case OpMul:
		return a * b, true
	case OpDiv:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case OpMod:
		if b == 0 {
			return 0, false
		}
		return a % b, true
	case OpMin:
		return minI64(a, b), true
	case OpMax:
		return maxI64(a, b), true
	case OpEQ:
		return boolI64(a == b), true
	case OpNE:
		return boolI64(a != b), true
	case OpLT:
		return boolI64(a < b), true
	case OpLE:
		return boolI64(a <= b), true
	case OpGT:
		return boolI64(a > b), true
	case OpGE:
		return boolI64(a >= b), true
	case OpAnd:
		return boolI64(a != 0 && b != 0), true
	case OpOr:
		return boolI64(a != 0 || b != 0), true
	}
	return 0, false
}

func boolI64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// substituteVar replaces every occurrence of a Var named name with val.
func substituteVar(e *Expr, name string, val *Expr) *Expr {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case ExprVar:
		if e.VarName == name {
			return val
		}
		return e
	case ExprCast:
		return &Expr{Kind: ExprCast, CastType: e.CastType, Operand: substituteVar(e.Operand, name, val)}
	case ExprNot:
		return &Expr{Kind: ExprNot, Operand: substituteVar(e.Operand, name, val)}
	case ExprBinOp:
		return &Expr{Kind: ExprBinOp, Op: e.Op, LHS: substituteVar(e.LHS, name, val), RHS: substituteVar(e.RHS, name, val)}
	case ExprSelect:
		return &Expr{Kind: ExprSelect,
			Cond:        substituteVar(e.Cond, name, val),
			TrueBranch:  substituteVar(e.TrueBranch, name, val),
			FalseBranch: substituteVar(e.FalseBranch, name, val),
		}
	case ExprCall:
		args := make([]*Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = substituteVar(a, name, val)
		}
		out := *e
		out.Args = args
		return &out
	case ExprLet:
		if e.LetVar == name {
			// inner binding shadows name; value expression still substitutes
			return &Expr{Kind: ExprLet, LetVar: e.LetVar, LetValue: substituteVar(e.LetValue, name, val), LetBody: e.LetBody}
		}
		return &Expr{Kind: ExprLet, LetVar: e.LetVar, LetValue: substituteVar(e.LetValue, name, val), LetBody: substituteVar(e.LetBody, name, val)}
	default:
		return e
	}
}

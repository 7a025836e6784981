package pipesched

import "sort"

// CostModel converts per-point expression costs into region costs and
// working-set sizes, with optional inlining rewrites.
type CostModel struct {
	env Environment
	// funcCost[name] is one PointCost per stage (pure stage 0, updates 1..).
	funcCost map[string][]PointCost
	typeBytes map[string]int64 // per function, bytes-per-value summed over all its output types
}

func NewCostModel(env Environment) *CostModel {
	cm := &CostModel{
		env:       env,
		funcCost:  map[string][]PointCost{},
		typeBytes: map[string]int64{},
	}
	for name, f := range env {
		stages := make([]PointCost, f.NumUpdates()+1)
		stages[0] = sumExprCosts(f.Pure.Values)
		for k, u := range f.Updates {
			c := sumExprCosts(u.Values)
			c = c.Add(sumExprCosts(u.Args))
			stages[k+1] = c
		}
		cm.funcCost[name] = stages

		var bytes int64
		for _, t := range f.OutputTypes {
			bytes += int64(t.Bytes)
		}
		if bytes == 0 {
			bytes = 4 // conservative default, one 32-bit word, if the host left types empty
		}
		cm.typeBytes[name] = bytes
	}
	return cm
}

func sumExprCosts(exprs []*Expr) PointCost {
	var total PointCost
	for _, e := range exprs {
		total = total.Add(CostExpr(e))
	}
	return total
}

// FuncCost returns the point cost of stage k of function name.
func (cm *CostModel) FuncCost(name string, k int) PointCost {
	stages := cm.funcCost[name]
	if k < 0 || k >= len(stages) {
		return PointCost{}
	}
	return stages[k]
}

// PerformInline iteratively substitutes calls into any pure function named
// in inlines, using that function's pure definition, until a fixed point.
// Reduction stages (functions with updates) are never inlined.
func PerformInline(e *Expr, inlines map[string]bool, env Environment) *Expr {
	cur := e
	for {
		next, changed := inlineOnce(cur, inlines, env)
		if !changed {
			return next
		}
		cur = next
	}
}

func inlineOnce(e *Expr, inlines map[string]bool, env Environment) (*Expr, bool) {
	if e == nil {
		return nil, false
	}
	switch e.Kind {
	case ExprCall:
		if e.CallKind == CallPipelineFunc && inlines[e.CallTarget] {
			callee := env[e.CallTarget]
			if callee != nil && callee.IsPure() {
				body := inlineCallBody(callee, e.Args)
				return body, true
			}
		}
		changedAny := false
		args := make([]*Expr, len(e.Args))
		for i, a := range e.Args {
			na, ch := inlineOnce(a, inlines, env)
			args[i] = na
			changedAny = changedAny || ch
		}
		out := *e
		out.Args = args
		return &out, changedAny
	case ExprCast:
		inner, ch := inlineOnce(e.Operand, inlines, env)
		return &Expr{Kind: ExprCast, CastType: e.CastType, Operand: inner}, ch
	case ExprNot:
		inner, ch := inlineOnce(e.Operand, inlines, env)
		return &Expr{Kind: ExprNot, Operand: inner}, ch
	case ExprBinOp:
		l, ch1 := inlineOnce(e.LHS, inlines, env)
		r, ch2 := inlineOnce(e.RHS, inlines, env)
		return &Expr{Kind: ExprBinOp, Op: e.Op, LHS: l, RHS: r}, ch1 || ch2
	case ExprSelect:
		c, ch1 := inlineOnce(e.Cond, inlines, env)
		t, ch2 := inlineOnce(e.TrueBranch, inlines, env)
		f, ch3 := inlineOnce(e.FalseBranch, inlines, env)
		return &Expr{Kind: ExprSelect, Cond: c, TrueBranch: t, FalseBranch: f}, ch1 || ch2 || ch3
	case ExprLet:
		v, ch1 := inlineOnce(e.LetValue, inlines, env)
		b, ch2 := inlineOnce(e.LetBody, inlines, env)
		return &Expr{Kind: ExprLet, LetVar: e.LetVar, LetValue: v, LetBody: b}, ch1 || ch2
	default:
		return e, false
	}
}

// inlineCallBody substitutes callArgs for callee's pure args inside
// callee's (single, tuple-component-0) value expression.
func inlineCallBody(callee *Function, callArgs []*Expr) *Expr {
	if len(callee.Pure.Values) == 0 {
		return IntImm(0)
	}
	body := callee.Pure.Values[0]
	for i, argName := range callee.PureArgs {
		if i < len(callArgs) {
			body = substituteVar(body, argName, callArgs[i])
		}
	}
	return body
}

// StageRegionCost computes the cost of evaluating stage (f,k) over region
// box r (dimension-aligned to f.Args()). It overlays r onto the stage's pure
// args, then adds every reduction variable of stage k at its own
// [min, min+extent-1] bound, and forms the stage's evaluation box from the
// stage definition's non-__outermost dims -- so an update stage's reduction
// dims contribute their own extent to the area, not just the pure args.
func (cm *CostModel) StageRegionCost(stage FStage, r Box) (arith, mem int64, unknown bool) {
	f := cm.env[stage.FuncName]
	if f == nil {
		return -1, -1, true
	}
	def := stage.Def(cm.env)
	if def == nil {
		return -1, -1, true
	}

	bounds := DimBounds{}
	for i, arg := range f.PureArgs {
		if i < len(r) {
			bounds[arg] = r[i]
		}
	}
	for _, rv := range def.RVars {
		minE := Simplify(rv.Min)
		extE := Simplify(rv.Extent)
		if minE.Kind == ExprIntImm && extE.Kind == ExprIntImm {
			bounds[rv.Name] = LiteralInterval(minE.IntVal, minE.IntVal+extE.IntVal-1)
		} else {
			bounds[rv.Name] = Interval{}
		}
	}

	box := make(Box, 0, len(def.Dims))
	for _, d := range def.Dims {
		if d.IsOutermost {
			continue
		}
		iv, ok := bounds[d.Name]
		if !ok {
			return -1, -1, true
		}
		box = append(box, iv)
	}

	area := box.Area()
	if area.IsUnknown {
		return -1, -1, true
	}
	pc := cm.FuncCost(stage.FuncName, stage.StageNum)
	return area.Value * pc.Ops, area.Value * pc.BytesLoaded, false
}

// RegionCost sums StageRegionCost over every stage (pure plus every update)
// of each function in a set of per-function regions, skipping any pure
// function present in inlines. Consumer point costs are the ones computed
// in NewCostModel from the unrewritten expressions: PerformInline is not
// applied here, so a skipped function's arithmetic is not added to its
// consumers. Functions with updates are never skipped.
func (cm *CostModel) RegionCost(regions map[string]Box, inlined map[string]bool) (arith, mem int64) {
	names := sortedKeys(regions)
	for _, name := range names {
		f := cm.env[name]
		if f == nil {
			continue
		}
		if inlined[name] && f.IsPure() {
			continue
		}
		for k := 0; k <= f.NumUpdates(); k++ {
			stage := FStage{FuncName: name, StageNum: k}
			a, m, unk := cm.StageRegionCost(stage, regions[name])
			if unk {
				return -1, -1
			}
			arith += a
			mem += m
		}
	}
	return arith, mem
}

// RegionSize computes, for one function, area * bytes-per-value.
func (cm *CostModel) RegionSize(name string, r Box) int64 {
	area := r.Area()
	if area.IsUnknown {
		return -1
	}
	return area.Value * cm.typeBytes[name]
}

// WorkingSetHighWaterMark computes the peak simultaneous live byte footprint
// across regions during a realization-order traversal, accumulating each
// region's size on first need and subtracting it once its last consumer has
// been visited. Inlined functions contribute zero storage.
func (cm *CostModel) WorkingSetHighWaterMark(regions map[string]Box, order []string, directProducers map[string][]string, inlined map[string]bool) int64 {
	consumerCount := map[string]int{}
	for name := range regions {
		consumerCount[name] = 0
	}
	for name := range regions {
		for _, p := range directProducers[name] {
			if _, ok := regions[p]; ok {
				consumerCount[p]++
			}
		}
	}

	var running, peak int64
	for _, name := range order {
		if _, ok := regions[name]; !ok {
			continue
		}
		if inlined[name] {
			continue
		}
		size := cm.RegionSize(name, regions[name])
		if size < 0 {
			return -1
		}
		running += size
		if running > peak {
			peak = running
		}
		for _, p := range directProducers[name] {
			if _, ok := regions[p]; !ok {
				continue
			}
			consumerCount[p]--
			if consumerCount[p] == 0 && !inlined[p] {
				pSize := cm.RegionSize(p, regions[p])
				if pSize < 0 {
					return -1
				}
				running -= pSize
			}
		}
	}
	return peak
}

func sortedKeys(m map[string]Box) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

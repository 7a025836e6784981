package pipesched

import "sort"

// DependenceAnalysis computes, for a stage over a bounds box, the required
// region of every upstream function, and the redundant-work overlap under a
// unit shift.
type DependenceAnalysis struct {
	env Environment
}

func NewDependenceAnalysis(env Environment) *DependenceAnalysis {
	return &DependenceAnalysis{env: env}
}

// GetStageBounds overlays each reduction variable of stage (f,k) onto
// pureBounds at its simplified [min, min+extent-1].
func (da *DependenceAnalysis) GetStageBounds(stage FStage, pureBounds DimBounds) DimBounds {
	out := pureBounds.Clone()
	def := stage.Def(da.env)
	if def == nil {
		return out
	}
	for _, rv := range def.RVars {
		minE := Simplify(rv.Min)
		extE := Simplify(rv.Extent)
		if minE.Kind == ExprIntImm && extE.Kind == ExprIntImm {
			out[rv.Name] = LiteralInterval(minE.IntVal, minE.IntVal+extE.IntVal-1)
		} else {
			out[rv.Name] = Interval{}
		}
	}
	return out
}

type workItem struct {
	stage  FStage
	bounds DimBounds
}

// RegionsRequired is the heart of DependenceAnalysis: given stage (f,k) and
// its bounds, returns the required Box of every other function reachable
// through its value/argument expressions.
func (da *DependenceAnalysis) RegionsRequired(stage FStage, bounds DimBounds) map[string]Box {
	result := map[string]Box{}
	visitedStages := map[FStage]bool{}
	queue := []workItem{{stage: stage, bounds: bounds}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if visitedStages[item.stage] {
			continue
		}
		visitedStages[item.stage] = true

		def := item.stage.Def(da.env)
		if def == nil {
			continue
		}
		scope := scopeFromDims(def, item.bounds)

		perFuncBoxes := map[string]Box{}
		for _, v := range def.Values {
			boxes := BoxesRequired(v, scope, nil)
			for name, b := range boxes {
				perFuncBoxes[name] = mergeBox(perFuncBoxes[name], b)
			}
		}
		for _, a := range def.Args {
			boxes := BoxesRequired(a, scope, nil)
			for name, b := range boxes {
				perFuncBoxes[name] = mergeBox(perFuncBoxes[name], b)
			}
		}

		names := make([]string, 0, len(perFuncBoxes))
		for name := range perFuncBoxes {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			box := perFuncBoxes[name]
			result[name] = mergeBox(result[name], box)

			g := da.env[name]
			if g == nil || name == stage.FuncName {
				continue
			}
			pureBounds := boxToDimBounds(g, box)
			for k := 0; k <= g.NumUpdates(); k++ {
				childStage := FStage{FuncName: name, StageNum: k}
				childBounds := da.GetStageBounds(childStage, pureBounds)
				queue = append(queue, workItem{stage: childStage, bounds: childBounds})
			}
		}
	}

	for name, box := range result {
		result[name] = resolveBoxLiterals(box, da.env[name])
	}
	return result
}

// RegionsRequiredFunc unions per-stage region maps (whole function), by
// hull merge.
func (da *DependenceAnalysis) RegionsRequiredFunc(name string, pureBounds DimBounds) map[string]Box {
	f := da.env[name]
	if f == nil {
		return nil
	}
	out := map[string]Box{}
	for k := 0; k <= f.NumUpdates(); k++ {
		stage := FStage{FuncName: name, StageNum: k}
		bounds := da.GetStageBounds(stage, pureBounds)
		regions := da.RegionsRequired(stage, bounds)
		for n, b := range regions {
			out[n] = mergeBox(out[n], b)
		}
	}
	return out
}

// RedundantRegions computes the overlap between a stage's required regions
// at bounds, and at bounds with var shifted by its extent (adjacent tile).
// Per function present in both, the intersection is the redundant
// recomputation across adjacent tiles; functions absent from the shifted
// side are dropped.
func (da *DependenceAnalysis) RedundantRegions(stage FStage, varName string, bounds DimBounds) map[string]Box {
	base := da.RegionsRequired(stage, bounds)

	iv, ok := bounds[varName]
	if !ok {
		return map[string]Box{}
	}
	ext := iv.Extent()
	if ext.IsUnknown {
		out := map[string]Box{}
		for name := range base {
			out[name] = nil // unknown region marker; callers (computeReusePerStage) treat a nil box as unknown
		}
		return out
	}

	shiftedBounds := bounds.Clone()
	shiftedBounds[varName] = iv.Shift(ext.Value)
	shifted := da.RegionsRequired(stage, shiftedBounds)

	out := map[string]Box{}
	for name, box := range base {
		sBox, ok := shifted[name]
		if !ok {
			continue
		}
		out[name] = box.Intersect(sBox)
	}
	return out
}

// OverlapRegions returns one RedundantRegions map per non-outermost dim of
// stage, keyed by dim name (a Go map, so it carries no dim order).
func (da *DependenceAnalysis) OverlapRegions(stage FStage, bounds DimBounds) map[string]map[string]Box {
	def := stage.Def(da.env)
	if def == nil {
		return nil
	}
	out := map[string]map[string]Box{}
	for _, d := range def.Dims {
		if d.IsOutermost {
			continue
		}
		out[d.Name] = da.RedundantRegions(stage, d.Name, bounds)
	}
	return out
}

// GetPipelineBounds seeds each output with its estimate box, then
// union-merges all RegionsRequiredFunc outputs plus the outputs themselves.
func (da *DependenceAnalysis) GetPipelineBounds(outputs []*Function) (map[string]Box, error) {
	result := map[string]Box{}
	for _, f := range outputs {
		bounds, err := estimateDimBounds(f)
		if err != nil {
			return nil, err
		}
		box := make(Box, len(f.PureArgs))
		for i, arg := range f.PureArgs {
			box[i] = bounds[arg]
		}
		result[f.Name()] = mergeBox(result[f.Name()], box)

		regions := da.RegionsRequiredFunc(f.Name(), bounds)
		for name, b := range regions {
			result[name] = mergeBox(result[name], b)
		}
	}
	return result, nil
}

// estimateDimBounds builds a DimBounds from f's literal output estimates,
// returning a UserError if any pure arg lacks a literal estimate.
func estimateDimBounds(f *Function) (DimBounds, error) {
	bounds := DimBounds{}
	for _, arg := range f.PureArgs {
		est, ok := f.Estimate(arg)
		if !ok || !est.HasLiteral {
			return nil, newUserError("function %q is missing a literal estimate on output dimension %q", f.Name(), arg)
		}
		bounds[arg] = LiteralInterval(est.Min, est.Min+est.Extent-1)
	}
	return bounds, nil
}

func scopeFromDims(def *Definition, bounds DimBounds) DimBounds {
	scope := DimBounds{}
	for _, d := range def.Dims {
		if d.IsOutermost {
			continue
		}
		if iv, ok := bounds[d.Name]; ok {
			scope[d.Name] = iv
		}
	}
	return scope
}

func boxToDimBounds(f *Function, box Box) DimBounds {
	out := DimBounds{}
	for i, arg := range f.PureArgs {
		if i < len(box) {
			out[arg] = box[i]
		}
	}
	return out
}

func mergeBox(a, b Box) Box {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return a.Hull(b)
}

// resolveBoxLiterals substitutes the user estimate for any dim whose
// endpoints are not both literal, when the function has an estimate on that
// dim. Endpoints are not passed through Simplify; only the interval's
// literal flags decide. Endpoints on functions without estimates (e.g.
// external input images) stay symbolic.
func resolveBoxLiterals(box Box, f *Function) Box {
	out := make(Box, len(box))
	for i, iv := range box {
		out[i] = iv
		if (!iv.HasLitMin || !iv.HasLitMax) && f != nil && i < len(f.PureArgs) {
			if est, ok := f.Estimate(f.PureArgs[i]); ok && est.HasLiteral {
				out[i] = LiteralInterval(est.Min, est.Min+est.Extent-1)
			}
		}
	}
	return out
}

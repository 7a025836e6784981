package pipesched

// computeReusePerStage evaluates OverlapRegions with unit tile sizes along
// each pure dim of stage, and sums box_area over overlap regions restricted
// to the stage's producer set. Any unknown area makes that dim's reuse
// unknown (-1). bounds is the pipeline-wide region map propagated from
// consumer demand (GetPipelineBounds), consulted for any arg lacking its
// own literal estimate -- a producer dim with neither source stays
// Interval{} (unknown), rather than silently collapsing to a zero-extent
// box.
func computeReusePerStage(dep *DependenceAnalysis, stage FStage, env Environment, bounds map[string]Box, producers map[string]bool) map[string]int64 {
	f := env[stage.FuncName]
	if f == nil {
		return nil
	}
	pipeBox := bounds[stage.FuncName]
	dimBounds := DimBounds{}
	for i, arg := range f.PureArgs {
		est, ok := f.Estimate(arg)
		switch {
		case ok && est.HasLiteral:
			dimBounds[arg] = LiteralInterval(est.Min, est.Min+est.Extent-1)
		case i < len(pipeBox):
			dimBounds[arg] = pipeBox[i]
		default:
			dimBounds[arg] = Interval{}
		}
	}

	overlap := dep.OverlapRegions(stage, dimBounds)
	reuse := map[string]int64{}
	for dim, regions := range overlap {
		var total int64
		unknown := false
		for name, box := range regions {
			if !producers[name] {
				continue
			}
			if box == nil {
				unknown = true
				break
			}
			area := box.Area()
			if area.IsUnknown {
				unknown = true
				break
			}
			total += area.Value
		}
		if unknown {
			reuse[dim] = -1
		} else {
			reuse[dim] = total
		}
	}
	return reuse
}

package pipesched

// GenerateSchedules is the top-level entry point: generate_schedules(outputs,
// target). env is the host's function registry that find_transitive_calls
// and realization_order operate over; outputs is the ordered sequence of
// Function handles whose schedules are being requested. It validates
// output estimates (the UserError path), runs dependence analysis and the
// partitioner's INLINE then FAST_MEM passes, and returns the emitted
// schedule.
func GenerateSchedules(outputs []*Function, env Environment, target Target) (EmitResult, error) {
	for _, f := range outputs {
		for _, arg := range f.PureArgs {
			est, ok := f.Estimate(arg)
			if !ok {
				return EmitResult{}, newUserError("output %q has no estimate on dimension %q", f.Name(), arg)
			}
			if !est.HasLiteral {
				return EmitResult{}, newUserError("output %q has a non-literal estimate on dimension %q", f.Name(), arg)
			}
		}
	}

	// restrict the working environment to outputs plus everything
	// transitively reachable from them, per find_transitive_calls.
	working := Environment{}
	for _, f := range outputs {
		working[f.Name()] = f
		for name, callee := range FindTransitiveCalls(f, env) {
			working[name] = callee
		}
	}

	dep := NewDependenceAnalysis(working)
	bounds, err := dep.GetPipelineBounds(outputs)
	if err != nil {
		return EmitResult{}, err
	}

	cost := NewCostModel(working)
	part := NewPartitioner(working, target, dep, cost, bounds, outputs)
	part.Run(outputs)

	analyses := map[FStage]GroupAnalysis{}
	for stage, g := range part.Groups() {
		analyses[stage] = part.analyzeGroup(g)
	}
	if stage, detail, ok := firstUnknownAnalysis(analyses); ok {
		return EmitResult{}, &UnknownExtentError{Stage: stage, Detail: detail}
	}

	emitter := NewScheduleEmitter(working, target)
	return emitter.Emit(part.Groups(), analyses), nil
}

// firstUnknownAnalysis reports the lowest-ordered group stage (by FStage
// order, for determinism) whose cost analysis could not be resolved to
// literal bounds -- e.g. a reduction extent or output estimate the host left
// symbolic.
func firstUnknownAnalysis(analyses map[FStage]GroupAnalysis) (FStage, string, bool) {
	groups := make(map[FStage]*Group, len(analyses))
	for stage := range analyses {
		groups[stage] = nil
	}
	for _, stage := range sortedStages(groups) {
		if analyses[stage].Unknown() {
			return stage, "region bounds did not resolve to literal endpoints", true
		}
	}
	return FStage{}, "", false
}

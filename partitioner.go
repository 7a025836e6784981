package pipesched

import (
	"fmt"
	"os"
	"sort"

	"github.com/davecgh/go-spew/spew"
)

// FusionLevel distinguishes the two passes of the grouping loop.
type FusionLevel int

const (
	LevelInline FusionLevel = iota
	LevelFastMem
)

// Partitioner runs the greedy fixpoint search over fusion choices (inline
// and tile granularities), backed by a fusion cache and a per-group
// analyzer.
type Partitioner struct {
	env     Environment
	target  Target
	dep     *DependenceAnalysis
	cost    *CostModel
	bounds  map[string]Box // pipeline bounds propagated from consumer demand, consulted by functionExtentBounds for any function that is not itself a pipeline output
	outputs map[string]bool // pipeline output function names: the only functions required to carry their own literal estimate

	groups   map[FStage]*Group // keyed by group output stage (always the function's last stage)
	children map[FStage]map[FStage]bool
	cache    map[fusionCacheKey]float64
	Verbose  bool
}

type fusionCacheKey struct {
	producer string
	consumer FStage
}

func NewPartitioner(env Environment, target Target, dep *DependenceAnalysis, cost *CostModel, bounds map[string]Box, outputs []*Function) *Partitioner {
	outputSet := map[string]bool{}
	for _, o := range outputs {
		outputSet[o.Name()] = true
	}
	p := &Partitioner{
		env:      env,
		target:   target,
		dep:      dep,
		cost:     cost,
		bounds:   bounds,
		outputs:  outputSet,
		groups:   map[FStage]*Group{},
		children: map[FStage]map[FStage]bool{},
		cache:    map[fusionCacheKey]float64{},
	}
	p.initGroups()
	p.buildChildren(outputs)
	p.computeInitialReuse()
	return p
}

// computeInitialReuse seeds each function group's Reuse map, evaluated at
// its output (last) stage with unit tile sizes. This is the reuse the
// grouping loop's benefit evaluation draws on before any merge has happened.
func (p *Partitioner) computeInitialReuse() {
	for stage, g := range p.groups {
		f := p.env[stage.FuncName]
		if f == nil {
			continue
		}
		producers := map[string]bool{}
		for _, name := range FindDirectCalls(f) {
			producers[name] = true
		}
		g.Reuse = computeReusePerStage(p.dep, stage, p.env, p.bounds, producers)
	}
}

func (p *Partitioner) isOutput(name string, outputs []*Function) bool {
	for _, o := range outputs {
		if o.Name() == name {
			return true
		}
	}
	return false
}

// initGroups seeds one group per function, keyed by its last stage, with
// every stage of that function (pure plus every update) already present as
// a member. merge_groups_inline later splices "all members of every stage
// of p, 0..last" into a consumer group in one shot, and only a function's
// last stage is ever a candidate or a children-edge target -- so a stage
// that started in its own singleton group would never get pulled in.
func (p *Partitioner) initGroups() {
	names := sortedFuncNames(p.env)
	for _, name := range names {
		f := p.env[name]
		last := FStage{FuncName: name, StageNum: f.NumUpdates()}
		members := make([]FStage, 0, f.NumUpdates()+1)
		for k := 0; k <= f.NumUpdates(); k++ {
			members = append(members, FStage{FuncName: name, StageNum: k})
		}
		p.groups[last] = &Group{
			Output:    last,
			Members:   members,
			Inlined:   map[string]bool{},
			TileSizes: map[string]int64{},
			Reuse:     map[string]int64{},
		}
	}
}

// buildChildren computes (f,k) -> {consumers}: a consumer is any stage
// whose definition body calls function g, always targeting g's last stage,
// plus the implicit (f,k-1) -> (f,k) edge for every k >= 1.
func (p *Partitioner) buildChildren(outputs []*Function) {
	ensure := func(s FStage) map[FStage]bool {
		if p.children[s] == nil {
			p.children[s] = map[FStage]bool{}
		}
		return p.children[s]
	}

	names := sortedFuncNames(p.env)
	for _, name := range names {
		f := p.env[name]
		for k := 0; k <= f.NumUpdates(); k++ {
			consumer := FStage{FuncName: name, StageNum: k}
			def := f.StageDef(k)
			callees := map[string]bool{}
			for _, v := range def.Values {
				for callee := range BoxesRequired(v, nil, nil) {
					callees[callee] = true
				}
			}
			for _, a := range def.Args {
				for callee := range BoxesRequired(a, nil, nil) {
					callees[callee] = true
				}
			}
			calleeNames := make([]string, 0, len(callees))
			for c := range callees {
				calleeNames = append(calleeNames, c)
			}
			sort.Strings(calleeNames)
			for _, callee := range calleeNames {
				g := p.env[callee]
				if g == nil {
					continue
				}
				last := FStage{FuncName: callee, StageNum: g.NumUpdates()}
				ensure(last)[consumer] = true
			}
			if k >= 1 {
				prev := FStage{FuncName: name, StageNum: k - 1}
				ensure(prev)[consumer] = true
			}
		}
	}
}

func sortedFuncNames(env Environment) []string {
	out := make([]string, 0, len(env))
	for n := range env {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Groups exposes the current group map, keyed by output stage.
func (p *Partitioner) Groups() map[FStage]*Group { return p.groups }

// Run executes the INLINE pass followed by the FAST_MEM pass, per spec
// section 2's data-flow description.
func (p *Partitioner) Run(outputs []*Function) {
	p.runLevel(LevelInline, outputs)
	p.runLevel(LevelFastMem, outputs)
}

// runLevel repeats the grouping loop until a full pass makes no merge.
func (p *Partitioner) runLevel(level FusionLevel, outputs []*Function) {
	for {
		candidates := p.collectCandidates(level, outputs)
		if len(candidates) == 0 {
			return
		}
		bestStage, bestChoice, bestBenefit := p.pickBestCandidate(level, candidates)
		if bestBenefit <= 0 {
			return
		}
		if level == LevelInline {
			p.mergeGroupsInline(bestStage, bestChoice)
		} else {
			p.mergeGroups(bestStage, bestChoice)
		}
		if p.Verbose {
			fmt.Fprintf(os.Stderr, "pipesched: merged %s into %s (benefit %.2f)\n%s",
				bestStage.String(), bestChoice.ConsumerStage.String(), bestBenefit, p.DumpGroups())
		}
	}
}

// collectCandidates gathers every group whose output is the last stage of
// a pure function (functions with update stages are never merged into a
// consumer), not a pipeline output, and has outgoing children edges.
// FAST_MEM additionally requires exactly one distinct consuming function.
func (p *Partitioner) collectCandidates(level FusionLevel, outputs []*Function) []FStage {
	var cands []FStage
	stages := sortedStages(p.groups)
	for _, s := range stages {
		if !s.IsLastStage(p.env) {
			continue
		}
		if f := p.env[s.FuncName]; f != nil && !f.IsPure() {
			continue
		}
		if p.isOutput(s.FuncName, outputs) {
			continue
		}
		consumers := p.children[s]
		if len(consumers) == 0 {
			continue
		}
		if level == LevelFastMem {
			funcs := map[string]bool{}
			for c := range consumers {
				cg := p.groupOf(c)
				if cg != nil {
					funcs[cg.Output.FuncName] = true
				}
			}
			if len(funcs) != 1 {
				continue
			}
		}
		cands = append(cands, s)
	}
	return cands
}

func sortedStages(groups map[FStage]*Group) []FStage {
	out := make([]FStage, 0, len(groups))
	for s := range groups {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// groupOf finds the group currently containing stage s.
func (p *Partitioner) groupOf(s FStage) *Group {
	for _, g := range p.groups {
		if g.HasMember(s) {
			return g
		}
	}
	return nil
}

// pickBestCandidate evaluates every candidate's best choice and returns the
// one with the highest benefit, breaking ties by FStage order (the
// candidates slice is already in that order) for deterministic output.
func (p *Partitioner) pickBestCandidate(level FusionLevel, candidates []FStage) (FStage, FusionChoice, float64) {
	var bestStage FStage
	var bestChoice FusionChoice
	bestBenefit := float64(-1)
	first := true

	for _, cand := range candidates {
		var choice FusionChoice
		var benefit float64
		if level == LevelInline {
			choice, benefit = p.evaluateInlineCandidate(cand)
		} else {
			choice, benefit = p.evaluateFastMemCandidate(cand)
		}
		if first || benefit > bestBenefit {
			bestStage, bestChoice, bestBenefit = cand, choice, benefit
			first = false
		}
	}
	return bestStage, bestChoice, bestBenefit
}

// evaluateInlineCandidate is evaluate_inline_choice: synthesize the fused
// group with tile sizes all 1 on the consumer's pure dims, and compute
// benefit = sum(producer.arith) + consumer.arith - fused.arith.
func (p *Partitioner) evaluateInlineCandidate(producerLast FStage) (FusionChoice, float64) {
	consumers := sortedFStageSet(p.children[producerLast])
	if len(consumers) == 0 {
		return FusionChoice{}, -1
	}

	key := fusionCacheKey{producer: producerLast.FuncName, consumer: consumers[0]}
	if v, ok := p.cache[key]; ok {
		return FusionChoice{ProducerName: producerLast.FuncName, ConsumerStage: consumers[0]}, v
	}

	prodGroup := p.groupOf(producerLast)
	prodAnalysis := p.analyzeGroup(prodGroup)
	if prodAnalysis.Unknown() {
		p.cache[key] = -1
		return FusionChoice{ProducerName: producerLast.FuncName, ConsumerStage: consumers[0]}, -1
	}

	var totalBenefit float64
	for _, c := range consumers {
		consGroup := p.groupOf(c)
		consAnalysis := p.analyzeGroup(consGroup)
		fused := p.synthesizeInlineFusedGroup(prodGroup, consGroup)
		fusedAnalysis := p.analyzeGroup(fused)
		if consAnalysis.Unknown() || fusedAnalysis.Unknown() {
			totalBenefit = -1
			break
		}
		benefit := float64(prodAnalysis.ArithCost + consAnalysis.ArithCost - fusedAnalysis.ArithCost)
		totalBenefit += benefit
	}

	p.cache[key] = totalBenefit
	return FusionChoice{ProducerName: producerLast.FuncName, ConsumerStage: consumers[0]}, totalBenefit
}

func (p *Partitioner) synthesizeInlineFusedGroup(prod, cons *Group) *Group {
	fused := &Group{
		Output:    cons.Output,
		Members:   append(append([]FStage{}, cons.Members...), prod.Members...),
		Inlined:   map[string]bool{},
		TileSizes: map[string]int64{},
		Reuse:     map[string]int64{},
	}
	for name := range cons.Inlined {
		fused.Inlined[name] = true
	}
	fused.Inlined[prod.Output.FuncName] = true
	def := cons.Output.Def(p.env)
	if def != nil {
		for _, d := range def.Dims {
			if !d.IsOutermost && !d.IsReduction {
				fused.TileSizes[d.Name] = 1
			}
		}
	}
	return fused
}

// evaluateFastMemCandidate is the FAST_MEM selector: analyze tile configs
// for the single consumer group via findBestTileConfig and pick the best.
func (p *Partitioner) evaluateFastMemCandidate(producerLast FStage) (FusionChoice, float64) {
	consumers := sortedFStageSet(p.children[producerLast])
	if len(consumers) == 0 {
		return FusionChoice{}, -1
	}
	consStage := consumers[0]

	key := fusionCacheKey{producer: producerLast.FuncName, consumer: consStage}
	if v, ok := p.cache[key]; ok {
		return FusionChoice{ProducerName: producerLast.FuncName, ConsumerStage: consStage}, v
	}

	prodGroup := p.groupOf(producerLast)
	consGroup := p.groupOf(consStage)
	prodAnalysis := p.analyzeGroup(prodGroup)
	consAnalysisUnfused := p.analyzeGroup(consGroup)
	if prodAnalysis.Unknown() || consAnalysisUnfused.Unknown() {
		p.cache[key] = -1
		return FusionChoice{ProducerName: producerLast.FuncName, ConsumerStage: consStage}, -1
	}

	fused := p.synthesizeFastMemFusedGroup(prodGroup, consGroup, nil)
	tileSizes, fusedAnalysis := p.findBestTileConfig(fused)
	if fusedAnalysis.Unknown() {
		p.cache[key] = -1
		return FusionChoice{ProducerName: producerLast.FuncName, ConsumerStage: consStage}, -1
	}

	benefit := float64(prodAnalysis.ArithCost + consAnalysisUnfused.ArithCost - fusedAnalysis.ArithCost)
	p.cache[key] = benefit
	return FusionChoice{ProducerName: producerLast.FuncName, ConsumerStage: consStage, TileSizes: tileSizes}, benefit
}

func (p *Partitioner) synthesizeFastMemFusedGroup(prod, cons *Group, tileSizes map[string]int64) *Group {
	fused := &Group{
		Output:    cons.Output,
		Members:   append(append([]FStage{}, cons.Members...), prod.Members...),
		Inlined:   map[string]bool{},
		TileSizes: map[string]int64{},
		Reuse:     map[string]int64{},
	}
	for name := range cons.Inlined {
		fused.Inlined[name] = true
	}
	fused.Inlined[prod.Output.FuncName] = true // inlined for cost purposes only; members still present
	for k, v := range tileSizes {
		fused.TileSizes[k] = v
	}
	return fused
}

func sortedFStageSet(m map[FStage]bool) []FStage {
	out := make([]FStage, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// mergeGroupsInline splices every stage of the producer into every
// consumer-function's group, marking every spliced function name inlined
// in that (surviving) destination group. Aggregation lands in the
// surviving group only, never spread back onto the removed producer.
func (p *Partitioner) mergeGroupsInline(producerLast FStage, choice FusionChoice) {
	prodGroup := p.groupOf(producerLast)
	if prodGroup == nil {
		contractViolation("mergeGroupsInline: producer group for %s not found", producerLast)
	}
	consumers := sortedFStageSet(p.children[producerLast])

	destGroups := map[FStage]*Group{}
	for _, c := range consumers {
		cg := p.groupOf(c)
		if cg == nil {
			continue
		}
		destGroups[cg.Output] = cg
	}

	for _, dest := range destGroups {
		dest.Members = append(dest.Members, prodGroup.Members...)
		for _, m := range prodGroup.Members {
			dest.Inlined[m.FuncName] = true
		}
	}

	p.removeGroup(prodGroup.Output)
	p.redirectChildren(prodGroup.Members, destGroups)
	p.invalidateCache(producerLast.FuncName, destGroups)
}

// mergeGroups is the FAST_MEM merge: splice producer stages into the single
// consumer group c, mark producer's function inlined within c for cost
// purposes only (members remain, tiled at c's granularity), and set
// c.TileSizes from the choice.
func (p *Partitioner) mergeGroups(producerLast FStage, choice FusionChoice) {
	prodGroup := p.groupOf(producerLast)
	if prodGroup == nil {
		contractViolation("mergeGroups: producer group for %s not found", producerLast)
	}
	cg := p.groupOf(choice.ConsumerStage)
	if cg == nil {
		contractViolation("mergeGroups: consumer group for %s not found", choice.ConsumerStage)
	}

	cg.Members = append(cg.Members, prodGroup.Members...)
	cg.Inlined[prodGroup.Output.FuncName] = true
	for k, v := range choice.TileSizes {
		cg.TileSizes[k] = v
	}

	p.removeGroup(prodGroup.Output)
	p.redirectChildren(prodGroup.Members, map[FStage]*Group{cg.Output: cg})
	p.invalidateCache(producerLast.FuncName, map[FStage]*Group{cg.Output: cg})
}

func (p *Partitioner) removeGroup(output FStage) {
	delete(p.groups, output)
}

// redirectChildren rewrites children edges so that any edge formerly
// entering a removed member now enters the corresponding destination
// group's output stage.
func (p *Partitioner) redirectChildren(removedMembers []FStage, destGroups map[FStage]*Group) {
	removedSet := map[FStage]bool{}
	for _, m := range removedMembers {
		removedSet[m] = true
	}

	var destOutputs []FStage
	for out := range destGroups {
		destOutputs = append(destOutputs, out)
	}
	sort.Slice(destOutputs, func(i, j int) bool { return destOutputs[i].Less(destOutputs[j]) })

	for removed := range removedSet {
		consumers := p.children[removed]
		delete(p.children, removed)
		for consumer := range consumers {
			for _, dest := range destOutputs {
				if p.children[dest] == nil {
					p.children[dest] = map[FStage]bool{}
				}
				if !removedSet[consumer] {
					p.children[dest][consumer] = true
				}
			}
		}
	}

	for s, outs := range p.children {
		for out := range outs {
			if removedSet[out] {
				delete(outs, out)
				for _, dest := range destOutputs {
					outs[dest] = true
				}
			}
		}
		p.children[s] = outs
	}
}

// invalidateCache removes any cache entry whose producer name was absorbed
// or whose consumer stage now belongs to one of the destination groups.
func (p *Partitioner) invalidateCache(absorbedProducer string, destGroups map[FStage]*Group) {
	destMembers := map[FStage]bool{}
	for _, g := range destGroups {
		for _, m := range g.Members {
			destMembers[m] = true
		}
	}
	for key := range p.cache {
		if key.producer == absorbedProducer || destMembers[key.consumer] {
			delete(p.cache, key)
		}
	}
}

// DumpGroups renders the group map for diagnostics, following
// cloudwego/frugal's spew.Sdump use in its test harness.
func (p *Partitioner) DumpGroups() string {
	return spew.Sdump(p.groups)
}

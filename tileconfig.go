package pipesched

import (
	"sort"
	"strconv"
)

// tileSizeVariants is the canonical tile-size grid the search sweeps.
var tileSizeVariants = []int64{1, 4, 8, 16, 32, 64, 128, 256}

// generateTileConfigs builds the canonical set of tile configurations for
// the pure, non-reduction, non-outermost dims of stage, in deterministic
// order (skewed before square), over an arbitrary-width map[string]int64
// keyed by dim name.
func generateTileConfigs(stage FStage, env Environment) []map[string]int64 {
	dims := pureTileDims(stage, env)
	if len(dims) == 0 {
		return nil
	}

	var configs []map[string]int64
	seen := map[string]bool{}
	add := func(cfg map[string]int64) {
		k := configKey(dims, cfg)
		if seen[k] {
			return
		}
		seen[k] = true
		configs = append(configs, cfg)
	}

	// Skewed: for each split index i and each size variant s, dims j<i get
	// s (dim 0 clamped to max(s,64)), dims j>=i get 256.
	for i := 0; i < len(dims); i++ {
		for _, s := range tileSizeVariants {
			cfg := map[string]int64{}
			for j, d := range dims {
				if j < i {
					v := s
					if j == 0 {
						v = maxI64(v, 64)
					}
					cfg[d] = v
				} else {
					cfg[d] = 256
				}
			}
			add(cfg)
		}
	}

	// Square: all dims = s (dim 0 clamped to max(s,64)).
	for _, s := range tileSizeVariants {
		cfg := map[string]int64{}
		for j, d := range dims {
			v := s
			if j == 0 {
				v = maxI64(v, 64)
			}
			cfg[d] = v
		}
		add(cfg)
	}

	return configs
}

func configKey(dims []string, cfg map[string]int64) string {
	out := ""
	for _, d := range dims {
		out += d + "=" + strconv.FormatInt(cfg[d], 10) + ";"
	}
	return out
}

func pureTileDims(stage FStage, env Environment) []string {
	def := stage.Def(env)
	if def == nil {
		return nil
	}
	var out []string
	for _, d := range def.Dims {
		if d.IsOutermost || d.IsReduction {
			continue
		}
		out = append(out, d.Name)
	}
	return out
}

// findBestTileConfig generates the canonical configuration set for g's
// output stage, analyzes each, and retains the one with non-increasing
// arith_cost and strictly decreasing mem_cost versus the running best,
// starting from "no tiling".
func (p *Partitioner) findBestTileConfig(g *Group) (map[string]int64, GroupAnalysis) {
	noTile := map[string]int64{}
	best := p.analyzeGroupWithTiles(g, noTile)
	bestTiles := noTile

	for _, cfg := range generateTileConfigs(g.Output, p.env) {
		analysis := p.analyzeGroupWithTiles(g, cfg)
		if analysis.Unknown() {
			continue
		}
		if best.Unknown() {
			best, bestTiles = analysis, cfg
			continue
		}
		if analysis.ArithCost <= best.ArithCost && analysis.MemCost < best.MemCost {
			best, bestTiles = analysis, cfg
		}
	}
	return bestTiles, best
}

// analyzeGroupWithTiles analyzes g as if its TileSizes were replaced by
// tiles, without mutating g.
func (p *Partitioner) analyzeGroupWithTiles(g *Group, tiles map[string]int64) GroupAnalysis {
	clone := &Group{
		Output:    g.Output,
		Members:   g.Members,
		Inlined:   g.Inlined,
		TileSizes: tiles,
		Reuse:     g.Reuse,
	}
	return p.analyzeGroup(clone)
}

// analyzeGroup is the per-group cost/parallelism analyzer.
func (p *Partitioner) analyzeGroup(g *Group) GroupAnalysis {
	if g == nil {
		return unknownAnalysis()
	}
	f := p.env[g.Output.FuncName]
	if f == nil {
		return unknownAnalysis()
	}

	groupMem := g.MemberFuncs()

	extent, ok := p.functionExtentBounds(f)
	if !ok {
		return unknownAnalysis()
	}

	estimateTiles := int64(1)
	tileBounds, outputBox, ok := p.boundsFromTileSizes(g, extent)
	if !ok {
		return unknownAnalysis()
	}
	for _, name := range pureTileDims(g.Output, p.env) {
		tileSize, tiled := g.TileSizes[name]
		full := extent[name].Extent()
		if full.IsUnknown {
			return unknownAnalysis()
		}
		if !tiled || tileSize <= 1 {
			continue
		}
		estimateTiles *= ceilDivI64(full.Value, tileSize)
	}

	regions := p.dep.RegionsRequiredFunc(g.Output.FuncName, tileBounds)
	groupReg := map[string]Box{}
	prodReg := map[string]Box{}
	inputReg := map[string]Box{}
	for name, box := range regions {
		switch {
		case groupMem[name]:
			groupReg[name] = box
		case p.env[name] != nil:
			prodReg[name] = box
		default:
			inputReg[name] = box
		}
	}

	tileArith, tileMem := p.cost.RegionCost(groupReg, g.Inlined)
	if tileArith < 0 {
		return unknownAnalysis()
	}

	tileInputBytes := regionSizeSum(p.cost, prodReg) + regionSizeSum(p.cost, inputReg)
	if tileInputBytes < 0 {
		return unknownAnalysis()
	}

	order := RealizationOrder(funcList(groupMem, p.env), p.env)
	directProducers := directProducersFor(groupMem, p.env)
	tileIntermediateBytes := p.cost.WorkingSetHighWaterMark(groupReg, order, directProducers, g.Inlined)
	if tileIntermediateBytes < 0 {
		return unknownAnalysis()
	}

	outArith, outMem, outUnknown := p.cost.StageRegionCost(g.Output, outputBox)
	if outUnknown {
		return unknownAnalysis()
	}

	perTileMem := tileInputBytes
	if tileIntermediateBytes > p.target.Params.FastMemSize {
		perTileMem += tileMem
	}

	return GroupAnalysis{
		ArithCost:   tileArith*estimateTiles + outArith,
		MemCost:     perTileMem*estimateTiles + outMem,
		Parallelism: estimateTiles,
	}
}

func regionSizeSum(cost *CostModel, regions map[string]Box) int64 {
	var total int64
	for name, box := range regions {
		s := cost.RegionSize(name, box)
		if s < 0 {
			return -1
		}
		total += s
	}
	return total
}

func funcList(names map[string]bool, env Environment) []*Function {
	keys := make([]string, 0, len(names))
	for n := range names {
		keys = append(keys, n)
	}
	sort.Strings(keys)
	out := make([]*Function, 0, len(keys))
	for _, n := range keys {
		if f := env[n]; f != nil {
			out = append(out, f)
		}
	}
	return out
}

func directProducersFor(names map[string]bool, env Environment) map[string][]string {
	out := map[string][]string{}
	for name := range names {
		f := env[name]
		if f == nil {
			continue
		}
		out[name] = FindDirectCalls(f)
	}
	return out
}

// functionExtentBounds returns the literal per-pure-arg interval this group's
// output function should be treated as covering: f's own estimate when f is
// itself a pipeline output (the only functions required to carry one), else
// the region already propagated down from consumer demand (p.bounds, from
// GetPipelineBounds). False means the bound is missing or symbolic either
// way.
func (p *Partitioner) functionExtentBounds(f *Function) (DimBounds, bool) {
	if p.outputs[f.Name()] {
		bounds := DimBounds{}
		for _, arg := range f.PureArgs {
			est, ok := f.Estimate(arg)
			if !ok || !est.HasLiteral {
				return nil, false
			}
			bounds[arg] = LiteralInterval(est.Min, est.Min+est.Extent-1)
		}
		return bounds, true
	}

	box := p.bounds[f.Name()]
	if len(box) != len(f.PureArgs) {
		return nil, false
	}
	bounds := DimBounds{}
	for i, arg := range f.PureArgs {
		iv := box[i]
		if !iv.HasLitMin || !iv.HasLitMax {
			return nil, false
		}
		bounds[arg] = iv
	}
	return bounds, true
}

// boundsFromTileSizes computes the pure-dim DimBounds for g's output stage
// given its tile sizes and the already-resolved extent bounds, following
// get_bounds_from_tile_sizes: a tile size is applied only if it is greater
// than 1 and the dim's extent is >= 2*size, else the dim is left untiled
// (full extent). A tile size of 1 therefore leaves the dim untiled.
func (p *Partitioner) boundsFromTileSizes(g *Group, extent DimBounds) (DimBounds, Box, bool) {
	f := p.env[g.Output.FuncName]
	if f == nil {
		return nil, nil, false
	}
	bounds := DimBounds{}
	box := make(Box, len(f.PureArgs))
	for i, arg := range f.PureArgs {
		iv := extent[arg]
		full := iv.Extent()
		if full.IsUnknown {
			return nil, nil, false
		}
		tileSize, tiled := g.TileSizes[arg]
		size := full.Value
		if tiled && tileSize > 1 && size >= 2*tileSize {
			size = tileSize
		}
		bounds[arg] = LiteralInterval(iv.LitMin, iv.LitMin+size-1)
		box[i] = iv
	}
	return bounds, box, true
}

func ceilDivI64(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

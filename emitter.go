package pipesched

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// DirectiveKind tags the schedule primitive a Directive applies.
type DirectiveKind int

const (
	DirComputeRoot DirectiveKind = iota
	DirComputeInline
	DirUpdate
	DirSplit
	DirReorder
	DirVectorize
	DirParallel
)

// Directive is one schedule-application call the host's façade
// (compute_root, split, reorder, vectorize, parallel, compute_inline) must
// make on the Function/Stage handle it owns.
type Directive struct {
	Kind DirectiveKind

	FuncName string
	StageNum int // meaningful for DirUpdate

	// DirSplit
	Dim, Outer, Inner string
	Factor            int64

	// DirReorder
	Order []string

	// DirVectorize
	VecDim string
	VecLen int64

	// DirParallel
	ParDim string
}

// ScheduleEmitter traverses the finalized groups and emits the ordered
// sequence of schedule directives, plus a human-readable textual record.
type ScheduleEmitter struct {
	env    Environment
	target Target
}

func NewScheduleEmitter(env Environment, target Target) *ScheduleEmitter {
	return &ScheduleEmitter{env: env, target: target}
}

// EmitResult bundles the directive sequence with the textual record.
type EmitResult struct {
	Directives []Directive
	Report     string
}

// Emit walks groups (sorted by output FStage for determinism) and produces
// the directive sequence plus report.
func (em *ScheduleEmitter) Emit(groups map[FStage]*Group, analyses map[FStage]GroupAnalysis) EmitResult {
	var directives []Directive
	var sb strings.Builder

	outputs := sortedStages(groups)

	// compute_inline for every function named in any group's inlined set,
	// emitted once up front.
	inlinedNames := map[string]bool{}
	for _, out := range outputs {
		for name := range groups[out].Inlined {
			inlinedNames[name] = true
		}
	}
	inlinedList := sortedStringSet(inlinedNames)
	for _, name := range inlinedList {
		directives = append(directives, Directive{Kind: DirComputeInline, FuncName: name})
		fmt.Fprintf(&sb, "%s.compute_inline();\n", name)
	}

	var totalArith, totalMem int64
	var warnings []string

	for _, out := range outputs {
		g := groups[out]
		ds, warn := em.emitGroup(g)
		directives = append(directives, ds...)
		if warn != "" {
			warnings = append(warnings, warn)
		}
		for _, d := range ds {
			sb.WriteString(directiveString(d))
		}
		if a, ok := analyses[out]; ok && !a.Unknown() {
			totalArith += a.ArithCost
			totalMem += a.MemCost
		}
	}

	for _, w := range warnings {
		sb.WriteString("// " + w + "\n")
	}

	fmt.Fprintf(&sb, "// total arithmetic cost: %d, total memory cost: %s\n",
		totalArith, humanize.Bytes(uint64(maxI64(totalMem, 0))))

	return EmitResult{Directives: directives, Report: sb.String()}
}

func sortedStringSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// emitGroup emits the directive sequence for one group's output stage: root
// or update addressing, tile split/reorder, vectorize, and parallelize.
func (em *ScheduleEmitter) emitGroup(g *Group) ([]Directive, string) {
	out := g.Output
	f := em.env[out.FuncName]
	if f == nil {
		return nil, ""
	}
	def := f.StageDef(out.StageNum)

	var ds []Directive
	ds = append(ds, Directive{Kind: DirComputeRoot, FuncName: out.FuncName})
	if out.StageNum > 0 {
		ds = append(ds, Directive{Kind: DirUpdate, FuncName: out.FuncName, StageNum: out.StageNum - 1})
	}

	type dimState struct {
		name        string
		isReduction bool
		extent      int64
	}
	var dims []dimState
	for _, d := range def.Dims {
		if d.IsOutermost {
			continue
		}
		ext := int64(0)
		if !d.IsReduction {
			if est, ok := f.Estimate(d.Name); ok && est.HasLiteral {
				ext = est.Extent
			}
		} else {
			for _, rv := range def.RVars {
				if rv.Name == d.Name {
					e := Simplify(rv.Extent)
					if e.Kind == ExprIntImm {
						ext = e.IntVal
					}
				}
			}
		}
		dims = append(dims, dimState{name: d.Name, isReduction: d.IsReduction, extent: ext})
	}

	var inners, outers []string
	outerNameForDim := map[int]string{}
	innerExtent := map[string]int64{}
	for i, d := range dims {
		t, tiled := g.TileSizes[d.name]
		if tiled && t > 1 {
			outerName := fmt.Sprintf("%s_%s_o", out.FuncName, d.name)
			innerName := fmt.Sprintf("%s_%s_i", out.FuncName, d.name)
			ds = append(ds, Directive{Kind: DirSplit, FuncName: out.FuncName, Dim: d.name, Outer: outerName, Inner: innerName, Factor: t})
			inners = append(inners, innerName)
			outers = append(outers, outerName)
			outerNameForDim[i] = outerName
			innerExtent[innerName] = t
			dims[i].extent = ceilDivI64(d.extent, t)
		} else {
			inners = append(inners, d.name)
			innerExtent[d.name] = d.extent
		}
	}

	if len(outers) > 0 {
		order := append(append([]string{}, inners...), outers...)
		ds = append(ds, Directive{Kind: DirReorder, FuncName: out.FuncName, Order: order})
	}

	// vectorize the innermost pure dim by original order.
	var vecDim string
	var vecExtent int64
	for i, d := range dims {
		if d.isReduction {
			continue
		}
		name := d.name
		if i < len(inners) {
			name = inners[i]
		}
		vecDim = name
		vecExtent = innerExtent[name]
		break
	}

	vecLen := int64(4)
	for _, t := range f.OutputTypes {
		vecLen = maxI64(vecLen, em.target.NaturalVectorSize(t.Bytes))
	}
	if len(f.OutputTypes) == 0 {
		vecLen = em.target.NaturalVectorSize(4)
	}

	if vecDim != "" && vecExtent >= vecLen {
		vo := fmt.Sprintf("%s_vo", vecDim)
		vi := fmt.Sprintf("%s_vi", vecDim)
		ds = append(ds, Directive{Kind: DirSplit, FuncName: out.FuncName, Dim: vecDim, Outer: vo, Inner: vi, Factor: vecLen})
		ds = append(ds, Directive{Kind: DirVectorize, FuncName: out.FuncName, VecDim: vi, VecLen: vecLen})
	}

	// parallelize outer-to-inner until product of estimates exceeds
	// arch.parallelism, skipping non-parallelizable reduction dims.
	var warning string
	product := int64(1)
	target := em.target.Params.Parallelism
	for i := len(dims) - 1; i >= 0; i-- {
		d := dims[i]
		if d.isReduction && !def.IsParallelizableRVar(d.name) {
			continue
		}
		name := d.name
		if outerName, ok := outerNameForDim[i]; ok {
			name = outerName
		} else if i < len(inners) {
			name = inners[i]
		}
		ds = append(ds, Directive{Kind: DirParallel, FuncName: out.FuncName, ParDim: name})
		product *= maxI64(d.extent, 1)
		if product > target {
			break
		}
	}
	if product < target {
		warning = fmt.Sprintf("Warning: insufficient parallelism for %s (got %d, wanted %d)", out.FuncName, product, target)
	}

	return ds, warning
}

func directiveString(d Directive) string {
	switch d.Kind {
	case DirComputeRoot:
		return fmt.Sprintf("%s.compute_root();\n", d.FuncName)
	case DirComputeInline:
		return fmt.Sprintf("%s.compute_inline();\n", d.FuncName)
	case DirUpdate:
		return fmt.Sprintf("%s.update(%d);\n", d.FuncName, d.StageNum)
	case DirSplit:
		return fmt.Sprintf("%s.split(%s, %s, %s, %d);\n", d.FuncName, d.Dim, d.Outer, d.Inner, d.Factor)
	case DirReorder:
		return fmt.Sprintf("%s.reorder(%s);\n", d.FuncName, strings.Join(d.Order, ", "))
	case DirVectorize:
		return fmt.Sprintf("%s.vectorize(%s); // width %d\n", d.FuncName, d.VecDim, d.VecLen)
	case DirParallel:
		return fmt.Sprintf("%s.parallel(%s);\n", d.FuncName, d.ParDim)
	}
	return ""
}

package pipesched

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func twoStageFuncEnv() Environment {
	p := &Function{
		FuncName: "P",
		PureArgs: []string{"x"},
		Pure: Definition{
			Values: []*Expr{Bin(OpAdd, VarExpr("x"), IntImm(1))},
			Dims:   []Dim{{Name: "x"}, {Name: "__outermost", IsOutermost: true}},
		},
		OutputTypes: []Type{{Bytes: 4}},
	}
	c := &Function{
		FuncName: "C",
		PureArgs: []string{"x"},
		Pure: Definition{
			Values: []*Expr{Bin(OpMul, CallExpr("P", CallPipelineFunc, Type{Bytes: 4}, VarExpr("x")), IntImm(2))},
			Dims:   []Dim{{Name: "x"}, {Name: "__outermost", IsOutermost: true}},
		},
		OutputTypes: []Type{{Bytes: 4}},
	}
	return Environment{"P": p, "C": c}
}

func TestCostModelFuncCost(t *testing.T) {
	env := twoStageFuncEnv()
	cm := NewCostModel(env)

	require.Equal(t, int64(1), cm.FuncCost("P", 0).Ops)
	// C's pure body before inlining: call P (bytes) * 2 -> 1 op + P's call bytes
	require.Equal(t, int64(1), cm.FuncCost("C", 0).Ops)
	require.Equal(t, int64(4), cm.FuncCost("C", 0).BytesLoaded)

	require.Equal(t, PointCost{}, cm.FuncCost("missing", 0))
	require.Equal(t, PointCost{}, cm.FuncCost("P", 5))
}

func TestCostModelPerformInlineSubstitutesPureBody(t *testing.T) {
	env := twoStageFuncEnv()
	e := CallExpr("P", CallPipelineFunc, Type{Bytes: 4}, IntImm(3))

	inlined := PerformInline(e, map[string]bool{"P": true}, env)
	require.Equal(t, ExprBinOp, inlined.Kind)

	simplified := Simplify(inlined)
	require.Equal(t, ExprIntImm, simplified.Kind)
	require.Equal(t, int64(4), simplified.IntVal) // x+1 with x=3
}

func TestCostModelPerformInlineNeverInlinesReductions(t *testing.T) {
	env := Environment{
		"R": {
			FuncName: "R",
			PureArgs: []string{"x"},
			Pure: Definition{
				Values: []*Expr{IntImm(0)},
				Dims:   []Dim{{Name: "x"}, {Name: "__outermost", IsOutermost: true}},
			},
			Updates: []Definition{
				{
					Args:   []*Expr{VarExpr("x")},
					Values: []*Expr{IntImm(1)},
					Dims:   []Dim{{Name: "x"}, {Name: "__outermost", IsOutermost: true}},
				},
			},
		},
	}
	e := CallExpr("R", CallPipelineFunc, Type{Bytes: 4}, VarExpr("x"))
	out := PerformInline(e, map[string]bool{"R": true}, env)
	require.Equal(t, ExprCall, out.Kind) // unchanged: R has updates, never inlined
	require.Equal(t, "R", out.CallTarget)
}

func TestCostModelStageRegionCostUnknownArea(t *testing.T) {
	env := twoStageFuncEnv()
	cm := NewCostModel(env)

	stage := FStage{FuncName: "P", StageNum: 0}
	arith, mem, unknown := cm.StageRegionCost(stage, Box{{Min: VarExpr("x"), Max: IntImm(9)}})
	require.True(t, unknown)
	require.Equal(t, int64(-1), arith)
	require.Equal(t, int64(-1), mem)
}

func TestCostModelStageRegionCostKnownArea(t *testing.T) {
	env := twoStageFuncEnv()
	cm := NewCostModel(env)

	stage := FStage{FuncName: "P", StageNum: 0}
	arith, mem, unknown := cm.StageRegionCost(stage, Box{LiteralInterval(0, 9)})
	require.False(t, unknown)
	require.Equal(t, int64(10), arith) // 10 points * 1 op
	require.Equal(t, int64(0), mem)
}

func TestCostModelRegionCostSkipsInlinedPureFuncs(t *testing.T) {
	env := twoStageFuncEnv()
	cm := NewCostModel(env)

	regions := map[string]Box{
		"P": {LiteralInterval(0, 9)},
		"C": {LiteralInterval(0, 9)},
	}
	arith, _ := cm.RegionCost(regions, map[string]bool{"P": true})
	// only C's cost counted; P skipped because it's inlined
	cArith, _, _ := cm.StageRegionCost(FStage{FuncName: "C", StageNum: 0}, regions["C"])
	require.Equal(t, cArith, arith)
}

func reductionFuncEnv() Environment {
	r := &Function{
		FuncName: "R",
		PureArgs: []string{"x"},
		Pure: Definition{
			Values: []*Expr{IntImm(0)},
			Dims:   []Dim{{Name: "x"}, {Name: "__outermost", IsOutermost: true}},
		},
		Updates: []Definition{
			{
				Args:   []*Expr{VarExpr("x")},
				Values: []*Expr{Bin(OpAdd, CallExpr("R", CallPipelineFunc, Type{Bytes: 4}, VarExpr("x")), CallExpr("I", CallImage, Type{Bytes: 4}, VarExpr("x"), VarExpr("r")))},
				RVars:  []ReductionVariable{{Name: "r", Min: IntImm(0), Extent: IntImm(64)}},
				Dims:   []Dim{{Name: "x"}, {Name: "r", IsReduction: true}, {Name: "__outermost", IsOutermost: true}},
			},
		},
		OutputTypes: []Type{{Bytes: 4}},
	}
	return Environment{"R": r}
}

func TestCostModelStageRegionCostIncludesReductionExtent(t *testing.T) {
	env := reductionFuncEnv()
	cm := NewCostModel(env)

	// r's own update body costs 1 op (the OpAdd); the box handed in is pure
	// args only (10 points in x), so the area must pick up r's [0,64) extent
	// from the stage's own RVars, not just the caller's x-only box.
	stage := FStage{FuncName: "R", StageNum: 1}
	arith, _, unknown := cm.StageRegionCost(stage, Box{LiteralInterval(0, 9)})
	require.False(t, unknown)
	require.Equal(t, int64(10*64*1), arith)
}

func TestCostModelRegionCostSumsAllStagesOfReductionFunc(t *testing.T) {
	env := reductionFuncEnv()
	cm := NewCostModel(env)

	regions := map[string]Box{"R": {LiteralInterval(0, 9)}}
	arith, _ := cm.RegionCost(regions, map[string]bool{})

	pureArith, _, _ := cm.StageRegionCost(FStage{FuncName: "R", StageNum: 0}, regions["R"])
	updateArith, _, _ := cm.StageRegionCost(FStage{FuncName: "R", StageNum: 1}, regions["R"])
	require.Equal(t, pureArith+updateArith, arith)
	require.Greater(t, updateArith, pureArith) // the update stage carries the x64 reduction factor
}

func TestCostModelRegionSize(t *testing.T) {
	env := twoStageFuncEnv()
	cm := NewCostModel(env)

	size := cm.RegionSize("P", Box{LiteralInterval(0, 99)})
	require.Equal(t, int64(400), size) // 100 points * 4 bytes

	unknownSize := cm.RegionSize("P", Box{{Min: VarExpr("x"), Max: IntImm(9)}})
	require.Equal(t, int64(-1), unknownSize)
}

func TestCostModelWorkingSetHighWaterMark(t *testing.T) {
	env := twoStageFuncEnv()
	cm := NewCostModel(env)

	regions := map[string]Box{
		"P": {LiteralInterval(0, 9)},
		"C": {LiteralInterval(0, 9)},
	}
	order := []string{"P", "C"}
	directProducers := map[string][]string{"C": {"P"}}

	peak := cm.WorkingSetHighWaterMark(regions, order, directProducers, map[string]bool{})
	pSize := cm.RegionSize("P", regions["P"])
	cSize := cm.RegionSize("C", regions["C"])
	require.Equal(t, pSize+cSize, peak) // both live simultaneously at C's turn

	peakInlined := cm.WorkingSetHighWaterMark(regions, order, directProducers, map[string]bool{"P": true})
	require.Equal(t, cSize, peakInlined) // P contributes no storage once inlined
}

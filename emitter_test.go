package pipesched

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScheduleEmitterEmitsComputeRootAndVectorize(t *testing.T) {
	f := pointwiseFunc(1024, 1024)
	env := Environment{"F": f}
	target := NewTarget(DefaultMachineParams())
	target.PinnedVecBytes = 32

	g := NewGroup(FStage{FuncName: "F", StageNum: 0})
	groups := map[FStage]*Group{g.Output: g}
	analyses := map[FStage]GroupAnalysis{g.Output: {ArithCost: 100, MemCost: 400, Parallelism: 1024}}

	em := NewScheduleEmitter(env, target)
	result := em.Emit(groups, analyses)

	require.Contains(t, result.Report, "F.compute_root();")
	require.Contains(t, result.Report, "F.vectorize(")
	require.Contains(t, result.Report, "F.parallel(")
	require.Contains(t, result.Report, "total arithmetic cost: 100")
}

func TestScheduleEmitterEmitsComputeInlineUpFront(t *testing.T) {
	env, c := producerConsumerEnv()
	target := NewTarget(DefaultMachineParams())
	target.PinnedVecBytes = 32

	cg := NewGroup(FStage{FuncName: "C", StageNum: 0})
	cg.Members = append(cg.Members, FStage{FuncName: "P", StageNum: 0})
	cg.Inlined["P"] = true
	groups := map[FStage]*Group{cg.Output: cg}
	analyses := map[FStage]GroupAnalysis{cg.Output: {ArithCost: 10, MemCost: 40, Parallelism: 1024}}

	em := NewScheduleEmitter(env, target)
	result := em.Emit(groups, analyses)

	require.Contains(t, result.Report, "P.compute_inline();")
	require.Contains(t, result.Report, "C.compute_root();")
	_ = c
}

func TestScheduleEmitterWarnsOnInsufficientParallelism(t *testing.T) {
	f := pointwiseFunc(2, 2) // tiny extents, can't reach parallelism=16
	env := Environment{"F": f}
	params := DefaultMachineParams()
	target := NewTarget(params)
	target.PinnedVecBytes = 32

	g := NewGroup(FStage{FuncName: "F", StageNum: 0})
	groups := map[FStage]*Group{g.Output: g}
	analyses := map[FStage]GroupAnalysis{g.Output: {ArithCost: 4, MemCost: 16, Parallelism: 4}}

	em := NewScheduleEmitter(env, target)
	result := em.Emit(groups, analyses)

	require.Contains(t, result.Report, "insufficient parallelism")
}

func TestScheduleEmitterEmitsSplitWhenTiled(t *testing.T) {
	f := pointwiseFunc(1024, 1024)
	env := Environment{"F": f}
	target := NewTarget(DefaultMachineParams())
	target.PinnedVecBytes = 32

	g := NewGroup(FStage{FuncName: "F", StageNum: 0})
	g.TileSizes["x"] = 32
	g.TileSizes["y"] = 32
	groups := map[FStage]*Group{g.Output: g}
	analyses := map[FStage]GroupAnalysis{g.Output: {ArithCost: 100, MemCost: 400, Parallelism: 1024}}

	em := NewScheduleEmitter(env, target)
	result := em.Emit(groups, analyses)

	require.Contains(t, result.Report, "F.split(")
	require.Contains(t, result.Report, "F.reorder(")
}

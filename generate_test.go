package pipesched

import (
	goerrors "errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// pointwiseFunc builds F(x,y) = I(x,y) + 1 with a literal estimate on each
// dim: a single pointwise output with no upstream pipeline function.
func pointwiseFunc(estW, estH int64) *Function {
	body := Bin(OpAdd, CallExpr("I", CallImage, Type{Bytes: 4}, VarExpr("x"), VarExpr("y")), IntImm(1))
	return &Function{
		FuncName: "F",
		PureArgs: []string{"x", "y"},
		Pure: Definition{
			Values: []*Expr{body},
			Dims: []Dim{
				{Name: "x"}, {Name: "y"}, {Name: "__outermost", IsOutermost: true},
			},
		},
		OutputTypes: []Type{{Bytes: 4}},
		Estimates: []Estimate{
			{Var: "x", Min: 0, Extent: estW, HasLiteral: true},
			{Var: "y", Min: 0, Extent: estH, HasLiteral: true},
		},
	}
}

func TestGenerateSchedulesSinglePointwiseOutput(t *testing.T) {
	f := pointwiseFunc(1024, 1024)
	env := Environment{"F": f}
	target := NewTarget(DefaultMachineParams())
	target.PinnedVecBytes = 32 // force vec_len=8 for a 4-byte type, deterministic for the test

	result, err := GenerateSchedules([]*Function{f}, env, target)
	require.NoError(t, err)
	require.Contains(t, result.Report, "F.compute_root();")
	require.Contains(t, result.Report, "F.vectorize(")
	require.Contains(t, result.Report, "F.parallel(")
}

func TestGenerateSchedulesMissingEstimateFails(t *testing.T) {
	f := pointwiseFunc(1024, 1024)
	f.Estimates = f.Estimates[:1] // drop the y estimate

	env := Environment{"F": f}
	target := NewTarget(DefaultMachineParams())

	_, err := GenerateSchedules([]*Function{f}, env, target)
	require.Error(t, err)
	require.True(t, IsUserError(err))
}

// producerConsumerEnv builds P(x)=I(x)*2; C(x)=P(x)+P(x+1), a single-
// consumer producer with an estimate only on C.
func producerConsumerEnv() (Environment, *Function) {
	p := &Function{
		FuncName: "P",
		PureArgs: []string{"x"},
		Pure: Definition{
			Values: []*Expr{Bin(OpMul, CallExpr("I", CallImage, Type{Bytes: 4}, VarExpr("x")), IntImm(2))},
			Dims:   []Dim{{Name: "x"}, {Name: "__outermost", IsOutermost: true}},
		},
		OutputTypes: []Type{{Bytes: 4}},
	}
	c := &Function{
		FuncName: "C",
		PureArgs: []string{"x"},
		Pure: Definition{
			Values: []*Expr{Bin(OpAdd,
				CallExpr("P", CallPipelineFunc, Type{Bytes: 4}, VarExpr("x")),
				CallExpr("P", CallPipelineFunc, Type{Bytes: 4}, Bin(OpAdd, VarExpr("x"), IntImm(1))),
			)},
			Dims: []Dim{{Name: "x"}, {Name: "__outermost", IsOutermost: true}},
		},
		OutputTypes: []Type{{Bytes: 4}},
		Estimates:   []Estimate{{Var: "x", Min: 0, Extent: 1024, HasLiteral: true}},
	}
	return Environment{"P": p, "C": c}, c
}

func TestGenerateSchedulesProducerConsumerInlines(t *testing.T) {
	env, c := producerConsumerEnv()
	target := NewTarget(DefaultMachineParams())
	target.PinnedVecBytes = 32

	result, err := GenerateSchedules([]*Function{c}, env, target)
	require.NoError(t, err)
	require.Contains(t, result.Report, "P.compute_inline();")
	require.Contains(t, result.Report, "C.compute_root();")
}

// twoStageReductionEnv builds R(x)=0; R(x)+=I(x,r) over r in [0,64);
// Out(x)=R(x)+1, a two-stage reduction feeding a pointwise consumer.
func twoStageReductionEnv() (Environment, *Function) {
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
		Estimates:   []Estimate{{Var: "x", Min: 0, Extent: 512, HasLiteral: true}},
	}
	out := &Function{
		FuncName: "Out",
		PureArgs: []string{"x"},
		Pure: Definition{
			Values: []*Expr{Bin(OpAdd, CallExpr("R", CallPipelineFunc, Type{Bytes: 4}, VarExpr("x")), IntImm(1))},
			Dims:   []Dim{{Name: "x"}, {Name: "__outermost", IsOutermost: true}},
		},
		OutputTypes: []Type{{Bytes: 4}},
		Estimates:   []Estimate{{Var: "x", Min: 0, Extent: 512, HasLiteral: true}},
	}
	return Environment{"R": r, "Out": out}, out
}

func TestGenerateSchedulesUnknownReductionExtentSurfacesError(t *testing.T) {
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
				// a non-literal extent (some host-computed bound the IR never
				// resolved) leaves r's region unknown.
				RVars: []ReductionVariable{{Name: "r", Min: IntImm(0), Extent: VarExpr("n")}},
				Dims:  []Dim{{Name: "x"}, {Name: "r", IsReduction: true}, {Name: "__outermost", IsOutermost: true}},
			},
		},
		OutputTypes: []Type{{Bytes: 4}},
		Estimates:   []Estimate{{Var: "x", Min: 0, Extent: 512, HasLiteral: true}},
	}
	env := Environment{"R": r}
	target := NewTarget(DefaultMachineParams())

	_, err := GenerateSchedules([]*Function{r}, env, target)
	require.Error(t, err)
	require.True(t, IsUnknownExtentError(err))

	var uee *UnknownExtentError
	require.True(t, goerrors.As(err, &uee))
	require.Equal(t, "R", uee.Stage.FuncName)
}

func TestGenerateSchedulesReductionStageNotInlined(t *testing.T) {
	env, out := twoStageReductionEnv()
	target := NewTarget(DefaultMachineParams())
	target.PinnedVecBytes = 32

	result, err := GenerateSchedules([]*Function{out}, env, target)
	require.NoError(t, err)
	require.NotContains(t, result.Report, "R.compute_inline();")
	require.Contains(t, result.Report, "R.compute_root();")
	require.Contains(t, result.Report, "Out.compute_root();")
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/atul-ranjan/pipesched"
)

// ExprJSON is a toy textual encoding of pipesched.Expr, enough to describe
// small pipelines by hand or by a generator.
type ExprJSON struct {
	Kind string      `json:"kind"`
	Int  int64       `json:"int,omitempty"`
	Var  string      `json:"var,omitempty"`
	Op   string      `json:"op,omitempty"`
	LHS  *ExprJSON   `json:"lhs,omitempty"`
	RHS  *ExprJSON   `json:"rhs,omitempty"`
	Call string      `json:"call,omitempty"`
	CallKind string  `json:"call_kind,omitempty"`
	Bytes int        `json:"bytes,omitempty"`
	Args []*ExprJSON `json:"args,omitempty"`
}

type EstimateJSON struct {
	Var    string `json:"var"`
	Min    int64  `json:"min"`
	Extent int64  `json:"extent"`
}

type DimJSON struct {
	Name        string `json:"name"`
	IsReduction bool   `json:"is_reduction"`
}

type RVarJSON struct {
	Name   string `json:"name"`
	Min    int64  `json:"min"`
	Extent int64  `json:"extent"`
}

type DefinitionJSON struct {
	Args   []*ExprJSON `json:"args"`
	Values []*ExprJSON `json:"values"`
	RVars  []RVarJSON  `json:"rvars"`
	Dims   []DimJSON   `json:"dims"`
}

type FunctionJSON struct {
	Name        string           `json:"name"`
	PureArgs    []string         `json:"pure_args"`
	Pure        DefinitionJSON   `json:"pure"`
	Updates     []DefinitionJSON `json:"updates"`
	OutputBytes []int            `json:"output_bytes"`
	Estimates   []EstimateJSON   `json:"estimates"`
}

type PipelineJSON struct {
	Functions   []FunctionJSON `json:"functions"`
	Outputs     []string       `json:"outputs"`
	Parallelism int64          `json:"parallelism"`
	VecLen      int64          `json:"vec_len"`
	FastMemSize int64          `json:"fast_mem_size"`
	Balance     int64          `json:"balance"`
}

func ReadPipeline(filename string) (*PipelineJSON, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "reading pipeline file")
	}
	var pj PipelineJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return nil, errors.Wrap(err, "parsing pipeline JSON")
	}
	return &pj, nil
}

func buildExpr(e *ExprJSON) *pipesched.Expr {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case "int":
		return pipesched.IntImm(e.Int)
	case "var":
		return pipesched.VarExpr(e.Var)
	case "bin":
		return pipesched.Bin(binOpFromString(e.Op), buildExpr(e.LHS), buildExpr(e.RHS))
	case "call":
		kind := pipesched.CallPipelineFunc
		switch e.CallKind {
		case "image":
			kind = pipesched.CallImage
		case "extern":
			kind = pipesched.CallExtern
		case "intrinsic":
			kind = pipesched.CallIntrinsic
		}
		args := make([]*pipesched.Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = buildExpr(a)
		}
		return pipesched.CallExpr(e.Call, kind, pipesched.Type{Bytes: e.Bytes}, args...)
	default:
		return pipesched.IntImm(0)
	}
}

func binOpFromString(op string) pipesched.BinOpKind {
	switch op {
	case "+":
		return pipesched.OpAdd
	case "-":
		return pipesched.OpSub
	case "*":
		return pipesched.OpMul
	case "/":
		return pipesched.OpDiv
	case "%":
		return pipesched.OpMod
	case "min":
		return pipesched.OpMin
	case "max":
		return pipesched.OpMax
	default:
		return pipesched.OpAdd
	}
}

func buildDefinition(dj DefinitionJSON) pipesched.Definition {
	def := pipesched.Definition{}
	for _, a := range dj.Args {
		def.Args = append(def.Args, buildExpr(a))
	}
	for _, v := range dj.Values {
		def.Values = append(def.Values, buildExpr(v))
	}
	for _, rv := range dj.RVars {
		def.RVars = append(def.RVars, pipesched.ReductionVariable{
			Name:   rv.Name,
			Min:    pipesched.IntImm(rv.Min),
			Extent: pipesched.IntImm(rv.Extent),
		})
	}
	for _, d := range dj.Dims {
		def.Dims = append(def.Dims, pipesched.Dim{Name: d.Name, IsReduction: d.IsReduction})
	}
	def.Dims = append(def.Dims, pipesched.Dim{Name: "__outermost", IsOutermost: true})
	return def
}

// BuildEnvironment converts a PipelineJSON into a pipesched.Environment and
// the list of output Function handles.
func BuildEnvironment(pj *PipelineJSON) (pipesched.Environment, []*pipesched.Function, error) {
	env := pipesched.Environment{}
	for _, fj := range pj.Functions {
		f := &pipesched.Function{
			FuncName: fj.Name,
			PureArgs: fj.PureArgs,
			Pure:     buildDefinition(fj.Pure),
		}
		for _, u := range fj.Updates {
			f.Updates = append(f.Updates, buildDefinition(u))
		}
		for _, b := range fj.OutputBytes {
			f.OutputTypes = append(f.OutputTypes, pipesched.Type{Bytes: b})
		}
		for _, e := range fj.Estimates {
			f.Estimates = append(f.Estimates, pipesched.Estimate{
				Var: e.Var, Min: e.Min, Extent: e.Extent, HasLiteral: true,
			})
		}
		env[f.FuncName] = f
	}

	var outputs []*pipesched.Function
	for _, name := range pj.Outputs {
		f, ok := env[name]
		if !ok {
			return nil, nil, fmt.Errorf("pipeline output %q is not a defined function", name)
		}
		outputs = append(outputs, f)
	}
	return env, outputs, nil
}

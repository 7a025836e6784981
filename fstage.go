package pipesched

import "fmt"

// FStage identifies one stage of one function: stage 0 is the pure
// definition, k>=1 is the k-th update. Equality and ordering are
// lexicographic on (FuncName, StageNum).
type FStage struct {
	FuncName string
	StageNum int
}

func (s FStage) String() string {
	return fmt.Sprintf("%s.%d", s.FuncName, s.StageNum)
}

func (s FStage) Less(o FStage) bool {
	if s.FuncName != o.FuncName {
		return s.FuncName < o.FuncName
	}
	return s.StageNum < o.StageNum
}

// Def resolves the stage's Definition within the environment.
func (s FStage) Def(env Environment) *Definition {
	f := env[s.FuncName]
	if f == nil {
		return nil
	}
	return f.StageDef(s.StageNum)
}

// IsLastStage reports whether s is the final stage of its function.
func (s FStage) IsLastStage(env Environment) bool {
	f := env[s.FuncName]
	if f == nil {
		return false
	}
	return s.StageNum == f.NumUpdates()
}

// Group is the partitioner's unit of fusion: a set of member stages
// computed together at the granularity of output's tiling.
type Group struct {
	Output  FStage
	Members []FStage
	// Inlined is the set of function names (subset of member function
	// names, excluding Output.FuncName) spliced into this group whose
	// storage is elided.
	Inlined map[string]bool
	// TileSizes maps a pure dimension name to its tile size. An absent key
	// means "no tiling along this dimension".
	TileSizes map[string]int64
	// Reuse maps a dimension name to bytes reused between adjacent tiles
	// along that dimension, -1 meaning unknown.
	Reuse map[string]int64
}

func NewGroup(stage FStage) *Group {
	return &Group{
		Output:    stage,
		Members:   []FStage{stage},
		Inlined:   map[string]bool{},
		TileSizes: map[string]int64{},
		Reuse:     map[string]int64{},
	}
}

func (g *Group) HasMember(s FStage) bool {
	for _, m := range g.Members {
		if m == s {
			return true
		}
	}
	return false
}

func (g *Group) MemberFuncs() map[string]bool {
	out := map[string]bool{}
	for _, m := range g.Members {
		out[m.FuncName] = true
	}
	return out
}

// GroupAnalysis is the (arith_cost, mem_cost, parallelism) triple; any
// negative field means "could not analyze".
type GroupAnalysis struct {
	ArithCost   int64
	MemCost     int64
	Parallelism int64
}

func (a GroupAnalysis) Unknown() bool {
	return a.ArithCost < 0 || a.MemCost < 0 || a.Parallelism < 0
}

func unknownAnalysis() GroupAnalysis {
	return GroupAnalysis{ArithCost: -1, MemCost: -1, Parallelism: -1}
}

// FusionChoice is (producer function name, consumer stage, tile sizes).
// Equality and ordering ignore TileSizes.
type FusionChoice struct {
	ProducerName string
	ConsumerStage FStage
	TileSizes    map[string]int64
}

func (c FusionChoice) Key() (string, FStage) {
	return c.ProducerName, c.ConsumerStage
}

func (c FusionChoice) SameChoice(o FusionChoice) bool {
	return c.ProducerName == o.ProducerName && c.ConsumerStage == o.ConsumerStage
}

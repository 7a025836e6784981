package pipesched

import "github.com/klauspost/cpuid/v2"

// MachineParams are the scheduler's tuning knobs, with their compile-time
// defaults.
type MachineParams struct {
	Parallelism int64
	VecLen      int64
	FastMemSize int64
	Balance     int64
}

func DefaultMachineParams() MachineParams {
	return MachineParams{Parallelism: 16, VecLen: 8, FastMemSize: 1024, Balance: 10}
}

// Target describes the host machine the schedule is emitted for.
type Target struct {
	Params MachineParams
	// PinnedVecBytes, when non-zero, overrides cpuid probing for
	// NaturalVectorSize — useful for deterministic tests.
	PinnedVecBytes int
}

func NewTarget(params MachineParams) Target {
	return Target{Params: params}
}

// NaturalVectorSize returns how many elements of elemBytes width fit into
// one native vector register. When no host override is pinned, it probes
// the running CPU's widest available SIMD register via
// github.com/klauspost/cpuid/v2, the way cloudwego/frugal's JIT backend
// selects an ISA tier; it falls back to the target's configured VecLen when
// no relevant feature is detected (e.g. under emulation), keeping behavior
// deterministic off the happy path.
func (t Target) NaturalVectorSize(elemBytes int) int64 {
	if elemBytes <= 0 {
		elemBytes = 4
	}
	regBytes := t.PinnedVecBytes
	if regBytes == 0 {
		regBytes = nativeRegisterBytes()
	}
	if regBytes == 0 {
		return t.Params.VecLen
	}
	n := int64(regBytes / elemBytes)
	if n < 1 {
		n = 1
	}
	return n
}

func nativeRegisterBytes() int {
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F):
		return 64
	case cpuid.CPU.Supports(cpuid.AVX2):
		return 32
	case cpuid.CPU.Supports(cpuid.SSE2):
		return 16
	case cpuid.CPU.Supports(cpuid.ASIMD):
		return 16
	default:
		return 0
	}
}

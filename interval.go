package pipesched

// Extent represents an "unknown" extent or area with a dedicated flag
// rather than a bare negative sentinel, while Int64 still returns -1 for
// call sites that want the legacy integer reading.
type Extent struct {
	Value     int64
	IsUnknown bool
}

func KnownExtent(v int64) Extent { return Extent{Value: v} }

var UnknownExtent = Extent{IsUnknown: true}

// Int64 returns the legacy -1-for-unknown integer view of an Extent.
func (e Extent) Int64() int64 {
	if e.IsUnknown {
		return -1
	}
	return e.Value
}

func (e Extent) Add(o Extent) Extent {
	if e.IsUnknown || o.IsUnknown {
		return UnknownExtent
	}
	return KnownExtent(e.Value + o.Value)
}

func (e Extent) Mul(o Extent) Extent {
	if e.IsUnknown || o.IsUnknown {
		return UnknownExtent
	}
	return KnownExtent(e.Value * o.Value)
}

func (e Extent) Max(o Extent) Extent {
	if e.IsUnknown || o.IsUnknown {
		return UnknownExtent
	}
	if e.Value > o.Value {
		return e
	}
	return o
}

func (e Extent) Min(o Extent) Extent {
	if e.IsUnknown || o.IsUnknown {
		return UnknownExtent
	}
	if e.Value < o.Value {
		return e
	}
	return o
}

// Interval is an ordered pair of symbolic expressions. LitMin/LitMax and
// the HasLit flags record whether Min/Max have been resolved to integer
// literals (the common case once estimates are substituted); an interval
// with either end non-literal has unknown extent.
type Interval struct {
	Min, Max       *Expr
	LitMin, LitMax int64
	HasLitMin      bool
	HasLitMax      bool
}

// LiteralInterval builds an interval whose endpoints are already known
// integer literals.
func LiteralInterval(min, max int64) Interval {
	return Interval{
		Min: IntImm(min), Max: IntImm(max),
		LitMin: min, LitMax: max, HasLitMin: true, HasLitMax: true,
	}
}

// Extent computes max-min+1 when both endpoints are literal, else Unknown.
func (iv Interval) Extent() Extent {
	if !iv.HasLitMin || !iv.HasLitMax {
		return UnknownExtent
	}
	return KnownExtent(iv.LitMax - iv.LitMin + 1)
}

// Hull returns the per-dimension union (smallest enclosing interval).
func (iv Interval) Hull(o Interval) Interval {
	out := Interval{}
	if iv.HasLitMin && o.HasLitMin {
		out.HasLitMin = true
		out.LitMin = minI64(iv.LitMin, o.LitMin)
		out.Min = IntImm(out.LitMin)
	} else {
		out.Min = iv.Min
	}
	if iv.HasLitMax && o.HasLitMax {
		out.HasLitMax = true
		out.LitMax = maxI64(iv.LitMax, o.LitMax)
		out.Max = IntImm(out.LitMax)
	} else {
		out.Max = iv.Max
	}
	return out
}

// Intersect returns the per-dimension intersection.
func (iv Interval) Intersect(o Interval) Interval {
	out := Interval{}
	if iv.HasLitMin && o.HasLitMin {
		out.HasLitMin = true
		out.LitMin = maxI64(iv.LitMin, o.LitMin)
		out.Min = IntImm(out.LitMin)
	} else {
		out.Min = iv.Min
	}
	if iv.HasLitMax && o.HasLitMax {
		out.HasLitMax = true
		out.LitMax = minI64(iv.LitMax, o.LitMax)
		out.Max = IntImm(out.LitMax)
	} else {
		out.Max = iv.Max
	}
	return out
}

// Shift translates both endpoints by delta, preserving literal-ness.
func (iv Interval) Shift(delta int64) Interval {
	out := iv
	if iv.HasLitMin {
		out.LitMin = iv.LitMin + delta
		out.Min = IntImm(out.LitMin)
	}
	if iv.HasLitMax {
		out.LitMax = iv.LitMax + delta
		out.Max = IntImm(out.LitMax)
	}
	return out
}

// Empty reports whether the interval is provably empty (max < min).
func (iv Interval) Empty() bool {
	return iv.HasLitMin && iv.HasLitMax && iv.LitMax < iv.LitMin
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Box is an ordered sequence of intervals, one per dimension.
type Box []Interval

// Area is the product of extents; unknown if any dim's extent is unknown,
// zero if any dim's extent is literal zero (or negative, i.e. empty).
func (b Box) Area() Extent {
	area := KnownExtent(1)
	for _, iv := range b {
		e := iv.Extent()
		if !e.IsUnknown && e.Value <= 0 {
			return KnownExtent(0)
		}
		area = area.Mul(e)
	}
	return area
}

// Hull merges two boxes of equal rank dimension-wise.
func (b Box) Hull(o Box) Box {
	if len(b) == 0 {
		return o
	}
	if len(o) == 0 {
		return b
	}
	out := make(Box, len(b))
	for i := range b {
		out[i] = b[i].Hull(o[i])
	}
	return out
}

// Intersect intersects two boxes of equal rank dimension-wise.
func (b Box) Intersect(o Box) Box {
	if len(b) == 0 || len(o) == 0 {
		return nil
	}
	out := make(Box, len(b))
	for i := range b {
		out[i] = b[i].Intersect(o[i])
	}
	return out
}

// Shift translates dim `dim` of the box by delta, leaving other dims as-is.
func (b Box) Shift(dim int, delta int64) Box {
	out := make(Box, len(b))
	copy(out, b)
	if dim >= 0 && dim < len(b) {
		out[dim] = b[dim].Shift(delta)
	}
	return out
}

// DimBounds maps a variable name to its interval.
type DimBounds map[string]Interval

func (d DimBounds) Clone() DimBounds {
	out := make(DimBounds, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

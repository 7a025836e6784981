package pipesched

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntervalExtent(t *testing.T) {
	iv := LiteralInterval(0, 9)
	require.Equal(t, int64(10), iv.Extent().Value)

	unk := Interval{Min: VarExpr("x"), Max: IntImm(9)}
	require.True(t, unk.Extent().IsUnknown)
}

func TestBoxAreaHullIntersect(t *testing.T) {
	a := Box{LiteralInterval(0, 9)}
	b := Box{LiteralInterval(5, 14)}

	hull := a.Hull(b)
	require.Equal(t, int64(0), hull[0].LitMin)
	require.Equal(t, int64(14), hull[0].LitMax)
	require.GreaterOrEqual(t, hull.Area().Value, a.Area().Value)
	require.GreaterOrEqual(t, hull.Area().Value, b.Area().Value)

	self := a.Intersect(a)
	require.Equal(t, a.Area().Value, self.Area().Value)
}

func TestBoxAreaUnknownPropagates(t *testing.T) {
	unknownDim := Box{Interval{Min: VarExpr("x"), Max: IntImm(9)}}
	require.True(t, unknownDim.Area().IsUnknown)
}

func TestBoxAreaZeroExtent(t *testing.T) {
	empty := Box{LiteralInterval(5, 4)} // max < min
	require.Equal(t, int64(0), empty.Area().Value)
	require.False(t, empty.Area().IsUnknown)
}

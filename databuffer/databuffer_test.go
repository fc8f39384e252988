package databuffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoolRoundTrip(t *testing.T) {
	b := New()
	b.AddBool(true)
	b.AddBool(false)
	b.Seek(0)
	require.True(t, b.ReadBool())
	require.False(t, b.ReadBool())
	require.False(t, b.Overrun())
}

func TestUintRoundTripAllLevels(t *testing.T) {
	levels := []CompressionLevel{CompressionLevel0, CompressionLevel1, CompressionLevel2, CompressionLevel3}
	for _, l := range levels {
		b := New()
		n := b.AddUint(42, l)
		require.Equal(t, intBits(l), n)
		b.Seek(0)
		require.Equal(t, uint64(42), b.ReadUint(l))
	}
}

func TestIntRoundTripSigned(t *testing.T) {
	b := New()
	b.AddInt(-5, CompressionLevel1)
	b.AddInt(123, CompressionLevel1)
	b.Seek(0)
	require.Equal(t, int64(-5), b.ReadInt(CompressionLevel1))
	require.Equal(t, int64(123), b.ReadInt(CompressionLevel1))
}

func TestRealRoundTripTolerance(t *testing.T) {
	cases := []struct {
		level     CompressionLevel
		tolerance float64
	}{
		{CompressionLevel0, 0},
		{CompressionLevel1, 1e-6},
		{CompressionLevel2, 1e-2},
		{CompressionLevel3, 0.5},
	}
	for _, c := range cases {
		b := New()
		b.AddReal(3.14159, c.level)
		b.Seek(0)
		got := b.ReadReal(c.level)
		diff := got - 3.14159
		if diff < 0 {
			diff = -diff
		}
		require.LessOrEqualf(t, diff, c.tolerance+0.01, "level %d: got %v", c.level, got)
	}
}

func TestUnitRealRoundTrip(t *testing.T) {
	b := New()
	b.AddUnitReal(-0.73, CompressionLevel0, false)
	b.AddUnitReal(0.2, CompressionLevel0, true)
	b.Seek(0)
	require.InDelta(t, -0.73, b.ReadUnitReal(CompressionLevel0, false), 0.01)
	require.InDelta(t, 0.2, b.ReadUnitReal(CompressionLevel0, true), 0.01)
}

func TestVector2RoundTrip(t *testing.T) {
	b := New()
	v := Vector2{X: 1.5, Y: -2.25}
	b.AddVector2(v, CompressionLevel1)
	b.Seek(0)
	got := b.ReadVector2(CompressionLevel1)
	require.InDelta(t, v.X, got.X, 1e-4)
	require.InDelta(t, v.Y, got.Y, 1e-4)
}

func TestNormalizedVector3RoundTrip(t *testing.T) {
	b := New()
	v := Vector3{X: 0, Y: 0, Z: 1}
	b.AddNormalizedVector3(v, CompressionLevel0)
	b.Seek(0)
	got := b.ReadNormalizedVector3(CompressionLevel0)
	require.InDelta(t, v.X, got.X, 1e-6)
	require.InDelta(t, v.Y, got.Y, 1e-6)
	require.InDelta(t, v.Z, got.Z, 1e-6)
}

func TestOverrunIsRecoverable(t *testing.T) {
	b := New()
	b.AddBool(true)
	b.Seek(0)
	require.True(t, b.ReadBool())
	// reading past the single written bit should not panic
	v := b.ReadUint(CompressionLevel3)
	require.Equal(t, uint64(0), v)
	require.True(t, b.Overrun())
}

func TestDryTrimsTrailingZeroBits(t *testing.T) {
	b := New()
	b.AddBool(true)
	b.AddUint(0, CompressionLevel3) // all zero bits after the leading true
	before := b.BitSize()
	b.Dry()
	require.Less(t, b.BitSize(), before)
	require.GreaterOrEqual(t, b.BitSize(), uint64(1))
}

func TestVariantRoundTrip(t *testing.T) {
	vals := []Variant{
		{Tag: VariantNil},
		{Tag: VariantBool, Bool: true},
		{Tag: VariantInt, Int: -17},
		{Tag: VariantReal, Real: 2.5, Level: CompressionLevel0},
		{Tag: VariantVector3, Vec3: Vector3{1, 2, 3}, Level: CompressionLevel0},
		{Tag: VariantString, Str: "hello"},
		{Tag: VariantBytes, Bytes: []byte{1, 2, 3, 4}},
	}
	for _, v := range vals {
		b := New()
		b.AddVariant(v)
		b.Seek(0)
		got := b.ReadVariant(CompressionLevel0)
		require.True(t, v.Equal(got, 1e-6), "tag %v: want %v got %v", v.Tag, v, got)
	}
}

func TestSizeInBitsDeterministic(t *testing.T) {
	require.Equal(t, uint(1), SizeInBits(KindBool, CompressionLevel0))
	require.Equal(t, uint(64), SizeInBits(KindInt, CompressionLevel0))
	require.Equal(t, uint(8), SizeInBits(KindInt, CompressionLevel3))
	require.Equal(t, uint(3*64), SizeInBits(KindVector3, CompressionLevel0))
}

package databuffer

import "math"

// Vector2 is a plain 2D vector understood by the buffer's vector primitives.
type Vector2 struct{ X, Y float64 }

// Vector3 is a plain 3D vector understood by the buffer's vector primitives.
type Vector3 struct{ X, Y, Z float64 }

func normalizedVector2Bits(l CompressionLevel) uint {
	// angle-packed: a single angle real at the level's real width, per
	// spec §4.A ("vector2/3: 3x real" for raw; normalized packs an angle).
	return realBits(l)
}

func normalizedVector3Bits(l CompressionLevel) uint {
	// two angles (azimuth + elevation), each a full real at level l.
	return 2 * realBits(l)
}

// AddVector2 writes a raw (non-normalized) 2D vector as two reals.
func (b *Buffer) AddVector2(v Vector2, l CompressionLevel) uint {
	n := b.AddReal(v.X, l)
	n += b.AddReal(v.Y, l)
	return n
}

// ReadVector2 reads a raw 2D vector written with AddVector2.
func (b *Buffer) ReadVector2(l CompressionLevel) Vector2 {
	x := b.ReadReal(l)
	y := b.ReadReal(l)
	return Vector2{X: x, Y: y}
}

// AddVector3 writes a raw (non-normalized) 3D vector as three reals.
func (b *Buffer) AddVector3(v Vector3, l CompressionLevel) uint {
	n := b.AddReal(v.X, l)
	n += b.AddReal(v.Y, l)
	n += b.AddReal(v.Z, l)
	return n
}

// ReadVector3 reads a raw 3D vector written with AddVector3.
func (b *Buffer) ReadVector3(l CompressionLevel) Vector3 {
	x := b.ReadReal(l)
	y := b.ReadReal(l)
	z := b.ReadReal(l)
	return Vector3{X: x, Y: y, Z: z}
}

// AddNormalizedVector2 writes a unit 2D vector as a single packed angle,
// per spec §4.A's "normalized vector2/3: angle-packed per L".
func (b *Buffer) AddNormalizedVector2(v Vector2, l CompressionLevel) uint {
	angle := math.Atan2(v.Y, v.X)
	return b.AddReal(angle, l)
}

// ReadNormalizedVector2 reads a unit 2D vector written with
// AddNormalizedVector2, reconstructing it from the packed angle.
func (b *Buffer) ReadNormalizedVector2(l CompressionLevel) Vector2 {
	angle := b.ReadReal(l)
	return Vector2{X: math.Cos(angle), Y: math.Sin(angle)}
}

// AddNormalizedVector3 writes a unit 3D vector as azimuth+elevation angles.
func (b *Buffer) AddNormalizedVector3(v Vector3, l CompressionLevel) uint {
	azimuth := math.Atan2(v.Y, v.X)
	elevation := math.Asin(clamp(v.Z, -1, 1))
	n := b.AddReal(azimuth, l)
	n += b.AddReal(elevation, l)
	return n
}

// ReadNormalizedVector3 reads a unit 3D vector written with
// AddNormalizedVector3.
func (b *Buffer) ReadNormalizedVector3(l CompressionLevel) Vector3 {
	azimuth := b.ReadReal(l)
	elevation := b.ReadReal(l)
	ce := math.Cos(elevation)
	return Vector3{
		X: math.Cos(azimuth) * ce,
		Y: math.Sin(azimuth) * ce,
		Z: math.Sin(elevation),
	}
}

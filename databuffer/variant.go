package databuffer

import "fmt"

// VariantTag identifies the concrete type carried by a Variant.
type VariantTag uint8

const (
	VariantNil VariantTag = iota
	VariantBool
	VariantInt
	VariantReal
	VariantVector2
	VariantVector3
	VariantString
	VariantBytes // opaque "serializable" escape hatch (spec §1 Non-goals)
)

// Variant is the tagged-union value type the registry and snapshot packages
// exchange when a variable's static type isn't known to DataBuffer (the
// "opaque serializable escape hatch" of spec §1).
type Variant struct {
	Tag    VariantTag
	Bool   bool
	Int    int64
	Real   float64
	Vec2   Vector2
	Vec3   Vector3
	Str    string
	Bytes  []byte
	Level  CompressionLevel
}

// Equal compares two variants for value equality. Reals are compared with
// the caller-supplied tolerance (spec §4.D "comparison_float_tolerance");
// other kinds compare exactly.
func (v Variant) Equal(other Variant, tolerance float64) bool {
	if v.Tag != other.Tag {
		return false
	}
	switch v.Tag {
	case VariantNil:
		return true
	case VariantBool:
		return v.Bool == other.Bool
	case VariantInt:
		return v.Int == other.Int
	case VariantReal:
		d := v.Real - other.Real
		if d < 0 {
			d = -d
		}
		return d <= tolerance
	case VariantVector2:
		return floatClose(v.Vec2.X, other.Vec2.X, tolerance) && floatClose(v.Vec2.Y, other.Vec2.Y, tolerance)
	case VariantVector3:
		return floatClose(v.Vec3.X, other.Vec3.X, tolerance) &&
			floatClose(v.Vec3.Y, other.Vec3.Y, tolerance) &&
			floatClose(v.Vec3.Z, other.Vec3.Z, tolerance)
	case VariantString:
		return v.Str == other.Str
	case VariantBytes:
		if len(v.Bytes) != len(other.Bytes) {
			return false
		}
		for i := range v.Bytes {
			if v.Bytes[i] != other.Bytes[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func floatClose(a, b, tolerance float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// AddVariant writes a tag byte followed by the tagged payload.
func (b *Buffer) AddVariant(v Variant) uint {
	n := b.AddUint(uint64(v.Tag), CompressionLevel3)
	switch v.Tag {
	case VariantNil:
	case VariantBool:
		n += b.AddBool(v.Bool)
	case VariantInt:
		n += b.AddInt(v.Int, CompressionLevel0)
	case VariantReal:
		n += b.AddReal(v.Real, v.Level)
	case VariantVector2:
		n += b.AddVector2(v.Vec2, v.Level)
	case VariantVector3:
		n += b.AddVector3(v.Vec3, v.Level)
	case VariantString:
		n += b.addByteSlice([]byte(v.Str))
	case VariantBytes:
		n += b.addByteSlice(v.Bytes)
	}
	return n
}

// ReadVariant reads a variant written with AddVariant. realLevel selects the
// compression level used for VariantReal/Vector payloads (the caller must
// supply the same level the writer used, per the DataBuffer contract).
func (b *Buffer) ReadVariant(realLevel CompressionLevel) Variant {
	tag := VariantTag(b.ReadUint(CompressionLevel3))
	v := Variant{Tag: tag, Level: realLevel}
	switch tag {
	case VariantNil:
	case VariantBool:
		v.Bool = b.ReadBool()
	case VariantInt:
		v.Int = b.ReadInt(CompressionLevel0)
	case VariantReal:
		v.Real = b.ReadReal(realLevel)
	case VariantVector2:
		v.Vec2 = b.ReadVector2(realLevel)
	case VariantVector3:
		v.Vec3 = b.ReadVector3(realLevel)
	case VariantString:
		v.Str = string(b.readByteSlice())
	case VariantBytes:
		v.Bytes = b.readByteSlice()
	}
	return v
}

func (b *Buffer) addByteSlice(data []byte) uint {
	n := b.AddUint(uint64(len(data)), CompressionLevel1)
	for _, by := range data {
		n += b.AddUint(uint64(by), CompressionLevel3)
	}
	return n
}

func (b *Buffer) readByteSlice() []byte {
	length := b.ReadUint(CompressionLevel1)
	out := make([]byte, 0, length)
	for i := uint64(0); i < length; i++ {
		out = append(out, byte(b.ReadUint(CompressionLevel3)))
	}
	return out
}

// String renders a Variant for debug logging (logrus Tracef), mirroring the
// teacher's %+v style debug dumps.
func (v Variant) String() string {
	switch v.Tag {
	case VariantNil:
		return "nil"
	case VariantBool:
		return fmt.Sprintf("%t", v.Bool)
	case VariantInt:
		return fmt.Sprintf("%d", v.Int)
	case VariantReal:
		return fmt.Sprintf("%g", v.Real)
	case VariantVector2:
		return fmt.Sprintf("(%g, %g)", v.Vec2.X, v.Vec2.Y)
	case VariantVector3:
		return fmt.Sprintf("(%g, %g, %g)", v.Vec3.X, v.Vec3.Y, v.Vec3.Z)
	case VariantString:
		return v.Str
	case VariantBytes:
		return fmt.Sprintf("<%d bytes>", len(v.Bytes))
	default:
		return "<invalid>"
	}
}

package tensor

// DType identifies the element type of a tensor.
type DType string

const (
	F16  DType = "F16"  // IEEE 754 half-precision float (2 bytes)
	F32  DType = "F32"  // IEEE 754 single-precision float (4 bytes)
	F64  DType = "F64"  // IEEE 754 double-precision float (8 bytes)
	BF16 DType = "BF16" // Brain floating-point (2 bytes)
	I8   DType = "I8"   // Signed 8-bit integer
	I16  DType = "I16"  // Signed 16-bit integer
	I32  DType = "I32"  // Signed 32-bit integer
	I64  DType = "I64"  // Signed 64-bit integer
	U8   DType = "U8"   // Unsigned 8-bit integer
	BOOL DType = "BOOL" // Boolean (1 byte)
)

// BytesPerElement returns the element width in bytes, or 0 for an
// unknown dtype.
func (d DType) BytesPerElement() int64 {
	switch d {
	case F16, BF16, I16:
		return 2
	case F32, I32:
		return 4
	case F64, I64:
		return 8
	case I8, U8, BOOL:
		return 1
	default:
		return 0
	}
}

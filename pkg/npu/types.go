// Package npu holds the shared, dependency-free vocabulary used across
// the cascading compiler: tensor shapes, quantisation descriptors, data
// types, and the compiler's error taxonomy.
package npu

import (
	"fmt"
	"math"
)

// DataType is the element encoding of a tensor.
type DataType int

const (
	QAsymmU8 DataType = iota
	QAsymmS8
	QSymmS8
	S32
)

func (d DataType) String() string {
	switch d {
	case QAsymmU8:
		return "QAsymmU8"
	case QAsymmS8:
		return "QAsymmS8"
	case QSymmS8:
		return "QSymmS8"
	case S32:
		return "S32"
	default:
		return fmt.Sprintf("DataType(%d)", int(d))
	}
}

// MarshalJSON renders a DataType by name, matching String.
func (d DataType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON parses a DataType from the same names String returns.
func (d *DataType) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("npu: DataType must be a JSON string, got %s", data)
	}
	switch string(data[1 : len(data)-1]) {
	case "QAsymmU8":
		*d = QAsymmU8
	case "QAsymmS8":
		*d = QAsymmS8
	case "QSymmS8":
		*d = QSymmS8
	case "S32":
		*d = S32
	default:
		return fmt.Errorf("npu: unknown data type %q", string(data[1:len(data)-1]))
	}
	return nil
}

// ElemSize returns the size in bytes of one element of the given type.
func (d DataType) ElemSize() int {
	switch d {
	case QAsymmU8, QAsymmS8, QSymmS8:
		return 1
	case S32:
		return 4
	default:
		return 0
	}
}

// QuantInfo is the per-tensor quantisation descriptor.
type QuantInfo struct {
	ZeroPoint int32
	Scale     float32
}

// Quantise maps a real value into the quantised domain of this
// descriptor, saturating to the range of dt.
func (q QuantInfo) Quantise(real float64, dt DataType) int32 {
	v := int64(math.Round(real/float64(q.Scale))) + int64(q.ZeroPoint)
	lo, hi := dt.Range()
	if v < int64(lo) {
		return lo
	}
	if v > int64(hi) {
		return hi
	}
	return int32(v)
}

// Range returns the [min, max] representable range for the data type.
func (d DataType) Range() (int32, int32) {
	switch d {
	case QAsymmU8:
		return 0, 255
	case QAsymmS8, QSymmS8:
		return -128, 127
	case S32:
		return -(1 << 31), (1 << 31) - 1
	default:
		return 0, 0
	}
}

// Shape is a 4-tuple (N,H,W,C) tensor shape.
type Shape struct {
	N, H, W, C int
}

// NumElements returns the total element count of the shape.
func (s Shape) NumElements() int64 {
	return int64(s.N) * int64(s.H) * int64(s.W) * int64(s.C)
}

// N64, H64, W64, C64 widen each dimension to int64, so byte-count
// arithmetic across large tensors does not overflow on 32-bit int.
func (s Shape) N64() int64 { return int64(s.N) }
func (s Shape) H64() int64 { return int64(s.H) }
func (s Shape) W64() int64 { return int64(s.W) }
func (s Shape) C64() int64 { return int64(s.C) }

// BuildShape normalises a variable-rank shape slice into the canonical
// (N,H,W,C) form used throughout the compiler.
//
//   - len 1: (1, d0, 1, 1)
//   - len 2: (1, d0, d1, 1)
//   - len 3: (1, d0, d1, d2)
//   - len 4: (d0, d1, d2, d3)
//
// Any other rank is rejected: the front end never produces tensors
// outside this range.
func BuildShape(dims []int) (Shape, error) {
	switch len(dims) {
	case 1:
		return Shape{N: 1, H: dims[0], W: 1, C: 1}, nil
	case 2:
		return Shape{N: 1, H: dims[0], W: dims[1], C: 1}, nil
	case 3:
		return Shape{N: 1, H: dims[0], W: dims[1], C: dims[2]}, nil
	case 4:
		return Shape{N: dims[0], H: dims[1], W: dims[2], C: dims[3]}, nil
	default:
		return Shape{}, fmt.Errorf("npu: unsupported tensor rank %d", len(dims))
	}
}

// TensorInfo pairs a shape with its quantisation and element type.
type TensorInfo struct {
	Shape Shape
	Quant QuantInfo
	Type  DataType
}

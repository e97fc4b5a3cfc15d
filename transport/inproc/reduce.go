package inproc

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/rocketbitz/rankcomm-go/transport"
)

func datatypeWidth(dt transport.Datatype) (int, error) {
	switch dt {
	case transport.DatatypeInt8, transport.DatatypeUint8:
		return 1, nil
	case transport.DatatypeInt32, transport.DatatypeUint32, transport.DatatypeFloat32:
		return 4, nil
	case transport.DatatypeInt64, transport.DatatypeUint64, transport.DatatypeFloat64:
		return 8, nil
	default:
		return 0, errors.Errorf("inproc: unknown datatype %d", dt)
	}
}

// reduceBytes folds src into dst elementwise. Both slices must hold the same
// whole number of dt elements.
func reduceBytes(dst, src []byte, dt transport.Datatype, op transport.ReduceOp) error {
	if len(dst) != len(src) {
		return errors.Errorf("inproc: reduce length mismatch: %d vs %d", len(dst), len(src))
	}
	if len(dst) == 0 {
		return nil
	}
	switch dt {
	case transport.DatatypeInt8:
		reduceSlice(typedView[int8](dst), typedView[int8](src), op)
	case transport.DatatypeUint8:
		reduceSlice(typedView[uint8](dst), typedView[uint8](src), op)
	case transport.DatatypeInt32:
		reduceSlice(typedView[int32](dst), typedView[int32](src), op)
	case transport.DatatypeUint32:
		reduceSlice(typedView[uint32](dst), typedView[uint32](src), op)
	case transport.DatatypeInt64:
		reduceSlice(typedView[int64](dst), typedView[int64](src), op)
	case transport.DatatypeUint64:
		reduceSlice(typedView[uint64](dst), typedView[uint64](src), op)
	case transport.DatatypeFloat32:
		reduceSlice(typedView[float32](dst), typedView[float32](src), op)
	case transport.DatatypeFloat64:
		reduceSlice(typedView[float64](dst), typedView[float64](src), op)
	default:
		return errors.Errorf("inproc: unknown datatype %d", dt)
	}
	return nil
}

type element interface {
	~int8 | ~uint8 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// typedView reinterprets raw bytes as a slice of T without copying.
func typedView[T element](b []byte) []T {
	var zero T
	width := int(unsafe.Sizeof(zero))
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), len(b)/width)
}

func reduceSlice[T element](dst, src []T, op transport.ReduceOp) {
	switch op {
	case transport.ReduceSum:
		for i := range dst {
			dst[i] += src[i]
		}
	case transport.ReduceProd:
		for i := range dst {
			dst[i] *= src[i]
		}
	case transport.ReduceMin:
		for i := range dst {
			if src[i] < dst[i] {
				dst[i] = src[i]
			}
		}
	case transport.ReduceMax:
		for i := range dst {
			if src[i] > dst[i] {
				dst[i] = src[i]
			}
		}
	}
}

package comms

import "github.com/rocketbitz/rankcomm-go/transport"

// Datatype identifies an element type of a collective or message payload.
type Datatype uint8

// Supported datatypes.
const (
	Char Datatype = iota
	Uint8
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
)

func (d Datatype) String() string {
	switch d {
	case Char:
		return "char"
	case Uint8:
		return "uint8"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "datatype"
	}
}

// Op identifies an elementwise reduction.
type Op uint8

// Supported reduction operations.
const (
	Sum Op = iota
	Prod
	Min
	Max
)

func (o Op) String() string {
	switch o {
	case Sum:
		return "sum"
	case Prod:
		return "prod"
	case Min:
		return "min"
	case Max:
		return "max"
	default:
		return "op"
	}
}

// DatatypeSize returns the width of one element in bytes.
func DatatypeSize(d Datatype) (int, error) {
	switch d {
	case Char, Uint8:
		return 1, nil
	case Int32, Uint32, Float32:
		return 4, nil
	case Int64, Uint64, Float64:
		return 8, nil
	default:
		return 0, &UnsupportedTypeError{Datatype: d}
	}
}

func nativeDatatype(d Datatype) (transport.Datatype, error) {
	switch d {
	case Char:
		return transport.DatatypeInt8, nil
	case Uint8:
		return transport.DatatypeUint8, nil
	case Int32:
		return transport.DatatypeInt32, nil
	case Uint32:
		return transport.DatatypeUint32, nil
	case Int64:
		return transport.DatatypeInt64, nil
	case Uint64:
		return transport.DatatypeUint64, nil
	case Float32:
		return transport.DatatypeFloat32, nil
	case Float64:
		return transport.DatatypeFloat64, nil
	default:
		return 0, &UnsupportedTypeError{Datatype: d}
	}
}

func nativeOp(o Op) (transport.ReduceOp, error) {
	switch o {
	case Sum:
		return transport.ReduceSum, nil
	case Prod:
		return transport.ReduceProd, nil
	case Min:
		return transport.ReduceMin, nil
	case Max:
		return transport.ReduceMax, nil
	default:
		return 0, &UnsupportedOpError{Op: o}
	}
}

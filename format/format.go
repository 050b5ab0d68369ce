// Package format implements the scalar-payload formatter rpctrace's message
// walker consults for every non-port descriptor. It is deliberately small
// and decoupled behind the Formatter interface: the walker never formats
// data itself.
package format

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Element type tags, loosely modeled on Mach's MACH_MSG_TYPE_* scalar codes.
const (
	Bool    byte = 'b'
	Int     byte = 'i'
	Char    byte = 'c'
	String  byte = 's'
	Real    byte = 'f'
	PortVal byte = 'n' // port-name array, printed as "pn{...}"
)

// Formatter renders one descriptor's scalar payload for trace output.
type Formatter interface {
	FormatScalar(w io.Writer, kind byte, data []byte, nelt, eltsize int, order binary.ByteOrder)
}

// Default is the formatter the engine uses unless an Option overrides it,
// grounded on rpctrace.c's print_data.
var Default Formatter = defaultFormatter{}

type defaultFormatter struct{}

func (defaultFormatter) FormatScalar(w io.Writer, kind byte, data []byte, nelt, eltsize int, order binary.ByteOrder) {
	switch kind {
	case PortVal:
		fmt.Fprint(w, "pn{")
		for i := 0; i < nelt; i++ {
			if i > 0 {
				fmt.Fprint(w, " ")
			}
			v := readUint(data[i*eltsize:], eltsize, order)
			fmt.Fprintf(w, "%d", v)
		}
		fmt.Fprint(w, "}")
		return

	case String, Char:
		fmt.Fprintf(w, "%q", string(data[:nelt*eltsize]))
		return

	case Bool, Int:
		writeArray(w, nelt, func(i int) string {
			v := readInt(data[i*eltsize:], eltsize, order)
			return fmt.Sprintf("%d", v)
		})
		return

	case Real:
		writeArray(w, nelt, func(i int) string {
			switch eltsize {
			case 4:
				bits := order.Uint32(data[i*eltsize:])
				return fmt.Sprintf("%g", math.Float32frombits(bits))
			case 8:
				bits := order.Uint64(data[i*eltsize:])
				return fmt.Sprintf("%g", math.Float64frombits(bits))
			default:
				return "?"
			}
		})
		return
	}

	// Unrecognized (kind, eltsize) pairs are dumped as a raw hex blob rather
	// than aborting.
	fmt.Fprintf(w, "{type=%c nelt=%d eltsize=%d %#x}", kind, nelt, eltsize, data)
}

func writeArray(w io.Writer, nelt int, elem func(int) string) {
	if nelt > 1 {
		fmt.Fprint(w, "{")
	}
	for i := 0; i < nelt; i++ {
		if i > 0 {
			fmt.Fprint(w, " ")
		}
		fmt.Fprint(w, elem(i))
	}
	if nelt > 1 {
		fmt.Fprint(w, "}")
	}
}

func readUint(b []byte, size int, order binary.ByteOrder) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(order.Uint16(b))
	case 4:
		return uint64(order.Uint32(b))
	case 8:
		return order.Uint64(b)
	default:
		return 0
	}
}

func readInt(b []byte, size int, order binary.ByteOrder) int64 {
	switch size {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(int16(order.Uint16(b)))
	case 4:
		return int64(int32(order.Uint32(b)))
	case 8:
		return int64(order.Uint64(b))
	default:
		return 0
	}
}

// Internal API, not to be exported
package internal

import (
	"io"
	"math"
)

// FillValueReader repeats a fill pattern forever.
type FillValueReader struct {
	repeat      []byte
	repeatIndex int
}

func NewFillValueReader(repeat []byte) io.Reader {
	return &FillValueReader{repeat, 0}
}

func (fvr *FillValueReader) Read(p []byte) (int, error) {
	rl := len(fvr.repeat)
	ri := fvr.repeatIndex
	z := p
	if ri == 0 {
		for len(z) >= rl {
			copy(z, fvr.repeat)
			z = z[rl:]
		}
	}
	for i := 0; i < len(z); i++ {
		z[i] = fvr.repeat[ri%rl]
		ri++
	}
	fvr.repeatIndex = ri % rl
	return len(p), nil
}

// DefaultFillValue returns the NetCDF default fill value for the given Go
// type name, or nil if the type is unknown.
func DefaultFillValue(goType string) any {
	switch goType {
	case "int8":
		return int8(-127)
	case "char":
		return byte(0)
	case "int16":
		return int16(-32767)
	case "int32":
		return int32(-2147483647)
	case "float32":
		return math.Float32frombits(0x7cf00000)
	case "float64":
		return math.Float64frombits(0x479e000000000000)
	case "uint8":
		return uint8(0xff)
	case "uint16":
		return uint16(0xffff)
	case "uint32":
		return uint32(0xffffffff)
	case "int64":
		return int64(-9223372036854775806)
	case "uint64":
		return uint64(0xfffffffffffffffe)
	}
	return nil
}

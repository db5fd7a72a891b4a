// Package ndarray is a small n-dimensional array: a flat Go slice of any
// numeric element type plus a row-major shape.
//
// It is the in-memory form of variable data. Selections are expressed with
// index.Range values already resolved against the array's shape.
package ndarray

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/batchatco/go-netcdf-tailor/netcdf/index"
)

var (
	ErrNotSlice = errors.New("values must be a slice")
	ErrType     = errors.New("unsupported element type")
	ErrShape    = errors.New("shape mismatch")
	ErrRank     = errors.New("wrong number of dimensions")
)

type Array struct {
	shape  []int
	values reflect.Value
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func numeric(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// New wraps a flat slice. The slice is used in place, not copied.
func New(values any, shape ...int) (*Array, error) {
	v := reflect.ValueOf(values)
	if v.Kind() != reflect.Slice {
		return nil, ErrNotSlice
	}
	if !numeric(v.Type().Elem()) {
		return nil, fmt.Errorf("%w: %s", ErrType, v.Type().Elem())
	}
	if v.Len() != product(shape) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, v.Len(), shape)
	}
	return &Array{shape: append([]int{}, shape...), values: v}, nil
}

// MustNew is like New but panics on error. It is meant for literals.
func MustNew(values any, shape ...int) *Array {
	a, err := New(values, shape...)
	if err != nil {
		panic(err)
	}
	return a
}

// Full returns an array of the given shape with every element set to value.
func Full(value any, shape ...int) *Array {
	v := reflect.ValueOf(value)
	n := product(shape)
	values := reflect.MakeSlice(reflect.SliceOf(v.Type()), n, n)
	for i := 0; i < n; i++ {
		values.Index(i).Set(v)
	}
	return &Array{shape: append([]int{}, shape...), values: values}
}

// Scalar is a zero-dimensional array holding v. Writing a scalar broadcasts it.
func Scalar(v any) *Array {
	return Full(v)
}

func (a *Array) Shape() []int {
	return append([]int{}, a.shape...)
}

func (a *Array) Rank() int {
	return len(a.shape)
}

func (a *Array) Len() int {
	return a.values.Len()
}

// Values returns the flat backing slice, e.g. []float32.
func (a *Array) Values() any {
	return a.values.Interface()
}

// ElemType is the Go type of one element.
func (a *Array) ElemType() reflect.Type {
	return a.values.Type().Elem()
}

func (a *Array) offset(idx []int) int {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("ndarray: %d indices for rank %d", len(idx), len(a.shape)))
	}
	off := 0
	for i, n := range a.shape {
		if idx[i] < 0 || idx[i] >= n {
			panic(fmt.Sprintf("ndarray: index %v out of range for shape %v", idx, a.shape))
		}
		off = off*n + idx[i]
	}
	return off
}

// At returns the element at the given position; it panics when out of range.
func (a *Array) At(idx ...int) any {
	return a.values.Index(a.offset(idx)).Interface()
}

// Float64s returns a copy of the elements converted to float64.
func (a *Array) Float64s() []float64 {
	out := make([]float64, a.Len())
	t := reflect.TypeOf(float64(0))
	for i := range out {
		out[i] = a.values.Index(i).Convert(t).Float()
	}
	return out
}

// Every reports whether all elements equal v after conversion to the element type.
// It is true for an empty array.
func (a *Array) Every(v any) bool {
	want := reflect.ValueOf(v).Convert(a.ElemType()).Interface()
	for i := 0; i < a.Len(); i++ {
		if a.values.Index(i).Interface() != want {
			return false
		}
	}
	return true
}

// Some reports whether any element equals v after conversion to the element type.
func (a *Array) Some(v any) bool {
	want := reflect.ValueOf(v).Convert(a.ElemType()).Interface()
	for i := 0; i < a.Len(); i++ {
		if a.values.Index(i).Interface() == want {
			return true
		}
	}
	return false
}

// Equal is true when both arrays have the same shape, element type and values.
func (a *Array) Equal(b *Array) bool {
	return reflect.DeepEqual(a.shape, b.shape) &&
		reflect.DeepEqual(a.values.Interface(), b.values.Interface())
}

func (a *Array) Clone() *Array {
	n := a.Len()
	values := reflect.MakeSlice(a.values.Type(), n, n)
	reflect.Copy(values, a.values)
	return &Array{shape: a.Shape(), values: values}
}

// Convert returns a copy whose elements have type t.
func (a *Array) Convert(t reflect.Type) (*Array, error) {
	if !numeric(t) {
		return nil, fmt.Errorf("%w: %s", ErrType, t)
	}
	if t == a.ElemType() {
		return a.Clone(), nil
	}
	n := a.Len()
	values := reflect.MakeSlice(reflect.SliceOf(t), n, n)
	for i := 0; i < n; i++ {
		values.Index(i).Set(a.values.Index(i).Convert(t))
	}
	return &Array{shape: a.Shape(), values: values}, nil
}

// Reshape returns an array sharing a's values with a new shape.
func (a *Array) Reshape(shape ...int) (*Array, error) {
	if product(shape) != a.Len() {
		return nil, fmt.Errorf("%w: cannot reshape %v to %v", ErrShape, a.shape, shape)
	}
	return &Array{shape: append([]int{}, shape...), values: a.values}, nil
}

// Quantize rounds floating point elements in place to the given number of
// decimal digits. Integer arrays are left alone.
func (a *Array) Quantize(digits int) {
	switch a.ElemType().Kind() {
	case reflect.Float32, reflect.Float64:
	default:
		return
	}
	scale := math.Pow(10, float64(digits))
	for i := 0; i < a.Len(); i++ {
		e := a.values.Index(i)
		e.SetFloat(math.Round(e.Float()*scale) / scale)
	}
}

// Lens is the shape selected by ranges.
func Lens(ranges []index.Range) []int {
	lens := make([]int, len(ranges))
	for i, r := range ranges {
		lens[i] = r.Len()
	}
	return lens
}

// walk calls fn with the flat offset of every element selected by ranges,
// in row-major order.
func (a *Array) walk(ranges []index.Range, fn func(off int)) {
	lens := Lens(ranges)
	if product(lens) == 0 {
		return
	}
	if len(ranges) == 0 {
		fn(0)
		return
	}
	pos := make([]int, len(ranges))
	for {
		off := 0
		for i, r := range ranges {
			off = off*a.shape[i] + r.Start + pos[i]*r.Step
		}
		fn(off)
		axis := len(pos) - 1
		for ; axis >= 0; axis-- {
			pos[axis]++
			if pos[axis] < lens[axis] {
				break
			}
			pos[axis] = 0
		}
		if axis < 0 {
			return
		}
	}
}

// Get copies out the elements selected by ranges.
func (a *Array) Get(ranges []index.Range) (*Array, error) {
	if len(ranges) != len(a.shape) {
		return nil, fmt.Errorf("%w: %d ranges for shape %v", ErrRank, len(ranges), a.shape)
	}
	lens := Lens(ranges)
	n := product(lens)
	out := reflect.MakeSlice(a.values.Type(), n, n)
	i := 0
	a.walk(ranges, func(off int) {
		out.Index(i).Set(a.values.Index(off))
		i++
	})
	return &Array{shape: lens, values: out}, nil
}

func squeeze(shape []int) []int {
	out := []int{}
	for _, s := range shape {
		if s != 1 {
			out = append(out, s)
		}
	}
	return out
}

// Fits reports whether a can be stored into a selection of shape lens: it
// is a single element or has the same shape, ignoring axes of length one.
func (a *Array) Fits(lens []int) bool {
	return a.Len() == 1 || reflect.DeepEqual(squeeze(lens), squeeze(a.shape))
}

// Set stores src into the elements selected by ranges.
// A single element src is broadcast; otherwise src must have the selected
// shape, ignoring axes of length one. Elements are converted to a's type.
func (a *Array) Set(ranges []index.Range, src *Array) error {
	if len(ranges) != len(a.shape) {
		return fmt.Errorf("%w: %d ranges for shape %v", ErrRank, len(ranges), a.shape)
	}
	t := a.ElemType()
	if !src.ElemType().ConvertibleTo(t) {
		return fmt.Errorf("%w: cannot store %s as %s", ErrType, src.ElemType(), t)
	}
	lens := Lens(ranges)
	if src.Len() == 1 {
		v := src.values.Index(0).Convert(t)
		a.walk(ranges, func(off int) {
			a.values.Index(off).Set(v)
		})
		return nil
	}
	if !src.Fits(lens) {
		return fmt.Errorf("%w: cannot store shape %v into %v", ErrShape, src.shape, lens)
	}
	i := 0
	a.walk(ranges, func(off int) {
		a.values.Index(off).Set(src.values.Index(i).Convert(t))
		i++
	})
	return nil
}

// Extend returns a copy of a grown along the first axis to n rows, the new
// rows set to fill. It returns a unchanged when it already has n rows.
func (a *Array) Extend(n int, fill any) (*Array, error) {
	if len(a.shape) == 0 {
		return nil, ErrRank
	}
	if n <= a.shape[0] {
		return a, nil
	}
	shape := a.Shape()
	shape[0] = n
	out := Full(reflect.ValueOf(fill).Convert(a.ElemType()).Interface(), shape...)
	reflect.Copy(out.values, a.values)
	return out, nil
}

// Concat joins arrays along the first axis. All parts must share their
// trailing shape and element type.
func Concat(parts ...*Array) (*Array, error) {
	if len(parts) == 0 {
		return nil, ErrShape
	}
	first := parts[0]
	if first.Rank() == 0 {
		return nil, ErrRank
	}
	rows := 0
	total := 0
	for _, p := range parts {
		if p.ElemType() != first.ElemType() {
			return nil, fmt.Errorf("%w: %s and %s", ErrType, first.ElemType(), p.ElemType())
		}
		if p.Rank() != first.Rank() || !reflect.DeepEqual(p.shape[1:], first.shape[1:]) {
			return nil, fmt.Errorf("%w: %v and %v", ErrShape, first.shape, p.shape)
		}
		rows += p.shape[0]
		total += p.Len()
	}
	values := reflect.MakeSlice(first.values.Type(), 0, total)
	for _, p := range parts {
		values = reflect.AppendSlice(values, p.values)
	}
	shape := first.Shape()
	shape[0] = rows
	return &Array{shape: shape, values: values}, nil
}

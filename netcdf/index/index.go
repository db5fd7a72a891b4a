// Package index describes selections into n-dimensional variables.
//
// A Slice is the start:stop:step triple familiar from array languages, with
// any of its fields left open. An Index is what a caller hands to a variable:
// either one bare Slice, or an ordered list of per-axis items where each item
// is an integer or a Slice.
package index

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrStep   = errors.New("slice step must be positive")
	ErrSyntax = errors.New("invalid index syntax")
	ErrBounds = errors.New("index out of bounds")
	ErrRank   = errors.New("too many indices")
)

// Slice is a start:stop:step selection along one axis. Nil fields are open.
type Slice struct {
	Start, Stop, Step *int
}

// Int returns a pointer to i, for filling Slice fields.
func Int(i int) *int {
	return &i
}

// All is the open slice ":".
func All() Slice {
	return Slice{}
}

// Span is start:stop.
func Span(start, stop int) Slice {
	return Slice{Start: Int(start), Stop: Int(stop)}
}

// Unit is the one element slice i:i+1 that an integer index is promoted to.
func Unit(i int) Slice {
	return Span(i, i+1)
}

// WithStep returns a copy of s with the given step.
func (s Slice) WithStep(step int) Slice {
	s.Step = Int(step)
	return s
}

// IsOpen is true when start, stop and step are all unset.
func (s Slice) IsOpen() bool {
	return s.Start == nil && s.Stop == nil && s.Step == nil
}

func (s Slice) String() string {
	part := func(p *int) string {
		if p == nil {
			return ""
		}
		return strconv.Itoa(*p)
	}
	str := part(s.Start) + ":" + part(s.Stop)
	if s.Step != nil {
		str += ":" + part(s.Step)
	}
	return str
}

// Range is a Slice resolved against an axis: 0 <= Start <= Stop <= length.
type Range struct {
	Start, Stop, Step int
}

// Len is the number of elements the range selects.
func (r Range) Len() int {
	if r.Stop <= r.Start {
		return 0
	}
	return (r.Stop - r.Start + r.Step - 1) / r.Step
}

// Resolve applies the usual slicing rules against an axis of length n:
// negative positions count from the end, open ends take the axis edges, and
// out of range positions are clipped.
func (s Slice) Resolve(n int) (Range, error) {
	step := 1
	if s.Step != nil {
		step = *s.Step
	}
	if step <= 0 {
		return Range{}, fmt.Errorf("%w: %d", ErrStep, step)
	}
	clip := func(p *int, open int) int {
		if p == nil {
			return open
		}
		v := *p
		if v < 0 {
			v += n
		}
		switch {
		case v < 0:
			return 0
		case v > n:
			return n
		}
		return v
	}
	start := clip(s.Start, 0)
	stop := clip(s.Stop, n)
	if stop < start {
		stop = start
	}
	return Range{Start: start, Stop: stop, Step: step}, nil
}

// Item is one entry of a list Index: an integer or a Slice.
type Item struct {
	slice Slice
	at    int
	isInt bool
}

// At is an integer item.
func At(i int) Item {
	return Item{at: i, isInt: true}
}

// Sub is a slice item.
func Sub(s Slice) Item {
	return Item{slice: s}
}

// Slice returns the item as a slice, promoting an integer i to i:i+1.
func (it Item) Slice() Slice {
	if it.isInt {
		return Unit(it.at)
	}
	return it.slice
}

func (it Item) String() string {
	if it.isInt {
		return strconv.Itoa(it.at)
	}
	return it.slice.String()
}

type kind int

const (
	kindSlice kind = iota
	kindList
)

// Index is a caller supplied selection: either a single Slice applying to
// the first axis, or a list of per-axis items.
// The zero Index is the single open slice, selecting everything.
type Index struct {
	kind  kind
	slice Slice
	items []Item
}

// Whole selects everything.
func Whole() Index {
	return Index{}
}

// Of is an Index made of one bare slice.
func Of(s Slice) Index {
	return Index{kind: kindSlice, slice: s}
}

// List is an Index made of per-axis items.
func List(items ...Item) Index {
	return Index{kind: kindList, items: items}
}

// Slices is a list Index made only of slices.
func Slices(slices ...Slice) Index {
	items := make([]Item, len(slices))
	for i, s := range slices {
		items[i] = Sub(s)
	}
	return List(items...)
}

// Len is the number of explicit axes.
func (ix Index) Len() int {
	if ix.kind == kindSlice {
		return 1
	}
	return len(ix.items)
}

// Normalize returns one slice per axis for n axes: integers become unit
// slices and missing trailing axes are padded with open slices.
// An index with more than n explicit axes keeps all of them.
func (ix Index) Normalize(n int) []Slice {
	var slices []Slice
	switch ix.kind {
	case kindSlice:
		slices = []Slice{ix.slice}
	case kindList:
		slices = make([]Slice, 0, len(ix.items))
		for _, it := range ix.items {
			slices = append(slices, it.Slice())
		}
	}
	for len(slices) < n {
		slices = append(slices, All())
	}
	return slices
}

// Ranges resolves the index directly against shape, the way a variable
// reads it: an integer i selects the single element at i, counting from the
// end when negative, and must lie inside its axis.
func (ix Index) Ranges(shape []int) ([]Range, error) {
	if ix.Len() > len(shape) {
		return nil, fmt.Errorf("%w: %d indices for %d dimensions", ErrRank, ix.Len(), len(shape))
	}
	ranges := make([]Range, len(shape))
	for axis, n := range shape {
		s := All()
		switch {
		case ix.kind == kindSlice && axis == 0:
			s = ix.slice
		case ix.kind == kindList && axis < len(ix.items):
			it := ix.items[axis]
			if it.isInt {
				i := it.at
				if i < 0 {
					i += n
				}
				if i < 0 || i >= n {
					return nil, fmt.Errorf("%w: %d on axis %d of length %d", ErrBounds, it.at, axis, n)
				}
				ranges[axis] = Range{Start: i, Stop: i + 1, Step: 1}
				continue
			}
			s = it.slice
		}
		r, err := s.Resolve(n)
		if err != nil {
			return nil, err
		}
		ranges[axis] = r
	}
	return ranges, nil
}

// Reach is the exclusive end the index explicitly asks for on axis: an
// explicit non-negative stop, or i+1 for a non-negative integer i.
// It is false when the axis is open, negative or not addressed.
func (ix Index) Reach(axis int) (int, bool) {
	var s Slice
	switch {
	case ix.kind == kindSlice && axis == 0:
		s = ix.slice
	case ix.kind == kindList && axis < len(ix.items):
		it := ix.items[axis]
		if it.isInt {
			return it.at + 1, it.at >= 0
		}
		s = it.slice
	default:
		return 0, false
	}
	if s.Stop == nil || *s.Stop < 0 {
		return 0, false
	}
	return *s.Stop, true
}

func (ix Index) String() string {
	if ix.kind == kindSlice {
		return "[" + ix.slice.String() + "]"
	}
	parts := make([]string, len(ix.items))
	for i, it := range ix.items {
		parts[i] = it.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Parse reads the bracket-less text form of an index, such as "0:2, 10, -3"
// or ":". A lone slice parses as a single-slice Index.
func Parse(text string) (Index, error) {
	fields := strings.Split(text, ",")
	items := make([]Item, 0, len(fields))
	for _, f := range fields {
		it, err := parseItem(strings.TrimSpace(f))
		if err != nil {
			return Index{}, fmt.Errorf("%w: %q: %v", ErrSyntax, text, err)
		}
		items = append(items, it)
	}
	if len(items) == 1 && !items[0].isInt {
		return Of(items[0].slice), nil
	}
	return List(items...), nil
}

// MustParse is like Parse but panics on malformed text.
func MustParse(text string) Index {
	ix, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return ix
}

// ParseSlice reads a single slice such as "20:-20" or ":3".
func ParseSlice(text string) (Slice, error) {
	it, err := parseItem(strings.TrimSpace(text))
	if err != nil {
		return Slice{}, fmt.Errorf("%w: %q: %v", ErrSyntax, text, err)
	}
	return it.Slice(), nil
}

func parseItem(f string) (Item, error) {
	if f == "" {
		return Item{}, errors.New("empty item")
	}
	parts := strings.Split(f, ":")
	if len(parts) == 1 {
		i, err := strconv.Atoi(f)
		if err != nil {
			return Item{}, err
		}
		return At(i), nil
	}
	if len(parts) > 3 {
		return Item{}, errors.New("too many colons")
	}
	fields := make([]*int, 3)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return Item{}, err
		}
		fields[i] = Int(v)
	}
	return Sub(Slice{Start: fields[0], Stop: fields[1], Step: fields[2]}), nil
}

package tailor

import (
	"errors"
	"fmt"
	"slices"

	"github.com/batchatco/go-netcdf-tailor/netcdf/api"
	"github.com/batchatco/go-netcdf-tailor/netcdf/index"
	"github.com/batchatco/go-netcdf-tailor/netcdf/ndarray"
	"github.com/batchatco/go-netcdf-tailor/netcdf/store"
)

// ErrOverflow is reported for requests that reach outside a tile. The text
// is kept word for word, capital and full stop included, for callers that
// match on the message.
var ErrOverflow = errors.New("Overflow: Index outside of the tile dimensions.")

// OverflowError reports a request that reaches outside the tile on a
// bounded axis. It matches ErrOverflow.
type OverflowError struct {
	Variable  string
	Axis      int
	Dimension string
	// Requested and Legal are in the coordinates of the backing variable.
	Requested index.Slice
	Legal     index.Slice
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("%v %s axis %d (%s): %s is not within %s",
		ErrOverflow, e.Variable, e.Axis, e.Dimension, e.Requested, e.Legal)
}

func (e *OverflowError) Is(target error) bool {
	return target == ErrOverflow
}

// Adapter shows a backing variable through the window of its Manager.
// Indices given to it are relative to the tile and are translated to the
// backing variable on every access; nothing is cached.
type Adapter struct {
	manager  *Manager
	variable store.Variable
}

var (
	_ store.Variable = (*Adapter)(nil)
	_ store.CopierTo = (*Adapter)(nil)
)

// Variable returns the backing variable.
func (a *Adapter) Variable() store.Variable {
	return a.variable
}

func (a *Adapter) Name() string {
	return a.variable.Name()
}

func (a *Adapter) GoType() string {
	return a.variable.GoType()
}

// Dimensions are those of the backing variable.
func (a *Adapter) Dimensions() []store.Dimension {
	return a.variable.Dimensions()
}

func (a *Adapter) Attributes() api.AttributeMap {
	return a.variable.Attributes()
}

// DimensionNames names the axes of the backing variable from their extents,
// in axis order and without repeats. An extent no dimension of the variable
// has is taken to be the distributed dimension.
func (a *Adapter) DimensionNames() []string {
	dims := a.variable.Dimensions()
	names := []string{}
	seen := map[string]bool{}
	for axis, n := range a.variable.Shape() {
		name := a.nameOf(axis, n, dims)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// nameOf finds the dimension of extent n. When several have it, the one
// declared at axis wins, else the last declared one.
func (a *Adapter) nameOf(axis, n int, dims []store.Dimension) string {
	var matches []string
	for _, d := range dims {
		if d.Len == n && !slices.Contains(matches, d.Name) {
			matches = append(matches, d.Name)
		}
	}
	switch {
	case len(matches) == 0:
		return a.manager.distributedDim
	case len(matches) == 1:
		return matches[0]
	case axis < len(dims) && dims[axis].Len == n:
		return dims[axis].Name
	}
	name := matches[len(matches)-1]
	logger.Warnf("%s: dimensions %v all have length %d, axis %d taken as %s",
		a.Name(), matches, n, axis, name)
	return name
}

// adjust moves a tile relative slice onto an axis of length n, for a tile
// bounded by b. A missing start or stop counts as zero. A positive stop is
// relative to the lower edge of the tile, any other stop to its upper edge.
func adjust(req index.Slice, b Bound, n int) index.Slice {
	lower, upper := b.resolve(n)
	start, stop, step := 0, 0, 1
	if req.Start != nil {
		start = *req.Start
	}
	if req.Stop != nil {
		stop = *req.Stop
	}
	if req.Step != nil && *req.Step != 0 {
		step = *req.Step
	}
	absStop := upper + stop
	if stop > 0 {
		absStop = lower + stop
	}
	return index.Slice{Start: index.Int(lower + start), Stop: index.Int(absStop), Step: index.Int(step)}
}

// axis is one translated axis.
type axis struct {
	slice   index.Slice
	name    string
	bounded bool
}

// transform translates ix to the backing variable, one slice per axis.
func (a *Adapter) transform(ix index.Index) []axis {
	names := a.DimensionNames()
	shape := a.variable.Shape()
	var out []axis
	// The variable carries a leading singleton axis the names do not cover.
	if len(names) < len(shape) && shape[0] == 1 {
		out = append(out, axis{slice: index.All()})
		shape = shape[1:]
	}
	for i, req := range ix.Normalize(len(shape)) {
		if i >= len(shape) {
			// Left for the backing variable to reject.
			if !req.IsOpen() {
				out = append(out, axis{slice: req})
			}
			continue
		}
		var name string
		var b Bound
		var bounded bool
		if i < len(names) {
			name = names[i]
			b, bounded = a.manager.bound(name)
		}
		out = append(out, axis{slice: adjust(req, b, shape[i]), name: name, bounded: bounded})
	}
	return out
}

func toIndex(axes []axis) index.Index {
	s := make([]index.Slice, len(axes))
	for i, ax := range axes {
		s[i] = ax.slice
	}
	return index.Slices(s...)
}

// Translate returns the index of the backing variable that ix selects in
// the tile. It fails with an *OverflowError when ix reaches outside the tile
// on a bounded axis, or when the window of an axis is empty because its lower
// bound lies past its upper bound.
func (a *Adapter) Translate(ix index.Index) (index.Index, error) {
	requested := a.transform(ix)
	legal := a.transform(index.Whole())
	for i := 0; i < len(requested) && i < len(legal); i++ {
		l, r := legal[i], requested[i]
		if !l.bounded {
			continue
		}
		if *l.slice.Start > *l.slice.Stop ||
			*l.slice.Start > *r.slice.Start || *r.slice.Stop > *l.slice.Stop {
			return index.Index{}, &OverflowError{
				Variable:  a.Name(),
				Axis:      i,
				Dimension: l.name,
				Requested: r.slice,
				Legal:     l.slice,
			}
		}
	}
	return toIndex(requested), nil
}

// Read reads the part of the tile selected by ix.
func (a *Adapter) Read(ix index.Index) (*ndarray.Array, error) {
	abs, err := a.Translate(ix)
	if err != nil {
		return nil, err
	}
	return a.variable.Read(abs)
}

// Write stores values in the part of the tile selected by ix. Nothing is
// written when ix reaches outside the tile.
func (a *Adapter) Write(ix index.Index, values *ndarray.Array) error {
	abs, err := a.Translate(ix)
	if err != nil {
		return err
	}
	return a.variable.Write(abs, values)
}

// Shape is the shape a read of the whole tile returns.
func (a *Adapter) Shape() []int {
	abs, err := a.Translate(index.Whole())
	if err == nil {
		var ranges []index.Range
		if ranges, err = abs.Ranges(a.variable.Shape()); err == nil {
			return ndarray.Lens(ranges)
		}
	}
	logger.Error(a.Name(), "shape:", err)
	return nil
}

// CopyTo writes the whole tile into dst, at the same place it has in the
// backing variable.
func (a *Adapter) CopyTo(dst store.Variable) error {
	abs := toIndex(a.transform(index.Whole()))
	values, err := a.variable.Read(abs)
	if err != nil {
		return err
	}
	return dst.Write(abs, values)
}

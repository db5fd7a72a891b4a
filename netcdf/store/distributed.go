package store

import (
	"fmt"
	"reflect"

	"github.com/batchatco/go-netcdf-tailor/netcdf/api"
	"github.com/batchatco/go-netcdf-tailor/netcdf/index"
	"github.com/batchatco/go-netcdf-tailor/netcdf/ndarray"
)

// DistributedVariable is a variable of a Package: the variables of the same
// name in every file, stacked in file order.
//
// A part whose first dimension is the distributed one and that has more
// dimensions is joined along its first axis. Any other part becomes one row,
// so a one dimensional "time" variable of five files has shape (5, 1).
type DistributedVariable struct {
	name  string
	dim   string
	parts []*fileVariable
}

var _ Variable = (*DistributedVariable)(nil)

func (d *DistributedVariable) Name() string {
	return d.name
}

func (d *DistributedVariable) GoType() string {
	return d.parts[0].GoType()
}

func (d *DistributedVariable) Attributes() api.AttributeMap {
	return d.parts[0].Attributes()
}

func (d *DistributedVariable) joined(p *fileVariable) bool {
	return p.data.Rank() >= 2 && p.dims[0] == d.dim
}

func (d *DistributedVariable) partShape(p *fileVariable) []int {
	if d.joined(p) {
		return p.data.Shape()
	}
	return append([]int{1}, p.data.Shape()...)
}

func (d *DistributedVariable) Shape() []int {
	shape := d.partShape(d.parts[0])
	for _, p := range d.parts[1:] {
		shape[0] += d.partShape(p)[0]
	}
	return shape
}

// Dimensions are those of the first file with the distributed dimension
// spanning all rows. It is prepended when the parts lack it.
func (d *DistributedVariable) Dimensions() []Dimension {
	first := d.parts[0]
	dims := first.Dimensions()
	rows := d.Shape()[0]
	if len(dims) > 0 && dims[0].Name == d.dim {
		dims[0].Len = rows
		return dims
	}
	dd, _ := first.file.dim(d.dim)
	return append([]Dimension{{Name: d.dim, Len: rows, Unlimited: dd.Unlimited}}, dims...)
}

// Parts returns the per-file variables in file order.
func (d *DistributedVariable) Parts() []Variable {
	parts := make([]Variable, len(d.parts))
	for i, p := range d.parts {
		parts[i] = p
	}
	return parts
}

func (d *DistributedVariable) check(write bool) error {
	want := d.partShape(d.parts[0])[1:]
	for _, p := range d.parts {
		var err error
		if write {
			err = p.file.checkWritable()
		} else {
			err = p.file.checkOpen()
		}
		if err != nil {
			return err
		}
		if got := d.partShape(p)[1:]; !reflect.DeepEqual(got, want) {
			return fmt.Errorf("%w: %s is %v in %s, %v in %s", ErrDimensionMismatch,
				d.name, got, p.file.Name(), want, d.parts[0].file.Name())
		}
	}
	return nil
}

// piece is the share of a selection that falls in one part: rows
// [first, last) of the selection, read from local in the part's data.
type piece struct {
	part        *fileVariable
	local       []index.Range
	first, last int
}

func (d *DistributedVariable) split(ranges []index.Range) []piece {
	r := ranges[0]
	n := r.Len()
	var pieces []piece
	off := 0
	for _, p := range d.parts {
		rows := d.partShape(p)[0]
		first, last := 0, 0
		if off > r.Start {
			first = (off - r.Start + r.Step - 1) / r.Step
		}
		if end := off + rows; end > r.Start {
			last = (end - r.Start + r.Step - 1) / r.Step
		}
		if last > n {
			last = n
		}
		if first < last {
			lo := r.Start + first*r.Step - off
			hi := r.Start + (last-1)*r.Step - off + 1
			local := append([]index.Range{{Start: lo, Stop: hi, Step: r.Step}}, ranges[1:]...)
			if !d.joined(p) {
				local = local[1:]
			}
			pieces = append(pieces, piece{part: p, local: local, first: first, last: last})
		}
		off += rows
	}
	return pieces
}

func (d *DistributedVariable) Read(ix index.Index) (*ndarray.Array, error) {
	if err := d.check(false); err != nil {
		return nil, err
	}
	ranges, err := ix.Ranges(d.Shape())
	if err != nil {
		return nil, fmt.Errorf("%s%s: %w", d.name, ix, err)
	}
	lens := ndarray.Lens(ranges)
	var rows []*ndarray.Array
	for _, pc := range d.split(ranges) {
		a, err := pc.part.data.Get(pc.local)
		if err != nil {
			return nil, err
		}
		if a, err = a.Reshape(append([]int{pc.last - pc.first}, lens[1:]...)...); err != nil {
			return nil, err
		}
		rows = append(rows, a)
	}
	if len(rows) == 0 {
		zero := reflect.Zero(d.parts[0].data.ElemType()).Interface()
		return ndarray.Full(zero, lens...), nil
	}
	return ndarray.Concat(rows...)
}

// Write stores values at ix, spread over the files. Nothing is written
// unless every file involved can take its share.
func (d *DistributedVariable) Write(ix index.Index, values *ndarray.Array) error {
	if err := d.check(true); err != nil {
		return err
	}
	ranges, err := ix.Ranges(d.Shape())
	if err != nil {
		return fmt.Errorf("%s%s: %w", d.name, ix, err)
	}
	lens := ndarray.Lens(ranges)
	if !values.Fits(lens) {
		return fmt.Errorf("%s: %w: cannot store shape %v into %v",
			d.name, ndarray.ErrShape, values.Shape(), lens)
	}
	pieces := d.split(ranges)
	for _, pc := range pieces {
		if t := pc.part.data.ElemType(); !values.ElemType().ConvertibleTo(t) {
			return fmt.Errorf("%s: %w: cannot store %s as %s", d.name, ndarray.ErrType, values.ElemType(), t)
		}
	}
	shaped := values
	if values.Len() != 1 {
		if shaped, err = values.Reshape(lens...); err != nil {
			return err
		}
	}
	for _, pc := range pieces {
		share := shaped
		if values.Len() != 1 {
			sel := make([]index.Range, len(lens))
			sel[0] = index.Range{Start: pc.first, Stop: pc.last, Step: 1}
			for i := 1; i < len(lens); i++ {
				sel[i] = index.Range{Start: 0, Stop: lens[i], Step: 1}
			}
			if share, err = shaped.Get(sel); err != nil {
				return err
			}
		}
		if err := pc.part.set(pc.part.data, pc.local, share); err != nil {
			return err
		}
		pc.part.file.dirty = true
	}
	return nil
}

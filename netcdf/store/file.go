package store

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/batchatco/go-netcdf-tailor/internal"
	"github.com/batchatco/go-netcdf-tailor/netcdf/api"
	"github.com/batchatco/go-netcdf-tailor/netcdf/cdf"
	"github.com/batchatco/go-netcdf-tailor/netcdf/index"
	"github.com/batchatco/go-netcdf-tailor/netcdf/ndarray"
	"github.com/batchatco/go-netcdf-tailor/netcdf/util"
	"github.com/batchatco/go-thrower"
	"github.com/go-git/go-billy/v5"
)

const fillValueAttr = "_FillValue"

// File is one CDF file, held in memory while open.
type File struct {
	fs       billy.Filesystem
	name     string
	readOnly bool
	isNew    bool
	closed   bool
	dirty    bool
	dims     []api.Dimension
	numRecs  int
	attrs    *util.OrderedMap
	vars     *util.OrderedMap // name to *fileVariable
}

func toOrderedMap(am api.AttributeMap) *util.OrderedMap {
	if om, ok := am.(*util.OrderedMap); ok {
		if om == nil {
			return util.Empty()
		}
		return om.Clone()
	}
	om := util.Empty()
	if am == nil {
		return om
	}
	for _, k := range am.Keys() {
		v, _ := am.Get(k)
		om.Add(k, v)
	}
	return om
}

func newFile(fs billy.Filesystem, name string, readOnly bool) *File {
	return &File{
		fs:       fs,
		name:     name,
		readOnly: readOnly,
		isNew:    true,
		dirty:    true,
		attrs:    util.Empty(),
		vars:     util.Empty(),
	}
}

// loadFile reads the whole of name into memory.
func loadFile(fs billy.Filesystem, name string, readOnly bool) (f *File, err error) {
	file, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	if err := checkFormat(file); err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	nc, err := cdf.New(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	defer nc.Close()
	defer thrower.RecoverError(&err)

	f = &File{
		fs:       fs,
		name:     name,
		readOnly: readOnly,
		dims:     nc.ListDimensions(),
		numRecs:  int(nc.NumRecs()),
		attrs:    toOrderedMap(nc.Attributes()),
		vars:     util.Empty(),
	}
	for _, vname := range nc.ListVariables() {
		vr, err := nc.GetVariable(vname)
		thrower.ThrowIfError(err)
		f.vars.Add(vname, f.loadVariable(vname, vr))
	}
	logger.Infof("loaded %s: %d variables, %d records", name, len(f.vars.Keys()), f.numRecs)
	return f, nil
}

func (f *File) loadVariable(name string, vr *api.Variable) *fileVariable {
	shape := make([]int, len(vr.Dimensions))
	for i, dimName := range vr.Dimensions {
		d, has := f.dim(dimName)
		if !has {
			thrower.Throw(fmt.Errorf("%w: dimension %q of %s", ErrNotFound, dimName, name))
		}
		shape[i] = d.Len
	}
	data, err := ndarray.New(vr.Values, shape...)
	thrower.ThrowIfError(err)
	return &fileVariable{
		file:  f,
		name:  name,
		dims:  vr.Dimensions,
		attrs: toOrderedMap(vr.Attributes),
		data:  data,
	}
}

// Name is the path of the file on its filesystem.
func (f *File) Name() string {
	return f.name
}

func (f *File) ReadOnly() bool {
	return f.readOnly
}

// IsNew reports whether the file was created when it was opened.
func (f *File) IsNew() bool {
	return f.isNew
}

// NumRecs is the current length of the unlimited dimension.
func (f *File) NumRecs() int {
	return f.numRecs
}

func (f *File) Attributes() api.AttributeMap {
	return f.attrs
}

// Variables lists the variable names in file order.
func (f *File) Variables() []string {
	return f.vars.Keys()
}

func (f *File) unlimited() string {
	for _, d := range f.dims {
		if d.Len == 0 {
			return d.Name
		}
	}
	return ""
}

func (f *File) dim(name string) (Dimension, bool) {
	for _, d := range f.dims {
		if d.Name != name {
			continue
		}
		if d.Len == 0 {
			return Dimension{Name: name, Len: f.numRecs, Unlimited: true}, true
		}
		return Dimension{Name: name, Len: int(d.Len)}, true
	}
	return Dimension{}, false
}

// Dimensions lists the dimensions in file order.
func (f *File) Dimensions() []Dimension {
	dims := make([]Dimension, len(f.dims))
	for i, d := range f.dims {
		dims[i], _ = f.dim(d.Name)
	}
	return dims
}

func (f *File) checkOpen() error {
	if f.closed {
		return fmt.Errorf("%w: %s", ErrInvalidID, f.name)
	}
	return nil
}

func (f *File) checkWritable() error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if f.readOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, f.name)
	}
	return nil
}

// GetDim returns the named dimension, creating it when missing. A zero
// length creates the unlimited dimension.
func (f *File) GetDim(name string, length int) (Dimension, error) {
	if err := f.checkOpen(); err != nil {
		return Dimension{}, err
	}
	if d, has := f.dim(name); has {
		return d, nil
	}
	if err := f.checkDim(name, length, f.unlimited()); err != nil {
		return Dimension{}, err
	}
	f.dims = append(f.dims, api.Dimension{Name: name, Len: uint64(length)})
	f.dirty = true
	d, _ := f.dim(name)
	return d, nil
}

// checkDim reports whether a dimension name of the given length can be added
// next to the unlimited dimension unlimited, if any.
func (f *File) checkDim(name string, length int, unlimited string) error {
	if err := f.checkWritable(); err != nil {
		return err
	}
	if err := internal.CheckName(name); err != nil {
		return err
	}
	if length < 0 {
		return fmt.Errorf("%w: %s has length %d", ErrDimensionMismatch, name, length)
	}
	if length == 0 && unlimited != "" {
		return fmt.Errorf("%w: %q and %q", ErrTwoUnlimited, unlimited, name)
	}
	return nil
}

func (f *File) variable(name string) (*fileVariable, bool) {
	v, has := f.vars.Get(name)
	if !has {
		return nil, false
	}
	return v.(*fileVariable), true
}

// GetVar returns the named variable, creating it when missing.
// Values are not copied from a source here; see Package.GetVar.
func (f *File) GetVar(name string, opts ...VarOption) (Variable, error) {
	v, _, err := f.getVar(name, newVarConfig(opts))
	if err != nil {
		return nil, err
	}
	return v, nil
}

// newVar is a variable checkVar accepted but that is not added yet.
type newVar struct {
	elem    reflect.Type
	dims    []string
	missing []Dimension
	fill    any
}

// checkVar looks name up and, when it is missing, checks that it can be
// created with c. It does not change f.
func (f *File) checkVar(name string, c *varConfig) (*fileVariable, *newVar, error) {
	if err := f.checkOpen(); err != nil {
		return nil, nil, err
	}
	if v, has := f.variable(name); has {
		return v, nil, nil
	}
	nv := &newVar{dims: c.dims}
	goType := c.goType
	unlimited := f.unlimited()
	if c.source != nil {
		if goType == "" {
			goType = c.source.GoType()
		}
		if nv.dims == nil {
			nv.dims = []string{}
			for _, d := range c.source.Dimensions() {
				nv.dims = append(nv.dims, d.Name)
				if _, has := f.dim(d.Name); has || slices.ContainsFunc(nv.missing, func(m Dimension) bool {
					return m.Name == d.Name
				}) {
					continue
				}
				length := d.Len
				if d.Unlimited {
					length = 0
				}
				if err := f.checkDim(d.Name, length, unlimited); err != nil {
					return nil, nil, err
				}
				if length == 0 {
					unlimited = d.Name
				}
				nv.missing = append(nv.missing, Dimension{Name: d.Name, Len: length, Unlimited: length == 0})
			}
		}
	}
	if goType == "" {
		if nv.dims == nil {
			return nil, nil, fmt.Errorf("%w: variable %q in %s", ErrNotFound, name, f.name)
		}
		return nil, nil, fmt.Errorf("%w: %s", ErrNoType, name)
	}
	if err := f.checkWritable(); err != nil {
		return nil, nil, err
	}
	if err := internal.CheckName(name); err != nil {
		return nil, nil, err
	}
	var err error
	if nv.elem, err = cdf.ElemType(goType); err != nil {
		return nil, nil, err
	}
	for i, dimName := range nv.dims {
		d, has := f.dim(dimName)
		if !has {
			at := slices.IndexFunc(nv.missing, func(m Dimension) bool { return m.Name == dimName })
			if at < 0 {
				return nil, nil, fmt.Errorf("%w: dimension %q of %s", ErrNotFound, dimName, name)
			}
			d = nv.missing[at]
		}
		if d.Unlimited && i != 0 {
			return nil, nil, fmt.Errorf("%s: %w", name, cdf.ErrUnlimitedMustBeFirst)
		}
	}
	if c.fill != nil {
		if nv.fill, err = convertTo(c.fill, nv.elem); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil, nv, nil
}

func (f *File) getVar(name string, c *varConfig) (v *fileVariable, created bool, err error) {
	v, nv, err := f.checkVar(name, c)
	if err != nil {
		return nil, false, err
	}
	if v != nil {
		if c.digits != nil {
			v.digits = c.digits
		}
		return v, false, nil
	}
	return f.addVar(name, nv, c.digits)
}

// addVar creates a variable checkVar accepted.
func (f *File) addVar(name string, nv *newVar, digits *int) (*fileVariable, bool, error) {
	for _, d := range nv.missing {
		if _, err := f.GetDim(d.Name, d.Len); err != nil {
			return nil, false, err
		}
	}
	shape := make([]int, len(nv.dims))
	for i, dimName := range nv.dims {
		d, _ := f.dim(dimName)
		shape[i] = d.Len
	}
	attrs := util.Empty()
	if nv.fill != nil {
		attrs.Add(fillValueAttr, nv.fill)
	}
	v := &fileVariable{
		file:   f,
		name:   name,
		dims:   append([]string{}, nv.dims...),
		attrs:  attrs,
		digits: digits,
	}
	fill, err := v.fillValue(nv.elem)
	if err != nil {
		return nil, false, err
	}
	v.data = ndarray.Full(fill, shape...)
	f.vars.Add(name, v)
	f.dirty = true
	logger.Infof("created %s%v in %s", name, shape, f.name)
	return v, true, nil
}

// grow extends every record variable to n records.
func (f *File) grow(n int) error {
	if n <= f.numRecs {
		return nil
	}
	unlimited := f.unlimited()
	for _, name := range f.vars.Keys() {
		v, _ := f.variable(name)
		if !v.isRecord(unlimited) {
			continue
		}
		fill, err := v.fillValue(v.data.ElemType())
		if err != nil {
			return err
		}
		if v.data, err = v.data.Extend(n, fill); err != nil {
			return err
		}
	}
	logger.Infof("%s: %s grows from %d to %d", f.name, unlimited, f.numRecs, n)
	f.numRecs = n
	f.dirty = true
	return nil
}

// Sync writes the file out if it changed.
func (f *File) Sync() error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if f.readOnly || !f.dirty {
		return nil
	}
	w, err := f.fs.Create(f.name)
	if err != nil {
		return err
	}
	cw := cdf.NewCDFWriter(w)
	if err := f.addTo(cw); err != nil {
		// Close writes whatever was added; the file stays dirty.
		cw.Close()
		return fmt.Errorf("%s: %w", f.name, err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("%s: %w", f.name, err)
	}
	f.dirty = false
	logger.Infof("synced %s", f.name)
	return nil
}

func (f *File) addTo(cw *cdf.CDFWriter) error {
	for _, d := range f.dims {
		if err := cw.AddDimension(d.Name, d.Len); err != nil {
			return err
		}
	}
	if len(f.attrs.Keys()) > 0 {
		if err := cw.AddGlobalAttrs(f.attrs); err != nil {
			return err
		}
	}
	for _, name := range f.vars.Keys() {
		v, _ := f.variable(name)
		err := cw.AddVar(name, api.Variable{
			Values:     v.data.Values(),
			Dimensions: v.dims,
			Attributes: v.attrs,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Close syncs and closes the file. Closing it again fails with ErrInvalidID.
func (f *File) Close() error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	err := f.Sync()
	f.closed = true
	return err
}

func convertTo(v any, elem reflect.Type) (any, error) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Slice {
		if val.Len() == 0 {
			return nil, cdf.ErrFillValue
		}
		val = val.Index(0)
	}
	if !val.Type().ConvertibleTo(elem) {
		return nil, fmt.Errorf("%w: %T as %s", cdf.ErrFillValue, v, elem)
	}
	return val.Convert(elem).Interface(), nil
}

// fileVariable is a variable of one File.
type fileVariable struct {
	file   *File
	name   string
	dims   []string
	attrs  *util.OrderedMap
	data   *ndarray.Array
	digits *int
}

func (v *fileVariable) Name() string {
	return v.name
}

func (v *fileVariable) GoType() string {
	goType, err := cdf.GoType(v.data.Values())
	if err != nil {
		logger.Error(v.name, err)
	}
	return goType
}

func (v *fileVariable) Shape() []int {
	return v.data.Shape()
}

func (v *fileVariable) Dimensions() []Dimension {
	dims := make([]Dimension, len(v.dims))
	for i, name := range v.dims {
		dims[i], _ = v.file.dim(name)
	}
	return dims
}

func (v *fileVariable) Attributes() api.AttributeMap {
	return v.attrs
}

func (v *fileVariable) isRecord(unlimited string) bool {
	return unlimited != "" && len(v.dims) > 0 && v.dims[0] == unlimited
}

func (v *fileVariable) fillValue(elem reflect.Type) (any, error) {
	if fill, has := v.attrs.Get(fillValueAttr); has {
		if s, ok := fill.(string); ok && len(s) > 0 {
			fill = s[0]
		}
		return convertTo(fill, elem)
	}
	goType := "char"
	if elem != reflect.TypeOf(api.Char(0)) {
		goType = elem.String()
	}
	fill := internal.DefaultFillValue(goType)
	if fill == nil {
		return nil, fmt.Errorf("%w: %s", cdf.ErrUnknownType, elem)
	}
	return convertTo(fill, elem)
}

func (v *fileVariable) Read(ix index.Index) (*ndarray.Array, error) {
	if err := v.file.checkOpen(); err != nil {
		return nil, err
	}
	ranges, err := ix.Ranges(v.data.Shape())
	if err != nil {
		return nil, fmt.Errorf("%s%s: %w", v.name, ix, err)
	}
	return v.data.Get(ranges)
}

// Write stores values at ix. Writing past the last record of a record
// variable grows every record variable of the file.
func (v *fileVariable) Write(ix index.Index, values *ndarray.Array) error {
	if err := v.file.checkWritable(); err != nil {
		return err
	}
	data := v.data
	if v.isRecord(v.file.unlimited()) {
		if n, ok := ix.Reach(0); ok && n > v.file.numRecs {
			fill, err := v.fillValue(data.ElemType())
			if err != nil {
				return err
			}
			if data, err = data.Extend(n, fill); err != nil {
				return err
			}
		}
	}
	ranges, err := ix.Ranges(data.Shape())
	if err != nil {
		return fmt.Errorf("%s%s: %w", v.name, ix, err)
	}
	if err := v.set(data, ranges, values); err != nil {
		return err
	}
	v.data = data
	v.file.dirty = true
	if v.isRecord(v.file.unlimited()) {
		return v.file.grow(v.data.Shape()[0])
	}
	return nil
}

func (v *fileVariable) set(data *ndarray.Array, ranges []index.Range, values *ndarray.Array) error {
	if v.digits != nil {
		values = values.Clone()
		values.Quantize(*v.digits)
	}
	if err := data.Set(ranges, values); err != nil {
		return fmt.Errorf("%s: %w", v.name, err)
	}
	return nil
}

package cdf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/batchatco/go-netcdf-tailor/internal"
	"github.com/batchatco/go-netcdf-tailor/netcdf/api"
	"github.com/batchatco/go-netcdf-tailor/netcdf/util"
	"github.com/batchatco/go-thrower"
)

type countedWriter struct {
	w     *bufio.Writer
	count int64
}

func (c *countedWriter) Count() int64 {
	return c.count
}

func (c *countedWriter) Flush() error {
	return c.w.Flush()
}

func (c *countedWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.count += int64(n)
	return n, err
}

type savedVar struct {
	name    string
	val     reflect.Value
	ty      uint32
	dimIds  []int
	attrs   api.AttributeMap
	slab    int   // elements per record, or all elements
	vsize   int64 // padded bytes per record, or in total
	offset  int64 // where the begin field is patched
	begin   int64
	records bool
}

// CDFWriter buffers dimensions and variables, then writes the whole file on
// Close.
type CDFWriter struct {
	file        api.WriteSeekerCloser
	bf          *countedWriter
	vars        []savedVar
	globalAttrs api.AttributeMap
	dims        []api.Dimension
	dimIds      map[string]int
	numRecs     int64
	version     int8
}

var (
	ErrUnlimitedMustBeFirst = errors.New("unlimited dimension must be first")
	ErrTwoUnlimited         = errors.New("only one unlimited dimension is allowed")
	ErrEmptySlice           = errors.New("empty slice encountered")
	ErrDimensionSize        = errors.New("dimension doesn't match size")
	ErrDuplicateDimension   = errors.New("duplicate dimension")
	ErrUnknownDimension     = errors.New("unknown dimension")
)

// NewCDFWriter starts a file on w, which the writer closes on Close.
func NewCDFWriter(w api.WriteSeekerCloser) *CDFWriter {
	return &CDFWriter{
		file:    w,
		bf:      &countedWriter{bufio.NewWriter(w), 0},
		dimIds:  make(map[string]int),
		version: 2,
	}
}

// AddDimension declares a dimension. Length zero declares the unlimited one.
func (cw *CDFWriter) AddDimension(name string, length uint64) error {
	if err := internal.CheckName(name); err != nil {
		return err
	}
	if _, has := cw.dimIds[name]; has {
		return fmt.Errorf("%w: %q", ErrDuplicateDimension, name)
	}
	if length == 0 {
		for _, d := range cw.dims {
			if d.Len == 0 {
				return fmt.Errorf("%w: %q and %q", ErrTwoUnlimited, d.Name, name)
			}
		}
	}
	cw.dimIds[name] = len(cw.dims)
	cw.dims = append(cw.dims, api.Dimension{Name: name, Len: length})
	return nil
}

func hasValidNames(am api.AttributeMap) bool {
	if am == nil {
		return true
	}
	for _, key := range am.Keys() {
		if !internal.IsValidNetCDFName(key) {
			return false
		}
	}
	return true
}

func (cw *CDFWriter) AddGlobalAttrs(attrs api.AttributeMap) (err error) {
	defer thrower.RecoverError(&err)
	if !hasValidNames(attrs) {
		return internal.ErrInvalidName
	}
	cw.checkV5Attributes(attrs)
	cw.globalAttrs = attrs
	return nil
}

// AddVar adds a variable whose flat values are laid out over the named,
// already declared, dimensions. A variable over the unlimited dimension
// fixes the number of records; all record variables must agree on it.
func (cw *CDFWriter) AddVar(name string, vr api.Variable) (err error) {
	defer thrower.RecoverError(&err)

	if err := internal.CheckName(name); err != nil {
		return err
	}
	if !hasValidNames(vr.Attributes) {
		return internal.ErrInvalidName
	}
	val := reflect.ValueOf(vr.Values)
	if val.Kind() != reflect.Slice {
		return fmt.Errorf("%w: %s: %T", ErrUnknownType, name, vr.Values)
	}
	ty, ok := typeOfElem(val.Type().Elem())
	if !ok {
		return fmt.Errorf("%w: %s: %T", ErrUnknownType, name, vr.Values)
	}
	if isV5Type(ty) {
		cw.version = 5
	}
	cw.checkV5Attributes(vr.Attributes)

	saved := savedVar{name: name, val: val, ty: ty, attrs: vr.Attributes, slab: 1}
	for i, dimName := range vr.Dimensions {
		id, has := cw.dimIds[dimName]
		if !has {
			return fmt.Errorf("%w: %s: %q", ErrUnknownDimension, name, dimName)
		}
		saved.dimIds = append(saved.dimIds, id)
		length := cw.dims[id].Len
		if length == 0 {
			if i != 0 {
				logger.Error(name, "dimension", i, "name", dimName, "is unlimited")
				return ErrUnlimitedMustBeFirst
			}
			saved.records = true
			continue
		}
		saved.slab *= int(length)
	}
	switch {
	case saved.records && saved.slab == 0:
		return fmt.Errorf("%w: %s", ErrEmptySlice, name)
	case saved.records:
		if val.Len()%saved.slab != 0 {
			return fmt.Errorf("%w: %s has %d values, not a multiple of %d",
				ErrDimensionSize, name, val.Len(), saved.slab)
		}
		recs := int64(val.Len() / saved.slab)
		if cw.hasRecordVars() && recs != cw.numRecs {
			return fmt.Errorf("%w: %s has %d records, others have %d",
				ErrDimensionSize, name, recs, cw.numRecs)
		}
		cw.numRecs = recs
	case val.Len() != saved.slab:
		return fmt.Errorf("%w: %s has %d values, dimensions want %d",
			ErrDimensionSize, name, val.Len(), saved.slab)
	}
	cw.vars = append(cw.vars, saved)
	return nil
}

func (cw *CDFWriter) hasRecordVars() bool {
	for _, v := range cw.vars {
		if v.records {
			return true
		}
	}
	return false
}

// attrValues turns an attribute value into a CDF type and a slice to write.
func attrValues(v any) (uint32, reflect.Value) {
	if s, ok := v.(string); ok {
		return typeChar, reflect.ValueOf([]byte(s))
	}
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Slice {
		one := reflect.MakeSlice(reflect.SliceOf(val.Type()), 1, 1)
		one.Index(0).Set(val)
		val = one
	}
	ty, ok := typeOfElem(val.Type().Elem())
	if !ok {
		logger.Warnf("Unknown type %T, %#v", v, v)
		thrower.Throw(ErrUnknownType)
	}
	return ty, val
}

func (cw *CDFWriter) writeAttributes(attrs api.AttributeMap) {
	if attrs == nil || len(attrs.Keys()) == 0 {
		util.MustWrite32(cw.bf, 0) //  attributes: absent
		cw.writeNumber(0)          // attributes: absent
		return
	}
	util.MustWrite32(cw.bf, fieldAttribute)
	cw.writeNumber(int64(len(attrs.Keys())))
	for _, k := range attrs.Keys() {
		v, _ := attrs.Get(k)
		cw.writeName(k)
		ty, vals := attrValues(v)
		util.MustWrite32(cw.bf, int32(ty))
		cw.writeNumber(int64(vals.Len()))
		util.MustWriteBE(cw.bf, vals.Interface())
		util.MustWritePad(cw.bf, cw.bf.Count())
	}
}

func (cw *CDFWriter) checkV5Attributes(attrs api.AttributeMap) {
	if attrs == nil {
		return
	}
	for _, k := range attrs.Keys() {
		v, _ := attrs.Get(k)
		if ty, _ := attrValues(v); isV5Type(ty) {
			cw.version = 5
		}
	}
}

func (cw *CDFWriter) writeVar(saved *savedVar) {
	cw.writeName(saved.name)
	cw.writeNumber(int64(len(saved.dimIds)))
	for _, id := range saved.dimIds {
		cw.writeNumber(int64(id))
	}
	cw.writeAttributes(saved.attrs)

	util.MustWrite32(cw.bf, int32(saved.ty))
	saved.vsize = util.RoundUp4(int64(saved.slab) * typeTable[saved.ty].size)
	cw.writeNumber(saved.vsize)
	saved.offset = cw.bf.Count()
	util.MustWrite64(cw.bf, 0) // patch later
}

func (cw *CDFWriter) writeName(name string) {
	// namelength
	cw.writeNumber(int64(len(name)))
	// name
	util.MustWriteBE(cw.bf, []byte(name))
	util.MustWritePad(cw.bf, cw.bf.Count())
}

func (cw *CDFWriter) writeNumber(n int64) {
	if cw.version < 5 {
		util.MustWrite32(cw.bf, int32(n))
	} else {
		util.MustWrite64(cw.bf, n)
	}
}

func (cw *CDFWriter) writeData() {
	var records []*savedVar
	for i := range cw.vars {
		saved := &cw.vars[i]
		if saved.records {
			records = append(records, saved)
			continue
		}
		saved.begin = cw.bf.Count()
		util.MustWriteBE(cw.bf, saved.val.Interface())
		util.MustWritePad(cw.bf, cw.bf.Count())
	}
	// A lone record variable is stored without padding between records.
	pad := len(records) > 1
	for r := 0; r < int(cw.numRecs); r++ {
		for _, saved := range records {
			if r == 0 {
				saved.begin = cw.bf.Count()
			}
			slab := saved.val.Slice(r*saved.slab, (r+1)*saved.slab)
			util.MustWriteBE(cw.bf, slab.Interface())
			if pad {
				util.MustWritePad(cw.bf, cw.bf.Count())
			}
		}
	}
	if cw.numRecs == 0 {
		for _, saved := range records {
			saved.begin = cw.bf.Count()
		}
	}
}

func (cw *CDFWriter) patchOffsets() {
	thrower.ThrowIfError(cw.bf.Flush())
	for _, saved := range cw.vars {
		_, err := cw.file.Seek(saved.offset, io.SeekStart)
		thrower.ThrowIfError(err)
		util.MustWrite64(cw.file, saved.begin)
	}
}

func (cw *CDFWriter) writeAll() {
	util.MustWriteBE(cw.bf, []byte("CDF"))
	util.MustWriteBE(cw.bf, cw.version)
	cw.writeNumber(cw.numRecs)
	if len(cw.dims) > 0 {
		util.MustWrite32(cw.bf, fieldDimension)
		cw.writeNumber(int64(len(cw.dims)))
		for _, d := range cw.dims {
			cw.writeName(d.Name)
			cw.writeNumber(int64(d.Len))
		}
	} else {
		util.MustWrite32(cw.bf, 0) // dimensions: absent
		cw.writeNumber(0)          // dimensions: absent
	}
	cw.writeAttributes(cw.globalAttrs)
	if len(cw.vars) > 0 {
		util.MustWrite32(cw.bf, fieldVariable)
		cw.writeNumber(int64(len(cw.vars)))
		for i := range cw.vars {
			cw.writeVar(&cw.vars[i])
		}
		cw.writeData()
	} else {
		util.MustWrite32(cw.bf, 0) // variables: absent
		cw.writeNumber(0)          // variables: absent
	}
	cw.patchOffsets()
}

// Close writes the file out and closes it.
func (cw *CDFWriter) Close() (err error) {
	if cw.file == nil {
		return ErrClosed
	}
	defer func() {
		err2 := cw.file.Close()
		if err == nil {
			err = err2
		} else if err2 != nil {
			// return the first error, log the second
			logger.Error(err2)
		}
		cw.file = nil
	}()
	defer thrower.RecoverError(&err)
	cw.writeAll()
	return nil
}

// Package cdf supports v1 (classic), v2 (64-bit offset) and v5 file formats.
package cdf

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/batchatco/go-netcdf-tailor/internal"
	"github.com/batchatco/go-netcdf-tailor/netcdf/api"
	"github.com/batchatco/go-netcdf-tailor/netcdf/util"
	"github.com/batchatco/go-thrower"
)

const (
	fieldDimension = 0x0000000a
	fieldVariable  = 0x0000000b
	fieldAttribute = 0x0000000c
)

const (
	typeNone = iota // Never stored in a file: only a sentinal value
	typeByte        // same as go int8
	typeChar        // api.Char
	typeShort
	typeInt
	typeFloat
	typeDouble

	// v5
	typeUByte // same as go uint8
	typeUShort
	typeUInt
	typeInt64
	typeUInt64
)

type typeInfo struct {
	size   int64
	goType string
	elem   reflect.Type
}

var typeTable = map[uint32]typeInfo{
	typeByte:   {1, "int8", reflect.TypeOf(int8(0))},
	typeChar:   {1, "char", reflect.TypeOf(api.Char(0))},
	typeShort:  {2, "int16", reflect.TypeOf(int16(0))},
	typeInt:    {4, "int32", reflect.TypeOf(int32(0))},
	typeFloat:  {4, "float32", reflect.TypeOf(float32(0))},
	typeDouble: {8, "float64", reflect.TypeOf(float64(0))},
	typeUByte:  {1, "uint8", reflect.TypeOf(uint8(0))},
	typeUShort: {2, "uint16", reflect.TypeOf(uint16(0))},
	typeUInt:   {4, "uint32", reflect.TypeOf(uint32(0))},
	typeInt64:  {8, "int64", reflect.TypeOf(int64(0))},
	typeUInt64: {8, "uint64", reflect.TypeOf(uint64(0))},
}

func isV5Type(vType uint32) bool {
	return vType >= typeUByte
}

const ncpKey = "_NCProperties"

type dimension struct {
	name      string
	dimLength uint64 // 64-bits in V5
}

type variable struct {
	name   string
	dimids []uint64 // 64-bits in V5
	attrs  *util.OrderedMap
	vType  uint32
	vsize  int64  // 64-bits in V5
	begin  uint64 // 32-bits in V1, 64-bits in V2
}

// CDF is an open classic NetCDF file. Variables are read whole.
type CDF struct {
	file        api.ReadSeekerCloser
	version     uint8
	numRecs     uint64 // 64-bits in V5
	recSize     uint64
	dimensions  []dimension
	globalAttrs *util.OrderedMap
	vars        *util.OrderedMap
	specialCase bool
	size        int64 // bytes in the file
}

const maxDimensions = 1024

var (
	ErrNotCDF                = errors.New("not a CDF file")
	ErrUnknownVersion        = errors.New("unknown CDF version")
	ErrUnknownType           = errors.New("unknown type")
	ErrCorruptedFile         = errors.New("corrupted file")
	ErrNotFound              = errors.New("not found")
	ErrNoStreamingDimensions = errors.New("streaming dimensions not supported")
	ErrInternal              = errors.New("internal error")
	ErrDuplicateVariable     = errors.New("duplicate variable")
	ErrTooManyDimensions     = errors.New("too many dimensions")
	ErrFillValue             = errors.New("fill value not a scalar")
	ErrClosed                = errors.New("file already closed")
)

var (
	logger = internal.NewLogger("cdf")
)

// SetLogLevel sets the logging level to the given level, and returns
// the old level. This is for internal debugging use. The log messages
// are not expected to make much sense to anyone but the developers.
// The lowest level is 0 (no error logs at all) and the highest level is
// 3 (errors, warnings and debug messages).
func SetLogLevel(level int) int {
	return logger.SetVerbosity(level)
}

// GoType returns the Go type name of the elements of a flat values slice,
// as used by variables ("float32", "char", ...).
func GoType(values any) (string, error) {
	t := reflect.TypeOf(values)
	if t == nil || t.Kind() != reflect.Slice {
		return "", fmt.Errorf("%w: %T", ErrUnknownType, values)
	}
	vType, ok := typeOfElem(t.Elem())
	if !ok {
		return "", fmt.Errorf("%w: %T", ErrUnknownType, values)
	}
	return typeTable[vType].goType, nil
}

// ElemType returns the Go element type for a type name from GoType.
func ElemType(goType string) (reflect.Type, error) {
	for _, info := range typeTable {
		if info.goType == goType {
			return info.elem, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, goType)
}

func typeOfElem(t reflect.Type) (uint32, bool) {
	for vType, info := range typeTable {
		if info.elem == t {
			return vType, true
		}
	}
	return typeNone, false
}

func fail(message string, err error) {
	logger.Error(message)
	thrower.Throw(err)
}

func assert(condition bool, message string, err error) {
	if condition {
		return
	}
	fail(message, err)
}

func seekTo(f io.Seeker, offset int64) {
	_, err := f.Seek(offset, io.SeekStart)
	thrower.ThrowIfError(err)
}

// V5 only
func (cdf *CDF) checkVersion(vType uint32) {
	assert(!isV5Type(vType) || cdf.version >= 5,
		"invalid type for this file version",
		ErrCorruptedFile)
}

func (cdf *CDF) readNumber(bf io.Reader) uint64 {
	if cdf.version < 5 {
		n := util.MustRead32(bf)
		// Weird casts are to do sign extension
		return uint64(int64(int32(n)))
	}
	return util.MustRead64(bf)
}

// checkCount fails unless n elements of elemSize bytes fit in the file.
func (cdf *CDF) checkCount(n uint64, elemSize int64, what string) {
	assert(elemSize <= 0 || n <= uint64(cdf.size/elemSize),
		fmt.Sprint("corrupted file, ", what, " count ", n, " exceeds file size ", cdf.size),
		ErrCorruptedFile)
}

func (cdf *CDF) readName(bf io.Reader) string {
	nameLen := cdf.readNumber(bf)
	cdf.checkCount(nameLen, 1, "name")
	b := make([]byte, util.RoundUp4(int64(nameLen)))
	util.MustReadBE(bf, b)
	if i := bytes.IndexByte(b[:nameLen], 0); i >= 0 {
		logger.Warnf("Null found in name %q %d %d version %d", string(b[:nameLen]), nameLen, i, cdf.version)
		nameLen = uint64(i)
	}
	return string(b[:nameLen])
}

func (cdf *CDF) getAttr(bf io.Reader) (string, any) {
	name := cdf.readName(bf)
	vType := util.MustRead32(bf)
	nvars := cdf.readNumber(bf)
	info, ok := typeTable[vType]
	if !ok {
		fail(fmt.Sprint("corrupted file, unknown type: ", vType), ErrCorruptedFile)
	}
	cdf.checkVersion(vType)
	cdf.checkCount(nvars, info.size, "attribute value")
	values := reflect.MakeSlice(reflect.SliceOf(info.elem), int(nvars), int(nvars))
	util.MustReadBE(bf, values.Interface())
	// padding
	nread := int64(nvars) * info.size
	padding := make([]byte, util.RoundUp4(nread)-nread)
	util.MustReadBE(bf, padding)

	if vType == typeChar {
		// char array becomes string in go-speak
		b := make([]byte, values.Len())
		for i := range b {
			b[i] = byte(values.Index(i).Uint())
		}
		return name, string(b)
	}
	// If just one value in an attribute value slice, return it as a scalar
	if values.Len() == 1 {
		return name, values.Index(0).Interface()
	}
	return name, values.Interface()
}

func (cdf *CDF) getNElems(bf io.Reader, expectedField uint32) uint64 {
	fieldType := util.MustRead32(bf)
	nElems := cdf.readNumber(bf) // FYI: 64-bit in V5
	switch fieldType {
	case 0: // type absent
		assert(nElems == 0,
			fmt.Sprint("corrupted file, elems with absent field, expected: ",
				expectedField, nElems),
			ErrCorruptedFile)

	case expectedField:
		break
	default:
		fail(fmt.Sprint("corrupted file, unexpected field: ", fieldType),
			ErrCorruptedFile)
	}
	return nElems
}

func (cdf *CDF) getAttrList(bf io.Reader) *util.OrderedMap {
	nElems := cdf.getNElems(bf, fieldAttribute)
	om := util.Empty()
	for i := uint64(0); i < nElems; i++ {
		name, val := cdf.getAttr(bf)
		om.Add(name, val)
	}
	return om
}

func (cdf *CDF) getDim(bf io.Reader) dimension {
	name := cdf.readName(bf)
	dimLength := cdf.readNumber(bf)
	return dimension{name, dimLength}
}

func (cdf *CDF) hasUnlimitedDimension(ids []uint64) bool {
	return len(ids) > 0 && cdf.dimensions[ids[0]].dimLength == 0
}

func (cdf *CDF) getVar(bf io.Reader) variable {
	name := cdf.readName(bf)
	nDims := cdf.readNumber(bf)
	assert(nDims <= maxDimensions,
		"too many dimensions",
		ErrTooManyDimensions)
	dimids := make([]uint64, nDims)
	for i := uint64(0); i < nDims; i++ {
		dimids[i] = cdf.readNumber(bf)
		assert(dimids[i] < uint64(len(cdf.dimensions)),
			fmt.Sprint(name, " dimid: ", dimids[i], " not found"),
			ErrCorruptedFile)
	}
	attrs := cdf.getAttrList(bf)
	vType := util.MustRead32(bf)
	info, ok := typeTable[vType]
	assert(ok, fmt.Sprint("unknown variable type: ", vType), ErrUnknownType)
	cdf.checkVersion(vType)
	vsize := cdf.readNumber(bf)
	usedVsize := vsize
	// if unlimited, add vsize to current record size
	if cdf.hasUnlimitedDimension(dimids) {
		n := uint64(info.size)
		for i := 1; i < len(dimids); i++ {
			n *= cdf.dimensions[dimids[i]].dimLength
		}
		// Calculate the vsize actually used, without padding, which is
		// different than the vsize.  This matters when there is just one
		// record variable and it is small (special case).
		cdf.recSize += vsize
		usedVsize = n
	}
	var offset uint64
	switch cdf.version {
	case 1:
		offset = uint64(util.MustRead32(bf))
	case 2, 5:
		offset = util.MustRead64(bf)
	default:
		thrower.Throw(ErrInternal)
	}
	return variable{name, dimids, attrs, vType, int64(usedVsize), offset}
}

func (cdf *CDF) readHeader() (err error) {
	defer thrower.RecoverError(&err)
	size, err := cdf.file.Seek(0, io.SeekEnd)
	thrower.ThrowIfError(err)
	cdf.size = size
	seekTo(cdf.file, 0)
	bf := io.Reader(bufio.NewReader(cdf.file))

	// magic
	b := make([]byte, 4)
	util.MustReadBE(bf, b)
	if string(b[:3]) != "CDF" {
		logger.Infof("not cdf: %q", string(b[:3]))
		thrower.Throw(ErrNotCDF)
	}
	version := b[3]
	switch version {
	case 1, 2, 5: // classic, 64-bit offset, 64-bit types
		break

	default:
		fail(fmt.Sprint("unknown version: ", version),
			ErrUnknownVersion)
	}
	cdf.version = version
	// numrecs
	numRecs := cdf.readNumber(bf)
	assert(numRecs != 0xffffffffffffffff,
		"streaming not supported",
		ErrNoStreamingDimensions)
	// Every record takes at least a byte.
	cdf.checkCount(numRecs, 1, "record")
	cdf.numRecs = numRecs

	// dimlist
	nDims := cdf.getNElems(bf, fieldDimension)
	assert(nDims <= maxDimensions,
		"too many dimensions",
		ErrTooManyDimensions)
	cdf.dimensions = make([]dimension, nDims)
	for i := uint64(0); i < nDims; i++ {
		cdf.dimensions[i] = cdf.getDim(bf)
	}

	// gatt_list
	cdf.globalAttrs = cdf.getAttrList(bf)
	cdf.globalAttrs.Hide(ncpKey)
	// var list
	nVars := cdf.getNElems(bf, fieldVariable)

	nRecordVars := 0
	cdf.vars = util.Empty()
	var firstRecordVar *variable
	for i := uint64(0); i < nVars; i++ {
		v := cdf.getVar(bf)
		_, has := cdf.vars.Get(v.name)
		if has {
			return ErrDuplicateVariable
		}
		if cdf.hasUnlimitedDimension(v.dimids) {
			nRecordVars++
			if firstRecordVar == nil {
				firstRecordVar = &v
			}
		}
		cdf.vars.Add(v.name, v)
	}
	switch nRecordVars {
	case 0:
		assert(cdf.recSize == 0,
			fmt.Sprint("No record variables, size should be zero: ", cdf.recSize),
			ErrInternal)
	case 1:
		// A lone record variable is stored without padding between records.
		cdf.recSize = uint64(firstRecordVar.vsize)
		cdf.specialCase = true
	default:
		newRecSize := uint64(util.RoundUp4(int64(cdf.recSize)))
		if newRecSize != cdf.recSize {
			logger.Info("rounded recsize=", newRecSize, "orig=", cdf.recSize)
			cdf.recSize = newRecSize
		}
	}
	return nil
}

// New reads the header of an open CDF file.
// If New returns no error, it has taken ownership of the file.
func New(file api.ReadSeekerCloser) (c *CDF, err error) {
	defer thrower.RecoverError(&err)
	c = &CDF{file: file}
	err = c.readHeader()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close closes the underlying file.
func (cdf *CDF) Close() error {
	if cdf.file == nil {
		return ErrClosed
	}
	err := cdf.file.Close()
	cdf.file = nil
	return err
}

// Version is 1 (classic), 2 (64-bit offset) or 5 (64-bit data).
func (cdf *CDF) Version() uint8 {
	return cdf.version
}

// NumRecs is the current length of the unlimited dimension.
func (cdf *CDF) NumRecs() uint64 {
	return cdf.numRecs
}

// Attributes returns the global attributes.
func (cdf *CDF) Attributes() api.AttributeMap {
	return cdf.globalAttrs
}

// ListVariables lists the variables in file order.
func (cdf *CDF) ListVariables() []string {
	return cdf.vars.Keys()
}

// ListDimensions lists the dimensions in file order. The unlimited
// dimension, if any, has length zero.
func (cdf *CDF) ListDimensions() []api.Dimension {
	ret := make([]api.Dimension, len(cdf.dimensions))
	for i, d := range cdf.dimensions {
		ret[i] = api.Dimension{Name: d.name, Len: d.dimLength}
	}
	return ret
}

// GetVariable reads the whole named variable. Values is a flat slice.
func (cdf *CDF) GetVariable(name string) (v *api.Variable, err error) {
	defer thrower.RecoverError(&err)
	if cdf.file == nil {
		return nil, ErrClosed
	}
	vf, has := cdf.vars.Get(name)
	if !has {
		return nil, fmt.Errorf("%w: variable %q", ErrNotFound, name)
	}
	varFound := vf.(variable)
	info := typeTable[varFound.vType]
	dimNames := make([]string, len(varFound.dimids))
	count := int64(1)
	unlimited := cdf.hasUnlimitedDimension(varFound.dimids)
	for i, dimid := range varFound.dimids {
		dim := cdf.dimensions[dimid]
		length := dim.dimLength
		if length == 0 {
			assert(i == 0, "unlimited dimension must be first", ErrCorruptedFile)
			length = cdf.numRecs
		}
		dimNames[i] = dim.name
		cdf.checkCount(length, count*info.size, dim.name)
		count *= int64(length)
	}
	size := count * info.size

	var bf io.Reader
	if unlimited {
		bf = cdf.newRecordReader(&varFound)
	} else {
		seekTo(cdf.file, int64(varFound.begin))
		bf = bufio.NewReader(cdf.file)
	}
	bf = io.LimitReader(io.MultiReader(bf, makeFillValueReader(varFound)), size)

	data := reflect.MakeSlice(reflect.SliceOf(info.elem), int(count), int(count)).Interface()
	if err := binary.Read(bf, binary.BigEndian, data); err != nil {
		return nil, err
	}
	return &api.Variable{
		Values:     data,
		Dimensions: dimNames,
		Attributes: varFound.attrs,
	}, nil
}

// Seeks and read bytes
type seekReader struct {
	file   io.ReadSeeker
	offset int64
	reader io.Reader
}

func (sr *seekReader) Read(p []byte) (int, error) {
	if sr.reader == nil {
		seekTo(sr.file, sr.offset)
		sr.reader = bufio.NewReader(sr.file)
	}
	return sr.reader.Read(p)
}

func newSeekReader(file io.ReadSeeker, offset int64) io.Reader {
	return &seekReader{file: file, offset: offset, reader: nil}
}

// newRecordReader reads one slab of v per record, skipping over the slabs of
// the other record variables.
func (cdf *CDF) newRecordReader(v *variable) io.Reader {
	readers := make([]io.Reader, cdf.numRecs)
	for i := range readers {
		offset := int64(v.begin) + int64(i)*int64(cdf.recSize)
		readers[i] = io.LimitReader(newSeekReader(cdf.file, offset), v.vsize)
	}
	return io.MultiReader(readers...)
}

// fillValue is the user's _FillValue for v, or the type default.
func fillValue(v variable) any {
	info := typeTable[v.vType]
	fv := internal.DefaultFillValue(info.goType)
	if userFV, has := v.attrs.Get("_FillValue"); has {
		val := reflect.ValueOf(userFV)
		switch {
		case val.Kind() == reflect.String:
			assert(val.Len() == 1, "fill value not a single character", ErrFillValue)
			userFV = val.String()[0]
		case val.Kind() == reflect.Slice:
			assert(val.Len() == 1, "fill value not a scalar", ErrFillValue)
			userFV = val.Index(0).Interface()
		}
		fv = userFV
	}
	return reflect.ValueOf(fv).Convert(info.elem).Interface()
}

func makeFillValueReader(v variable) io.Reader {
	var buf bytes.Buffer
	util.MustWriteBE(&buf, fillValue(v))
	return internal.NewFillValueReader(buf.Bytes())
}

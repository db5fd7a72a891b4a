package cdf

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/batchatco/go-netcdf-tailor/internal"
	"github.com/batchatco/go-netcdf-tailor/netcdf/api"
	"github.com/batchatco/go-netcdf-tailor/netcdf/util"
	tassert "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyVal struct {
	name string
	val  api.Variable
}

type keyValList []keyVal

func attrs(kv ...any) *util.OrderedMap {
	om := util.Empty()
	for i := 0; i < len(kv); i += 2 {
		om.Add(kv[i].(string), kv[i+1])
	}
	return om
}

// writeFile writes dims and vars to a new file and returns its name.
func writeFile(t *testing.T, dims []api.Dimension, vars keyValList, global *util.OrderedMap) string {
	t.Helper()
	fileName := filepath.Join(t.TempDir(), "test.nc")
	f, err := os.Create(fileName)
	require.NoError(t, err)
	cw := NewCDFWriter(f)
	for _, d := range dims {
		require.NoError(t, cw.AddDimension(d.Name, d.Len), d.Name)
	}
	if global != nil {
		require.NoError(t, cw.AddGlobalAttrs(global))
	}
	for _, v := range vars {
		require.NoError(t, cw.AddVar(v.name, v.val), v.name)
	}
	require.NoError(t, cw.Close())
	return fileName
}

func openFile(t *testing.T, fileName string) *CDF {
	t.Helper()
	f, err := os.Open(fileName)
	require.NoError(t, err)
	nc, err := New(f)
	if err != nil {
		f.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { nc.Close() })
	return nc
}

func (kl keyValList) check(t *testing.T, nc *CDF) {
	t.Helper()
	for _, kv := range kl {
		got, err := nc.GetVariable(kv.name)
		if !tassert.NoError(t, err, kv.name) {
			continue
		}
		tassert.Equal(t, kv.val.Values, got.Values, kv.name)
		if len(got.Dimensions) != 0 || len(kv.val.Dimensions) != 0 {
			tassert.Equal(t, kv.val.Dimensions, got.Dimensions, kv.name)
		}
	}
}

var fixedDims = []api.Dimension{{Name: "d1", Len: 2}, {Name: "d2", Len: 3}}

var fixedValues = keyValList{
	{"scalar", api.Variable{Values: []float64{-10.1}}},
	{"chars", api.Variable{Values: []api.Char("ab"), Dimensions: []string{"d1"}}},
	{"i8", api.Variable{Values: []int8{-1, 2}, Dimensions: []string{"d1"}}},
	{"i16", api.Variable{Values: []int16{-10000, 1, 2, 3, 4, 10000}, Dimensions: []string{"d1", "d2"}}},
	{"i32", api.Variable{Values: []int32{-10000000, 10000000}, Dimensions: []string{"d1"}}},
	{"f32", api.Variable{Values: []float32{-10.1, 10.1, 1, 2, 3, 4}, Dimensions: []string{"d1", "d2"}}},
	{"f64", api.Variable{Values: []float64{1, 2, 3}, Dimensions: []string{"d2"}}},
}

func TestFixedRoundTrip(t *testing.T) {
	global := attrs("title", "unit test", "version", int32(2))
	nc := openFile(t, writeFile(t, fixedDims, fixedValues, global))
	tassert.Equal(t, uint8(2), nc.Version())
	fixedValues.check(t, nc)
	tassert.Equal(t, fixedDims, nc.ListDimensions())
	title, _ := nc.Attributes().Get("title")
	version, _ := nc.Attributes().Get("version")
	tassert.Equal(t, "unit test", title)
	tassert.Equal(t, int32(2), version)
	names := nc.ListVariables()
	require.Len(t, names, len(fixedValues))
	tassert.Equal(t, "scalar", names[0])
}

func TestV5Types(t *testing.T) {
	vars := keyValList{
		{"ui8", api.Variable{Values: []uint8{1, 255}, Dimensions: []string{"n"}}},
		{"ui16", api.Variable{Values: []uint16{1, 65535}, Dimensions: []string{"n"}}},
		{"ui32", api.Variable{Values: []uint32{1, 20000000}, Dimensions: []string{"n"}}},
		{"i64", api.Variable{Values: []int64{-10000000000, 1}, Dimensions: []string{"n"}}},
		{"ui64", api.Variable{Values: []uint64{10000000000, 1}, Dimensions: []string{"n"}}},
	}
	nc := openFile(t, writeFile(t, []api.Dimension{{Name: "n", Len: 2}}, vars, nil))
	tassert.Equal(t, uint8(5), nc.Version())
	vars.check(t, nc)
}

func TestRecords(t *testing.T) {
	dims := []api.Dimension{
		{Name: "time", Len: 0},
		{Name: "yc", Len: 2},
		{Name: "xc", Len: 3},
	}
	vars := keyValList{
		{"lat", api.Variable{Values: []float32{1, 1, 1, 2, 2, 2}, Dimensions: []string{"yc", "xc"}}},
		{"time", api.Variable{Values: []int32{7, 8}, Dimensions: []string{"time"}}},
		{"flag", api.Variable{Values: []int8{1, 2, 3, 4, 5, 6}, Dimensions: []string{"time", "xc"}}},
		{"data", api.Variable{
			Values:     []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
			Dimensions: []string{"time", "yc", "xc"},
			Attributes: attrs("_FillValue", float32(0))}},
	}
	nc := openFile(t, writeFile(t, dims, vars, nil))
	tassert.Equal(t, uint64(2), nc.NumRecs())
	vars.check(t, nc)
}

func TestSingleRecordVariable(t *testing.T) {
	// a lone record variable is stored without padding
	dims := []api.Dimension{{Name: "time", Len: 0}, {Name: "c", Len: 3}}
	vars := keyValList{
		{"s", api.Variable{Values: []int16{1, 2, 3, 4, 5, 6, 7, 8, 9}, Dimensions: []string{"time", "c"}}},
	}
	nc := openFile(t, writeFile(t, dims, vars, nil))
	vars.check(t, nc)
}

func TestNoRecords(t *testing.T) {
	dims := []api.Dimension{{Name: "time", Len: 0}, {Name: "c", Len: 3}}
	vars := keyValList{
		{"s", api.Variable{Values: []int16{}, Dimensions: []string{"time", "c"}}},
	}
	nc := openFile(t, writeFile(t, dims, vars, nil))
	vars.check(t, nc)
}

func TestFillValue(t *testing.T) {
	v := variable{vType: typeFloat, attrs: util.Empty()}
	tassert.Equal(t, internal.DefaultFillValue("float32"), fillValue(v), "default fill")
	v.attrs = attrs("_FillValue", float64(1.5))
	tassert.Equal(t, float32(1.5), fillValue(v), "user fill")
	v = variable{vType: typeChar, attrs: attrs("_FillValue", "x")}
	tassert.Equal(t, api.Char('x'), fillValue(v), "char fill")
}

func TestWriterErrors(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "bad.nc"))
	require.NoError(t, err)
	cw := NewCDFWriter(f)
	defer cw.Close()
	for _, tt := range []struct {
		name string
		err  error
		want error
	}{
		{"time", cw.AddDimension("time", 0), nil},
		{"time again", cw.AddDimension("time", 1), ErrDuplicateDimension},
		{"t2", cw.AddDimension("t2", 0), ErrTwoUnlimited},
		{"float", cw.AddDimension("float", 1), internal.ErrInvalidName},
		{"x", cw.AddDimension("x", 2), nil},
		{"a", cw.AddVar("a", api.Variable{Values: []int32{1, 2, 3}, Dimensions: []string{"x"}}), ErrDimensionSize},
		{"b", cw.AddVar("b", api.Variable{Values: []int32{1, 2}, Dimensions: []string{"y"}}), ErrUnknownDimension},
		{"c", cw.AddVar("c", api.Variable{Values: []int32{1, 2}, Dimensions: []string{"x", "time"}}), ErrUnlimitedMustBeFirst},
		{"d", cw.AddVar("d", api.Variable{Values: []string{"no"}, Dimensions: []string{}}), ErrUnknownType},
		{"e", cw.AddVar("e", api.Variable{Values: []int32{1, 2, 3, 4}, Dimensions: []string{"time", "x"}}), nil},
		{"f", cw.AddVar("f", api.Variable{Values: []int32{1, 2}, Dimensions: []string{"time", "x"}}), ErrDimensionSize},
		{"g", cw.AddVar("g", api.Variable{
			Values:     []int32{1, 2},
			Dimensions: []string{"x"},
			Attributes: attrs("bad", struct{}{})}), ErrUnknownType},
	} {
		if tt.want == nil {
			tassert.NoError(t, tt.err, tt.name)
		} else {
			tassert.ErrorIs(t, tt.err, tt.want, tt.name)
		}
	}
}

func openBytes(t *testing.T, b []byte) (*CDF, error) {
	t.Helper()
	fileName := filepath.Join(t.TempDir(), "raw.nc")
	require.NoError(t, os.WriteFile(fileName, b, 0o644))
	f, err := os.Open(fileName)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return New(f)
}

func TestNotCDF(t *testing.T) {
	_, err := openBytes(t, []byte("HDF5 is not classic"))
	tassert.ErrorIs(t, err, ErrNotCDF)
}

// Counts in a header that cannot fit in the file are refused before anything
// is allocated for them.
func TestCorruptCounts(t *testing.T) {
	header := func(numRecs uint32, rest ...[]byte) []byte {
		var buf bytes.Buffer
		buf.WriteString("CDF\x01")
		util.MustWrite32(&buf, int32(numRecs))
		util.MustWrite32(&buf, 0) // no dimensions
		util.MustWrite32(&buf, 0)
		for _, r := range rest {
			buf.Write(r)
		}
		return buf.Bytes()
	}
	attr := func(nameLen, nvals int32) []byte {
		var buf bytes.Buffer
		util.MustWrite32(&buf, fieldAttribute)
		util.MustWrite32(&buf, 1)
		util.MustWrite32(&buf, nameLen)
		buf.WriteString("a\x00\x00\x00")
		util.MustWrite32(&buf, typeInt)
		util.MustWrite32(&buf, nvals)
		return buf.Bytes()
	}
	for name, b := range map[string][]byte{
		"records":          header(0x7fffffff),
		"attribute values": header(0, attr(1, 0x7fffffff)),
		"name":             header(0, attr(0x7ffffff0, 1)),
	} {
		_, err := openBytes(t, b)
		tassert.ErrorIs(t, err, ErrCorruptedFile, name)
	}
}

func TestClosed(t *testing.T) {
	nc := openFile(t, writeFile(t, fixedDims, fixedValues[:1], nil))
	require.NoError(t, nc.Close())
	_, err := nc.GetVariable("scalar")
	tassert.ErrorIs(t, err, ErrClosed)
	tassert.ErrorIs(t, nc.Close(), ErrClosed)
}

func TestGoType(t *testing.T) {
	name, err := GoType([]api.Char("x"))
	require.NoError(t, err)
	tassert.Equal(t, "char", name)
	name, err = GoType([]float32{})
	require.NoError(t, err)
	tassert.Equal(t, "float32", name)
	_, err = GoType([]int{1})
	tassert.ErrorIs(t, err, ErrUnknownType)

	et, err := ElemType("uint16")
	require.NoError(t, err)
	tassert.Equal(t, reflect.TypeOf(uint16(0)), et)
	_, err = ElemType("complex64")
	tassert.ErrorIs(t, err, ErrUnknownType)
}

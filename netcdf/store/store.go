// Package store holds NetCDF data behind a small variable interface: a root
// is either a single CDF file or a package of files sharing a distributed
// dimension, and variables are read and written with index.Index selections.
//
// Files are loaded into memory when opened and written back on Sync or Close.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/batchatco/go-netcdf-tailor/internal"
	"github.com/batchatco/go-netcdf-tailor/netcdf/api"
	"github.com/batchatco/go-netcdf-tailor/netcdf/index"
	"github.com/batchatco/go-netcdf-tailor/netcdf/ndarray"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

var (
	ErrReadOnly          = errors.New("write to read only")
	ErrInvalidID         = errors.New("not a valid ID")
	ErrNotFound          = errors.New("not found")
	ErrNoMatch           = errors.New("no files match")
	ErrNoType            = errors.New("no type given for new variable")
	ErrDimensionMismatch = errors.New("dimension length mismatch")
	ErrTwoUnlimited      = errors.New("only one unlimited dimension is allowed")
)

var (
	logger = internal.NewLogger("store")
)

// SetLogLevel sets the verbosity of the store log and returns the old one.
// 0 logs nothing but fatal errors, 3 logs everything.
func SetLogLevel(level int) int {
	return logger.SetVerbosity(level)
}

// Dimension is one axis of a variable. Len is the current length; for the
// unlimited dimension that is the number of records.
type Dimension struct {
	Name      string
	Len       int
	Unlimited bool
}

// Variable is an n-dimensional array that can be read and written in parts.
type Variable interface {
	Name() string
	// GoType is the element type name, e.g. "float32".
	GoType() string
	Shape() []int
	Dimensions() []Dimension
	Attributes() api.AttributeMap
	Read(ix index.Index) (*ndarray.Array, error)
	Write(ix index.Index, values *ndarray.Array) error
}

// Root is an open dataset.
type Root interface {
	// DistributedDim is the dimension that spans the files of a package.
	DistributedDim() string
	// GetVar returns the named variable, creating it when the options carry
	// enough to do so.
	GetVar(name string, opts ...VarOption) (Variable, error)
	// GetDim returns the named dimension of every file, creating it with
	// length when missing. A zero length creates the unlimited dimension.
	GetDim(name string, length int) ([]Dimension, error)
	Sync() error
	Close() error
	Files() []string
	Pattern() string
	Roots() []*File
	ReadOnly() bool
	IsNew() bool
}

// CopierTo is implemented by variables that know how to copy their own
// values into another variable.
type CopierTo interface {
	CopyTo(dst Variable) error
}

type config struct {
	fs             billy.Filesystem
	readOnly       bool
	distributedDim string
}

// Option configures Open and OpenFiles.
type Option func(*config)

// WithReadOnly opens every file read only.
func WithReadOnly() Option {
	return func(c *config) { c.readOnly = true }
}

// WithDistributedDim names the dimension that spans the files.
// The default is "time".
func WithDistributedDim(name string) Option {
	return func(c *config) { c.distributedDim = name }
}

// WithFilesystem opens files on fs instead of the host filesystem.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(c *config) { c.fs = fs }
}

func newConfig(opts []Option) *config {
	c := &config{distributedDim: "time"}
	for _, opt := range opts {
		opt(c)
	}
	if c.fs == nil {
		c.fs = osfs.New("")
	}
	return c
}

type varConfig struct {
	goType string
	dims   []string
	fill   any
	digits *int
	source Variable
}

// VarOption configures GetVar.
type VarOption func(*varConfig)

// WithType sets the element type of a new variable, e.g. "float32".
func WithType(goType string) VarOption {
	return func(c *varConfig) { c.goType = goType }
}

// WithDimensions sets the dimensions of a new variable.
func WithDimensions(names ...string) VarOption {
	return func(c *varConfig) { c.dims = names }
}

// WithFillValue sets the _FillValue of a new variable.
func WithFillValue(v any) VarOption {
	return func(c *varConfig) { c.fill = v }
}

// WithDigits rounds floating point values written to the variable to the
// given number of decimals.
func WithDigits(n int) VarOption {
	return func(c *varConfig) { c.digits = &n }
}

// WithSource creates the variable with the type and dimensions of src and
// copies its values.
func WithSource(src Variable) VarOption {
	return func(c *varConfig) { c.source = src }
}

func newVarConfig(opts []VarOption) *varConfig {
	c := &varConfig{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[\`)
}

// Open opens every file matching the glob pattern as one root.
// A pattern that matches nothing and has no glob characters names a new file,
// which is created unless the root is read only.
func Open(pattern string, opts ...Option) (*Package, error) {
	c := newConfig(opts)
	matches, err := util.Glob(c.fs, pattern)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pattern, err)
	}
	if len(matches) == 0 {
		if hasMeta(pattern) {
			return nil, fmt.Errorf("%w: %s", ErrNoMatch, pattern)
		}
		matches = []string{pattern}
	}
	sort.Strings(matches)
	return openPackage(c, pattern, matches)
}

// OpenFiles opens the given files, in order, as one root. Missing files are
// created unless the root is read only.
func OpenFiles(files []string, opts ...Option) (*Package, error) {
	if len(files) == 0 {
		return nil, ErrNoMatch
	}
	c := newConfig(opts)
	return openPackage(c, "", append([]string{}, files...))
}

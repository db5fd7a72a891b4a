// Package tailor cuts tiles out of NetCDF variables.
//
// A Window bounds some dimensions; the Manager returned by Tailor hands out
// Adapters whose indices are relative to that window:
//
//	w, _ := tailor.ParseWindow("xc=20:-20, yc=10:50, time=:3")
//	m, err := tailor.Tailor(tailor.PatternSource("data/*.nc"), w)
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//	data, err := m.GetVar("data")
//	tile, err := data.Read(index.Whole()) // data[:3, 10:50, 20:-20]
//
// Reads and writes that reach outside the window fail with ErrOverflow
// before the backing store is touched.
package tailor

import (
	"errors"

	"github.com/batchatco/go-netcdf-tailor/internal"
	"github.com/batchatco/go-netcdf-tailor/netcdf/store"
	"github.com/go-git/go-billy/v5"
)

const DefaultDistributedDim = "time"

var (
	logger = internal.NewLogger("tailor")
)

// SetLogLevel sets the verbosity of the tailor log and returns the old one.
// 0 logs nothing but fatal errors, 3 logs everything.
func SetLogLevel(level int) int {
	return logger.SetVerbosity(level)
}

// Source is what a Manager is made from: an open root or files to open.
type Source interface {
	open(c *config) (store.Root, error)
}

type rootSource struct {
	root store.Root
}

func (s rootSource) open(*config) (store.Root, error) {
	if s.root == nil {
		return nil, store.ErrInvalidID
	}
	return s.root, nil
}

// RootSource tailors a root that is already open. Closing the Manager
// closes it.
func RootSource(root store.Root) Source {
	return rootSource{root}
}

type patternSource string

func (s patternSource) open(c *config) (store.Root, error) {
	return store.Open(string(s), c.storeOptions()...)
}

// PatternSource opens the files matching a glob pattern, or creates the
// file it names.
func PatternSource(pattern string) Source {
	return patternSource(pattern)
}

type filesSource []string

func (s filesSource) open(c *config) (store.Root, error) {
	return store.OpenFiles(s, c.storeOptions()...)
}

// FilesSource opens the given files as one root.
func FilesSource(files ...string) Source {
	return filesSource(files)
}

type config struct {
	distributedDim string
	readOnly       bool
	fs             billy.Filesystem
}

func (c *config) storeOptions() []store.Option {
	opts := []store.Option{store.WithDistributedDim(c.distributedDim)}
	if c.readOnly {
		opts = append(opts, store.WithReadOnly())
	}
	if c.fs != nil {
		opts = append(opts, store.WithFilesystem(c.fs))
	}
	return opts
}

// Option configures Tailor and Load.
type Option func(*config)

// WithDistributedDim names the dimension that spans files. It defaults to
// the root's own, or "time".
func WithDistributedDim(name string) Option {
	return func(c *config) { c.distributedDim = name }
}

// WithReadOnly opens the source read only. It has no effect on a RootSource.
func WithReadOnly() Option {
	return func(c *config) { c.readOnly = true }
}

// WithFilesystem opens the source on fs instead of the host filesystem.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(c *config) { c.fs = fs }
}

// Tailor opens source and returns a Manager showing it through window.
func Tailor(source Source, window Window, opts ...Option) (*Manager, error) {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	explicit := c.distributedDim != ""
	if !explicit {
		c.distributedDim = DefaultDistributedDim
	}
	root, err := source.open(c)
	if err != nil {
		return nil, err
	}
	if !explicit && root.DistributedDim() != "" {
		c.distributedDim = root.DistributedDim()
	}
	if window == nil {
		window = Window{}
	}
	logger.Infof("tailoring %v over %q: %v", root.Files(), c.distributedDim, window)
	return &Manager{
		root:           root,
		window:         window.clone(),
		distributedDim: c.distributedDim,
	}, nil
}

// Load tailors source, runs fn with the Manager and closes it, writing out
// what fn changed.
func Load(source Source, window Window, fn func(m *Manager) error, opts ...Option) error {
	m, err := Tailor(source, window, opts...)
	if err != nil {
		return err
	}
	err = fn(m)
	return errors.Join(err, m.Close())
}

package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/batchatco/go-netcdf-tailor/netcdf/index"
)

// Package is a set of files opened as one root. Variables of a package with
// more than one file are DistributedVariables.
type Package struct {
	pattern        string
	files          []*File
	readOnly       bool
	distributedDim string
	closed         bool
}

var _ Root = (*Package)(nil)

func openPackage(c *config, pattern string, names []string) (*Package, error) {
	p := &Package{
		pattern:        pattern,
		readOnly:       c.readOnly,
		distributedDim: c.distributedDim,
	}
	for _, name := range names {
		f, err := openFile(c, name)
		if err != nil {
			return nil, err
		}
		p.files = append(p.files, f)
	}
	logger.Infof("opened %d files, distributed over %q", len(p.files), p.distributedDim)
	return p, nil
}

func openFile(c *config, name string) (*File, error) {
	_, err := c.fs.Stat(name)
	switch {
	case err == nil:
		return loadFile(c.fs, name, c.readOnly)
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	case c.readOnly:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	f := newFile(c.fs, name, false)
	if err := f.Sync(); err != nil {
		return nil, err
	}
	return f, nil
}

func (p *Package) checkOpen() error {
	if p.closed {
		return ErrInvalidID
	}
	return nil
}

func (p *Package) DistributedDim() string {
	return p.distributedDim
}

// GetVar returns the named variable of every file, creating it where it is
// missing. A variable created from a source gets the source's values.
func (p *Package) GetVar(name string, opts ...VarOption) (Variable, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	c := newVarConfig(opts)
	// Every file is checked before any is changed.
	plans := make([]*newVar, len(p.files))
	parts := make([]*fileVariable, len(p.files))
	for i, f := range p.files {
		v, nv, err := f.checkVar(name, c)
		if err != nil {
			return nil, err
		}
		parts[i], plans[i] = v, nv
	}
	created := false
	for i, f := range p.files {
		if plans[i] == nil {
			if c.digits != nil {
				parts[i].digits = c.digits
			}
			continue
		}
		v, _, err := f.addVar(name, plans[i], c.digits)
		if err != nil {
			return nil, err
		}
		parts[i] = v
		created = true
	}
	var v Variable = parts[0]
	if len(parts) > 1 {
		v = &DistributedVariable{name: name, dim: p.distributedDim, parts: parts}
	}
	if created && c.source != nil {
		if err := copyValues(c.source, v); err != nil {
			return nil, fmt.Errorf("copy %s to %s: %w", c.source.Name(), name, err)
		}
	}
	return v, nil
}

func copyValues(src, dst Variable) error {
	if cp, ok := src.(CopierTo); ok {
		return cp.CopyTo(dst)
	}
	values, err := src.Read(index.Whole())
	if err != nil {
		return err
	}
	spans := make([]index.Slice, values.Rank())
	for i, n := range values.Shape() {
		spans[i] = index.Span(0, n)
	}
	return dst.Write(index.Slices(spans...), values)
}

// GetDim returns the named dimension of every file, creating it where it is
// missing.
func (p *Package) GetDim(name string, length int) ([]Dimension, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	dims := make([]Dimension, 0, len(p.files))
	for _, f := range p.files {
		d, err := f.GetDim(name, length)
		if err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}
	return dims, nil
}

// Sync writes out every changed file.
func (p *Package) Sync() error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	var errs []error
	for _, f := range p.files {
		errs = append(errs, f.Sync())
	}
	return errors.Join(errs...)
}

// Close syncs and closes every file. Closing again fails with ErrInvalidID.
func (p *Package) Close() error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	var errs []error
	for _, f := range p.files {
		errs = append(errs, f.Close())
	}
	p.closed = true
	return errors.Join(errs...)
}

// Files lists the file names in order.
func (p *Package) Files() []string {
	names := make([]string, len(p.files))
	for i, f := range p.files {
		names[i] = f.Name()
	}
	return names
}

// Pattern is the glob the package was opened with; empty for OpenFiles.
func (p *Package) Pattern() string {
	return p.pattern
}

func (p *Package) Roots() []*File {
	return append([]*File{}, p.files...)
}

func (p *Package) ReadOnly() bool {
	return p.readOnly
}

// IsNew reports whether any file was created when the package was opened.
func (p *Package) IsNew() bool {
	for _, f := range p.files {
		if f.IsNew() {
			return true
		}
	}
	return false
}

// Package api is common to the CDF codec and the backing store built on it.
package api

import (
	"io"
)

type ReadSeekerCloser interface {
	io.ReadSeeker
	io.Closer
}

type WriteSeekerCloser interface {
	io.WriteSeeker
	io.Closer
}

type AttributeMap interface {
	// Ordered list of keys
	Keys() []string
	// Indexed lookup
	Get(key string) (val any, has bool)
}

// Char is a NetCDF character.
// A []Char holds a char variable, where []uint8 holds an unsigned byte one.
type Char byte

// Variable is the content of a variable as stored on disk.
// Values is a flat slice in row-major order (e.g. []float32); its shape is
// given by the lengths of the named Dimensions.
type Variable struct {
	Values     any
	Dimensions []string
	Attributes AttributeMap
}

// Dimension is a named axis of a group.
// A zero Len declares the unlimited (record) dimension.
type Dimension struct {
	Name string
	Len  uint64
}

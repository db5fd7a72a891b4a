package tailor

import (
	"github.com/batchatco/go-netcdf-tailor/netcdf/store"
)

// Manager pairs an open root with a Window. Its variables are Adapters;
// everything else goes straight to the root.
type Manager struct {
	root           store.Root
	window         Window
	distributedDim string
}

// Root returns the root without the window.
func (m *Manager) Root() store.Root {
	return m.root
}

// Window returns a copy of the window.
func (m *Manager) Window() Window {
	return m.window.clone()
}

func (m *Manager) DistributedDim() string {
	return m.distributedDim
}

// bound is the window of a dimension. A dimension the window does not name
// is not restricted.
func (m *Manager) bound(name string) (Bound, bool) {
	b, ok := m.window[name]
	return b, ok
}

// GetVar gets or creates the named variable of the root, as store.Root.GetVar
// does, and wraps it in an Adapter.
func (m *Manager) GetVar(name string, opts ...store.VarOption) (*Adapter, error) {
	v, err := m.root.GetVar(name, opts...)
	if err != nil {
		return nil, err
	}
	return &Adapter{manager: m, variable: v}, nil
}

func (m *Manager) GetDim(name string, length int) ([]store.Dimension, error) {
	return m.root.GetDim(name, length)
}

func (m *Manager) Sync() error {
	return m.root.Sync()
}

func (m *Manager) Close() error {
	return m.root.Close()
}

func (m *Manager) Files() []string {
	return m.root.Files()
}

func (m *Manager) Pattern() string {
	return m.root.Pattern()
}

func (m *Manager) Roots() []*store.File {
	return m.root.Roots()
}

func (m *Manager) ReadOnly() bool {
	return m.root.ReadOnly()
}

func (m *Manager) IsNew() bool {
	return m.root.IsNew()
}

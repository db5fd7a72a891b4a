package tailor

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/batchatco/go-netcdf-tailor/netcdf/index"
)

var ErrWindowSyntax = errors.New("malformed window")

// Bound is the [Lower, Upper) extent of a tile along one dimension, in the
// coordinates of the backing variable. Negative values count from the end of
// the axis. A nil end is open.
type Bound struct {
	Lower, Upper *int
}

// Between bounds both ends.
func Between(lower, upper int) Bound {
	return Bound{Lower: index.Int(lower), Upper: index.Int(upper)}
}

// Until bounds the upper end only.
func Until(upper int) Bound {
	return Bound{Upper: index.Int(upper)}
}

// Since bounds the lower end only.
func Since(lower int) Bound {
	return Bound{Lower: index.Int(lower)}
}

func (b Bound) String() string {
	return index.Slice{Start: b.Lower, Stop: b.Upper}.String()
}

// resolve places the bound on an axis of length n: negative ends count from
// n, open ends take the axis edges, and both are clipped into [0, n].
func (b Bound) resolve(n int) (lower, upper int) {
	at := func(p *int, open int) int {
		if p == nil {
			return open
		}
		v := *p
		if v < 0 {
			v += n
		}
		return min(max(v, 0), n)
	}
	return at(b.Lower, 0), at(b.Upper, n)
}

// Window maps dimension names to the bounds of a tile. Dimensions that are
// not named are not restricted.
type Window map[string]Bound

// ParseWindow reads a window written as comma separated name=slice pairs,
// e.g. "xc=20:-20, yc=10:50, time=:3".
func ParseWindow(text string) (Window, error) {
	w := Window{}
	if strings.TrimSpace(text) == "" {
		return w, nil
	}
	for _, field := range strings.Split(text, ",") {
		name, bound, ok := strings.Cut(strings.TrimSpace(field), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrWindowSyntax, field)
		}
		s, err := index.ParseSlice(bound)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrWindowSyntax, name, err)
		}
		if s.Step != nil || !strings.Contains(bound, ":") {
			return nil, fmt.Errorf("%w: %s=%s is not lower:upper", ErrWindowSyntax, name, bound)
		}
		if _, dup := w[name]; dup {
			return nil, fmt.Errorf("%w: %s given twice", ErrWindowSyntax, name)
		}
		w[name] = Bound{Lower: s.Start, Upper: s.Stop}
	}
	return w, nil
}

func (w Window) String() string {
	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, name)
	}
	sort.Strings(names)
	fields := make([]string, len(names))
	for i, name := range names {
		fields[i] = name + "=" + w[name].String()
	}
	return strings.Join(fields, ", ")
}

func (w Window) clone() Window {
	c := make(Window, len(w))
	for name, b := range w {
		c[name] = b
	}
	return c
}

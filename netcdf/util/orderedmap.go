package util

import (
	"errors"
	"sort"
)

// OrderedMap is an attribute map that remembers insertion order.
type OrderedMap struct {
	keys        []string
	values      map[string]any
	visibleKeys []string
	hiddenKeys  map[string]bool
}

var (
	ErrorKeysDontMatchValues = errors.New("keys don't match values")
)

func NewOrderedMap(keys []string, values map[string]any) (*OrderedMap, error) {
	if len(keys) != len(values) {
		return nil, ErrorKeysDontMatchValues
	}
	mapKeys := make([]string, 0, len(values))
	for k := range values {
		mapKeys = append(mapKeys, k)
	}
	sort.Strings(mapKeys)

	sortedKeys := make([]string, len(keys))
	copy(sortedKeys, keys)
	sort.Strings(sortedKeys)

	for i := range sortedKeys {
		if mapKeys[i] != sortedKeys[i] {
			return nil, ErrorKeysDontMatchValues
		}
	}
	if values == nil {
		values = map[string]any{}
	}

	return &OrderedMap{
		keys:        append([]string{}, keys...),
		values:      values,
		visibleKeys: append([]string{}, keys...),
		hiddenKeys:  map[string]bool{}}, nil
}

// Empty returns a new map with no keys.
func Empty() *OrderedMap {
	om, _ := NewOrderedMap(nil, nil)
	return om
}

// Add sets the value of name, appending it to the keys if it is new.
func (om *OrderedMap) Add(name string, val any) {
	if _, has := om.values[name]; !has {
		om.keys = append(om.keys, name)
		if !om.hiddenKeys[name] {
			om.visibleKeys = append(om.visibleKeys, name)
		}
	}
	om.values[name] = val
}

func (om *OrderedMap) Get(key string) (val any, has bool) {
	val, has = om.values[key]
	return
}

func (om *OrderedMap) Hide(hiddenKey string) {
	om.hiddenKeys[hiddenKey] = true
	// recompute visible keys
	visibleKeys := []string{}
	for _, key := range om.keys {
		if om.hiddenKeys[key] {
			continue
		}
		visibleKeys = append(visibleKeys, key)
	}
	om.visibleKeys = visibleKeys
}

func (om *OrderedMap) Keys() []string {
	return om.visibleKeys
}

// Clone copies the map, hidden keys included. Values are shared.
func (om *OrderedMap) Clone() *OrderedMap {
	c := Empty()
	for _, k := range om.keys {
		c.Add(k, om.values[k])
	}
	for k := range om.hiddenKeys {
		c.Hide(k)
	}
	return c
}

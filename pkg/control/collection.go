package control

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// CollectionClass is the class name reported by a Collection's :api.
const CollectionClass = "ExposedObjectCollection"

// GetObjectsMethod lists the objects of a collection.
const GetObjectsMethod = "get_objects"

// Collection exposes several objects under their names.
type Collection struct {
	mu      sync.RWMutex
	objects map[string]Exposer
}

// NewCollection creates a collection. Values that are not an Exposer are
// exposed with Expose.
func NewCollection(objects map[string]any) (*Collection, error) {
	c := &Collection{objects: make(map[string]Exposer)}
	for name, obj := range objects {
		if err := c.Add(name, obj); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add exposes obj as name.
func (c *Collection) Add(name string, obj any) error {
	if name == "" || strings.ContainsAny(name, ".:") {
		return fmt.Errorf("%w: invalid object name %q", ErrUnsupportedValue, name)
	}

	e, ok := obj.(Exposer)
	if !ok {
		var err error
		if e, err = Expose(obj, nil, nil); err != nil {
			return fmt.Errorf("expose %s: %w", name, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[name] = e
	return nil
}

// Remove drops an object.
func (c *Collection) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, name)
}

// Objects returns the sorted object names.
func (c *Collection) Objects() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.objects))
	for name := range c.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves "<object>.<method>" and "<object>:api" names, recursing
// into nested collections.
func (c *Collection) Lookup(name string) (Method, bool) {
	switch name {
	case APIMethod:
		return func(params []json.RawMessage) (any, error) {
			if err := checkParams(params, 0); err != nil {
				return nil, err
			}
			return c.API(), nil
		}, true
	case GetObjectsMethod:
		return func(params []json.RawMessage) (any, error) {
			if err := checkParams(params, 0); err != nil {
				return nil, err
			}
			return c.Objects(), nil
		}, true
	}

	i := strings.IndexAny(name, ".:")
	if i <= 0 {
		return nil, false
	}
	objName, rest := name[:i], name[i+1:]
	if name[i] == ':' {
		rest = name[i:]
	}

	c.mu.RLock()
	obj, ok := c.objects[objName]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return obj.Lookup(rest)
}

// Methods returns all reachable method names, sorted.
func (c *Collection) Methods() []string {
	names := []string{APIMethod, GetObjectsMethod}

	c.mu.RLock()
	for objName, obj := range c.objects {
		for _, m := range obj.Methods() {
			if strings.HasPrefix(m, ":") {
				names = append(names, objName+m)
			} else {
				names = append(names, objName+"."+m)
			}
		}
	}
	c.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len returns the number of reachable methods.
func (c *Collection) Len() int {
	return len(c.Methods())
}

// API lists only the collection's own methods.
func (c *Collection) API() API {
	return API{Class: CollectionClass, Methods: []string{APIMethod, GetObjectsMethod}}
}

// Call invokes a method with Go values as arguments.
func (c *Collection) Call(name string, args ...any) (any, error) {
	m, ok := c.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, name)
	}
	params, err := encodeParams(args)
	if err != nil {
		return nil, err
	}
	return m(params)
}

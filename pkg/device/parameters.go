package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"sync"
)

// Parameter errors.
var (
	// ErrUnknownParameter indicates a parameter name that was never registered.
	ErrUnknownParameter = errors.New("unknown parameter")

	// ErrReadOnly indicates an attempt to write a read-only parameter.
	ErrReadOnly = errors.New("parameter is read-only")

	// ErrInvalidValue indicates a value that cannot be converted to the parameter type.
	ErrInvalidValue = errors.New("invalid parameter value")

	// ErrDuplicateParameter indicates a name registered twice.
	ErrDuplicateParameter = errors.New("duplicate parameter")
)

// Parameter is a named piece of device data visible outside the device.
type Parameter struct {
	Name string
	Doc  string
	Type reflect.Type

	get   func() any
	write func(any) error
}

// ReadOnly reports whether the parameter can be written.
func (p *Parameter) ReadOnly() bool {
	return p.write == nil
}

func (p *Parameter) set(v any) error {
	converted, err := convert(v, p.Type)
	if err != nil {
		return err
	}
	return p.write(converted)
}

// Parameters is a registry of device parameters. Registration order is kept
// for documentation output; lookups are by name.
type Parameters struct {
	mu     sync.RWMutex
	byName map[string]*Parameter
	order  []string
}

// NewParameters creates an empty parameter registry.
func NewParameters() *Parameters {
	return &Parameters{byName: make(map[string]*Parameter)}
}

func (p *Parameters) add(param *Parameter) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byName[param.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateParameter, param.Name)
	}
	p.byName[param.Name] = param
	p.order = append(p.order, param.Name)
	return nil
}

// Bind registers a read-write parameter backed by ptr.
func Bind[T any](p *Parameters, name string, ptr *T, doc string) error {
	typ := reflect.TypeOf(ptr).Elem()
	return p.add(&Parameter{
		Name: name,
		Doc:  doc,
		Type: typ,
		get:  func() any { return *ptr },
		write: func(v any) error {
			*ptr = v.(T)
			return nil
		},
	})
}

// BindReadOnly registers a read-only parameter backed by ptr.
func BindReadOnly[T any](p *Parameters, name string, ptr *T, doc string) error {
	return p.add(&Parameter{
		Name: name,
		Doc:  doc,
		Type: reflect.TypeOf(ptr).Elem(),
		get:  func() any { return *ptr },
	})
}

// Computed registers a parameter whose value is produced by get. If set is
// nil the parameter is read-only.
func Computed[T any](p *Parameters, name string, get func() T, set func(T) error, doc string) error {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	param := &Parameter{
		Name: name,
		Doc:  doc,
		Type: typ,
		get:  func() any { return get() },
	}
	if set != nil {
		param.write = func(v any) error {
			return set(v.(T))
		}
	}
	return p.add(param)
}

// Lookup returns the named parameter.
func (p *Parameters) Lookup(name string) (*Parameter, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	param, ok := p.byName[name]
	return param, ok
}

// Get returns the current value of a parameter.
func (p *Parameters) Get(name string) (any, error) {
	param, ok := p.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	return param.get(), nil
}

// Set writes a parameter, converting v to the parameter type.
func (p *Parameters) Set(name string, v any) error {
	param, ok := p.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	if param.ReadOnly() {
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}
	if err := param.set(v); err != nil {
		return fmt.Errorf("parameter %s: %w", name, err)
	}
	return nil
}

// Apply sets all values in a strict manner: every key must name a registered,
// writable parameter and every value must convert to its parameter type.
// Nothing is written unless all checks pass. If a computed setter rejects a
// value, parameters already written are restored to their previous values.
func (p *Parameters) Apply(values map[string]any) error {
	var unknown []string
	for name := range values {
		param, ok := p.Lookup(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if param.ReadOnly() {
			return fmt.Errorf("%w: %s", ErrReadOnly, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: %v", ErrUnknownParameter, unknown)
	}

	// Deterministic order keeps error messages stable.
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]*Parameter, len(names))
	converted := make([]any, len(names))
	for i, name := range names {
		params[i], _ = p.Lookup(name)
		v, err := convert(values[name], params[i].Type)
		if err != nil {
			return fmt.Errorf("parameter %s: %w", name, err)
		}
		converted[i] = v
	}

	previous := make([]any, len(names))
	for i, param := range params {
		previous[i] = param.get()
	}
	for i, param := range params {
		if err := param.write(converted[i]); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = params[j].write(previous[j])
			}
			return fmt.Errorf("parameter %s: %w", names[i], err)
		}
	}
	return nil
}

// Names returns parameter names in registration order.
func (p *Parameters) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.order...)
}

// Snapshot returns the values of all parameters.
func (p *Parameters) Snapshot() map[string]any {
	out := make(map[string]any)
	for _, name := range p.Names() {
		if param, ok := p.Lookup(name); ok {
			out[name] = param.get()
		}
	}
	return out
}

// Writable returns the values of all writable parameters.
func (p *Parameters) Writable() map[string]any {
	out := make(map[string]any)
	for _, name := range p.Names() {
		if param, ok := p.Lookup(name); ok && !param.ReadOnly() {
			out[name] = param.get()
		}
	}
	return out
}

// convert turns v into a value of type typ. Numbers decoded from JSON or
// YAML arrive as float64/int; integer targets accept only integral values.
func convert(v any, typ reflect.Type) (any, error) {
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		v = f
	}

	if v == nil {
		return nil, fmt.Errorf("%w: nil for %s", ErrInvalidValue, typ)
	}

	val := reflect.ValueOf(v)
	if val.Type() == typ {
		return v, nil
	}

	switch {
	case isNumeric(typ.Kind()) && isNumeric(val.Kind()):
		if isInteger(typ.Kind()) && isFloat(val.Kind()) {
			f := val.Float()
			if f != math.Trunc(f) {
				return nil, fmt.Errorf("%w: %v is not an integer", ErrInvalidValue, v)
			}
		}
		if isUnsigned(typ.Kind()) && isNegative(val) {
			return nil, fmt.Errorf("%w: %v is negative", ErrInvalidValue, v)
		}
		if !fits(val, typ) {
			return nil, fmt.Errorf("%w: %v overflows %s", ErrInvalidValue, v, typ)
		}
		return val.Convert(typ).Interface(), nil

	case typ.Kind() == reflect.String && val.Kind() == reflect.String,
		typ.Kind() == reflect.Bool && val.Kind() == reflect.Bool:
		return val.Convert(typ).Interface(), nil
	}

	return nil, fmt.Errorf("%w: cannot use %T as %s", ErrInvalidValue, v, typ)
}

// fits reports whether the numeric value val is representable in typ.
// Sign and fraction checks are done by the caller.
func fits(val reflect.Value, typ reflect.Type) bool {
	target := reflect.New(typ).Elem()
	switch {
	case isUnsigned(typ.Kind()):
		var n uint64
		switch {
		case isFloat(val.Kind()):
			f := val.Float()
			if f >= math.Exp2(64) {
				return false
			}
			n = uint64(f)
		case isUnsigned(val.Kind()):
			n = val.Uint()
		default:
			n = uint64(val.Int())
		}
		return !target.OverflowUint(n)

	case isInteger(typ.Kind()):
		var n int64
		switch {
		case isFloat(val.Kind()):
			f := val.Float()
			if f < -math.Exp2(63) || f >= math.Exp2(63) {
				return false
			}
			n = int64(f)
		case isUnsigned(val.Kind()):
			if val.Uint() > math.MaxInt64 {
				return false
			}
			n = int64(val.Uint())
		default:
			n = val.Int()
		}
		return !target.OverflowInt(n)

	default:
		var f float64
		switch {
		case isFloat(val.Kind()):
			f = val.Float()
		case isUnsigned(val.Kind()):
			f = float64(val.Uint())
		default:
			f = float64(val.Int())
		}
		return !target.OverflowFloat(f)
	}
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isUnsigned(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isNegative(v reflect.Value) bool {
	switch {
	case isFloat(v.Kind()):
		return v.Float() < 0
	case isInteger(v.Kind()) && !isUnsigned(v.Kind()):
		return v.Int() < 0
	}
	return false
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNumeric(k reflect.Kind) bool {
	return isInteger(k) || isFloat(k)
}

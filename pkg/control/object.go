package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"

	"github.com/plankton-sim/plankton-go/pkg/device"
)

// Object errors.
var (
	// ErrInvalidParams indicates wrong argument count or types.
	ErrInvalidParams = errors.New("invalid params")

	// ErrUnknownMember indicates a requested member the object lacks.
	ErrUnknownMember = errors.New("unknown member")

	// ErrMethodNotFound indicates a call to a method that is not exposed.
	ErrMethodNotFound = errors.New("method not found")

	// ErrUnsupportedValue indicates a value that cannot be exposed.
	ErrUnsupportedValue = errors.New("unsupported value")
)

// APIMethod is the built-in method returning the API description.
const APIMethod = ":api"

// Method is an exposed callable. Params are the raw JSON arguments.
type Method func(params []json.RawMessage) (any, error)

// API describes an exposed object.
type API struct {
	Class   string   `json:"class"`
	Methods []string `json:"methods"`
}

// Exposer is implemented by everything a Server can expose.
type Exposer interface {
	// Lookup returns the method with the given name.
	Lookup(name string) (Method, bool)

	// Methods returns all method names, sorted.
	Methods() []string

	// API describes the exposer.
	API() API
}

// ExposedObject is a set of named methods.
type ExposedObject struct {
	class   string
	methods map[string]Method
}

// NewObject creates an object with only the :api method.
func NewObject(class string) *ExposedObject {
	o := &ExposedObject{class: class, methods: make(map[string]Method)}
	o.methods[APIMethod] = func(params []json.RawMessage) (any, error) {
		if err := checkParams(params, 0); err != nil {
			return nil, err
		}
		return o.API(), nil
	}
	return o
}

// Add registers a method, replacing an existing one of the same name.
func (o *ExposedObject) Add(name string, m Method) {
	o.methods[name] = m
}

// AddProperty registers name:get and, when set is non-nil, name:set.
func (o *ExposedObject) AddProperty(name string, get func() any, set func(json.RawMessage) error) {
	o.methods[name+":get"] = func(params []json.RawMessage) (any, error) {
		if err := checkParams(params, 0); err != nil {
			return nil, err
		}
		return get(), nil
	}
	if set == nil {
		return
	}
	o.methods[name+":set"] = func(params []json.RawMessage) (any, error) {
		if err := checkParams(params, 1); err != nil {
			return nil, err
		}
		return nil, set(params[0])
	}
}

// Lookup returns the named method.
func (o *ExposedObject) Lookup(name string) (Method, bool) {
	m, ok := o.methods[name]
	return m, ok
}

// Has reports whether the method exists.
func (o *ExposedObject) Has(name string) bool {
	_, ok := o.methods[name]
	return ok
}

// Len returns the number of methods including :api.
func (o *ExposedObject) Len() int {
	return len(o.methods)
}

// Methods returns the sorted method names.
func (o *ExposedObject) Methods() []string {
	names := make([]string, 0, len(o.methods))
	for name := range o.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// API returns the class name and methods.
func (o *ExposedObject) API() API {
	return API{Class: o.class, Methods: o.Methods()}
}

// Call invokes a method with Go values as arguments. It is meant for
// in-process use and tests; arguments go through JSON like remote calls.
func (o *ExposedObject) Call(name string, args ...any) (any, error) {
	m, ok := o.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, name)
	}
	params, err := encodeParams(args)
	if err != nil {
		return nil, err
	}
	return m(params)
}

// member is a property or method found by reflection.
type member struct {
	name   string
	get    func() any
	set    func(json.RawMessage) error
	method Method
}

// Expose builds an object from a pointer to a struct. Exported fields and
// getter/setter method pairs (X and SetX) become properties, the remaining
// exported methods become callable methods. members restricts the result to
// the given names, exclude removes names. Naming a member that does not
// exist is an error.
func Expose(obj any, members, exclude []string) (*ExposedObject, error) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: expose needs a pointer to a struct, got %T", ErrUnsupportedValue, obj)
	}

	explicit := make(map[string]bool, len(members))
	for _, name := range members {
		explicit[name] = true
	}

	found := make(map[string]member)
	collectFields(v.Elem(), found)
	if err := collectMethods(v, found, explicit); err != nil {
		return nil, err
	}

	selected := make(map[string]member, len(found))
	if len(members) == 0 {
		selected = found
	} else {
		for _, name := range members {
			m, ok := found[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s has no member %q", ErrUnknownMember, typeName(obj), name)
			}
			selected[name] = m
		}
	}
	for _, name := range exclude {
		delete(selected, name)
	}

	o := NewObject(typeName(obj))
	for name, m := range selected {
		if m.method != nil {
			o.Add(name, m.method)
			continue
		}
		o.AddProperty(name, m.get, m.set)
	}
	return o, nil
}

func typeName(obj any) string {
	t := reflect.TypeOf(obj)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

func collectFields(v reflect.Value, found map[string]member) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Anonymous {
			continue
		}
		name := SnakeCase(f.Name)
		if tag, ok := f.Tag.Lookup("control"); ok {
			if tag == "-" {
				continue
			}
			name = tag
		}

		fv := v.Field(i)
		found[name] = member{
			name: name,
			get:  func() any { return fv.Interface() },
			set: func(raw json.RawMessage) error {
				nv := reflect.New(fv.Type())
				if err := json.Unmarshal(raw, nv.Interface()); err != nil {
					return fmt.Errorf("%w: %s: %v", ErrInvalidParams, name, err)
				}
				fv.Set(nv.Elem())
				return nil
			},
		}
	}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func collectMethods(v reflect.Value, found map[string]member, explicit map[string]bool) error {
	t := v.Type()

	getters := make(map[string]reflect.Value)
	setters := make(map[string]reflect.Value)
	plain := make(map[string]reflect.Value)

	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		fn := v.Method(i)
		ft := fn.Type()

		switch {
		case strings.HasPrefix(m.Name, "Set") && len(m.Name) > 3 && ft.NumIn() == 1:
			setters[m.Name[3:]] = fn
			plain[m.Name] = fn
		case ft.NumIn() == 0 && ft.NumOut() == 1 && ft.Out(0) != errorType:
			getters[m.Name] = fn
			plain[m.Name] = fn
		default:
			plain[m.Name] = fn
		}
	}

	for goName, get := range getters {
		set, ok := setters[goName]
		if !ok || set.Type().In(0) != get.Type().Out(0) {
			continue
		}
		name := SnakeCase(goName)
		setFn := set
		found[name] = member{
			name: name,
			get:  func() any { return get.Call(nil)[0].Interface() },
			set: func(raw json.RawMessage) error {
				_, err := callMethod(setFn, []json.RawMessage{raw})
				return err
			},
		}
		delete(plain, goName)
		delete(plain, "Set"+goName)
	}

	for goName, fn := range plain {
		name := SnakeCase(goName)
		if _, exists := found[name]; exists {
			continue
		}
		if err := checkSignature(fn.Type()); err != nil {
			if explicit[name] {
				return fmt.Errorf("%w: method %s: %v", ErrUnsupportedValue, name, err)
			}
			continue
		}
		method := fn
		found[name] = member{
			name:   name,
			method: func(params []json.RawMessage) (any, error) { return callMethod(method, params) },
		}
	}
	return nil
}

func checkSignature(ft reflect.Type) error {
	if ft.IsVariadic() {
		return errors.New("variadic methods are not supported")
	}
	for i := 0; i < ft.NumIn(); i++ {
		if ft.In(i).Kind() == reflect.Interface && ft.In(i).NumMethod() > 0 {
			return fmt.Errorf("argument %d of type %s cannot be decoded", i+1, ft.In(i))
		}
		if ft.In(i).Kind() == reflect.Func || ft.In(i).Kind() == reflect.Chan {
			return fmt.Errorf("argument %d of type %s cannot be decoded", i+1, ft.In(i))
		}
	}
	switch ft.NumOut() {
	case 0, 1:
		return nil
	case 2:
		if ft.Out(1) != errorType {
			return errors.New("second result must be an error")
		}
		return nil
	}
	return errors.New("too many results")
}

func callMethod(fn reflect.Value, params []json.RawMessage) (any, error) {
	ft := fn.Type()
	if err := checkParams(params, ft.NumIn()); err != nil {
		return nil, err
	}

	in := make([]reflect.Value, ft.NumIn())
	for i := range in {
		arg := reflect.New(ft.In(i))
		if err := json.Unmarshal(params[i], arg.Interface()); err != nil {
			return nil, fmt.Errorf("%w: argument %d: %v", ErrInvalidParams, i+1, err)
		}
		in[i] = arg.Elem()
	}

	out := fn.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if ft.Out(0) == errorType {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	default:
		return out[0].Interface(), asError(out[1])
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

func checkParams(params []json.RawMessage, want int) error {
	if len(params) != want {
		return fmt.Errorf("%w: expected %d arguments, got %d", ErrInvalidParams, want, len(params))
	}
	return nil
}

func encodeParams(args []any) ([]json.RawMessage, error) {
	params := make([]json.RawMessage, len(args))
	for i, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("%w: argument %d: %v", ErrInvalidParams, i+1, err)
		}
		params[i] = data
	}
	return params, nil
}

// ExposeParameters builds an object with one property per device
// parameter. Read-only parameters get no :set method.
func ExposeParameters(class string, p *device.Parameters) *ExposedObject {
	o := NewObject(class)
	for _, name := range p.Names() {
		param, _ := p.Lookup(name)
		pname := name

		var set func(json.RawMessage) error
		if !param.ReadOnly() {
			set = func(raw json.RawMessage) error {
				v, err := decodeValue(raw)
				if err != nil {
					return err
				}
				return p.Set(pname, v)
			}
		}
		o.AddProperty(name, func() any {
			v, _ := p.Get(pname)
			return v
		}, set)
	}
	return o
}

// decodeValue decodes a JSON value keeping numbers as json.Number so the
// parameter conversion sees the exact literal.
func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return v, nil
}

// SnakeCase converts a Go identifier to snake case: "CycleDelay" becomes
// "cycle_delay", "RPCHost" becomes "rpc_host".
func SnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

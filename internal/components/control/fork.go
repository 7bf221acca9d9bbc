package control

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"sync"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
)

// Replication modes of ForkX2.
const (
	ReplicateReference = iota
	ReplicateShallow
	ReplicateDeep
	ReplicateCopier
	ReplicateCustom
)

// ForkDescriptor describes ForkX2.
var ForkDescriptor = component.Descriptor{
	Name:        "ForkX2",
	Description: "Replicates an object on two outputs",
	Inputs:      []string{"object"},
	Outputs:     []string{"object", "object_2"},
	Properties: map[string]string{
		// 0 reference, 1 shallow copy, 2 deep copy, 3 Copier, 4 named replicator
		"replication_mode":   "0",
		"replication_method": "",
	},
}

// Copier is implemented by values that know how to copy themselves.
type Copier interface {
	Copy() any
}

// ReplicatorFunc copies a value for the custom replication mode.
type ReplicatorFunc func(v any) (any, error)

var (
	replicatorsMu sync.RWMutex
	replicators   = map[string]ReplicatorFunc{
		"wire": wireCopy,
	}
)

// RegisterReplicator makes fn available to ForkX2 under name.
func RegisterReplicator(name string, fn ReplicatorFunc) {
	replicatorsMu.Lock()
	defer replicatorsMu.Unlock()
	replicators[name] = fn
}

func lookupReplicator(name string) (ReplicatorFunc, bool) {
	replicatorsMu.RLock()
	defer replicatorsMu.RUnlock()
	fn, ok := replicators[name]
	return fn, ok
}

// ForkX2 pushes the input on object and a replica of it on object_2.
type ForkX2 struct {
	replicate ReplicatorFunc
}

// NewForkX2 creates the component.
func NewForkX2() component.Component { return &ForkX2{} }

func (f *ForkX2) Initialize(_ context.Context, props *component.Properties) error {
	mode, err := props.Int("replication_mode")
	if err != nil {
		return err
	}
	switch mode {
	case ReplicateReference:
		f.replicate = func(v any) (any, error) { return v, nil }
	case ReplicateShallow:
		f.replicate = shallowCopy
	case ReplicateDeep:
		f.replicate = deepCopy
	case ReplicateCopier:
		f.replicate = copierCopy
	case ReplicateCustom:
		name, err := props.Required("replication_method")
		if err != nil {
			return err
		}
		fn, ok := lookupReplicator(name)
		if !ok {
			return fmt.Errorf("unknown replication method %q", name)
		}
		f.replicate = sameType(fn)
	default:
		return fmt.Errorf("unknown replication mode %d", mode)
	}
	return nil
}

func (f *ForkX2) Execute(_ context.Context, cc *component.Context) error {
	data := cc.Input("object")
	replica, err := f.replicate(data)
	if err != nil {
		return fmt.Errorf("replicate %T: %w", data, err)
	}
	if err := cc.Push("object", data); err != nil {
		return err
	}
	return cc.Push("object_2", replica)
}

func (f *ForkX2) HandleStreamInitiators(_ context.Context, cc *component.Context) error {
	return f.forkDelimiter(cc)
}

func (f *ForkX2) HandleStreamTerminators(_ context.Context, cc *component.Context) error {
	return f.forkDelimiter(cc)
}

func (f *ForkX2) forkDelimiter(cc *component.Context) error {
	d, ok := cc.Input("object").(component.Delimiter)
	if !ok {
		return errors.New("expected a stream delimiter on object")
	}
	if err := cc.Push("object", d); err != nil {
		return err
	}
	return cc.Push("object_2", component.CloneDelimiter(d))
}

func (f *ForkX2) Dispose(context.Context) error { return nil }

// shallowCopy copies the top level of v: the struct behind a pointer, the
// elements of a slice or the entries of a map. Other values are copied by
// assignment already.
func shallowCopy(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return v, nil
		}
		cp := reflect.New(rv.Elem().Type())
		cp.Elem().Set(rv.Elem())
		return cp.Interface(), nil
	case reflect.Slice:
		if rv.IsNil() {
			return v, nil
		}
		cp := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(cp, rv)
		return cp.Interface(), nil
	case reflect.Map:
		if rv.IsNil() {
			return v, nil
		}
		cp := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			cp.SetMapIndex(iter.Key(), iter.Value())
		}
		return cp.Interface(), nil
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return nil, fmt.Errorf("cannot copy a %s", rv.Kind())
	default:
		return v, nil
	}
}

// deepCopy copies v through a gob round trip. Only exported fields
// survive.
func deepCopy(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	t := reflect.TypeOf(v)
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	isPtr := t.Kind() == reflect.Pointer
	if isPtr {
		t = t.Elem()
	}
	out := reflect.New(t)
	if err := gob.NewDecoder(&buf).DecodeValue(out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if isPtr {
		return out.Interface(), nil
	}
	return out.Elem().Interface(), nil
}

func copierCopy(v any) (any, error) {
	c, ok := v.(Copier)
	if !ok {
		return nil, fmt.Errorf("%T does not implement Copy", v)
	}
	return c.Copy(), nil
}

// sameType rejects replicas whose type differs from the original's.
func sameType(fn ReplicatorFunc) ReplicatorFunc {
	return func(v any) (any, error) {
		out, err := fn(v)
		if err != nil {
			return nil, err
		}
		if reflect.TypeOf(out) != reflect.TypeOf(v) {
			return nil, fmt.Errorf("replica is a %T, not a %T", out, v)
		}
		return out, nil
	}
}

type wireMessage interface {
	Marshal() []byte
	Unmarshal([]byte) error
}

// wireCopy copies the wire data types through their binary encoding.
func wireCopy(v any) (any, error) {
	switch m := v.(type) {
	case *datatypes.Strings:
		return remarshal(m, &datatypes.Strings{})
	case *datatypes.StringsArray:
		return remarshal(m, &datatypes.StringsArray{})
	case *datatypes.StringsMap:
		return remarshal(m, &datatypes.StringsMap{})
	case *datatypes.Integers:
		return remarshal(m, &datatypes.Integers{})
	case *datatypes.IntegersMap:
		return remarshal(m, &datatypes.IntegersMap{})
	case map[string]string:
		return maps.Clone(m), nil
	}
	return nil, fmt.Errorf("%w: %T", datatypes.ErrUnsupportedType, v)
}

func remarshal[M wireMessage](src, dst M) (any, error) {
	if err := dst.Unmarshal(src.Marshal()); err != nil {
		return nil, err
	}
	return dst, nil
}

package aggregate

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/barkimedes/go-deepcopy"
	"github.com/modernice/cqrs/event"
)

// ErrUncloneable is returned by DeepCopy for aggregates whose state cannot be
// copied by reflection.
var ErrUncloneable = errors.New("aggregate cannot be deep copied")

var baseType = reflect.TypeOf(Base{})

// DeepCopy copies the state of src into dst. dst must be a freshly made
// aggregate of the same type, so that its event handlers are bound to dst.
// DeepCopy fails with ErrUncloneable if the type of src has unexported fields
// outside of Base, because such state would be dropped silently.
func DeepCopy(dst, src Aggregate) error {
	dv, sv := reflect.ValueOf(dst), reflect.ValueOf(src)
	if dv.Type() != sv.Type() {
		return fmt.Errorf("%w: type mismatch [dst=%T, src=%T]", ErrUncloneable, dst, src)
	}
	if dv.Kind() != reflect.Pointer || dv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: %T is not a pointer to a struct", ErrUncloneable, src)
	}
	if field, ok := unexportedState(dv.Elem().Type()); ok {
		return fmt.Errorf("%w: %T has unexported field %q; implement aggregate.Cloner", ErrUncloneable, src, field)
	}

	copied, err := deepcopy.Anything(src)
	if err != nil {
		return fmt.Errorf("deep copy %T: %w", src, err)
	}

	var handlers event.Handlers
	if b, ok := dst.(interface{ base() *Base }); ok && b.base() != nil {
		handlers = b.base().handlers
	}

	dv.Elem().Set(reflect.ValueOf(copied).Elem())

	if b, ok := dst.(interface{ base() *Base }); ok && b.base() != nil {
		b.base().handlers = handlers
	}

	if field, ok := compareState(dv.Elem(), sv.Elem()); !ok {
		return fmt.Errorf("%w: field %q of %T was not copied correctly; implement aggregate.Cloner", ErrUncloneable, field, src)
	}

	return nil
}

// compareState compares the exported state of two aggregates of the same
// type. If they differ, compareState returns the first differing field and false.
func compareState(a, b reflect.Value) (string, bool) {
	for i := 0; i < a.NumField(); i++ {
		f := a.Type().Field(i)
		fa, fb := a.Field(i), b.Field(i)

		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
			if fa.IsNil() || fb.IsNil() {
				if fa.IsNil() != fb.IsNil() {
					return f.Name, false
				}
				continue
			}
			fa, fb = fa.Elem(), fb.Elem()
		}

		if ft == baseType {
			ba, bb := fa.Interface().(Base), fb.Interface().(Base)
			if ba.ID != bb.ID || ba.Name != bb.Name || ba.Version != bb.Version || len(ba.Changes) != len(bb.Changes) {
				return f.Name, false
			}
			continue
		}

		if !reflect.DeepEqual(fa.Interface(), fb.Interface()) {
			return f.Name, false
		}
	}
	return "", true
}

func unexportedState(t reflect.Type) (string, bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft == baseType {
			continue
		}
		if !f.IsExported() {
			return f.Name, true
		}
		if f.Anonymous && ft.Kind() == reflect.Struct {
			if name, ok := unexportedState(ft); ok {
				return name, true
			}
		}
	}
	return "", false
}

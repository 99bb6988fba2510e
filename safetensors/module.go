package safetensors

import (
	"fmt"
	"reflect"

	"github.com/latentlab/videodit/tensor"
)

// Source yields checkpoint tensors by name.
type Source interface {
	Tensor(name string) (*tensor.Array, error)
}

// Tensors is an in-memory Source, e.g. the result of LoadTorch.
type Tensors map[string]*tensor.Array

func (t Tensors) Tensor(name string) (*tensor.Array, error) {
	a, ok := t[name]
	if !ok {
		return nil, fmt.Errorf("safetensors: no tensor named %q", name)
	}
	return a, nil
}

// LoadModule walks a model's exported fields and replaces every non-nil
// tensor field tagged `weight:"..."` with the checkpoint tensor of the
// joined dotted name. Nested structs, pointers, and slices extend the
// prefix; slice elements append their index, with or without a tag of their
// own (an untagged module slice nests directly under the parent prefix). A
// nil tensor field means the layer variant does not use that parameter and
// is skipped.
func LoadModule(module any, src Source, prefix string) error {
	v := reflect.ValueOf(module)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("safetensors: cannot load into %T", module)
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag, tagged := field.Tag.Lookup("weight")
		name := prefix
		if tagged {
			name = join(prefix, tag)
		}

		fv := v.Field(i)
		switch {
		case fv.Type() == reflect.TypeOf((*tensor.Array)(nil)):
			if !tagged || fv.IsNil() {
				continue
			}
			loaded, err := src.Tensor(name)
			if err != nil {
				return err
			}
			current := fv.Interface().(*tensor.Array)
			if !shapesEqual(current.Shape(), loaded.Shape()) {
				return fmt.Errorf("safetensors: %q has shape %v, model expects %v", name, loaded.Shape(), current.Shape())
			}
			fv.Set(reflect.ValueOf(loaded))

		case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.Pointer:
			for j := 0; j < fv.Len(); j++ {
				el := fv.Index(j)
				if el.IsNil() {
					continue
				}
				if err := LoadModule(el.Interface(), src, fmt.Sprintf("%s.%d", name, j)); err != nil {
					return err
				}
			}

		case fv.Kind() == reflect.Pointer && tagged:
			if fv.IsNil() {
				continue
			}
			if err := LoadModule(fv.Interface(), src, name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Snapshot is the saving counterpart of LoadModule: it walks the same fields
// and collects every non-nil tagged tensor under its dotted name.
func Snapshot(module any, prefix string) (Tensors, error) {
	out := Tensors{}
	if err := snapshot(module, prefix, out); err != nil {
		return nil, err
	}
	return out, nil
}

func snapshot(module any, prefix string, out Tensors) error {
	v := reflect.ValueOf(module)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("safetensors: cannot snapshot %T", module)
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag, tagged := field.Tag.Lookup("weight")
		name := prefix
		if tagged {
			name = join(prefix, tag)
		}

		fv := v.Field(i)
		switch {
		case fv.Type() == reflect.TypeOf((*tensor.Array)(nil)):
			if !tagged || fv.IsNil() {
				continue
			}
			out[name] = fv.Interface().(*tensor.Array)

		case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.Pointer:
			for j := 0; j < fv.Len(); j++ {
				el := fv.Index(j)
				if el.IsNil() {
					continue
				}
				if err := snapshot(el.Interface(), fmt.Sprintf("%s.%d", name, j), out); err != nil {
					return err
				}
			}

		case fv.Kind() == reflect.Pointer && tagged:
			if fv.IsNil() {
				continue
			}
			if err := snapshot(fv.Interface(), name, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package schema

import (
	"context"
	"fmt"
	"reflect"

	"autodojo/internal/model"
	"autodojo/internal/store"
)

// Lookup достаёт связанный экземпляр для вложенных схем (depth > 0).
type Lookup func(ctx context.Context, m *model.Model, id int64) (*store.Instance, error)

// Render заполняет значение Go-типа схемы из экземпляра; результат готов к json.Marshal
// и сохраняет порядок полей схемы.
func (s *Schema) Render(ctx context.Context, inst *store.Instance, lookup Lookup) (any, error) {
	if s.typ == nil {
		return nil, fmt.Errorf("schema %s has no type", s.Name)
	}
	out := reflect.New(s.typ)
	elem := out.Elem()
	for _, f := range s.Fields {
		val := inst.Get(f.Name)
		fv := elem.FieldByName(f.goName)
		if f.Model != nil && f.Model.IsManyToMany() {
			if err := s.renderList(ctx, f, fv, val, lookup); err != nil {
				return nil, err
			}
			continue
		}
		if val == nil {
			continue
		}

		if f.Nested != nil {
			id, ok := val.(int64)
			if !ok {
				return nil, fmt.Errorf("%s.%s: foreign key value %T is not int64", s.Name, f.Name, val)
			}
			if lookup == nil {
				return nil, fmt.Errorf("%s.%s: nested schema needs a lookup", s.Name, f.Name)
			}
			related, err := lookup(ctx, f.Model.Related, id)
			if err != nil {
				return nil, err
			}
			nested, err := f.Nested.Render(ctx, related, lookup)
			if err != nil {
				return nil, err
			}
			fv.Set(reflect.ValueOf(nested))
			continue
		}

		target := fv.Type()
		if target.Kind() == reflect.Pointer {
			target = target.Elem()
		}
		rv := reflect.ValueOf(val)
		if !rv.Type().ConvertibleTo(target) {
			return nil, fmt.Errorf("%s.%s: cannot render %T as %s", s.Name, f.Name, val, target)
		}
		rv = rv.Convert(target)
		if fv.Kind() == reflect.Pointer {
			p := reflect.New(target)
			p.Elem().Set(rv)
			rv = p
		}
		fv.Set(rv)
	}
	return out.Interface(), nil
}

// renderList — связь многие-ко-многим: список id или, при вложенной схеме, список объектов.
func (s *Schema) renderList(ctx context.Context, f *Field, fv reflect.Value, val any, lookup Lookup) error {
	ids, err := store.IDs(val)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", s.Name, f.Name, err)
	}
	if f.Nested == nil {
		fv.Set(reflect.ValueOf(ids))
		return nil
	}
	if lookup == nil {
		return fmt.Errorf("%s.%s: nested schema needs a lookup", s.Name, f.Name)
	}
	list := reflect.MakeSlice(fv.Type(), 0, len(ids))
	for _, id := range ids {
		related, err := lookup(ctx, f.Model.Related, id)
		if err != nil {
			return err
		}
		nested, err := f.Nested.Render(ctx, related, lookup)
		if err != nil {
			return err
		}
		list = reflect.Append(list, reflect.ValueOf(nested))
	}
	fv.Set(list)
	return nil
}

// RenderAll — Render для списка.
func (s *Schema) RenderAll(ctx context.Context, items []*store.Instance, lookup Lookup) ([]any, error) {
	out := make([]any, 0, len(items))
	for _, inst := range items {
		v, err := s.Render(ctx, inst, lookup)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

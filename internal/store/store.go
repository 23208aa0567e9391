// Package store описывает хранилище экземпляров моделей.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"autodojo/internal/model"
)

var (
	ErrNotFound   = errors.New("instance not found")
	ErrRestricted = errors.New("delete restricted by referencing instances")
)

// Instance — сохранённый экземпляр модели. Values хранит значения по имени поля
// модели (без первичного ключа); внешние ключи — int64 id или nil.
type Instance struct {
	Model  *model.Model
	ID     int64
	Values map[string]any
}

// Get возвращает значение поля; для первичного ключа — ID.
func (i *Instance) Get(field string) any {
	if field == model.PrimaryKeyName {
		return i.ID
	}
	return i.Values[field]
}

func (i *Instance) Set(field string, v any) {
	if i.Values == nil {
		i.Values = make(map[string]any)
	}
	i.Values[field] = v
}

// Clone копирует экземпляр; списки id (многие-ко-многим) копируются тоже.
func (i *Instance) Clone() *Instance {
	out := &Instance{Model: i.Model, ID: i.ID, Values: make(map[string]any, len(i.Values))}
	for k, v := range i.Values {
		out.Values[k] = CloneValue(v)
	}
	return out
}

// CloneValue копирует значение поля; скаляры возвращаются как есть.
func CloneValue(v any) any {
	if ids, ok := v.([]int64); ok {
		return append([]int64{}, ids...)
	}
	return v
}

// Store — операции над экземплярами одной модели.
type Store interface {
	All(ctx context.Context) ([]*Instance, error)
	Get(ctx context.Context, id int64) (*Instance, error)
	Create(ctx context.Context, values map[string]any) (*Instance, error)
	Save(ctx context.Context, inst *Instance) error
	Reload(ctx context.Context, inst *Instance) error
	Delete(ctx context.Context, inst *Instance) error
}

// Backend выдаёт Store для модели.
type Backend interface {
	For(m *model.Model) Store
}

// NotFound оборачивает ErrNotFound с контекстом модели.
func NotFound(m *model.Model, id int64) error {
	return fmt.Errorf("%w: %s id=%d", ErrNotFound, m.FQN(), id)
}

// Normalize приводит значение, прочитанное из драйвера, к каноническому типу поля.
func Normalize(f *model.Field, v any) (any, error) {
	if f.Kind == model.KindRefList {
		ids, err := IDs(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		return ids, nil
	}
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch f.Kind {
	case model.KindInt, model.KindRef:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int32:
			return int64(n), nil
		case int:
			return int64(n), nil
		case float64:
			return int64(n), nil
		}
	case model.KindFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case model.KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case model.KindDateTime:
		if ts, ok := v.(time.Time); ok {
			return ts.UTC(), nil
		}
	case model.KindDate:
		switch d := v.(type) {
		case time.Time:
			return d.Format(time.DateOnly), nil
		case string:
			return d, nil
		}
	default:
		// string, text, enum, decimal
		switch s := v.(type) {
		case string:
			return s, nil
		case fmt.Stringer:
			return s.String(), nil
		case float64, int64:
			return fmt.Sprint(s), nil
		}
	}
	return nil, fmt.Errorf("field %q: unexpected value %T", f.Name, v)
}

// IDs приводит список связанных id к каноническому виду: []int64 по возрастанию
// без повторов; nil — пустой список.
func IDs(v any) ([]int64, error) {
	var out []int64
	switch ids := v.(type) {
	case nil:
	case []int64:
		out = append(out, ids...)
	case []any:
		for _, it := range ids {
			switch n := it.(type) {
			case int64:
				out = append(out, n)
			case int:
				out = append(out, int64(n))
			case float64:
				out = append(out, int64(n))
			default:
				return nil, fmt.Errorf("id %v (%T) is not an integer", it, it)
			}
		}
	default:
		return nil, fmt.Errorf("unexpected id list %T", v)
	}
	slices.Sort(out)
	return append([]int64{}, slices.Compact(out)...), nil
}

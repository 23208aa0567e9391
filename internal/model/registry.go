package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"autodojo/internal/dsl"
)

// Registry — реестр моделей по пространствам имён (app label).
// После FromEntities не меняется, поэтому читается без блокировок.
type Registry struct {
	byNS  map[string]map[string]*Model // ns(lower) -> name(lower) -> model
	order []*Model
}

func NewRegistry() *Registry {
	return &Registry{byNS: make(map[string]map[string]*Model)}
}

// Add регистрирует модель; повтор FQN — ошибка.
func (r *Registry) Add(m *Model) error {
	ns := strings.ToLower(m.Namespace)
	if r.byNS[ns] == nil {
		r.byNS[ns] = make(map[string]*Model)
	}
	key := strings.ToLower(m.Name)
	if _, dup := r.byNS[ns][key]; dup {
		return fmt.Errorf("duplicate model %s", m.FQN())
	}
	r.byNS[ns][key] = m
	r.order = append(r.order, m)
	return nil
}

// Lookup ищет модель без учёта регистра.
func (r *Registry) Lookup(namespace, name string) (*Model, error) {
	ns := r.byNS[strings.ToLower(strings.TrimSpace(namespace))]
	if m, ok := ns[strings.ToLower(strings.TrimSpace(name))]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrModelNotFound, namespace, name)
}

// Models — все модели в порядке регистрации.
func (r *Registry) Models() []*Model {
	return append([]*Model(nil), r.order...)
}

// Required проверяет обязательные аргументы резолвера: namespace и ссылку на модель.
func Required(namespace string, ref any) error {
	if strings.TrimSpace(namespace) == "" {
		return fmt.Errorf("%w: 'namespace' cannot be empty", ErrMissingRequiredArgument)
	}
	switch v := ref.(type) {
	case nil:
		return fmt.Errorf("%w: 'model' cannot be empty", ErrMissingRequiredArgument)
	case *Model:
		if v == nil {
			return fmt.Errorf("%w: 'model' cannot be empty", ErrMissingRequiredArgument)
		}
	case string:
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: 'model' cannot be empty", ErrMissingRequiredArgument)
		}
	}
	return nil
}

// Resolve превращает ссылку на модель (имя или уже готовый *Model) в описание модели.
// Обязательность аргументов проверяется до любого поиска.
func Resolve(r *Registry, namespace string, ref any) (*Model, error) {
	if err := Required(namespace, ref); err != nil {
		return nil, err
	}
	switch v := ref.(type) {
	case *Model:
		return v, nil
	case string:
		if r == nil {
			return nil, fmt.Errorf("%w: %s.%s (no registry)", ErrModelNotFound, namespace, v)
		}
		return r.Lookup(namespace, v)
	default:
		return nil, fmt.Errorf("%w: '%v' is not a string or *model.Model", ErrInvalidModelReference, ref)
	}
}

// FromEntities собирает реестр из DSL-сущностей: сначала модели, затем ссылки.
func FromEntities(entities map[string]*dsl.Entity) (*Registry, error) {
	keys := make([]string, 0, len(entities))
	for k := range entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	reg := NewRegistry()
	pending := map[*Field]string{} // поле-ссылка -> FQN цели

	for _, k := range keys {
		e := entities[k]
		m := &Model{
			Namespace:  e.Module,
			Name:       e.Name,
			PluralName: e.Options["plural"],
			Fields:     []*Field{{Name: PrimaryKeyName, Kind: KindInt, PrimaryKey: true}},
		}
		if m.PluralName == "" {
			m.PluralName = Plural(e.Name)
		}
		for _, df := range e.Fields {
			f, err := fieldFromDSL(df)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", e.FQN(), df.Name, err)
			}
			if _, dup := m.Field(f.Name); dup {
				return nil, fmt.Errorf("%s: field %q duplicates an existing column", e.FQN(), f.Name)
			}
			if f.Kind == KindRef || f.Kind == KindRefList {
				target := df.RefTarget
				if !strings.Contains(target, ".") {
					target = e.Module + "." + target
				}
				pending[f] = target
			}
			m.Fields = append(m.Fields, f)
		}
		if err := reg.Add(m); err != nil {
			return nil, err
		}
	}

	for f, target := range pending {
		i := strings.IndexByte(target, '.')
		related, err := reg.Lookup(target[:i], target[i+1:])
		if err != nil {
			return nil, fmt.Errorf("ref[%s] on field %q: %w", target, f.Name, err)
		}
		f.Related = related
	}

	// related_name уникален в пределах целевой модели
	reverse := map[string]string{}
	for _, m := range reg.order {
		for _, f := range m.Fields {
			if f.RelatedName == "" {
				continue
			}
			key := f.Related.FQN() + "." + f.RelatedName
			if prev, dup := reverse[key]; dup {
				return nil, fmt.Errorf("related_name %q on %s clashes with %s", f.RelatedName, f.Related.FQN(), prev)
			}
			if _, clash := f.Related.Field(f.RelatedName); clash {
				return nil, fmt.Errorf("related_name %q clashes with field %s.%s", f.RelatedName, f.Related.FQN(), f.RelatedName)
			}
			reverse[key] = m.FQN() + "." + f.Name
		}
	}
	return reg, nil
}

// Reverse — обратная сторона связи многие-ко-многим: экземпляры Owner,
// в списке Field которых есть id целевой модели.
type Reverse struct {
	Name  string
	Owner *Model
	Field *Field
}

// Reverse перечисляет объявленные через related_name обратные связи на m.
func (r *Registry) Reverse(m *Model) []Reverse {
	var out []Reverse
	for _, owner := range r.order {
		for _, f := range owner.Fields {
			if f.IsManyToMany() && f.Related == m && f.RelatedName != "" {
				out = append(out, Reverse{Name: f.RelatedName, Owner: owner, Field: f})
			}
		}
	}
	return out
}

func fieldFromDSL(df dsl.Field) (*Field, error) {
	if strings.EqualFold(df.Name, PrimaryKeyName) {
		return nil, fmt.Errorf("field %q is reserved for the primary key", df.Name)
	}
	f := &Field{
		Name:     df.Name,
		Kind:     Kind(strings.ToLower(df.Type)),
		Nullable: !df.Flag("required"),
		Unique:   df.Flag("unique"),
		Choices:  append([]string(nil), df.Enum...),
	}
	if f.Kind == "array" {
		if !strings.EqualFold(df.ElemType, "ref") {
			return nil, fmt.Errorf("array[%s] is not supported, only array[ref[...]]", df.ElemType)
		}
		f.Kind = KindRefList
		f.Unique = false
		f.RelatedName = strings.TrimSpace(df.Options["related_name"])
	}
	switch f.Kind {
	case KindString, KindText, KindInt, KindFloat, KindDecimal, KindBool,
		KindDate, KindDateTime, KindEnum, KindRef, KindRefList:
	default:
		return nil, fmt.Errorf("unknown type: %s", df.Type)
	}

	var err error
	if f.MaxLength, err = intOption(df, "max_length"); err != nil {
		return nil, err
	}
	if f.MaxDigits, err = intOption(df, "max_digits"); err != nil {
		return nil, err
	}
	if f.DecimalPlaces, err = intOption(df, "decimal_places"); err != nil {
		return nil, err
	}

	if f.Kind == KindRefList {
		if strings.TrimSpace(df.RefTarget) == "" {
			return nil, fmt.Errorf("array[ref] field has empty target")
		}
		// для списка set_null значит «убрать id из списка»; каскад на владельца не распространяется
		switch od := OnDelete(strings.ToLower(strings.TrimSpace(df.Options["on_delete"]))); od {
		case "", OnDeleteSetNull:
			f.OnDelete = OnDeleteSetNull
		case OnDeleteRestrict:
			f.OnDelete = od
		default:
			return nil, fmt.Errorf("on_delete=%s is not allowed for array[ref] (allowed: restrict|set_null)", od)
		}
	}

	if f.Kind == KindRef {
		if strings.TrimSpace(df.RefTarget) == "" {
			return nil, fmt.Errorf("ref field has empty target")
		}
		switch od := OnDelete(strings.ToLower(strings.TrimSpace(df.Options["on_delete"]))); od {
		case "":
			f.OnDelete = OnDeleteRestrict
		case OnDeleteRestrict, OnDeleteCascade, OnDeleteSetNull:
			f.OnDelete = od
		default:
			return nil, fmt.Errorf("unknown on_delete policy %q (allowed: restrict|set_null|cascade)", od)
		}
		// required ref + set_null — противоречие
		if f.OnDelete == OnDeleteSetNull && !f.Nullable {
			return nil, fmt.Errorf("required ref cannot have on_delete=set_null")
		}
	}
	return f, nil
}

func intOption(df dsl.Field, name string) (int, error) {
	v, ok := df.Options[name]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("option %s=%q must be a non-negative integer", name, v)
	}
	return n, nil
}

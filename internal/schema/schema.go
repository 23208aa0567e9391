// Package schema синтезирует схемы запросов и ответов по описанию модели.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"autodojo/internal/model"
	"autodojo/internal/verb"
)

var (
	ErrConflictingSchemaSpecification = errors.New("conflicting schema specification")
	ErrUnknownField                   = errors.New("unknown field")
)

// ErrorBody — тело ответа об ошибке: {"api_error": "..."}.
type ErrorBody struct {
	APIError string `json:"api_error"`
}

// ErrorSchema — общая схема ошибок для таблиц ответов.
var ErrorSchema = &Schema{
	Name:      "DefaultErrorResponseSchema",
	Direction: Output,
	Fields:    []*Field{{Name: "api_error", Key: "api_error", goName: "APIError"}},
	typ:       reflect.TypeOf(ErrorBody{}),
}

// Field — поле схемы.
type Field struct {
	Name     string       // имя поля модели
	Key      string       // ключ в JSON
	Model    *model.Field // nil для служебных схем
	Optional bool         // во входной схеме можно не передавать
	Nested   *Schema      // вложенная схема связанной модели (depth > 0)

	goName string
}

// Schema — именованный структурный тип над полями модели. После создания не меняется.
type Schema struct {
	Name      string
	Direction Direction
	Model     *model.Model
	Fields    []*Field

	typ reflect.Type
}

// Type — Go-тип схемы (reflect.StructOf с json/validate тегами).
func (s *Schema) Type() reflect.Type { return s.typ }

// Keys — JSON-ключи в порядке полей.
func (s *Schema) Keys() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Key
	}
	return out
}

func (s *Schema) Field(key string) (*Field, bool) {
	for _, f := range s.Fields {
		if f.Key == key || f.Name == key {
			return f, true
		}
	}
	return nil, false
}

// Equal — одинаковые имя и структура.
func (s *Schema) Equal(o *Schema) bool {
	return s != nil && o != nil && s.Name == o.Name && s.Direction == o.Direction && s.typ == o.typ
}

// Synthesize строит схему для модели, глагола и направления. Явная схема возвращается
// как есть, но только если cfg пуст: одновременная передача обоих — ошибка конфигурации.
func Synthesize(m *model.Model, v verb.Verb, dir Direction, explicit *Schema, cfg Config) (*Schema, error) {
	if explicit != nil {
		if !cfg.IsZero() {
			return nil, fmt.Errorf("%w: supplied %s schema config will be ignored because %s schema was supplied",
				ErrConflictingSchemaSpecification, dir, dir)
		}
		return explicit, nil
	}
	if m == nil {
		return nil, fmt.Errorf("%w: 'model' cannot be empty", model.ErrMissingRequiredArgument)
	}

	eff := Defaults(v, dir).Merge(cfg)

	s := &Schema{Name: schemaName(m, v, dir, eff.Name), Direction: dir, Model: m}

	selected, err := selectFields(m, eff)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", s.Name, err)
	}
	optional, err := nameSet(m, eff.OptionalFields)
	if err != nil {
		return nil, fmt.Errorf("schema %s: optional_fields: %w", s.Name, err)
	}
	depth := 0
	if eff.Depth != nil {
		depth = *eff.Depth
	}

	for _, mf := range selected {
		f := &Field{Name: mf.Name, Key: mf.Key(), Model: mf}
		if dir == Input {
			// nullable-поле можно не передавать: при создании оно станет null
			f.Optional = (eff.OptionalAll != nil && *eff.OptionalAll) || optional[mf.Name] || mf.Nullable
		}
		if dir == Output && depth > 0 && (mf.IsForeignKey() || mf.IsManyToMany()) {
			nested, err := Synthesize(mf.Related, v, Output, nil, Config{Depth: Int(depth - 1)})
			if err != nil {
				return nil, err
			}
			f.Nested = nested
			f.Key = mf.Name
			if mf.IsForeignKey() && f.Key == mf.Key() {
				// поле объявлено как "publisher_id" — вложенный объект без суффикса
				f.Key = strings.TrimSuffix(mf.Name, "_id")
			}
		}
		s.Fields = append(s.Fields, f)
	}

	s.typ = buildType(s)
	return s, nil
}

// schemaName: без имени — Generated{Model}{Verb}{In|Out}; иначе имя — шаблон
// с подстановками {model} и {http_verb}.
func schemaName(m *model.Model, v verb.Verb, dir Direction, name *string) string {
	if name == nil {
		return "Generated" + m.Name + v.Title() + dir.Suffix()
	}
	return strings.NewReplacer("{model}", m.Name, "{http_verb}", v.Title()).Replace(*name)
}

func selectFields(m *model.Model, cfg Config) ([]*model.Field, error) {
	include := map[string]bool(nil)
	if cfg.Fields != nil && (cfg.IncludeAll == nil || !*cfg.IncludeAll) {
		var err error
		if include, err = nameSet(m, cfg.Fields); err != nil {
			return nil, fmt.Errorf("fields: %w", err)
		}
	}
	exclude, err := nameSet(m, cfg.Exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude: %w", err)
	}

	var out []*model.Field
	for _, f := range m.Fields {
		if include != nil && !include[f.Name] {
			continue
		}
		if exclude[f.Name] {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// nameSet переводит имена (или JSON-ключи) в множество имён полей модели.
func nameSet(m *model.Model, names []string) (map[string]bool, error) {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		f, ok := m.Field(n)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no field %q", ErrUnknownField, m.Name, n)
		}
		set[f.Name] = true
	}
	return set, nil
}

var (
	timeType   = reflect.TypeOf(time.Time{})
	numberType = reflect.TypeOf(json.Number(""))
)

func baseType(f *model.Field) reflect.Type {
	switch f.Kind {
	case model.KindInt, model.KindRef:
		return reflect.TypeOf(int64(0))
	case model.KindRefList:
		return reflect.TypeOf([]int64(nil))
	case model.KindFloat:
		return reflect.TypeOf(float64(0))
	case model.KindDecimal:
		return numberType
	case model.KindBool:
		return reflect.TypeOf(false)
	case model.KindDateTime:
		return timeType
	default:
		return reflect.TypeOf("")
	}
}

func buildType(s *Schema) reflect.Type {
	used := map[string]bool{}
	fields := make([]reflect.StructField, 0, len(s.Fields))
	for i, f := range s.Fields {
		f.goName = goName(f.Key, i, used)

		var t reflect.Type
		switch {
		case f.Nested != nil && f.Model.IsManyToMany():
			t = reflect.SliceOf(reflect.PointerTo(f.Nested.typ))
		case f.Nested != nil:
			t = reflect.PointerTo(f.Nested.typ)
		case f.Model.Kind == model.KindRefList:
			// null и отсутствие для списка одинаково дают пустой список
			t = baseType(f.Model)
		default:
			t = baseType(f.Model)
			if f.Optional || f.Model.Nullable {
				t = reflect.PointerTo(t)
			}
		}

		tag := fmt.Sprintf(`json:"%s"`, f.Key)
		if s.Direction == Input {
			if rules := validateTag(f); rules != "" {
				tag += fmt.Sprintf(` validate:"%s"`, rules)
			}
		}
		fields = append(fields, reflect.StructField{Name: f.goName, Type: t, Tag: reflect.StructTag(tag)})
	}
	return reflect.StructOf(fields)
}

// goName — экспортируемое имя поля Go-структуры: "publisher_id" → "PublisherId".
func goName(key string, i int, used map[string]bool) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(key, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		rs := []rune(part)
		rs[0] = unicode.ToUpper(rs[0])
		b.WriteString(string(rs))
	}
	name := b.String()
	if name == "" || !unicode.IsUpper([]rune(name)[0]) {
		name = fmt.Sprintf("F%d", i)
	}
	for used[name] {
		name += "_"
	}
	used[name] = true
	return name
}

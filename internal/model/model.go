// Package model описывает модели (ModelDescriptor), их реестр и резолвер.
package model

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

type Kind string

const (
	KindString   Kind = "string"
	KindText     Kind = "text"
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindDecimal  Kind = "decimal"
	KindBool     Kind = "bool"
	KindDate     Kind = "date"
	KindDateTime Kind = "datetime"
	KindEnum     Kind = "enum"
	KindRef      Kind = "ref"
	KindRefList  Kind = "ref_list" // array[ref[...]]: связь многие-ко-многим
)

type OnDelete string

const (
	OnDeleteRestrict OnDelete = "restrict"
	OnDeleteCascade  OnDelete = "cascade"
	OnDeleteSetNull  OnDelete = "set_null"
)

// PrimaryKeyName — неявный целочисленный первичный ключ каждой модели.
const PrimaryKeyName = "id"

// Field описывает поле модели.
type Field struct {
	Name          string
	Kind          Kind
	Nullable      bool
	PrimaryKey    bool
	Unique        bool
	MaxLength     int
	MaxDigits     int
	DecimalPlaces int
	Choices       []string
	OnDelete      OnDelete
	Related       *Model // для KindRef и KindRefList
	RelatedName   string // обратная связь на Related (related_name), только для KindRefList
}

// IsForeignKey сообщает, ссылается ли поле на другую модель.
func (f *Field) IsForeignKey() bool {
	return f.Kind == KindRef && f.Related != nil
}

// IsManyToMany — поле хранит список id связанной модели. В строке модели его нет:
// хранилище держит связи отдельно (списки в памяти, join-таблица в Postgres).
func (f *Field) IsManyToMany() bool {
	return f.Kind == KindRefList && f.Related != nil
}

// Key — имя поля в JSON. Внешние ключи всегда с суффиксом "_id",
// как бы ни было объявлено поле.
func (f *Field) Key() string {
	if f.Kind == KindRef && !strings.HasSuffix(f.Name, "_id") {
		return f.Name + "_id"
	}
	return f.Name
}

// Model — неизменяемое описание модели после сборки реестра.
type Model struct {
	Namespace  string
	Name       string
	PluralName string
	Fields     []*Field
}

func (m *Model) FQN() string {
	return m.Namespace + "." + m.Name
}

// PrimaryKey возвращает поле первичного ключа.
func (m *Model) PrimaryKey() *Field {
	for _, f := range m.Fields {
		if f.PrimaryKey {
			return f
		}
	}
	return nil
}

// Field ищет поле по имени или по JSON-ключу ("publisher" и "publisher_id").
func (m *Model) Field(name string) (*Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name || f.Key() == name {
			return f, true
		}
	}
	return nil, false
}

// Plural: "BookFormat" → "book_formats".
func Plural(name string) string {
	return inflection.Plural(snake(name))
}

func snake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			// граница слова: aB или ABc
			if i > 0 && (unicode.IsLower(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

package schema

import (
	"autodojo/internal/model"
	"autodojo/internal/verb"
)

type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Input {
		return "request"
	}
	return "response"
}

// Suffix — окончание автоматического имени схемы.
func (d Direction) Suffix() string {
	if d == Input {
		return "In"
	}
	return "Out"
}

// Config — распознаваемые опции генерации схемы. nil означает «ключ не задан»,
// поэтому пользовательский Config накладывается на умолчания поключево.
type Config struct {
	Fields         []string `yaml:"fields,omitempty" json:"fields,omitempty"`
	IncludeAll     *bool    `yaml:"include_all,omitempty" json:"include_all,omitempty"`
	Exclude        []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	OptionalAll    *bool    `yaml:"optional_all,omitempty" json:"optional_all,omitempty"`
	OptionalFields []string `yaml:"optional_fields,omitempty" json:"optional_fields,omitempty"`
	Name           *string  `yaml:"name,omitempty" json:"name,omitempty"`
	Depth          *int     `yaml:"depth,omitempty" json:"depth,omitempty"`
}

func Bool(b bool) *bool       { return &b }
func String(s string) *string { return &s }
func Int(n int) *int          { return &n }

// IsZero — ни один ключ не задан.
func (c Config) IsZero() bool {
	return c.Fields == nil && c.IncludeAll == nil && c.Exclude == nil &&
		c.OptionalAll == nil && c.OptionalFields == nil && c.Name == nil && c.Depth == nil
}

// Merge возвращает c, поверх которого наложены заданные ключи over.
func (c Config) Merge(over Config) Config {
	out := c
	if over.Fields != nil {
		out.Fields = over.Fields
	}
	if over.IncludeAll != nil {
		out.IncludeAll = over.IncludeAll
	}
	if over.Exclude != nil {
		out.Exclude = over.Exclude
	}
	if over.OptionalAll != nil {
		out.OptionalAll = over.OptionalAll
	}
	if over.OptionalFields != nil {
		out.OptionalFields = over.OptionalFields
	}
	if over.Name != nil {
		out.Name = over.Name
	}
	if over.Depth != nil {
		out.Depth = over.Depth
	}
	return out
}

type defaultKey struct {
	verb verb.Verb
	dir  Direction
}

// defaults — встроенные умолчания по (глагол, направление); отсутствие ключа = пустой Config.
var defaults = map[defaultKey]Config{
	{verb.Post, Input}:  {Exclude: []string{model.PrimaryKeyName}},
	{verb.Put, Input}:   {Exclude: []string{model.PrimaryKeyName}},
	{verb.Patch, Input}: {Exclude: []string{model.PrimaryKeyName}, OptionalAll: Bool(true)},
}

// Defaults возвращает копию умолчаний для глагола и направления.
func Defaults(v verb.Verb, dir Direction) Config {
	return Config{}.Merge(defaults[defaultKey{v, dir}])
}

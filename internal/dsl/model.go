package dsl

// Entity описывает модель из DSL-файла
type Entity struct {
	Module  string
	Name    string
	Fields  []Field
	Options map[string]string // plural и прочие опции уровня сущности
}

// Field описывает поле модели
type Field struct {
	Name      string
	Type      string            // string, text, int, float, decimal, bool, date, datetime, enum, ref, array
	ElemType  string            // тип элемента для array[...]: ref, enum или примитив
	Enum      []string          // значения enum, если поле типа enum
	RefTarget string            // цель ссылки для ref[...] и array[ref[...]]: "Publisher" или "books_api.Publisher"
	Options   map[string]string // required, unique, max_length, on_delete, related_name и прочие опции
}

// FQN возвращает "module.Name".
func (e *Entity) FQN() string {
	return e.Module + "." + e.Name
}

// Flag — опция-флаг (required, unique): присутствует и не равна false.
func (f Field) Flag(name string) bool {
	v, ok := f.Options[name]
	if !ok {
		return false
	}
	return v != "false" && v != "0" && v != "no"
}

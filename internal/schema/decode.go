package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"autodojo/internal/model"
)

var ErrInvalidPayload = errors.New("invalid payload")

var validate = validator.New()

func init() {
	// в сообщениях — JSON-ключи, а не имена полей Go
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := validate.RegisterValidation("digits", validDigits); err != nil {
		panic(err)
	}
}

// DecodeError перечисляет проблемы входного payload.
type DecodeError struct {
	Problems []string
}

func (e *DecodeError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (e *DecodeError) Unwrap() error { return ErrInvalidPayload }

// Payload — разобранное тело запроса. Хранит только явно переданные поля,
// это и есть контракт частичного обновления.
type Payload struct {
	Schema *Schema
	fields []string
	values map[string]any
}

// Fields — имена полей модели, переданные явно, в порядке схемы.
func (p *Payload) Fields() []string {
	return append([]string(nil), p.fields...)
}

func (p *Payload) Value(name string) (any, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Values — копия переданных значений по имени поля модели.
func (p *Payload) Values() map[string]any {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// PayloadOf собирает Payload из готовой карты (ключи — JSON-ключи схемы).
func PayloadOf(s *Schema, values map[string]any) (*Payload, error) {
	body, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return s.Decode(body)
}

// Decode разбирает JSON-объект по входной схеме: ключи внешних ключей принимаются
// и как "publisher_id", и как "publisher"; неизвестные ключи игнорируются.
func (s *Schema) Decode(body []byte) (*Payload, error) {
	if s.typ == nil || s.Model == nil {
		return nil, fmt.Errorf("%w: schema %s cannot decode payloads", ErrInvalidPayload, s.Name)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return nil, &DecodeError{Problems: []string{"request body must be a JSON object"}}
	}

	var problems []string
	present := make(map[string]json.RawMessage, len(s.Fields))
	for _, f := range s.Fields {
		msg, ok := raw[f.Key]
		if !ok && f.Model != nil && f.Model.IsForeignKey() {
			msg, ok = raw[f.Model.Name]
		}
		if !ok {
			if !f.Optional {
				problems = append(problems, fmt.Sprintf("field '%s' is required", f.Key))
			}
			continue
		}
		if bytes.Equal(bytes.TrimSpace(msg), []byte("null")) && !f.Model.Nullable {
			problems = append(problems, fmt.Sprintf("field '%s' may not be null", f.Key))
			continue
		}
		present[f.Key] = msg
	}
	if len(problems) > 0 {
		return nil, &DecodeError{Problems: problems}
	}

	normalized, err := json.Marshal(present)
	if err != nil {
		return nil, err
	}
	ptr := reflect.New(s.typ)
	if err := json.Unmarshal(normalized, ptr.Interface()); err != nil {
		return nil, &DecodeError{Problems: []string{err.Error()}}
	}
	if err := validate.Struct(ptr.Interface()); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("field '%s' failed '%s' validation", fe.Field(), describeRule(fe)))
		}
		return nil, &DecodeError{Problems: problems}
	}

	p := &Payload{Schema: s, values: make(map[string]any, len(present))}
	elem := ptr.Elem()
	for _, f := range s.Fields {
		if _, ok := present[f.Key]; !ok {
			continue
		}
		p.fields = append(p.fields, f.Name)
		p.values[f.Name] = plainValue(elem.FieldByName(f.goName))
	}
	return p, nil
}

func describeRule(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// plainValue снимает указатель и приводит значение к каноническому типу хранилища.
func plainValue(v reflect.Value) any {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	switch x := v.Interface().(type) {
	case []int64:
		if x == nil {
			return []int64{}
		}
		return append([]int64(nil), x...)
	case json.Number:
		return x.String()
	case time.Time:
		return x.UTC()
	default:
		return x
	}
}

// validateTag строит правила validator по опциям поля модели.
func validateTag(f *Field) string {
	if f.Model == nil || f.Nested != nil {
		return ""
	}
	var rules []string
	switch f.Model.Kind {
	case model.KindString, model.KindText:
		if f.Model.MaxLength > 0 {
			rules = append(rules, "max="+strconv.Itoa(f.Model.MaxLength))
		}
	case model.KindEnum:
		if len(f.Model.Choices) > 0 {
			quoted := make([]string, len(f.Model.Choices))
			for i, c := range f.Model.Choices {
				c = strings.NewReplacer(",", "0x2C", "|", "0x7C").Replace(c)
				quoted[i] = "'" + c + "'"
			}
			rules = append(rules, "oneof="+strings.Join(quoted, " "))
		}
	case model.KindDate:
		rules = append(rules, "datetime=2006-01-02")
	case model.KindRefList:
		rules = append(rules, "unique")
	case model.KindDecimal:
		rules = append(rules, "numeric")
		if f.Model.MaxDigits > 0 {
			rules = append(rules, fmt.Sprintf("digits=%d:%d", f.Model.MaxDigits, f.Model.DecimalPlaces))
		}
	}
	if len(rules) == 0 {
		return ""
	}
	if f.Optional || f.Model.Nullable {
		rules = append([]string{"omitempty"}, rules...)
	}
	return strings.Join(rules, ",")
}

// validDigits проверяет max_digits:decimal_places для decimal-полей.
func validDigits(fl validator.FieldLevel) bool {
	var maxDigits, places int
	if _, err := fmt.Sscanf(fl.Param(), "%d:%d", &maxDigits, &places); err != nil {
		return false
	}
	s := strings.TrimLeft(fl.Field().String(), "+-")
	intPart, frac, _ := strings.Cut(s, ".")
	intPart = strings.TrimLeft(intPart, "0")
	frac = strings.TrimRight(frac, "0")
	return len(frac) <= places && len(intPart)+len(frac) <= maxDigits && len(intPart) <= maxDigits-places
}

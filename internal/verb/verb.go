// Package verb — презентационные HTTP-глаголы AutoDojo.
package verb

import (
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Verb string

const (
	GetOne  Verb = "GET_ONE"
	GetList Verb = "GET_LIST" // отличается от GET_ONE только формой пути
	Post    Verb = "POST"
	Put     Verb = "PUT"
	Patch   Verb = "PATCH"
	Delete  Verb = "DELETE"
)

// Defaults — набор глаголов по умолчанию, в порядке регистрации.
func Defaults() []Verb {
	return []Verb{GetOne, GetList, Post, Patch, Put, Delete}
}

// Transport переводит презентационный глагол в транспортный HTTP-метод.
func (v Verb) Transport() string {
	switch v {
	case GetOne, GetList:
		return http.MethodGet
	default:
		return string(v)
	}
}

// Title: PATCH → "Patch", GET_LIST → "Get".
func (v Verb) Title() string {
	// Caser не потокобезопасен — создаём на каждый вызов
	return cases.Title(language.Und).String(strings.ToLower(v.Transport()))
}

// HasID — глаголы, работающие с путём "/{id}".
func (v Verb) HasID() bool {
	switch v {
	case GetOne, Put, Patch, Delete:
		return true
	}
	return false
}

func (v Verb) Valid() bool {
	switch v {
	case GetOne, GetList, Post, Put, Patch, Delete:
		return true
	}
	return false
}

func (v Verb) String() string { return string(v) }

// Parse принимает и старые имена ("GET", "GETLIST"), и канонические.
func Parse(s string) (Verb, error) {
	switch k := strings.ToUpper(strings.TrimSpace(s)); k {
	case "GET", "GET_ONE", "GETONE":
		return GetOne, nil
	case "GETLIST", "GET_LIST", "LIST":
		return GetList, nil
	default:
		if v := Verb(k); v.Valid() {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown verb %q", s)
}

// UnmarshalText позволяет использовать Verb ключом в YAML/JSON.
func (v *Verb) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Package autodojo генерирует REST-операции по описанию модели: путь, схемы запроса
// и ответа, таблицу ответов и обработчик для каждого глагола.
package autodojo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"autodojo/internal/model"
	"autodojo/internal/objects"
	"autodojo/internal/schema"
	"autodojo/internal/verb"
)

var ErrHandlerBinding = errors.New("handler binding")

// Request — то, что обработчику нужно от транспорта.
type Request struct {
	ID     int64 // для путей "/{id}"
	Body   []byte
	Header http.Header
}

// Response — статус и тело; Body == nil означает пустое тело.
type Response struct {
	Status int
	Body   any
}

type Handler func(ctx context.Context, req Request) (Response, error)

// ResponseSchema — схема тела ответа; List — массив объектов схемы.
type ResponseSchema struct {
	Schema *schema.Schema
	List   bool
}

// ResponseTable: статус -> схема тела, nil — ответ без тела.
type ResponseTable map[int]*ResponseSchema

// Statuses — коды в порядке возрастания.
func (t ResponseTable) Statuses() []int {
	out := make([]int, 0, len(t))
	for code := range t {
		out = append(out, code)
	}
	sort.Ints(out)
	return out
}

type Generator interface {
	Verb() verb.Verb
	URLPath() string
	Responses() ResponseTable
	BuildHandler() (Handler, error)
	RequestSchema() *schema.Schema
	ResponseSchema() *schema.Schema
}

const (
	pathCollection = "/"
	pathItem       = "/{id}"
)

var errorResponse = &ResponseSchema{Schema: schema.ErrorSchema}

// base — общее для всех глаголов.
type base struct {
	verb     verb.Verb
	model    *model.Model
	objects  *objects.Manager
	request  *schema.Schema
	response *schema.Schema
}

func (b *base) Verb() verb.Verb                { return b.verb }
func (b *base) RequestSchema() *schema.Schema  { return b.request }
func (b *base) ResponseSchema() *schema.Schema { return b.response }

func (b *base) URLPath() string {
	if b.verb.HasID() {
		return pathItem
	}
	return pathCollection
}

func (b *base) one() *ResponseSchema { return &ResponseSchema{Schema: b.response} }

// input проверяет, что схема тела уже синтезирована: обработчик захватывает её в замыкание.
func (b *base) input() (*schema.Schema, error) {
	if b.request == nil {
		return nil, fmt.Errorf("%w: %s %s has no request schema", ErrHandlerBinding, b.model.Name, b.verb)
	}
	return b.request, nil
}

func respond(out any, err error) (Response, error) {
	if err != nil {
		return Response{}, err
	}
	return Response{Status: http.StatusOK, Body: out}, nil
}

// decode разбирает тело по схеме; ошибки формата — 400.
func decode(s *schema.Schema, body []byte) (*schema.Payload, error) {
	p, err := s.Decode(body)
	var derr *schema.DecodeError
	if errors.As(err, &derr) {
		return nil, &objects.APIError{Status: http.StatusBadRequest, Message: derr.Error()}
	}
	return p, err
}

type getOne struct{ base }

func (g *getOne) Responses() ResponseTable {
	return ResponseTable{http.StatusOK: g.one(), http.StatusNotFound: errorResponse}
}

func (g *getOne) BuildHandler() (Handler, error) {
	m, out, mg := g.model, g.response, g.objects
	return func(ctx context.Context, req Request) (Response, error) {
		inst, err := mg.Fetch(ctx, m.Namespace, m.Name, req.ID)
		if err != nil {
			return Response{}, err
		}
		body, err := out.Render(ctx, inst, mg.Lookup())
		return respond(body, err)
	}, nil
}

type getList struct{ base }

func (g *getList) Responses() ResponseTable {
	return ResponseTable{http.StatusOK: {Schema: g.response, List: true}}
}

func (g *getList) BuildHandler() (Handler, error) {
	m, out, mg := g.model, g.response, g.objects
	return func(ctx context.Context, req Request) (Response, error) {
		all, err := mg.List(ctx, m.Namespace, m.Name)
		if err != nil {
			return Response{}, err
		}
		body, err := out.RenderAll(ctx, all, mg.Lookup())
		return respond(body, err)
	}, nil
}

type post struct{ base }

func (g *post) Responses() ResponseTable {
	return ResponseTable{http.StatusOK: g.one(), http.StatusBadRequest: errorResponse}
}

func (g *post) BuildHandler() (Handler, error) {
	in, err := g.input()
	if err != nil {
		return nil, err
	}
	m, out, mg := g.model, g.response, g.objects
	return func(ctx context.Context, req Request) (Response, error) {
		p, err := decode(in, req.Body)
		if err != nil {
			return Response{}, err
		}
		inst, err := mg.Create(ctx, m.Namespace, m.Name, p)
		if err != nil {
			return Response{}, err
		}
		body, err := out.Render(ctx, inst, mg.Lookup())
		return respond(body, err)
	}, nil
}

// update — общий обработчик PUT и PATCH; различаются только входной схемой.
type update struct{ base }

func (g *update) Responses() ResponseTable {
	return ResponseTable{http.StatusOK: g.one(), http.StatusNotFound: errorResponse}
}

func (g *update) BuildHandler() (Handler, error) {
	in, err := g.input()
	if err != nil {
		return nil, err
	}
	m, out, mg := g.model, g.response, g.objects
	return func(ctx context.Context, req Request) (Response, error) {
		p, err := decode(in, req.Body)
		if err != nil {
			return Response{}, err
		}
		inst, err := mg.ApplyUpdate(ctx, m.Namespace, m.Name, req.ID, p)
		if err != nil {
			return Response{}, err
		}
		body, err := out.Render(ctx, inst, mg.Lookup())
		return respond(body, err)
	}, nil
}

type remove struct{ base }

func (g *remove) Responses() ResponseTable {
	return ResponseTable{http.StatusOK: nil, http.StatusNotFound: errorResponse}
}

func (g *remove) BuildHandler() (Handler, error) {
	m, mg := g.model, g.objects
	return func(ctx context.Context, req Request) (Response, error) {
		if err := mg.Delete(ctx, m.Namespace, m.Name, req.ID); err != nil {
			return Response{}, err
		}
		return Response{Status: http.StatusOK}, nil
	}, nil
}

// generators — явная таблица конструкторов по глаголу.
var generators = map[verb.Verb]func(b base) Generator{
	verb.GetOne:  func(b base) Generator { return &getOne{b} },
	verb.GetList: func(b base) Generator { return &getList{b} },
	verb.Post:    func(b base) Generator { return &post{b} },
	verb.Put:     func(b base) Generator { return &update{b} },
	verb.Patch:   func(b base) Generator { return &update{b} },
	verb.Delete:  func(b base) Generator { return &remove{b} },
}

// takesBody — глаголы с телом запроса.
func takesBody(v verb.Verb) bool {
	return v == verb.Post || v == verb.Put || v == verb.Patch
}

// GeneratorOptions — явные схемы и конфигурации одного глагола.
type GeneratorOptions struct {
	RequestSchema  *schema.Schema
	ResponseSchema *schema.Schema
	RequestConfig  schema.Config
	ResponseConfig schema.Config
}

// NewGenerator синтезирует схемы и возвращает генератор глагола.
func NewGenerator(v verb.Verb, m *model.Model, mg *objects.Manager, o GeneratorOptions) (Generator, error) {
	ctor, ok := generators[v]
	if !ok {
		return nil, fmt.Errorf("unknown verb %q", v)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: 'model' cannot be empty", model.ErrMissingRequiredArgument)
	}
	b := base{verb: v, model: m, objects: mg}

	var err error
	if takesBody(v) {
		if b.request, err = schema.Synthesize(m, v, schema.Input, o.RequestSchema, o.RequestConfig); err != nil {
			return nil, err
		}
	} else if o.RequestSchema != nil || !o.RequestConfig.IsZero() {
		return nil, fmt.Errorf("%s takes no request body, request schema is not allowed", v)
	}
	if b.response, err = schema.Synthesize(m, v, schema.Output, o.ResponseSchema, o.ResponseConfig); err != nil {
		return nil, err
	}
	return ctor(b), nil
}

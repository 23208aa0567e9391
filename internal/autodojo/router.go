package autodojo

import (
	"fmt"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"autodojo/internal/model"
	"autodojo/internal/objects"
	"autodojo/internal/schema"
	"autodojo/internal/verb"
)

// Options — параметры сборки роутера одной модели.
type Options struct {
	Namespace string
	Model     any // имя модели или *model.Model
	Verbs     []verb.Verb
	Auth      AuthPolicy

	RequestSchemas  map[verb.Verb]*schema.Schema
	ResponseSchemas map[verb.Verb]*schema.Schema
	RequestConfigs  map[verb.Verb]schema.Config
	ResponseConfigs map[verb.Verb]schema.Config

	Logger *zap.Logger
}

// RouteEntry — одна зарегистрированная операция.
type RouteEntry struct {
	Verb      verb.Verb
	Method    string
	Path      string // относительно BasePath
	Responses ResponseTable
	Handler   Handler
	Tags      []string
	Request   *schema.Schema
	Response  *schema.Schema
}

// Registrar — внешний фреймворк, принимающий операции.
type Registrar interface {
	RegisterOperation(path, method string, responses ResponseTable, h Handler, tags []string) error
}

// Router — результат сборки: операции модели и реестр их схем.
type Router struct {
	Namespace string
	Model     *model.Model
	BasePath  string // "/books/"

	entries []RouteEntry
	schemas map[string]*schema.Schema
	log     *zap.Logger
}

// NewRouter собирает роутер. Namespace и Model проверяются до любой другой работы.
func NewRouter(mg *objects.Manager, opts Options) (*Router, error) {
	if err := model.Required(opts.Namespace, opts.Model); err != nil {
		return nil, err
	}
	if mg == nil {
		return nil, fmt.Errorf("%w: 'objects' cannot be empty", model.ErrMissingRequiredArgument)
	}
	m, err := model.Resolve(mg.Models, opts.Namespace, opts.Model)
	if err != nil {
		return nil, err
	}

	verbs := opts.Verbs
	if len(verbs) == 0 {
		verbs = verb.Defaults()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := &Router{
		Namespace: opts.Namespace,
		Model:     m,
		BasePath:  "/" + m.PluralName + "/",
		schemas:   map[string]*schema.Schema{},
		log:       log.With(zap.String("model", m.FQN())),
	}
	r.addSchema(schema.ErrorSchema)

	seen := map[verb.Verb]bool{}
	for _, v := range verbs {
		if !v.Valid() {
			return nil, fmt.Errorf("%s: unknown verb %q", m.FQN(), v)
		}
		if seen[v] {
			return nil, fmt.Errorf("%s: duplicate verb %s", m.FQN(), v)
		}
		seen[v] = true

		g, err := NewGenerator(v, m, mg, GeneratorOptions{
			RequestSchema:  opts.RequestSchemas[v],
			ResponseSchema: opts.ResponseSchemas[v],
			RequestConfig:  opts.RequestConfigs[v],
			ResponseConfig: opts.ResponseConfigs[v],
		})
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", m.FQN(), v, err)
		}
		h, err := g.BuildHandler()
		if err != nil {
			return nil, err
		}

		responses := g.Responses()
		if opts.Auth != nil {
			h = Guard(opts.Auth, h)
			responses[http.StatusUnauthorized] = errorResponse
		}
		for _, s := range []*schema.Schema{g.RequestSchema(), g.ResponseSchema()} {
			if s != nil {
				r.addSchema(s)
			}
		}

		r.entries = append(r.entries, RouteEntry{
			Verb:      v,
			Method:    v.Transport(),
			Path:      g.URLPath(),
			Responses: responses,
			Handler:   h,
			Tags:      []string{m.Name},
			Request:   g.RequestSchema(),
			Response:  g.ResponseSchema(),
		})
		r.log.Debug("operation generated", zap.String("verb", v.String()), zap.String("path", g.URLPath()))
	}
	return r, nil
}

// addSchema: одинаковые схемы под одним именем — одна запись;
// разные схемы с одним именем — предупреждение, побеждает первая.
func (r *Router) addSchema(s *schema.Schema) {
	prev, ok := r.schemas[s.Name]
	switch {
	case !ok:
		r.schemas[s.Name] = s
	case prev.Equal(s):
	default:
		r.log.Warn("schema name reused for a different structure", zap.String("schema", s.Name))
	}
}

// Entries — операции в порядке глаголов.
func (r *Router) Entries() []RouteEntry {
	return append([]RouteEntry(nil), r.entries...)
}

// Schemas — схемы роутера по имени.
func (r *Router) Schemas() []*schema.Schema {
	names := make([]string, 0, len(r.schemas))
	for n := range r.schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*schema.Schema, len(names))
	for i, n := range names {
		out[i] = r.schemas[n]
	}
	return out
}

// Tag — тег операций в документации.
func (r *Router) Tag() string { return r.Model.Name }

// Register передаёт операции фреймворку.
func (r *Router) Register(reg Registrar) error {
	for _, e := range r.entries {
		if err := reg.RegisterOperation(e.Path, e.Method, e.Responses, e.Handler, e.Tags); err != nil {
			return fmt.Errorf("%s %s%s: %w", e.Method, r.BasePath, e.Path, err)
		}
		r.log.Info("route registered", zap.String("method", e.Method), zap.String("path", r.BasePath+e.Path[1:]))
	}
	return nil
}

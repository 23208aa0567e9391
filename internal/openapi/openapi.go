// Package openapi собирает OpenAPI 3.1 документ по таблицам маршрутов роутеров.
package openapi

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi31"

	"autodojo/internal/autodojo"
)

// Build описывает все операции роутеров, смонтированных под basePath.
func Build(title, version, basePath string, routers ...*autodojo.Router) ([]byte, error) {
	refl := openapi31.NewReflector()
	refl.Spec.Info.WithTitle(title).WithVersion(version)

	for _, r := range routers {
		for _, e := range r.Entries() {
			path := strings.TrimSuffix(basePath, "/") + r.BasePath + strings.TrimPrefix(e.Path, "/")
			op, err := refl.NewOperationContext(e.Method, path)
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", e.Method, path, err)
			}
			op.SetID(strings.ToLower(r.Model.Name) + "_" + strings.ToLower(string(e.Verb)))
			op.SetTags(e.Tags...)
			op.SetSummary(summary(e))

			if req := requestType(e); req != nil {
				op.AddReqStructure(reflect.New(req).Elem().Interface(), openapi.WithContentType("application/json"))
			}
			for _, code := range e.Responses.Statuses() {
				rs := e.Responses[code]
				if rs == nil {
					op.AddRespStructure(nil, openapi.WithHTTPStatus(code))
					continue
				}
				t := rs.Schema.Type()
				if rs.List {
					t = reflect.SliceOf(t)
				}
				op.AddRespStructure(reflect.New(t).Elem().Interface(), openapi.WithHTTPStatus(code))
			}

			if err := refl.AddOperation(op); err != nil {
				return nil, fmt.Errorf("%s %s: %w", e.Method, path, err)
			}
		}
	}
	return refl.Spec.MarshalJSON()
}

// requestType — параметр пути id и поля тела в одной структуре.
func requestType(e autodojo.RouteEntry) reflect.Type {
	var fields []reflect.StructField
	if strings.Contains(e.Path, "{id}") {
		fields = append(fields, reflect.StructField{
			Name: "PathID",
			Type: reflect.TypeOf(int64(0)),
			Tag:  `path:"id" required:"true"`,
		})
	}
	if e.Request != nil {
		t := e.Request.Type()
		for i := 0; i < t.NumField(); i++ {
			fields = append(fields, t.Field(i))
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return reflect.StructOf(fields)
}

func summary(e autodojo.RouteEntry) string {
	var parts []string
	if e.Request != nil {
		parts = append(parts, "request: "+e.Request.Name)
	}
	if e.Response != nil {
		parts = append(parts, "response: "+e.Response.Name)
	}
	return fmt.Sprintf("%s %s (%s)", e.Verb, e.Tags[0], strings.Join(parts, ", "))
}

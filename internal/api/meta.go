package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"autodojo/internal/autodojo"
	"autodojo/internal/model"
	"autodojo/internal/schema"
)

// ===== META HANDLERS =====

type metaModelListItem struct {
	Namespace string `json:"namespace"`
	Model     string `json:"model"`
	Plural    string `json:"plural"`
	Path      string `json:"path"`
}

func metaListHandler(a *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := make([]metaModelListItem, 0, len(a.Routers))
		for _, r := range a.Routers {
			out = append(out, metaModelListItem{
				Namespace: r.Model.Namespace,
				Model:     r.Model.Name,
				Plural:    r.Model.PluralName,
				Path:      a.Config.BasePath + r.BasePath,
			})
		}
		c.JSON(http.StatusOK, out)
	}
}

type metaField struct {
	Name        string   `json:"name"`
	Key         string   `json:"key"`
	Kind        string   `json:"kind"`
	Nullable    bool     `json:"nullable,omitempty"`
	PrimaryKey  bool     `json:"primaryKey,omitempty"`
	Unique      bool     `json:"unique,omitempty"`
	MaxLength   int      `json:"maxLength,omitempty"`
	Choices     []string `json:"choices,omitempty"`
	Ref         string   `json:"ref,omitempty"` // FQN связанной модели
	Many        bool     `json:"many,omitempty"`
	RelatedName string   `json:"relatedName,omitempty"`
	OnDelete    string   `json:"onDelete,omitempty"`
}

type metaModel struct {
	Namespace string      `json:"namespace"`
	Model     string      `json:"model"`
	Plural    string      `json:"plural"`
	Fields    []metaField `json:"fields"`
	Routes    []RouteRow  `json:"routes"`
}

func metaModelHandler(a *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := a.Models.Lookup(c.Param("namespace"), c.Param("model"))
		if err != nil {
			c.JSON(http.StatusNotFound, schema.ErrorBody{APIError: "Model not found"})
			return
		}

		fields := make([]metaField, 0, len(m.Fields))
		for _, f := range m.Fields {
			mf := metaField{
				Name:       f.Name,
				Key:        f.Key(),
				Kind:       string(f.Kind),
				Nullable:   f.Nullable,
				PrimaryKey: f.PrimaryKey,
				Unique:     f.Unique,
				MaxLength:  f.MaxLength,
				Choices:    append([]string(nil), f.Choices...),
			}
			if f.IsForeignKey() || f.IsManyToMany() {
				mf.Ref = f.Related.FQN()
				mf.Many = f.IsManyToMany()
				mf.RelatedName = f.RelatedName
				mf.OnDelete = string(f.OnDelete)
			}
			fields = append(fields, mf)
		}

		routes := []RouteRow{}
		if r := a.router(m); r != nil {
			routes = append(routeRows(a.Config.BasePath, r), a.relatedRows(r)...)
		}
		c.JSON(http.StatusOK, metaModel{
			Namespace: m.Namespace,
			Model:     m.Name,
			Plural:    m.PluralName,
			Fields:    fields,
			Routes:    routes,
		})
	}
}

// router — роутер модели, если она опубликована.
func (a *App) router(m *model.Model) *autodojo.Router {
	for _, r := range a.Routers {
		if r.Model == m {
			return r
		}
	}
	return nil
}

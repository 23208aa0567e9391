package api

import (
	"context"
	"net/http"

	"autodojo/internal/autodojo"
)

// registerRelated монтирует GET {id}/<related_name> для обратных связей многие-ко-многим:
// ответ — список id владельцев. В OpenAPI-документ эти маршруты не входят.
func (a *App) registerRelated(reg autodojo.Registrar, rt *autodojo.Router) error {
	for _, rv := range a.Models.Reverse(rt.Model) {
		relation := rv.Name
		var h autodojo.Handler = func(ctx context.Context, req autodojo.Request) (autodojo.Response, error) {
			ids, err := a.Objects.Referrers(ctx, rt.Namespace, rt.Model.Name, req.ID, relation)
			if err != nil {
				return autodojo.Response{}, err
			}
			return autodojo.Response{Status: http.StatusOK, Body: ids}, nil
		}
		if a.auth != nil {
			h = autodojo.Guard(a.auth, h)
		}
		if err := reg.RegisterOperation("/{id}/"+relation, http.MethodGet, nil, h, []string{rt.Tag()}); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) relatedRows(rt *autodojo.Router) []RouteRow {
	var out []RouteRow
	for _, rv := range a.Models.Reverse(rt.Model) {
		out = append(out, RouteRow{
			Method:   http.MethodGet,
			Path:     a.Config.BasePath + rt.BasePath + "{id}/" + rv.Name,
			Verb:     "RELATED",
			Tag:      rt.Tag(),
			Statuses: []int{http.StatusOK, http.StatusNotFound},
			Response: "list[int]",
		})
	}
	return out
}

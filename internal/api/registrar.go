package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"autodojo/internal/autodojo"
	"autodojo/internal/objects"
	"autodojo/internal/schema"
)

// ginRegistrar монтирует операции роутера в группу gin.
type ginRegistrar struct {
	group *gin.RouterGroup
}

func (r *ginRegistrar) RegisterOperation(path, method string, _ autodojo.ResponseTable, h autodojo.Handler, _ []string) (err error) {
	ginPath := strings.ReplaceAll(path, "{id}", ":id")
	withID := ginPath != path

	// gin паникует на конфликтующих маршрутах
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("register %s %s: %v", method, path, rec)
		}
	}()
	r.group.Handle(method, ginPath, func(c *gin.Context) {
		req := autodojo.Request{Header: c.Request.Header}
		if withID {
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil {
				c.JSON(http.StatusNotFound, schema.ErrorBody{APIError: "Not Found"})
				return
			}
			req.ID = id
		}
		if c.Request.Body != nil {
			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				c.JSON(http.StatusBadRequest, schema.ErrorBody{APIError: "Cannot read request body"})
				return
			}
			req.Body = body
		}

		res, err := h(c.Request.Context(), req)
		var apiErr *objects.APIError
		switch {
		case errors.As(err, &apiErr):
			c.JSON(apiErr.Status, apiErr.Body())
		case err != nil:
			// прочие ошибки хранилища — 500, текст только в журнал
			_ = c.AbortWithError(http.StatusInternalServerError, err)
		case res.Body == nil:
			c.Status(res.Status)
		default:
			c.JSON(res.Status, res.Body)
		}
	})
	return nil
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"autodojo/internal/openapi"
)

// Version — версия API в OpenAPI-документе.
const Version = "2.0.0"

// NewEngine строит gin-движок: служебные маршруты и операции всех роутеров под BasePath.
func NewEngine(a *App) (*gin.Engine, error) {
	doc, err := openapi.Build(a.Config.Title, Version, a.Config.BasePath, a.Routers...)
	if err != nil {
		return nil, fmt.Errorf("openapi: %w", err)
	}

	r := gin.New()
	r.Use(requestID(), requestLogger(a.Log), recovery(a.Log))

	base := r.Group(a.Config.BasePath)
	{
		base.GET("/meta", metaListHandler(a))
		base.GET("/meta/:namespace/:model", metaModelHandler(a))
		base.GET("/openapi.json", func(c *gin.Context) {
			c.Data(http.StatusOK, "application/json", doc)
		})
	}

	for _, rt := range a.Routers {
		group := base.Group(strings.TrimSuffix(rt.BasePath, "/"))
		reg := &ginRegistrar{group: group}
		if err := rt.Register(reg); err != nil {
			return nil, err
		}
		if err := a.registerRelated(reg, rt); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RunServer обслуживает запросы до отмены ctx, затем мягко останавливается.
func RunServer(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

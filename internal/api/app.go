package api

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"autodojo/internal/autodojo"
	"autodojo/internal/config"
	"autodojo/internal/dsl"
	"autodojo/internal/manifest"
	"autodojo/internal/model"
	"autodojo/internal/objects"
	"autodojo/internal/store"
	"autodojo/internal/store/memory"
	"autodojo/internal/store/pg"
)

// App — собранное приложение: модели, хранилище и роутеры из манифеста.
type App struct {
	Config  config.Config
	Models  *model.Registry
	Objects *objects.Manager
	Routers []*autodojo.Router
	Log     *zap.Logger

	db   *sql.DB
	auth autodojo.AuthPolicy
}

// Bootstrap читает DSL и манифест, открывает хранилище и собирает роутеры.
func Bootstrap(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	entities, err := dsl.LoadAllEntities(cfg.DSLDir)
	if err != nil {
		return nil, fmt.Errorf("dsl: %w", err)
	}
	reg, err := model.FromEntities(entities)
	if err != nil {
		return nil, fmt.Errorf("models: %w", err)
	}
	log.Info("models loaded", zap.Int("count", len(reg.Models())))

	mf, err := manifest.Load(cfg.Manifest)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}

	var backend store.Backend
	var db *sql.DB
	if cfg.DBURL == "" {
		log.Info("using in-memory store")
		backend = memory.New(reg)
	} else {
		if db, err = pg.Open(cfg.DBURL); err != nil {
			return nil, fmt.Errorf("db: %w", err)
		}
		if cfg.AutoMigrate {
			ddl, err := pg.GenerateDDL(reg.Models())
			if err == nil {
				err = pg.ApplyDDL(ctx, db, ddl, log)
			}
			if err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		backend = pg.New(db)
	}

	app, err := New(cfg, reg, backend, mf, log)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}
	app.db = db
	return app, nil
}

// New собирает роутеры по манифесту поверх готовых реестра и хранилища.
func New(cfg config.Config, reg *model.Registry, backend store.Backend, mf *manifest.Manifest, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	app := &App{Config: cfg, Models: reg, Objects: objects.New(reg, backend), Log: log}

	var auth autodojo.AuthPolicy
	if cfg.APIToken != "" {
		auth = autodojo.BearerToken(cfg.APIToken)
	}
	app.auth = auth
	for i, entry := range mf.Routers {
		opts := entry.Options()
		opts.Auth = auth
		opts.Logger = log
		r, err := autodojo.NewRouter(app.Objects, opts)
		if err != nil {
			return nil, fmt.Errorf("router #%d (%s.%s): %w", i+1, entry.Namespace, entry.Model, err)
		}
		app.Routers = append(app.Routers, r)
	}
	return app, nil
}

func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// RouteRow — строка таблицы маршрутов.
type RouteRow struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Verb     string `json:"verb"`
	Tag      string `json:"tag"`
	Statuses []int  `json:"statuses"`
	Request  string `json:"request,omitempty"`
	Response string `json:"response,omitempty"`
}

// Routes — все операции с полными путями.
func (a *App) Routes() []RouteRow {
	var out []RouteRow
	for _, r := range a.Routers {
		out = append(out, routeRows(a.Config.BasePath, r)...)
		out = append(out, a.relatedRows(r)...)
	}
	return out
}

func routeRows(basePath string, r *autodojo.Router) []RouteRow {
	var out []RouteRow
	for _, e := range r.Entries() {
		row := RouteRow{
			Method:   e.Method,
			Path:     basePath + r.BasePath + e.Path[1:],
			Verb:     e.Verb.String(),
			Tag:      r.Tag(),
			Statuses: e.Responses.Statuses(),
		}
		if e.Request != nil {
			row.Request = e.Request.Name
		}
		if e.Response != nil {
			row.Response = e.Response.Name
		}
		out = append(out, row)
	}
	return out
}

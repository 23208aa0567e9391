// Package objects — операции над экземплярами моделей, общие для всех глаголов:
// выборка, частичное обновление с разрешением внешних ключей, создание и удаление.
package objects

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"autodojo/internal/model"
	"autodojo/internal/schema"
	"autodojo/internal/store"
)

type Manager struct {
	Models *model.Registry
	DB     store.Backend
}

func New(models *model.Registry, db store.Backend) *Manager {
	return &Manager{Models: models, DB: db}
}

// model ищет модель в момент запроса; отсутствие — 404, а не ошибка сервера.
func (mg *Manager) model(ns, name string) (*model.Model, error) {
	m, err := mg.Models.Lookup(ns, name)
	if errors.Is(err, model.ErrModelNotFound) {
		return nil, InstanceNotFound(name)
	}
	return m, err
}

// Fetch возвращает экземпляр по первичному ключу.
func (mg *Manager) Fetch(ctx context.Context, ns, name string, id int64) (*store.Instance, error) {
	m, err := mg.model(ns, name)
	if err != nil {
		return nil, err
	}
	return mg.fetch(ctx, m, id)
}

func (mg *Manager) fetch(ctx context.Context, m *model.Model, id int64) (*store.Instance, error) {
	inst, err := mg.DB.For(m).Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, InstanceNotFound(m.Name)
	}
	return inst, err
}

// List — все экземпляры модели, без пагинации.
func (mg *Manager) List(ctx context.Context, ns, name string) ([]*store.Instance, error) {
	m, err := mg.model(ns, name)
	if err != nil {
		return nil, err
	}
	return mg.DB.For(m).All(ctx)
}

// Create создаёт экземпляр; несуществующая ссылка — 400 с тем же сообщением, что и у обновления.
func (mg *Manager) Create(ctx context.Context, ns, name string, p *schema.Payload) (*store.Instance, error) {
	m, err := mg.model(ns, name)
	if err != nil {
		return nil, err
	}
	values, err := mg.resolve(ctx, m, p, http.StatusBadRequest)
	if err != nil {
		return nil, err
	}
	return mg.DB.For(m).Create(ctx, values)
}

// ApplyUpdate меняет только переданные поля. Все ссылки проверяются до записи:
// при ошибке экземпляр в хранилище не меняется. После Save экземпляр перечитывается.
func (mg *Manager) ApplyUpdate(ctx context.Context, ns, name string, id int64, p *schema.Payload) (*store.Instance, error) {
	m, err := mg.model(ns, name)
	if err != nil {
		return nil, err
	}
	inst, err := mg.fetch(ctx, m, id)
	if err != nil {
		return nil, err
	}
	values, err := mg.resolve(ctx, m, p, http.StatusNotFound)
	if err != nil {
		return nil, err
	}
	for k, v := range values {
		inst.Set(k, v)
	}

	tbl := mg.DB.For(m)
	if err := tbl.Save(ctx, inst); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, InstanceNotFound(m.Name)
		}
		return nil, err
	}
	if err := tbl.Reload(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// Delete удаляет экземпляр по первичному ключу.
func (mg *Manager) Delete(ctx context.Context, ns, name string, id int64) error {
	m, err := mg.model(ns, name)
	if err != nil {
		return err
	}
	inst, err := mg.fetch(ctx, m, id)
	if err != nil {
		return err
	}
	err = mg.DB.For(m).Delete(ctx, inst)
	if errors.Is(err, store.ErrNotFound) {
		return InstanceNotFound(m.Name)
	}
	return err
}

// Referrers — id экземпляров владельца обратной связи relation (related_name),
// в списках которых есть id; по возрастанию. Нет экземпляра или связи — 404.
func (mg *Manager) Referrers(ctx context.Context, ns, name string, id int64, relation string) ([]int64, error) {
	m, err := mg.model(ns, name)
	if err != nil {
		return nil, err
	}
	if _, err := mg.fetch(ctx, m, id); err != nil {
		return nil, err
	}
	var rv *model.Reverse
	for _, r := range mg.Models.Reverse(m) {
		if r.Name == relation {
			rv = &r
			break
		}
	}
	if rv == nil {
		return nil, InstanceNotFound(m.Name)
	}
	owners, err := mg.DB.For(rv.Owner).All(ctx)
	if err != nil {
		return nil, err
	}
	out := []int64{}
	for _, o := range owners {
		ids, err := store.IDs(o.Get(rv.Field.Name))
		if err != nil {
			return nil, err
		}
		if slices.Contains(ids, id) {
			out = append(out, o.ID)
		}
	}
	return out, nil
}

// Lookup — загрузчик связанных экземпляров для вложенных схем ответа.
func (mg *Manager) Lookup() schema.Lookup {
	return func(ctx context.Context, m *model.Model, id int64) (*store.Instance, error) {
		return mg.DB.For(m).Get(ctx, id)
	}
}

// resolve переводит payload в значения хранилища, проверяя существование ссылок.
func (mg *Manager) resolve(ctx context.Context, m *model.Model, p *schema.Payload, status int) (map[string]any, error) {
	values := map[string]any{}
	if p == nil {
		return values, nil
	}
	for _, name := range p.Fields() {
		f, ok := m.Field(name)
		if !ok || f.PrimaryKey {
			continue
		}
		v, _ := p.Value(name)
		if f.IsManyToMany() {
			ids, err := store.IDs(v)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", m.FQN(), f.Name, err)
			}
			for _, id := range ids {
				_, err := mg.DB.For(f.Related).Get(ctx, id)
				if errors.Is(err, store.ErrNotFound) {
					return nil, RelatedNotFound(f, status)
				}
				if err != nil {
					return nil, err
				}
			}
			values[f.Name] = ids
			continue
		}
		if f.IsForeignKey() && v != nil {
			id, ok := v.(int64)
			if !ok {
				return nil, fmt.Errorf("%s.%s: foreign key value %T is not int64", m.FQN(), f.Name, v)
			}
			_, err := mg.DB.For(f.Related).Get(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				return nil, RelatedNotFound(f, status)
			}
			if err != nil {
				return nil, err
			}
		}
		values[f.Name] = v
	}
	return values, nil
}

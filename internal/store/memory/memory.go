// Package memory — хранилище в памяти процесса (по умолчанию, если dbUrl пуст).
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"autodojo/internal/model"
	"autodojo/internal/store"
)

// record — значения по имени поля; связи многие-ко-многим лежат здесь же списками id.
type record map[string]any

type DB struct {
	mu     sync.RWMutex
	models *model.Registry
	data   map[string]map[int64]record // FQN -> id -> значения
	seq    map[string]int64
}

// New создаёт пустое хранилище; реестр нужен для политик on_delete.
func New(models *model.Registry) *DB {
	return &DB{
		models: models,
		data:   make(map[string]map[int64]record),
		seq:    make(map[string]int64),
	}
}

func (db *DB) For(m *model.Model) store.Store {
	return &table{db: db, m: m}
}

type table struct {
	db *DB
	m  *model.Model
}

// наружу отдаём только копии, чтобы правки вызывающего не протекали в хранилище
func (t *table) instance(id int64, rec record) *store.Instance {
	inst := &store.Instance{Model: t.m, ID: id, Values: make(map[string]any, len(rec))}
	for k, v := range rec {
		inst.Values[k] = store.CloneValue(v)
	}
	return inst
}

// record собирает запись из значений; списки id приводятся к каноническому виду.
func (t *table) record(values map[string]any) (record, error) {
	rec := make(record, len(t.m.Fields))
	for _, f := range t.m.Fields {
		if f.PrimaryKey {
			continue
		}
		v := values[f.Name]
		if f.Kind == model.KindRefList {
			ids, err := store.IDs(v)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t.m.FQN(), f.Name, err)
			}
			v = ids
		}
		rec[f.Name] = v
	}
	return rec, nil
}

func (t *table) All(ctx context.Context) ([]*store.Instance, error) {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()

	rows := t.db.data[t.m.FQN()]
	ids := make([]int64, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*store.Instance, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.instance(id, rows[id]))
	}
	return out, nil
}

func (t *table) Get(ctx context.Context, id int64) (*store.Instance, error) {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	rec, ok := t.db.data[t.m.FQN()][id]
	if !ok {
		return nil, store.NotFound(t.m, id)
	}
	return t.instance(id, rec), nil
}

func (t *table) Create(ctx context.Context, values map[string]any) (*store.Instance, error) {
	rec, err := t.record(values)
	if err != nil {
		return nil, err
	}

	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	fqn := t.m.FQN()
	if t.db.data[fqn] == nil {
		t.db.data[fqn] = make(map[int64]record)
	}
	t.db.seq[fqn]++
	id := t.db.seq[fqn]
	t.db.data[fqn][id] = rec
	return t.instance(id, rec), nil
}

func (t *table) Save(ctx context.Context, inst *store.Instance) error {
	rec, err := t.record(inst.Values)
	if err != nil {
		return err
	}

	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	rows := t.db.data[t.m.FQN()]
	if _, ok := rows[inst.ID]; !ok {
		return store.NotFound(t.m, inst.ID)
	}
	rows[inst.ID] = rec
	return nil
}

func (t *table) Reload(ctx context.Context, inst *store.Instance) error {
	fresh, err := t.Get(ctx, inst.ID)
	if err != nil {
		return err
	}
	inst.Values = fresh.Values
	return nil
}

type rowRef struct {
	fqn string
	id  int64
}

// nullOut — обнулить ссылку (ref) или убрать id из списка (array[ref]).
type nullOut struct {
	rowRef
	field  string
	target int64 // удаляемый id, для списков
}

// restrictEdge — ссылка с on_delete=restrict; мешает, только если ссылающаяся
// строка сама не удаляется в этом же плане.
type restrictEdge struct {
	target rowRef
	child  rowRef
	field  string
}

type deletePlan struct {
	seen      map[rowRef]bool
	deletes   []rowRef
	nulls     []nullOut
	restricts []restrictEdge
}

func (t *table) Delete(ctx context.Context, inst *store.Instance) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	if _, ok := t.db.data[t.m.FQN()][inst.ID]; !ok {
		return store.NotFound(t.m, inst.ID)
	}

	// сначала план целиком: restrict не должен оставлять полуудалённое состояние
	plan := &deletePlan{seen: map[rowRef]bool{}}
	t.db.planDelete(t.m, inst.ID, plan)
	for _, r := range plan.restricts {
		if !plan.seen[r.child] {
			return fmt.Errorf("%w: %s id=%d is referenced by %s.%s id=%d",
				store.ErrRestricted, r.target.fqn, r.target.id, r.child.fqn, r.field, r.child.id)
		}
	}

	for _, n := range plan.nulls {
		rec, ok := t.db.data[n.fqn][n.id]
		if !ok {
			continue
		}
		if ids, isList := rec[n.field].([]int64); isList {
			rec[n.field] = slices.DeleteFunc(slices.Clone(ids), func(id int64) bool { return id == n.target })
			continue
		}
		rec[n.field] = nil
	}
	for _, d := range plan.deletes {
		delete(t.db.data[d.fqn], d.id)
	}
	return nil
}

// planDelete собирает каскад от (m, id): удаления, обнуления и restrict-рёбра.
// Restrict проверяется вызывающим после сбора всего плана.
func (db *DB) planDelete(m *model.Model, id int64, plan *deletePlan) {
	key := rowRef{fqn: m.FQN(), id: id}
	if plan.seen[key] {
		return
	}
	plan.seen[key] = true
	plan.deletes = append(plan.deletes, key)

	if db.models == nil {
		return
	}
	for _, child := range db.models.Models() {
		for _, f := range child.Fields {
			if f.Related != m || !(f.IsForeignKey() || f.IsManyToMany()) {
				continue
			}
			for _, rid := range referencing(db.data[child.FQN()], f, id) {
				ref := rowRef{fqn: child.FQN(), id: rid}
				switch f.OnDelete {
				case model.OnDeleteCascade:
					db.planDelete(child, rid, plan)
				case model.OnDeleteSetNull:
					plan.nulls = append(plan.nulls, nullOut{rowRef: ref, field: f.Name, target: id})
				default:
					plan.restricts = append(plan.restricts, restrictEdge{target: key, child: ref, field: f.Name})
				}
			}
		}
	}
}

// referencing — id строк, у которых поле f ссылается на id (по возрастанию).
func referencing(rows map[int64]record, f *model.Field, id int64) []int64 {
	var ids []int64
	for rid, rec := range rows {
		switch v := rec[f.Name].(type) {
		case int64:
			if v == id {
				ids = append(ids, rid)
			}
		case []int64:
			if slices.Contains(v, id) {
				ids = append(ids, rid)
			}
		}
	}
	slices.Sort(ids)
	return ids
}

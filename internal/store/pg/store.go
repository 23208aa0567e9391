// Package pg — Postgres-бэкенд хранилища: DDL по моделям и CRUD поверх database/sql.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"autodojo/internal/model"
	"autodojo/internal/store"
)

// DB — store.Backend поверх пула соединений.
type DB struct {
	sql *sql.DB
}

func New(db *sql.DB) *DB { return &DB{sql: db} }

func (db *DB) For(m *model.Model) store.Store {
	return &table{db: db.sql, m: m}
}

// querier — общее у *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type table struct {
	db *sql.DB
	m  *model.Model
}

// stored — поля, у которых есть колонка в таблице модели, первичный ключ первым.
func (t *table) stored() []*model.Field {
	out := make([]*model.Field, 0, len(t.m.Fields))
	for _, f := range t.m.Fields {
		if !f.IsManyToMany() {
			out = append(out, f)
		}
	}
	return out
}

func (t *table) columns() []string {
	fields := t.stored()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = column(f)
	}
	return cols
}

// data — колонки без первичного ключа.
func (t *table) data() []*model.Field {
	out := make([]*model.Field, 0, len(t.m.Fields))
	for _, f := range t.stored() {
		if !f.PrimaryKey {
			out = append(out, f)
		}
	}
	return out
}

// links — поля многие-ко-многим.
func (t *table) links() []*model.Field {
	var out []*model.Field
	for _, f := range t.m.Fields {
		if f.IsManyToMany() {
			out = append(out, f)
		}
	}
	return out
}

type scanner interface {
	Scan(dest ...any) error
}

func (t *table) scan(row scanner) (*store.Instance, error) {
	fields := t.stored()
	raw := make([]any, len(fields))
	dest := make([]any, len(raw))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	inst := &store.Instance{Model: t.m, Values: make(map[string]any, len(t.m.Fields))}
	for i, f := range fields {
		v, err := store.Normalize(f, raw[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.m.FQN(), err)
		}
		if f.PrimaryKey {
			id, _ := v.(int64)
			inst.ID = id
			continue
		}
		inst.Values[f.Name] = v
	}
	return inst, nil
}

// atomic выполняет fn в транзакции, если у модели есть связи многие-ко-многим;
// без них запись — один оператор.
func (t *table) atomic(ctx context.Context, fn func(q querier) error) error {
	if len(t.links()) == 0 {
		return fn(t.db)
	}
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// loadLinks заполняет списки id у экземпляров; для одного экземпляра выборка по владельцу.
func (t *table) loadLinks(ctx context.Context, q querier, insts []*store.Instance) error {
	if len(insts) == 0 {
		return nil
	}
	byID := make(map[int64]*store.Instance, len(insts))
	for _, inst := range insts {
		byID[inst.ID] = inst
	}
	for _, f := range t.links() {
		for _, inst := range insts {
			inst.Values[f.Name] = []int64{}
		}
		owner, target := joinColumns(t.m, f)
		query := fmt.Sprintf("select %s, %s from %s order by %s, %s",
			owner, target, joinTable(t.m, f), owner, target)
		var args []any
		if len(insts) == 1 {
			query = fmt.Sprintf("select %s, %s from %s where %s = $1 order by %s",
				owner, target, joinTable(t.m, f), owner, target)
			args = append(args, insts[0].ID)
		}
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", t.m.FQN(), f.Name, err)
		}
		for rows.Next() {
			var ownerID, targetID int64
			if err := rows.Scan(&ownerID, &targetID); err != nil {
				rows.Close()
				return err
			}
			if inst, ok := byID[ownerID]; ok {
				inst.Values[f.Name] = append(inst.Values[f.Name].([]int64), targetID)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
	}
	return nil
}

// writeLinks записывает связи владельца; replace сначала удаляет прежние.
func (t *table) writeLinks(ctx context.Context, q querier, inst *store.Instance, values map[string]any, replace bool) error {
	for _, f := range t.links() {
		ids, err := store.IDs(values[f.Name])
		if err != nil {
			return fmt.Errorf("%s.%s: %w", t.m.FQN(), f.Name, err)
		}
		owner, target := joinColumns(t.m, f)
		if replace {
			del := fmt.Sprintf("delete from %s where %s = $1", joinTable(t.m, f), owner)
			if _, err := q.ExecContext(ctx, del, inst.ID); err != nil {
				return fmt.Errorf("%s.%s: %w", t.m.FQN(), f.Name, err)
			}
		}
		ins := fmt.Sprintf("insert into %s (%s, %s) values ($1, $2)", joinTable(t.m, f), owner, target)
		for _, id := range ids {
			if _, err := q.ExecContext(ctx, ins, inst.ID, id); err != nil {
				return fmt.Errorf("%s.%s: %w", t.m.FQN(), f.Name, err)
			}
		}
		inst.Values[f.Name] = ids
	}
	return nil
}

func (t *table) All(ctx context.Context) ([]*store.Instance, error) {
	q := fmt.Sprintf("select %s from %s order by %s",
		strings.Join(t.columns(), ", "), qualified(t.m), sqlIdent(model.PrimaryKeyName))
	rows, err := t.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*store.Instance
	for rows.Next() {
		inst, err := t.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := t.loadLinks(ctx, t.db, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *table) Get(ctx context.Context, id int64) (*store.Instance, error) {
	q := fmt.Sprintf("select %s from %s where %s = $1",
		strings.Join(t.columns(), ", "), qualified(t.m), sqlIdent(model.PrimaryKeyName))
	inst, err := t.scan(t.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound(t.m, id)
	}
	if err != nil {
		return nil, err
	}
	if err := t.loadLinks(ctx, t.db, []*store.Instance{inst}); err != nil {
		return nil, err
	}
	return inst, nil
}

func (t *table) Create(ctx context.Context, values map[string]any) (*store.Instance, error) {
	fields := t.data()
	cols := make([]string, len(fields))
	marks := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, f := range fields {
		cols[i] = column(f)
		marks[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[f.Name]
	}
	q := fmt.Sprintf("insert into %s (%s) values (%s) returning %s",
		qualified(t.m), strings.Join(cols, ", "), strings.Join(marks, ", "), strings.Join(t.columns(), ", "))
	if len(fields) == 0 {
		q = fmt.Sprintf("insert into %s default values returning %s", qualified(t.m), strings.Join(t.columns(), ", "))
	}

	var inst *store.Instance
	err := t.atomic(ctx, func(tx querier) error {
		var err error
		if inst, err = t.scan(tx.QueryRowContext(ctx, q, args...)); err != nil {
			return err
		}
		return t.writeLinks(ctx, tx, inst, values, false)
	})
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", t.m.FQN(), err)
	}
	return inst, nil
}

func (t *table) Save(ctx context.Context, inst *store.Instance) error {
	fields := t.data()
	sets := make([]string, len(fields))
	args := make([]any, 0, len(fields)+1)
	for i, f := range fields {
		sets[i] = fmt.Sprintf("%s = $%d", column(f), i+1)
		args = append(args, inst.Get(f.Name))
	}
	args = append(args, inst.ID)
	q := fmt.Sprintf("update %s set %s where %s = $%d",
		qualified(t.m), strings.Join(sets, ", "), sqlIdent(model.PrimaryKeyName), len(args))
	if len(fields) == 0 {
		// одни связи: строку модели менять нечего, но она должна существовать
		q = fmt.Sprintf("update %s set %s = %s where %s = $1",
			qualified(t.m), sqlIdent(model.PrimaryKeyName), sqlIdent(model.PrimaryKeyName), sqlIdent(model.PrimaryKeyName))
	}

	err := t.atomic(ctx, func(tx querier) error {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return store.NotFound(t.m, inst.ID)
		}
		return t.writeLinks(ctx, tx, inst, inst.Values, true)
	})
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", t.m.FQN(), err)
	}
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

// Delete удаляет строку; связи владельца уходят каскадом по join-таблицам,
// restrict на стороне цели приходит как 23503.
func (t *table) Delete(ctx context.Context, inst *store.Instance) error {
	q := fmt.Sprintf("delete from %s where %s = $1", qualified(t.m), sqlIdent(model.PrimaryKeyName))
	res, err := t.db.ExecContext(ctx, q, inst.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
			return fmt.Errorf("%w: %s id=%d (%s)", store.ErrRestricted, t.m.FQN(), inst.ID, pgErr.ConstraintName)
		}
		return fmt.Errorf("delete %s: %w", t.m.FQN(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.NotFound(t.m, inst.ID)
	}
	return nil
}

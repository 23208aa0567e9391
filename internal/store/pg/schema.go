package pg

import (
	"fmt"
	"strings"

	"autodojo/internal/model"
)

const (
	codeDuplicateObject     = "42710"
	codeForeignKeyViolation = "23503"
)

var reserved = map[string]struct{}{
	"user": {}, "select": {}, "table": {}, "insert": {}, "update": {}, "delete": {},
	"where": {}, "join": {}, "group": {}, "order": {}, "limit": {}, "offset": {},
	"primary": {}, "foreign": {}, "key": {}, "constraint": {}, "default": {},
	"from": {}, "into": {}, "values": {}, "unique": {}, "index": {}, "create": {},
	"drop": {}, "alter": {}, "schema": {}, "grant": {}, "revoke": {},
}

func isReserved(s string) bool { _, ok := reserved[strings.ToLower(s)]; return ok }

func sqlIdent(s string) string { return `"` + strings.ToLower(s) + `"` }

// tableName — имя таблицы модели; ключевые слова SQL получают префикс.
func tableName(m *model.Model) string {
	t := strings.ToLower(m.PluralName)
	if isReserved(t) {
		t = "e_" + t
	}
	return t
}

// qualified — "namespace"."table".
func qualified(m *model.Model) string {
	return sqlIdent(m.Namespace) + "." + sqlIdent(tableName(m))
}

// column — колонка поля: внешние ключи хранятся как "<field>_id".
func column(f *model.Field) string { return sqlIdent(f.Key()) }

// joinTable — таблица связи многие-ко-многим: "<таблица модели>_<поле>".
func joinTable(m *model.Model, f *model.Field) string {
	return sqlIdent(m.Namespace) + "." + sqlIdent(tableName(m)+"_"+strings.ToLower(f.Name))
}

// joinColumns — колонки владельца и цели; для связи модели с собой from_/to_.
func joinColumns(m *model.Model, f *model.Field) (owner, target string) {
	owner = strings.ToLower(m.Name) + "_id"
	target = strings.ToLower(f.Related.Name) + "_id"
	if owner == target {
		owner, target = "from_"+owner, "to_"+target
	}
	return sqlIdent(owner), sqlIdent(target)
}

func mapType(f *model.Field) (string, error) {
	switch f.Kind {
	case model.KindString:
		if f.MaxLength > 0 {
			return fmt.Sprintf("varchar(%d)", f.MaxLength), nil
		}
		return "text", nil
	case model.KindText, model.KindEnum:
		return "text", nil
	case model.KindInt, model.KindRef:
		return "bigint", nil
	case model.KindFloat:
		return "double precision", nil
	case model.KindDecimal:
		if f.MaxDigits > 0 {
			return fmt.Sprintf("numeric(%d,%d)", f.MaxDigits, f.DecimalPlaces), nil
		}
		return "numeric", nil
	case model.KindBool:
		return "boolean", nil
	case model.KindDate:
		return "date", nil
	case model.KindDateTime:
		return "timestamp with time zone", nil
	default:
		return "", fmt.Errorf("unknown type: %s", f.Kind)
	}
}

func onDeleteClause(p model.OnDelete) string {
	switch p {
	case model.OnDeleteCascade:
		return "CASCADE"
	case model.OnDeleteSetNull:
		return "SET NULL"
	default:
		return "RESTRICT"
	}
}

// joinOnDelete: удаление цели убирает строку связи (set_null) или запрещено (restrict).
func joinOnDelete(p model.OnDelete) string {
	if p == model.OnDeleteRestrict {
		return "RESTRICT"
	}
	return "CASCADE"
}

// GenerateDDL возвращает карту шаг -> SQL: сначала схемы, таблицы и уникальные индексы,
// затем таблицы связей многие-ко-многим и внешние ключи (после создания всех таблиц).
func GenerateDDL(models []*model.Model) (map[string]string, error) {
	var tables, joins, fks strings.Builder
	seenSchemas := map[string]struct{}{}

	for _, m := range models {
		ns := strings.ToLower(m.Namespace)
		if _, ok := seenSchemas[ns]; !ok {
			fmt.Fprintf(&tables, "create schema if not exists %s;\n", sqlIdent(ns))
			seenSchemas[ns] = struct{}{}
		}

		var cols []string
		for _, f := range m.Fields {
			if f.PrimaryKey {
				cols = append(cols, column(f)+" bigserial primary key")
				continue
			}
			if f.IsManyToMany() {
				owner, target := joinColumns(m, f)
				fmt.Fprintf(&joins, "create table if not exists %s (\n"+
					"  %s bigint not null references %s(id) on delete CASCADE,\n"+
					"  %s bigint not null references %s(id) on delete %s,\n"+
					"  primary key (%s, %s)\n);\n",
					joinTable(m, f),
					owner, qualified(m),
					target, qualified(f.Related), joinOnDelete(f.OnDelete),
					owner, target)
				continue
			}
			typ, err := mapType(f)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", m.FQN(), f.Name, err)
			}
			null := "not null"
			if f.Nullable {
				null = "null"
			}
			if f.Kind == model.KindEnum && len(f.Choices) > 0 {
				quoted := make([]string, len(f.Choices))
				for i, c := range f.Choices {
					quoted[i] = "'" + strings.ReplaceAll(c, "'", "''") + "'"
				}
				null += fmt.Sprintf(" check (%s in (%s))", column(f), strings.Join(quoted, ", "))
			}
			cols = append(cols, fmt.Sprintf("%s %s %s", column(f), typ, null))
		}
		fmt.Fprintf(&tables, "create table if not exists %s (\n  %s\n);\n",
			qualified(m), strings.Join(cols, ",\n  "))

		for _, f := range m.Fields {
			if f.Unique && !f.PrimaryKey && !f.IsManyToMany() {
				fmt.Fprintf(&tables, "create unique index if not exists %s on %s(%s);\n",
					sqlIdent(tableName(m)+"_"+f.Key()+"_uq"), qualified(m), column(f))
			}
		}

		for _, f := range m.Fields {
			if !f.IsForeignKey() {
				continue
			}
			fmt.Fprintf(&fks,
				"alter table %s add constraint %s foreign key (%s) references %s(id) on delete %s;\n",
				qualified(m), sqlIdent(tableName(m)+"_"+f.Key()+"_fk"), column(f),
				qualified(f.Related), onDeleteClause(f.OnDelete))
		}
	}

	out := map[string]string{"000_schemas_and_tables": tables.String()}
	if joins.Len() > 0 {
		out["100_join_tables"] = joins.String()
	}
	if fks.Len() > 0 {
		out["200_foreign_keys"] = fks.String()
	}
	return out, nil
}

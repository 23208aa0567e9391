package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ApplyDDL выполняет map[ключ]sql в порядке ключей. DDL идемпотентный (if not exists),
// повторное добавление ограничений (42710) пропускается.
func ApplyDDL(ctx context.Context, db *sql.DB, ddl map[string]string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	keys := make([]string, 0, len(ddl))
	for k := range ddl {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, stmt := range splitStatements(ddl[k]) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == codeDuplicateObject {
					log.Info("ddl skipped, already exists",
						zap.String("step", k), zap.String("constraint", pgErr.ConstraintName))
					continue
				}
				return fmt.Errorf("ddl %s: %w", k, err)
			}
		}
		log.Debug("ddl applied", zap.String("step", k))
	}
	return nil
}

// по одному оператору на Exec: ALTER для существующего FK не должен откатывать соседей
func splitStatements(sqlText string) []string {
	var out []string
	for _, s := range strings.Split(sqlText, ";\n") {
		s = strings.TrimSuffix(strings.TrimSpace(s), ";")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

var (
	//go:embed schema_sqlite.sql
	sqliteSchema string

	//go:embed schema_mysql.sql
	mysqlSchema string
)

// Dialect captures what differs between the supported backing stores.
type Dialect struct {
	Name            string
	schema          string
	uniqueViolation func(err error) bool
}

func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil || d.uniqueViolation == nil {
		return false
	}
	return d.uniqueViolation(err)
}

// applySchema creates missing tables. Existing tables are left untouched.
func (d Dialect) applySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(d.schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply %s schema: %w", d.Name, err)
		}
	}
	return nil
}

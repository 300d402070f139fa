package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

var MySQL = Dialect{
	Name:            "mysql",
	schema:          mysqlSchema,
	uniqueViolation: isMySQLUniqueViolation,
}

// OpenMySQL connects to a MySQL server. Affected-row counts report matched
// rows so an update that changes nothing is not mistaken for a missing row.
func OpenMySQL(ctx context.Context, cfg *mysql.Config, opts ...Option) (*Repository, error) {
	cfg = cfg.Clone()
	cfg.ClientFoundRows = true
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	repo, err := New(ctx, db, MySQL, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// MySQLConfig builds a driver config from discrete connection settings.
func MySQLConfig(host string, port int, name, user, pass string) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	cfg.DBName = name
	cfg.User = user
	cfg.Passwd = pass
	return cfg
}

func isMySQLUniqueViolation(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

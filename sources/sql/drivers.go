package exportsql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"github.com/goliatone/go-sqlexport/export"
)

// driverAliases maps user-facing names to registered database/sql drivers.
var driverAliases = map[string]string{
	"pgx":        "pgx",
	"postgresql": "pgx",
	"postgres":   "postgres",
	"pq":         "postgres",
	"mysql":      "mysql",
	"mariadb":    "mysql",
	"sqlserver":  "sqlserver",
	"mssql":      "sqlserver",
	"sqlite":     "sqlite",
	"sqlite3":    "sqlite",
}

// DriverName resolves a driver alias.
func DriverName(alias string) (string, error) {
	name, ok := driverAliases[strings.ToLower(strings.TrimSpace(alias))]
	if !ok {
		return "", export.NewError(export.KindConfiguration, fmt.Sprintf("unsupported driver %q", alias), nil)
	}
	return name, nil
}

// Open opens and pings a database.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	name, err := DriverName(driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, export.NewError(export.KindConfiguration, "dsn is required", nil)
	}

	var db *sql.DB
	if name == "pgx" {
		cfg, perr := pgx.ParseConfig(dsn)
		if perr != nil {
			return nil, export.NewError(export.KindConfiguration, "parse pgx dsn", perr)
		}
		db = stdlib.OpenDB(*cfg)
	} else {
		db, err = sql.Open(name, dsn)
		if err != nil {
			return nil, export.NewError(export.KindConfiguration, fmt.Sprintf("open %s", name), err)
		}
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, export.NewError(export.KindIO, fmt.Sprintf("connect %s", name), err)
	}
	return db, nil
}

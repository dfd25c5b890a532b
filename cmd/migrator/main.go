package main

import (
	"errors"
	"flag"
	"fmt"
	"net/url"

	"github.com/IlyasAtabaev731/shopper/migrations"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func main() {
	var driver, dbUrl, migrationsTable string
	var down bool

	flag.StringVar(&driver, "driver", "postgres", "database driver: postgres or sqlite")
	flag.StringVar(&dbUrl, "db-url", "test:12345@localhost:5433/test_db", "db url connection (sqlite: file path)")
	flag.StringVar(&migrationsTable, "migrations-table", "migrations", "name of migrations table")
	flag.BoolVar(&down, "down", false, "roll back every migration instead of applying them")
	flag.Parse()

	if dbUrl == "" {
		panic("storage path is required")
	}

	var dir, databaseURL string
	switch driver {
	case "postgres":
		dir = migrations.PostgresDir
		databaseURL = fmt.Sprintf("postgresql://%s?x-migrations-table=%s&sslmode=disable", dbUrl, url.QueryEscape(migrationsTable))
	case "sqlite":
		dir = migrations.SQLiteDir
		databaseURL = fmt.Sprintf("sqlite://%s?x-migrations-table=%s", dbUrl, url.QueryEscape(migrationsTable))
	default:
		panic("unknown driver " + driver)
	}

	src, err := iofs.New(migrations.FS, dir)
	if err != nil {
		panic(err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		panic(err)
	}
	defer m.Close()

	apply := m.Up
	if down {
		apply = m.Down
	}

	if err := apply(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Println("no migrations to apply")
			return
		}
		panic(err)
	}

	fmt.Println("migrations applied successfully")
}

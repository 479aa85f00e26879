package userstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Dialect selects SQL syntax and the migration set.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// rebind rewrites ? placeholders to $N for PostgreSQL. Queries in this
// package never contain a literal question mark.
func (d Dialect) rebind(q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// Open connects to the database named by dsn and pings it.
//
// postgres:// and postgresql:// URLs use pgx. sqlite://path and file:path
// open a SQLite file with foreign keys enforced.
func Open(ctx context.Context, dsn string) (*sql.DB, Dialect, error) {
	driver, source, dialect, err := parseDSN(dsn)
	if err != nil {
		return nil, "", err
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, "", err
	}
	if dialect == SQLite {
		// one writer avoids SQLITE_BUSY under concurrent requests
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return db, dialect, nil
}

func parseDSN(dsn string) (driver, source string, dialect Dialect, err error) {
	switch {
	case dsn == "":
		return "", "", "", fmt.Errorf("database dsn is empty")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn, Postgres, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite", sqliteSource(strings.TrimPrefix(dsn, "sqlite://")), SQLite, nil
	case strings.HasPrefix(dsn, "file:"):
		return "sqlite", sqliteSource(dsn), SQLite, nil
	default:
		return "", "", "", fmt.Errorf("unsupported database dsn scheme in %q", redactDSN(dsn))
	}
}

func sqliteSource(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func redactDSN(dsn string) string {
	if i := strings.Index(dsn, "@"); i >= 0 {
		return "***" + dsn[i:]
	}
	return dsn
}

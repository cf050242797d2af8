package store

import (
	"strings"

	"github.com/Laisky/errors/v2"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open dials the gateway's own database from a DSN, dispatching on its
// scheme the way the teacher's model package picks a driver per
// SQL_DSN prefix: "mysql://"/"postgres://" select their driver, anything
// else (including empty) falls back to an embedded sqlite file.
func Open(dsn string) (*gorm.DB, error) {
	switch {
	case strings.HasPrefix(dsn, "mysql://"):
		return gorm.Open(mysql.Open(strings.TrimPrefix(dsn, "mysql://")), &gorm.Config{})
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case dsn == "":
		return gorm.Open(sqlite.Open("gateway.db"), &gorm.Config{})
	default:
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, errors.Wrapf(err, "open sqlite dsn %q", dsn)
		}
		return db, nil
	}
}

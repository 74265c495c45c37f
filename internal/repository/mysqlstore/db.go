// Package mysqlstore is the relational backend.  Movies, theaters and
// bookings keep their document shape, with the embedded arrays split
// into child tables keyed by the parent id.
package mysqlstore

import (
	"context"
	"encoding/json"
	"errors"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

// Repositories wires every repository and the inventory store to db.
func Repositories(db *sqlx.DB) repository.Repositories {
	return repository.Repositories{
		Movies:    NewMovieRepo(db),
		Theaters:  NewTheaterRepo(db),
		Bookings:  NewBookingRepo(db),
		Users:     NewUserRepo(db),
		Inventory: NewInventoryStore(db),
		Ping:      db.PingContext,
		Close:     func(context.Context) error { return db.Close() },
	}
}

// withTx runs fn inside a transaction and rolls back unless fn and the
// commit both succeed.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// isDuplicate reports a unique key violation (ER_DUP_ENTRY).
func isDuplicate(err error) bool {
	var me *mysqldriver.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func jsonColumn(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func decodeStrings(raw []byte) []string {
	var out []string
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	if out == nil {
		out = []string{}
	}
	return out
}

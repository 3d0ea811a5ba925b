package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/runbattle/runbattle-server/repositories"
)

type sqlTransactor struct {
	db *sql.DB
}

// NewTransactor wraps the database handle so services can run multiple
// repository calls inside one transaction without holding *sql.DB themselves.
func NewTransactor(db *sql.DB) repositories.Transactor {
	return &sqlTransactor{db: db}
}

func (t *sqlTransactor) WithinTransaction(ctx context.Context, fn func(exec repositories.SQLExecutor) error) (err error) {
	tx, beginErr := t.db.BeginTx(ctx, nil)
	if beginErr != nil {
		return fmt.Errorf("failed to begin transaction: %w", beginErr)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Printf("Error during rollback: %v. Original error: %v", rbErr, err)
				err = fmt.Errorf("transaction error: %w (rollback also failed: %v)", err, rbErr)
			}
		} else {
			if cErr := tx.Commit(); cErr != nil {
				err = fmt.Errorf("failed to commit transaction: %w", cErr)
			}
		}
	}()

	err = fn(tx)
	return err
}

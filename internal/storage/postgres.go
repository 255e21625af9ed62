package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/joao-fontenele/ecomarket/internal/catalog"
	"github.com/joao-fontenele/ecomarket/internal/orders"
)

// Postgres runs order workflows inside database transactions. Row locks
// taken by the repositories are held until commit.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, s orders.Stores) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stores := orders.Stores{
		Products: catalog.NewRepository(tx),
		Orders:   orders.NewOrderRepository(tx),
	}
	if err := fn(ctx, stores); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Catalog returns a repository running each call in its own statement.
func (p *Postgres) Catalog() *catalog.Repository {
	return catalog.NewRepository(p.db)
}

package service

import (
	"context"
	"fmt"

	"github.com/caramelapple/storefront/internal/database"
)

// DirectoryStore defines the DB methods needed to replace the store list.
// Satisfied by *database.Queries (and its WithTx variant).
type DirectoryStore interface {
	DeleteAllStores(ctx context.Context) (int64, error)
	CreateStore(ctx context.Context, arg database.CreateStoreParams) (database.Store, error)
}

// NewDirectoryStore creates a DirectoryStore from a DBTX (pool or tx).
type NewDirectoryStore func(db database.DBTX) DirectoryStore

// DirectoryService maintains the list of partner stores.
type DirectoryService struct {
	pool     TxBeginner
	newStore NewDirectoryStore
}

// NewDirectoryService creates a new DirectoryService.
func NewDirectoryService(pool TxBeginner, newStore NewDirectoryStore) *DirectoryService {
	return &DirectoryService{pool: pool, newStore: newStore}
}

// ReplaceStores swaps the whole directory for stores in one transaction.
// On any failure the previous list is left untouched. It returns the
// number of rows removed and the stores created.
func (s *DirectoryService) ReplaceStores(ctx context.Context, stores []database.CreateStoreParams) (int64, []database.Store, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	removed, err := store.DeleteAllStores(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("clear stores: %w", err)
	}

	created := make([]database.Store, 0, len(stores))
	for _, arg := range stores {
		st, err := store.CreateStore(ctx, arg)
		if err != nil {
			return 0, nil, fmt.Errorf("create store %q: %w", arg.Name, err)
		}
		created = append(created, st)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, nil, fmt.Errorf("commit: %w", err)
	}
	return removed, created, nil
}

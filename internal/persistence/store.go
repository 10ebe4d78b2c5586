package persistence

import (
	"context"
	"errors"

	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/ducminhle1904/crypto-paper-risk/internal/paper"
)

// ErrNotFound is returned by Load when no state is stored under the id
var ErrNotFound = errors.New("account state not found")

// SnapshotStore persists complete account states keyed by account id
type SnapshotStore interface {
	Save(ctx context.Context, st paper.State) error
	Load(ctx context.Context, accountID string) (paper.State, error)
	Delete(ctx context.Context, accountID string) error
}

// Restore loads the state for accountID and rebuilds the account from it
func Restore(ctx context.Context, store SnapshotStore, accountID string, log *logger.Logger) (*paper.Account, error) {
	st, err := store.Load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return paper.RestoreAccount(st, log)
}

package persistence

import (
	"context"
	"errors"

	"github.com/ducminhle1904/crypto-paper-risk/internal/paper"
	"github.com/ducminhle1904/crypto-paper-risk/internal/recovery"
)

// RetryingStore retries transient failures of the wrapped store
type RetryingStore struct {
	store   SnapshotStore
	handler *recovery.RecoveryHandler
}

// NewRetryingStore wraps store
func NewRetryingStore(store SnapshotStore, handler *recovery.RecoveryHandler) *RetryingStore {
	return &RetryingStore{store: store, handler: handler}
}

func final(err error) error {
	if errors.Is(err, ErrNotFound) {
		return recovery.Permanent(err)
	}
	return err
}

// Save implements SnapshotStore
func (r *RetryingStore) Save(ctx context.Context, st paper.State) error {
	return r.handler.Execute(ctx, "persistence", "Save", func() error {
		return final(r.store.Save(ctx, st))
	})
}

// Load implements SnapshotStore
func (r *RetryingStore) Load(ctx context.Context, accountID string) (paper.State, error) {
	var st paper.State
	err := r.handler.Execute(ctx, "persistence", "Load", func() error {
		var err error
		st, err = r.store.Load(ctx, accountID)
		return final(err)
	})
	return st, err
}

// Delete implements SnapshotStore
func (r *RetryingStore) Delete(ctx context.Context, accountID string) error {
	return r.handler.Execute(ctx, "persistence", "Delete", func() error {
		return final(r.store.Delete(ctx, accountID))
	})
}

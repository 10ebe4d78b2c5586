package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/ducminhle1904/crypto-paper-risk/internal/paper"
)

const stateSuffix = "_state.json"

// FileStore keeps one JSON file per account under a directory
type FileStore struct {
	mu     sync.RWMutex
	dir    string
	logger *logger.Logger
}

// NewFileStore creates dir if needed and returns a store rooted there
func NewFileStore(dir string, log *logger.Logger) (*FileStore, error) {
	if dir == "" {
		dir = "state"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{dir: dir, logger: log}, nil
}

// Dir returns the directory the store writes to
func (f *FileStore) Dir() string { return f.dir }

func (f *FileStore) path(accountID string) string {
	return filepath.Join(f.dir, accountID+stateSuffix)
}

func validID(accountID string) error {
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	if strings.ContainsAny(accountID, `/\`) || accountID == "." || accountID == ".." {
		return fmt.Errorf("invalid account id %q", accountID)
	}
	return nil
}

// Save writes st atomically: a temp file is written then renamed over the
// previous state. The previous state is kept as a backup.
func (f *FileStore) Save(ctx context.Context, st paper.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validID(st.ID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(&st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	stateFile := f.path(st.ID)
	backupFile := filepath.Join(f.dir, st.ID+"_state_backup.json")
	if _, err := os.Stat(stateFile); err == nil {
		if err := copyFile(stateFile, backupFile); err != nil {
			f.logger.LogWarning("State Backup", "Failed to create backup: %v", err)
		}
	}

	tempFile := stateFile + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := os.Rename(tempFile, stateFile); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to move state file: %w", err)
	}

	f.logger.Info("State saved to %s", stateFile)
	return nil
}

// Load reads the state stored for accountID
func (f *FileStore) Load(ctx context.Context, accountID string) (paper.State, error) {
	if err := ctx.Err(); err != nil {
		return paper.State{}, err
	}
	if err := validID(accountID); err != nil {
		return paper.State{}, err
	}

	f.mu.RLock()
	data, err := os.ReadFile(f.path(accountID))
	f.mu.RUnlock()
	if os.IsNotExist(err) {
		return paper.State{}, fmt.Errorf("%w: %s", ErrNotFound, accountID)
	}
	if err != nil {
		return paper.State{}, fmt.Errorf("failed to read state file: %w", err)
	}

	var st paper.State
	if err := json.Unmarshal(data, &st); err != nil {
		return paper.State{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if st.ID != accountID {
		return paper.State{}, fmt.Errorf("state file for %s holds account %s", accountID, st.ID)
	}
	return st, nil
}

// Delete removes the state and its backup. Missing files are not an error.
func (f *FileStore) Delete(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validID(accountID); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range []string{f.path(accountID), filepath.Join(f.dir, accountID+"_state_backup.json")} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

// List returns the ids of all stored accounts, sorted
func (f *FileStore) List() ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, stateSuffix) || strings.HasSuffix(name, "_state_backup.json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, stateSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

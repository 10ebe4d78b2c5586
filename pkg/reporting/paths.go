package reporting

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultPathManager lays out output files
type DefaultPathManager struct{}

// NewDefaultPathManager creates a new path manager
func NewDefaultPathManager() *DefaultPathManager {
	return &DefaultPathManager{}
}

// GetDefaultOutputDir returns results/{SYMBOL}_{strategy}
func (p *DefaultPathManager) GetDefaultOutputDir(symbol, strategy string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	st := strings.ToLower(strings.TrimSpace(strategy))
	if s == "" {
		s = "UNKNOWN"
	}
	if st == "" {
		st = "unknown"
	}
	return filepath.Join("results", fmt.Sprintf("%s_%s", s, st))
}

// EnsureDirectoryExists creates the parent directory of path
func (p *DefaultPathManager) EnsureDirectoryExists(path string) error {
	return ensureDir(path)
}

// DefaultOutputDir is a convenience wrapper over the default path manager
func DefaultOutputDir(symbol, strategy string) string {
	return NewDefaultPathManager().GetDefaultOutputDir(symbol, strategy)
}

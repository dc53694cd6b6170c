package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Local writes exports under a directory.
type Local struct {
	root string
}

// NewLocal creates a local archive rooted at dir/prefix.
func NewLocal(dir, prefix string) *Local {
	return &Local{root: filepath.Join(dir, prefix)}
}

func (l *Local) Archive(ctx context.Context, e Export) error {
	p := filepath.Join(l.root, filepath.FromSlash(e.Key()))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, e.Body, 0o644); err != nil {
		return fmt.Errorf("write archive file: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("rename archive file: %w", err)
	}
	return nil
}

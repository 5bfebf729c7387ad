package storage

import (
	"fmt"

	cp "github.com/otiai10/copy"
)

// Backup copies an on-disk store directory to dst. The store should be
// closed first so the copy is consistent.
func Backup(src, dst string) error {
	if src == "" || dst == "" {
		return fmt.Errorf("backup needs both source and destination paths")
	}
	if err := cp.Copy(src, dst, cp.Options{Sync: true}); err != nil {
		return fmt.Errorf("failed to back up %s to %s: %w", src, dst, err)
	}
	return nil
}

// Package fix runs the multi-pass fix pipeline: external quick-fixes,
// type-hint injection, gated architectural fixes, gated governance comments,
// and a final quality sweep.
package fix

import (
	"fmt"
	"io"
	"os"

	"github.com/stellar-eng/excelsior/pyast"
)

// Backup records one file's pre-fix state, content-hashed so a restore can be
// verified bit-for-bit.
type Backup struct {
	Path       string
	BackupPath string
	Hash       uint64
}

// BackupManager creates .bak siblings before fixes are applied and restores
// them on rejection.
type BackupManager struct {
	// Keep retains backup files after a successful fix when set.
	Keep bool
}

// NewBackupManager builds a manager; backups are removed after success unless
// keep is set.
func NewBackupManager(keep bool) *BackupManager {
	return &BackupManager{Keep: keep}
}

// Create copies path to path.bak and records the content hash.
func (m *BackupManager) Create(path string) (*Backup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s for backup: %w", path, err)
	}
	hash, err := pyast.Hash(data)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	backupPath := path + ".bak"
	if err := copyFile(path, backupPath); err != nil {
		return nil, err
	}
	return &Backup{Path: path, BackupPath: backupPath, Hash: hash}, nil
}

// Restore copies the backup over the file and verifies the restored content
// hash matches the original bit-for-bit.
func (m *BackupManager) Restore(b *Backup) error {
	if err := copyFile(b.BackupPath, b.Path); err != nil {
		return err
	}
	data, err := os.ReadFile(b.Path)
	if err != nil {
		return fmt.Errorf("failed to verify restore of %s: %w", b.Path, err)
	}
	hash, err := pyast.Hash(data)
	if err != nil {
		return fmt.Errorf("failed to verify restore of %s: %w", b.Path, err)
	}
	if hash != b.Hash {
		return fmt.Errorf("restore of %s did not reproduce the original content", b.Path)
	}
	return nil
}

// Cleanup removes the backup file unless backups are kept.
func (m *BackupManager) Cleanup(b *Backup) {
	if b == nil || m.Keep {
		return
	}
	_ = os.Remove(b.BackupPath)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}

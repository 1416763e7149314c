package fsops

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// backupName builds a collision-resistant file name for a backup of path.
func backupName(path string) string {
	sum := sha256.Sum256([]byte(path))
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), hex.EncodeToString(sum[:4]))
}

// backupPath copies the file or directory at src into the backup area for
// the given transaction and returns the backup location.
func (f *FS) backupPath(txID, src string) (string, error) {
	scope := txID
	if scope == "" {
		scope = "standalone"
	}
	dir := filepath.Join(f.backupRoot, scope)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	dst := filepath.Join(dir, backupName(src))
	if err := CopyPath(src, dst); err != nil {
		return "", fmt.Errorf("failed to back up %s: %w", src, err)
	}
	return dst, nil
}

// CopyPath copies a file or directory tree, preserving file modes.
func CopyPath(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(target, dst)
	case info.IsDir():
		if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
			return err
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := CopyPath(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
				return err
			}
		}
		return nil
	default:
		return copyFileContents(src, dst, info.Mode().Perm())
	}
}

func copyFileContents(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// WriteFileAtomic writes data through a temp file in the target directory
// and renames it into place, so readers never observe a partial write.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".angela-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// PruneBackups removes the backup area for a transaction whose records are
// no longer needed.
func (f *FS) PruneBackups(txID string) error {
	if txID == "" {
		return fmt.Errorf("transaction id required")
	}
	return os.RemoveAll(filepath.Join(f.backupRoot, txID))
}

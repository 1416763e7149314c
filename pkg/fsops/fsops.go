// Package fsops is the filesystem executor: typed file operations that back
// up affected state and journal an inverse before mutating anything, so
// every mutation can be rolled back later.
package fsops

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/angela-cli/angela/pkg/journal"
	"github.com/angela-cli/angela/pkg/logging"
	"github.com/angela-cli/angela/pkg/safety"
)

// FS performs journaled filesystem operations.
type FS struct {
	journal    *journal.Journal
	classifier *safety.Classifier
	backupRoot string
	logger     *logging.Logger
}

// New creates a filesystem executor storing backups under backupRoot.
func New(j *journal.Journal, classifier *safety.Classifier, backupRoot string, logger *logging.Logger) *FS {
	return &FS{journal: j, classifier: classifier, backupRoot: backupRoot, logger: logger}
}

// precheck runs the operation-typed safety validation shared by every
// mutation entry point.
func (f *FS) precheck(kind, path, dest string) error {
	cls := f.classifier.ClassifyFileOp(safety.FileOpRequest{Kind: kind, Path: path, Destination: dest})
	if cls.Refused {
		return fmt.Errorf("refused: %s", cls.RefusalMessage)
	}
	return nil
}

// record journals the operation as pending and returns its id. The caller
// commits or fails it after performing the mutation.
func (f *FS) record(txID string, kind journal.Kind, desc string, params map[string]string, inv *journal.Inverse) (uint64, error) {
	id, err := f.journal.AddOperation(txID, kind, desc, params, inv)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (f *FS) finish(id uint64, opErr error) error {
	if opErr != nil {
		if jerr := f.journal.FailOperation(id, opErr); jerr != nil {
			f.logger.Error("failed to journal failure for op %d: %v", id, jerr)
		}
		return opErr
	}
	return f.journal.CommitOperation(id)
}

// CreateFile creates a new file with the given content. An existing file
// fails the operation unless overwrite is set, in which case the original
// is backed up and the inverse restores it.
func (f *FS) CreateFile(txID, path string, content []byte, perm os.FileMode, overwrite bool) (uint64, error) {
	if err := f.precheck("create_file", path, ""); err != nil {
		return 0, err
	}
	inv := &journal.Inverse{Kind: journal.KindDeleteFile, Params: map[string]string{"path": path}}
	if _, err := os.Lstat(path); err == nil {
		if !overwrite {
			return 0, fmt.Errorf("file already exists: %s", path)
		}
		backup, err := f.backupPath(txID, path)
		if err != nil {
			return 0, err
		}
		inv = &journal.Inverse{
			Kind:       journal.KindWriteFile,
			BackupPath: backup,
			Params:     map[string]string{"path": path},
		}
	}
	id, err := f.record(txID, journal.KindCreateFile, fmt.Sprintf("create file %s", path),
		map[string]string{"path": path}, inv)
	if err != nil {
		return 0, err
	}

	opErr := func() error {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create parent directory: %w", err)
		}
		return WriteFileAtomic(path, content, perm)
	}()
	f.logger.Debug("create file %s (op %d)", path, id)
	return id, f.finish(id, opErr)
}

// WriteFile replaces the content of an existing file after backing it up.
func (f *FS) WriteFile(txID, path string, content []byte) (uint64, error) {
	if err := f.precheck("write_file", path, ""); err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("cannot write %s: %w", path, err)
	}

	backup, err := f.backupPath(txID, path)
	if err != nil {
		return 0, err
	}
	inv := &journal.Inverse{
		Kind:       journal.KindWriteFile,
		BackupPath: backup,
		Params:     map[string]string{"path": path},
	}
	id, err := f.record(txID, journal.KindWriteFile, fmt.Sprintf("write file %s", path),
		map[string]string{"path": path}, inv)
	if err != nil {
		return 0, err
	}

	opErr := WriteFileAtomic(path, content, info.Mode().Perm())
	f.logger.Debug("write file %s (op %d)", path, id)
	return id, f.finish(id, opErr)
}

// DeleteFile removes a file after backing it up.
func (f *FS) DeleteFile(txID, path string) (uint64, error) {
	if err := f.precheck("delete_file", path, ""); err != nil {
		return 0, err
	}
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("cannot delete %s: %w", path, err)
	}

	backup, err := f.backupPath(txID, path)
	if err != nil {
		return 0, err
	}
	inv := &journal.Inverse{
		Kind:       journal.KindCreateFile,
		BackupPath: backup,
		Params:     map[string]string{"path": path},
	}
	id, err := f.record(txID, journal.KindDeleteFile, fmt.Sprintf("delete file %s", path),
		map[string]string{"path": path}, inv)
	if err != nil {
		return 0, err
	}

	opErr := os.Remove(path)
	f.logger.Debug("delete file %s (op %d)", path, id)
	return id, f.finish(id, opErr)
}

// CreateDir creates a directory. Creating an already-existing directory is
// an error so the inverse never removes a directory the user had before.
func (f *FS) CreateDir(txID, path string, perm os.FileMode) (uint64, error) {
	if err := f.precheck("create_dir", path, ""); err != nil {
		return 0, err
	}
	if _, err := os.Lstat(path); err == nil {
		return 0, fmt.Errorf("directory already exists: %s", path)
	}

	inv := &journal.Inverse{Kind: journal.KindDeleteDir, Params: map[string]string{"path": path}}
	id, err := f.record(txID, journal.KindCreateDir, fmt.Sprintf("create directory %s", path),
		map[string]string{"path": path}, inv)
	if err != nil {
		return 0, err
	}

	opErr := os.MkdirAll(path, perm)
	f.logger.Debug("create directory %s (op %d)", path, id)
	return id, f.finish(id, opErr)
}

// DeleteDir removes a directory tree after backing it up recursively.
func (f *FS) DeleteDir(txID, path string) (uint64, error) {
	if err := f.precheck("delete_dir", path, ""); err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("cannot delete %s: %w", path, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", path)
	}

	backup, err := f.backupPath(txID, path)
	if err != nil {
		return 0, err
	}
	inv := &journal.Inverse{
		Kind:       journal.KindCreateDir,
		BackupPath: backup,
		Params:     map[string]string{"path": path},
	}
	id, err := f.record(txID, journal.KindDeleteDir, fmt.Sprintf("delete directory %s", path),
		map[string]string{"path": path}, inv)
	if err != nil {
		return 0, err
	}

	opErr := os.RemoveAll(path)
	f.logger.Debug("delete directory %s (op %d)", path, id)
	return id, f.finish(id, opErr)
}

// CopyFile copies src to dst. An existing dst fails the operation unless
// overwrite is set, in which case dst is backed up so the inverse restores
// it; otherwise the inverse deletes dst.
func (f *FS) CopyFile(txID, src, dst string, overwrite bool) (uint64, error) {
	if err := f.precheck("copy_file", src, dst); err != nil {
		return 0, err
	}
	if _, err := os.Stat(src); err != nil {
		return 0, fmt.Errorf("cannot copy %s: %w", src, err)
	}

	inv := &journal.Inverse{Kind: journal.KindDeleteFile, Params: map[string]string{"path": dst}}
	if _, err := os.Stat(dst); err == nil {
		if !overwrite {
			return 0, fmt.Errorf("destination already exists: %s", dst)
		}
		backup, err := f.backupPath(txID, dst)
		if err != nil {
			return 0, err
		}
		inv = &journal.Inverse{
			Kind:       journal.KindWriteFile,
			BackupPath: backup,
			Params:     map[string]string{"path": dst},
		}
	}
	id, err := f.record(txID, journal.KindCopyFile, fmt.Sprintf("copy %s to %s", src, dst),
		map[string]string{"src": src, "dst": dst}, inv)
	if err != nil {
		return 0, err
	}

	opErr := func() error {
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		return CopyPath(src, dst)
	}()
	f.logger.Debug("copy %s to %s (op %d)", src, dst, id)
	return id, f.finish(id, opErr)
}

// MoveFile renames src to dst. An existing dst fails the operation unless
// overwrite is set, in which case dst is backed up first. The inverse moves
// the file back and restores any backed-up dst.
func (f *FS) MoveFile(txID, src, dst string, overwrite bool) (uint64, error) {
	if err := f.precheck("move_file", src, dst); err != nil {
		return 0, err
	}
	if _, err := os.Stat(src); err != nil {
		return 0, fmt.Errorf("cannot move %s: %w", src, err)
	}

	inv := &journal.Inverse{
		Kind:   journal.KindMoveFile,
		Params: map[string]string{"src": dst, "dst": src},
	}
	if _, err := os.Stat(dst); err == nil {
		if !overwrite {
			return 0, fmt.Errorf("destination already exists: %s", dst)
		}
		backup, err := f.backupPath(txID, dst)
		if err != nil {
			return 0, err
		}
		inv.BackupPath = backup
	}
	id, err := f.record(txID, journal.KindMoveFile, fmt.Sprintf("move %s to %s", src, dst),
		map[string]string{"src": src, "dst": dst}, inv)
	if err != nil {
		return 0, err
	}

	opErr := func() error {
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		if err := os.Rename(src, dst); err == nil {
			return nil
		}
		// Cross-device moves fall back to copy and delete.
		if err := CopyPath(src, dst); err != nil {
			return err
		}
		return os.RemoveAll(src)
	}()
	f.logger.Debug("move %s to %s (op %d)", src, dst, id)
	return id, f.finish(id, opErr)
}

// ApplyInverse undoes a journaled filesystem operation using its recorded
// inverse. The rollback manager drives this in reverse id order.
func ApplyInverse(inv *journal.Inverse) error {
	if inv == nil {
		return fmt.Errorf("operation has no inverse")
	}
	path := inv.Params["path"]

	switch inv.Kind {
	case journal.KindDeleteFile:
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		return nil
	case journal.KindDeleteDir:
		// Only an empty directory is removed; files that appeared after the
		// forward operation are not ours to destroy.
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove directory %s: %w", path, err)
		}
		return nil
	case journal.KindCreateFile, journal.KindWriteFile:
		if inv.BackupPath == "" {
			return fmt.Errorf("no backup recorded for %s", path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		return CopyPath(inv.BackupPath, path)
	case journal.KindCreateDir:
		if inv.BackupPath == "" {
			return fmt.Errorf("no backup recorded for %s", path)
		}
		os.RemoveAll(path)
		return CopyPath(inv.BackupPath, path)
	case journal.KindMoveFile:
		src, dst := inv.Params["src"], inv.Params["dst"]
		if err := os.Rename(src, dst); err != nil {
			if cerr := CopyPath(src, dst); cerr != nil {
				return fmt.Errorf("failed to move %s back to %s: %w", src, dst, err)
			}
			os.RemoveAll(src)
		}
		if inv.BackupPath != "" {
			// Restore the file the forward move overwrote.
			return CopyPath(inv.BackupPath, src)
		}
		return nil
	default:
		return fmt.Errorf("no filesystem inverse for kind %s", inv.Kind)
	}
}

package gallery

import (
	"os"
	"path/filepath"
)

// FileStore holds screenshot content addressed by storage path
type FileStore interface {
	WriteFile(path string, data []byte) error
	ReadFile(path string) ([]byte, error)
	// Remove returns an error wrapping fs.ErrNotExist when path is missing
	Remove(path string) error
	Exists(path string) (bool, error)
}

// DirFileStore is a FileStore on the local filesystem
type DirFileStore struct{}

// WriteFile writes data atomically (temp file in the same directory, then rename)
func (DirFileStore) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	tmpFile = nil
	return nil
}

func (DirFileStore) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (DirFileStore) Remove(path string) error {
	return os.Remove(path)
}

func (DirFileStore) Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

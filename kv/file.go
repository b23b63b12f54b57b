package kv

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

const tempFilePrefix = "voicenotes-tmp-"

var unsafeKey = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// File keeps one file per key under a directory. Writes go through a
// temp file and rename so a crash never leaves a half-written blob.
type File struct {
	dir string
}

func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, unsafeKey.ReplaceAllString(key, "_")+".json")
}

func (f *File) Get(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return data, true, nil
}

// Set stages blob next to its target and renames it into place.
func (f *File) Set(key string, blob []byte) error {
	dst := f.path(key)
	tmp, err := os.CreateTemp(f.dir, tempFilePrefix+filepath.Base(dst)+"-*")
	if err != nil {
		return fmt.Errorf("stage %s: %w", key, err)
	}
	staged := tmp.Name()
	_, err = tmp.Write(blob)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(staged, dst)
	}
	if err != nil {
		os.Remove(staged)
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (f *File) Close() error { return nil }

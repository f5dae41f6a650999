package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend keeps each namespace in its own file under Dir.
type FileBackend struct {
	Dir         string
	Format      Format
	Compression Compression
}

// Path returns the file holding the namespace's state.
func (b FileBackend) Path(ns Namespace) string {
	return filepath.Join(b.Dir, ns.String()+b.Format.extension())
}

// Load reads the namespace's state. A missing file is a first run and
// yields an empty State.
func (b FileBackend) Load(ns Namespace) (State, error) {
	path := b.Path(ns)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return nil, &IOError{Op: "load", Path: path, Err: err}
	}
	data, err = decompress(data)
	if err != nil {
		return nil, &IOError{Op: "load", Path: path, Err: fmt.Errorf("decompress: %w", err)}
	}
	s, err := decode(data, b.Format)
	if err != nil {
		return nil, &IOError{Op: "load", Path: path, Err: fmt.Errorf("parse: %w", err)}
	}
	return s, nil
}

// Save atomically replaces the namespace's state file, creating Dir if needed.
func (b FileBackend) Save(ns Namespace, s State) error {
	path := b.Path(ns)
	data, err := encode(s, b.Format)
	if err != nil {
		return &IOError{Op: "save", Path: path, Err: fmt.Errorf("encode: %w", err)}
	}
	data, err = compress(data, b.Compression)
	if err != nil {
		return &IOError{Op: "save", Path: path, Err: fmt.Errorf("compress: %w", err)}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return &IOError{Op: "save", Path: path, Err: err}
	}
	if err := WriteFileAtomic(path, data, 0o600); err != nil {
		return &IOError{Op: "save", Path: path, Err: err}
	}
	return nil
}

// WriteFileAtomic writes data to a temporary file next to path, syncs it and
// renames it into place, so readers never see a partial file. The parent
// directory must exist.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	file, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	temporaryPath := file.Name()

	// Write, sync, close, in that order. On failure remove the temporary
	// file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := file.Chmod(perm); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming into place: %w", err)
	}

	// Make the rename itself durable.
	if parent, err := os.Open(dir); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}

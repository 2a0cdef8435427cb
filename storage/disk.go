// Package storage keeps uploaded blobs on the local disk.
package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	auth "github.com/goliatone/go-auth-invite"
	goerrors "github.com/goliatone/go-errors"
)

var _ auth.AvatarStorage = (*Disk)(nil)

// Disk stores blobs below Root. Paths are relative and may not escape it.
type Disk struct {
	Root string
	Perm fs.FileMode
}

func NewDisk(root string) (*Disk, error) {
	if root == "" {
		return nil, errors.New("storage: root directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create storage root")
	}
	return &Disk{Root: abs, Perm: 0o644}, nil
}

func (d *Disk) resolve(name string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(name))
	if clean == string(filepath.Separator) {
		return "", goerrors.New("empty storage path", goerrors.CategoryBadInput)
	}
	full := filepath.Join(d.Root, clean)
	if !strings.HasPrefix(full, d.Root+string(filepath.Separator)) {
		return "", goerrors.New("storage path escapes root", goerrors.CategoryBadInput)
	}
	return full, nil
}

// Put writes data atomically by renaming a temp file into place.
func (d *Disk) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := d.resolve(name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create storage directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to write blob")
	}
	if err := tmp.Close(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to write blob")
	}
	if err := os.Chmod(tmp.Name(), d.Perm); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to set blob permissions")
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to store blob")
	}
	return nil
}

// Delete removes a blob. Missing blobs are not an error.
func (d *Disk) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := d.resolve(name)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to delete blob")
	}
	return nil
}

// Open returns the contents of a stored blob.
func (d *Disk) Open(name string) ([]byte, error) {
	full, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

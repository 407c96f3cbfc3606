// Package storage holds the filesystem primitives shared by the session store,
// the dataset repository and the durable cache tier: atomic writes, bounded
// retries of transient I/O failures and the StorageError they surface.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrStorage matches any *StorageError with errors.Is.
var ErrStorage = errors.New("storage failure")

// StorageError is an I/O failure that persisted after all retries.
type StorageError struct {
	Op       string
	Path     string
	Attempts int
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s failed after %d attempt(s): %v", e.Op, e.Path, e.Attempts, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// RetryPolicy bounds how often a transient failure is retried.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy retries three times with a short constant pause.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Delay: 50 * time.Millisecond}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// Permanent marks an error that must not be retried (e.g. not-exist, decode failure).
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op under the policy. Errors wrapped with Permanent are returned
// unwrapped and immediately; anything else is retried and finally wrapped in
// a *StorageError.
func Do[T any](ctx context.Context, p RetryPolicy, op, path string, fn func() (T, error)) (T, error) {
	p = p.normalized()
	var (
		zero      T
		attempts  int
		permanent error
	)
	val, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		v, err := fn()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			permanent = perm.Unwrap()
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(uint(p.Attempts)),
	)
	if err == nil {
		return val, nil
	}
	if permanent != nil {
		return zero, permanent
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}
	return zero, &StorageError{Op: op, Path: path, Attempts: attempts, Err: err}
}

// writeTemp writes data to a synced temp file next to path and returns its name.
func writeTemp(path string, data []byte, perm fs.FileMode) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return "", err
	}
	return tmpName, nil
}

// WriteFileAtomic writes data to a temp file in the target directory, syncs it
// and renames it over path, so readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	tmpName, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// CreateFileAtomic is WriteFileAtomic for files that must never be replaced:
// the synced temp file is hard-linked into place, which fails with
// fs.ErrExist when path is already taken.
func CreateFileAtomic(path string, data []byte, perm fs.FileMode) error {
	tmpName, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	defer os.Remove(tmpName)
	return os.Link(tmpName, path)
}

// ReadFile reads path with retries. A missing file is returned as a
// permanent fs.ErrNotExist, never as a StorageError.
func ReadFile(ctx context.Context, p RetryPolicy, path string) ([]byte, error) {
	return Do(ctx, p, "read", path, func() ([]byte, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, Permanent(err)
			}
			return nil, err
		}
		return data, nil
	})
}

// WriteFile writes path atomically with retries.
func WriteFile(ctx context.Context, p RetryPolicy, path string, data []byte) error {
	_, err := Do(ctx, p, "write", path, func() (struct{}, error) {
		return struct{}{}, WriteFileAtomic(path, data, 0o644)
	})
	return err
}

// CreateFile creates path atomically with retries. An existing file is
// returned as a permanent fs.ErrExist, never as a StorageError.
func CreateFile(ctx context.Context, p RetryPolicy, path string, data []byte) error {
	_, err := Do(ctx, p, "create", path, func() (struct{}, error) {
		if err := CreateFileAtomic(path, data, 0o644); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return struct{}{}, Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	return err
}

// RemoveFile deletes path with retries; a missing file is not an error.
func RemoveFile(ctx context.Context, p RetryPolicy, path string) error {
	_, err := Do(ctx, p, "remove", path, func() (struct{}, error) {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	return err
}

// ReadDir lists a directory with retries. A missing directory yields no entries.
func ReadDir(ctx context.Context, p RetryPolicy, dir string) ([]os.DirEntry, error) {
	return Do(ctx, p, "list", dir, func() ([]os.DirEntry, error) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			return nil, err
		}
		return entries, nil
	})
}

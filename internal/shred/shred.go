// Package shred overwrites files before removing them so that key material is
// harder to recover from the underlying storage.
//
// Modern SSDs with wear leveling may still retain data. Full disk encryption is
// the real protection; shredding narrows the window on everything else.
package shred

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// MaxPasses bounds the number of overwrite passes.
const MaxPasses = 10

// File overwrites path with random data passes times, syncing after each pass,
// then removes it. With passes == 0 the file is only removed.
func File(path string, passes int) error {
	if err := checkPasses(passes); err != nil {
		return err
	}

	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() || info.Size() == 0 || passes == 0 {
		return os.Remove(path)
	}

	if err := overwrite(path, info.Size(), passes); err != nil {
		return fmt.Errorf("shred %s: %w", path, err)
	}
	return os.Remove(path)
}

func checkPasses(passes int) error {
	if passes < 0 || passes > MaxPasses {
		return fmt.Errorf("shred: passes must be between 0 and %d, got %d", MaxPasses, passes)
	}
	return nil
}

func overwrite(path string, size int64, passes int) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	for pass := 1; pass <= passes; pass++ {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if err := overwriteWithRandom(f, size); err != nil {
			return err
		}
		if err := f.Sync(); err != nil {
			return err
		}
	}

	return f.Close()
}

func overwriteWithRandom(w io.Writer, size int64) error {
	const bufSize = 64 * 1024

	buf := make([]byte, bufSize)
	remaining := size

	for remaining > 0 {
		n := bufSize
		if remaining < int64(bufSize) {
			n = int(remaining)
		}
		if _, err := rand.Read(buf[:n]); err != nil {
			return err
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
		remaining -= int64(n)
	}

	return nil
}

// Dir shreds every regular file below path and then removes path. It keeps
// going after a failed file and reports every failure. An invalid pass count
// is rejected before anything is touched.
func Dir(path string, passes int) error {
	if err := checkPasses(passes); err != nil {
		return err
	}

	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("shred: %s is not a directory", path)
	}

	files, err := Collect(path)
	if err != nil {
		return err
	}

	var errs []error
	for _, file := range files {
		if err := File(file, passes); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(path); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Collect lists the regular files and symlinks below root.
func Collect(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

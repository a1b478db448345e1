package secure

import (
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned when a destroyed Buffer is used.
var ErrDestroyed = errors.New("secure: buffer destroyed")

// Buffer is a credential value sealed in a memguard enclave.
type Buffer struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave // nil for empty values
	size      int
	destroyed bool
}

// NewBuffer seals data. memguard wipes data while copying it, so the caller's
// slice is zeroed on return.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{
		enclave: memguard.NewEnclave(data),
		size:    len(data),
	}
}

// FromString seals s.
func FromString(s string) *Buffer {
	return NewBuffer([]byte(s))
}

// ReadFile reads path and seals its contents.
func ReadFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewBuffer(data), nil
}

// Len returns the length of the sealed value.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// WriteFile creates path with the given permissions and writes the plaintext
// into it. The file must not exist yet.
func (b *Buffer) WriteFile(path string, perm fs.FileMode) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.destroyed {
		return ErrDestroyed
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}

	if b.enclave != nil {
		locked, err := b.enclave.Open()
		if err != nil {
			_ = f.Close()
			return err
		}
		_, err = f.Write(locked.Bytes())
		locked.Destroy()
		if err != nil {
			_ = f.Close()
			return err
		}
	}

	return f.Close()
}

// With calls fn with the plaintext in a locked buffer that is wiped when fn
// returns. fn must not retain the slice.
func (b *Buffer) With(fn func(plaintext []byte) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.destroyed {
		return ErrDestroyed
	}
	if b.enclave == nil {
		return fn(nil)
	}
	locked, err := b.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()
	return fn(locked.Bytes())
}

// Equal reports whether the sealed value equals s, without copying it out of
// locked memory.
func (b *Buffer) Equal(s string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.destroyed || len(s) != b.size {
		return false
	}
	if b.enclave == nil {
		return true
	}
	locked, err := b.enclave.Open()
	if err != nil {
		return false
	}
	defer locked.Destroy()
	return locked.EqualTo([]byte(s))
}

// Destroy drops the enclave. It is idempotent; after Destroy, WriteFile fails.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.enclave = nil
	b.destroyed = true
}

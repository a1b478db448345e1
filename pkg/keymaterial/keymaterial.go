package keymaterial

import (
	"errors"
	"fmt"
	"maps"
)

// Material is credential material extracted to local storage together with the
// environment variables a child process needs to use it.
type Material interface {
	// Env returns the environment bindings for this material. It has no side
	// effects and may be called any number of times before Close. The returned
	// map belongs to the caller.
	Env() map[string]string

	// Close releases the storage owned by this material. It must be called
	// exactly once by the owner.
	Close() error
}

// Null is the material that holds nothing. Its environment is empty and closing
// it never fails.
var Null Material = nullMaterial{}

type nullMaterial struct{}

func (nullMaterial) Env() map[string]string { return map[string]string{} }

func (nullMaterial) Close() error { return nil }

func (nullMaterial) String() string { return "keymaterial.Null" }

// Plus merges rhs into lhs. A nil rhs returns lhs itself; otherwise the result
// is a new material that owns both operands. Only the right-hand side may be
// absent: Plus(Null, m) is a composite, not m.
func Plus(lhs, rhs Material) Material {
	if lhs == nil {
		panic("keymaterial: Plus called with nil left-hand material")
	}
	if rhs == nil {
		return lhs
	}
	return &composite{left: lhs, right: rhs}
}

// Merge folds ms left to right with Plus, skipping nil entries. It returns Null
// when no material is given.
func Merge(ms ...Material) Material {
	var acc Material
	for _, m := range ms {
		if m == nil {
			continue
		}
		if acc == nil {
			acc = m
			continue
		}
		acc = Plus(acc, m)
	}
	if acc == nil {
		return Null
	}
	return acc
}

// Use hands the environment of m to fn and closes m afterwards, including when
// fn returns an error or panics. The error from fn comes first in the result.
func Use(m Material, fn func(env map[string]string) error) (err error) {
	defer func() {
		if cerr := m.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(m.Env())
}

// Static returns a material that only carries environment bindings and owns no
// storage, such as a plain daemon address.
func Static(env map[string]string) Material {
	return staticMaterial(maps.Clone(env))
}

type staticMaterial map[string]string

func (s staticMaterial) Env() map[string]string {
	out := make(map[string]string, len(s))
	maps.Copy(out, s)
	return out
}

func (staticMaterial) Close() error { return nil }

// ReleaseError reports storage that could not be removed when a material was
// closed. Path is left on disk and may still contain key material.
type ReleaseError struct {
	Path string
	Err  error
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("release %s: %v", e.Path, e.Err)
}

func (e *ReleaseError) Unwrap() error { return e.Err }

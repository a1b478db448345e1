// Package keymaterialtest provides helpers for testing producers and consumers
// of keymaterial.Material.
package keymaterialtest

import (
	"maps"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/keymat/pkg/keymaterial"
)

// Spy is a leaf material that records how often it was closed.
type Spy struct {
	mu       sync.Mutex
	env      map[string]string
	closeErr error
	closed   int
	onClose  func()
}

// NewSpy returns a Spy exposing env.
func NewSpy(env map[string]string) *Spy {
	return &Spy{env: maps.Clone(env)}
}

// FailClose makes every Close call return err.
func (s *Spy) FailClose(err error) *Spy {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeErr = err
	return s
}

// OnClose registers fn to run inside Close, after the call was counted.
func (s *Spy) OnClose(fn func()) *Spy {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
	return s
}

func (s *Spy) Env() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.env))
	maps.Copy(out, s.env)
	return out
}

func (s *Spy) Close() error {
	s.mu.Lock()
	s.closed++
	fn, err := s.onClose, s.closeErr
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
	return err
}

// Closed returns the number of Close calls so far.
func (s *Spy) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Contract describes a Material implementation under test.
type Contract struct {
	// New returns a fresh, unclosed material.
	New func(t *testing.T) keymaterial.Material

	// Verify, if set, checks that the storage of m was released after Close.
	Verify func(t *testing.T, m keymaterial.Material)
}

// RunContract runs the checks every Material implementation must pass.
func RunContract(t *testing.T, c Contract) {
	t.Helper()

	t.Run("Contract", func(t *testing.T) {
		t.Run("EnvIsRepeatable", func(t *testing.T) {
			m := c.New(t)
			defer func() { _ = m.Close() }()

			first := m.Env()
			require.NotNil(t, first, "Env must not return nil")
			assert.Equal(t, first, m.Env())
		})

		t.Run("EnvReturnsCopy", func(t *testing.T) {
			m := c.New(t)
			defer func() { _ = m.Close() }()

			env := m.Env()
			env["KEYMAT_CONTRACT_PROBE"] = "x"
			_, leaked := m.Env()["KEYMAT_CONTRACT_PROBE"]
			assert.False(t, leaked, "mutating the result of Env must not change the material")
		})

		t.Run("Close", func(t *testing.T) {
			m := c.New(t)
			require.NoError(t, m.Close())
			if c.Verify != nil {
				c.Verify(t, m)
			}
		})
	})
}

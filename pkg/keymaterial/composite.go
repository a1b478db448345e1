package keymaterial

import (
	"errors"
	"maps"
)

// composite owns two materials. It is only built by Plus.
type composite struct {
	left, right Material
}

// Env overlays the right environment on top of the left one.
func (c *composite) Env() map[string]string {
	left, right := c.left.Env(), c.right.Env()
	env := make(map[string]string, len(left)+len(right))
	maps.Copy(env, left)
	maps.Copy(env, right)
	return env
}

// Close closes left then right. A failure on the left does not stop the right
// from being closed; both failures are reported, left first.
func (c *composite) Close() error {
	lerr := c.left.Close()
	rerr := c.right.Close()
	if lerr == nil {
		return rerr
	}
	if rerr == nil {
		return lerr
	}
	return errors.Join(lerr, rerr)
}

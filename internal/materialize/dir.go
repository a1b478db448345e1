package materialize

import (
	"maps"
	"os"

	"github.com/systmms/keymat/internal/logging"
	"github.com/systmms/keymat/internal/metrics"
	"github.com/systmms/keymat/internal/shred"
	"github.com/systmms/keymat/pkg/keymaterial"
)

// DirPattern is the name pattern of materialization directories.
const DirPattern = "keymat-*"

// Dir is key material written into a private temporary directory. Closing it
// shreds the files and removes the directory.
type Dir struct {
	path    string
	kind    string
	env     map[string]string
	passes  int
	logger  *logging.Logger
	metrics *metrics.Recorder
	closed  bool
}

var _ keymaterial.Material = (*Dir)(nil)

func (m *Materializer) newDir(kind string) (*Dir, error) {
	path, err := os.MkdirTemp(m.Workdir, DirPattern)
	if err != nil {
		return nil, err
	}
	m.Metrics.Materialized(kind)
	return &Dir{
		path:    path,
		kind:    kind,
		env:     map[string]string{},
		passes:  m.ShredPasses,
		logger:  m.Logger,
		metrics: m.Metrics,
	}, nil
}

// Path returns the directory holding the key material.
func (d *Dir) Path() string { return d.path }

func (d *Dir) Env() map[string]string {
	return maps.Clone(d.env)
}

// Close shreds the directory. Only the first call does any work, even when it
// fails: the returned ReleaseError names the directory so that it can be
// removed with keymat shred, and later calls return nil.
func (d *Dir) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	err := shred.Dir(d.path, d.passes)
	d.metrics.Released(d.kind, err)
	if err != nil {
		d.logger.Debug("Failed to release %s material in %s: %v", d.kind, d.path, err)
		return &keymaterial.ReleaseError{Path: d.path, Err: err}
	}
	d.logger.Debug("Released %s material in %s", d.kind, d.path)
	return nil
}

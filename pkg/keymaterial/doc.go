// Package keymaterial defines the lifecycle contract for credential material that
// has been extracted to local storage for the benefit of a child process.
//
// A Material is "credentials currently on disk plus the environment needed to use
// them". Whenever you fork off a program that needs those credentials (docker, a
// registry client, a deploy script), ask the Material for its environment and
// inject it into the child. When the child is done, Close the Material so the
// key files are removed from the file system.
//
// # Composition
//
// Several materials combine into one handle with Plus:
//
//	m := keymaterial.Plus(server, registry)
//	m = keymaterial.Plus(m, extra)
//
// The result nests as ((server+registry)+extra). Its environment is the union of
// the constituents, with later materials overriding earlier ones on collisions.
// Closing the combined handle closes every constituent exactly once, left to
// right, even when some of them fail to release.
//
// Plus with a nil right-hand side returns the left-hand side unchanged, so an
// optional material can be merged without special-casing absence:
//
//	m := keymaterial.Plus(server, maybeRegistry) // maybeRegistry may be nil
//
// # Ownership
//
// A Material is owned by the code path that requested it. That owner must call
// Close exactly once on every exit path; Use does this structurally:
//
//	err := keymaterial.Use(m, func(env map[string]string) error {
//	    return runDocker(env)
//	})
//
// Constituents of a combined material must not be closed independently while the
// combined handle is live. Only Null is safe to share between goroutines.
package keymaterial

// Package secure keeps credential values encrypted in memory between the moment
// they are read from their source and the moment they are written into a
// materialization directory.
//
// Values are held in memguard enclaves (XSalsa20Poly1305, mlocked where the
// platform allows). Plaintext only exists inside WriteFile, in a locked buffer
// that is wiped before WriteFile returns.
//
//	buf := secure.FromString(os.Getenv("HUB_TOKEN"))
//	defer buf.Destroy()
//	if err := buf.WriteFile(filepath.Join(dir, "key.pem"), 0o600); err != nil {
//	    return err
//	}
//
// This does not protect against an attacker with access to the running process,
// and once a value is on disk it is only as safe as the directory holding it.
package secure

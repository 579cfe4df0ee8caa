//go:build !unix

package diskmanager

import "os"

// No advisory locking outside unix; a second opener is not detected.
func lockFile(f *os.File) error { return nil }

func unlockFile(f *os.File) {}

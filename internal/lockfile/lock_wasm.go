//go:build js && wasm

package lockfile

import "os"

// WASM has no file locking and is effectively single-process, so all
// lock operations are no-ops.

func FlockExclusiveNonBlock(f *os.File) error { return nil }

func FlockExclusiveBlocking(f *os.File) error { return nil }

func FlockSharedNonBlock(f *os.File) error { return nil }

func FlockUnlock(f *os.File) error { return nil }

//go:build unix

package keystore

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
)

// dirLock is an advisory flock(2) on one file inside a store directory.
// Readers take a shared lock and coexist; writers take an exclusive
// lock, per spec.md's shared-resource policy for the keystore.
type dirLock struct {
	f *os.File
}

func lockDir(dir string, exclusive bool) (*dirLock, error) {
	f, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.BadInput, "keystore: open lock file", err)
	}
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		return nil, pqcerr.Wrap(pqcerr.BadInput, "keystore: flock", err)
	}
	return &dirLock{f: f}, nil
}

func (l *dirLock) unlock() error {
	defer l.f.Close()
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}

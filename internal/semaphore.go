// Named counting semaphores for the startup handshake.
//
// POSIX sem_open/sem_post/sem_wait/sem_unlink have no Go binding in the
// standard library or in golang.org/x/sys without cgo, so this builds the
// same contract (named, cross-process, post/wait, unlinkable) on top of a
// named FIFO: a post is a one-byte blocking write, a wait is a one-byte
// blocking read. The FIFO's path makes it nameable on the filesystem, so
// two independently-started processes can find the same semaphore.

//go:build unix

package wdinternal

import (
	"fmt"
	"hash/fnv"
	"os"

	"golang.org/x/sys/unix"
)

const fifoMode = 0o700

// Semaphore is a named, cross-process counting semaphore backed by a FIFO.
// Its value is the number of unread bytes buffered in the pipe.
type Semaphore struct {
	path string
	rw   *os.File
}

// ftokPath derives a deterministic filesystem path for a semaphore name,
// the Go-native stand-in for ftok(appPath, pgid): both peers compute the
// same name from the application's path and process group.
func ftokPath(baseDir, appPath string, pgid int, index int) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%d", appPath, pgid)
	return fmt.Sprintf("%s/wd-sem-%016x-%d", baseDir, h.Sum64(), index)
}

// OpenSemaphore creates the named FIFO if absent and opens it for both
// reading and writing (so opening never blocks waiting for a peer), with
// user-only permissions.
func OpenSemaphore(path string) (*Semaphore, error) {
	if err := unix.Mkfifo(path, fifoMode); err != nil && !os.IsExist(err) {
		return nil, fmt.Errorf("mkfifo %q: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	return &Semaphore{path: path, rw: f}, nil
}

// Post increments the semaphore, waking one blocked Wait if any.
func (s *Semaphore) Post() error {
	_, err := s.rw.Write([]byte{0})
	return err
}

// Wait blocks until the semaphore is non-zero, then decrements it.
func (s *Semaphore) Wait() error {
	buf := make([]byte, 1)
	_, err := s.rw.Read(buf)
	return err
}

// Close releases the process's handle to the semaphore without removing it
// from the filesystem.
func (s *Semaphore) Close() error {
	return s.rw.Close()
}

// Unlink removes the semaphore's FIFO from the filesystem. Safe to call
// after Close; matches sem_unlink's "name becomes available for reuse"
// semantics.
func (s *Semaphore) Unlink() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

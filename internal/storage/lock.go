package storage

import (
	"os"
	"sync"
	"syscall"
)

// fileLock serializes writers on one record, across goroutines and across
// processes sharing the same data directory.
type fileLock struct {
	path string
	mu   sync.Mutex
	file *os.File
}

func (l *fileLock) Lock() error {
	l.mu.Lock()

	f, err := os.OpenFile(l.path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		l.mu.Unlock()
		return err
	}
	l.file = f
	return nil
}

func (l *fileLock) Unlock() {
	if l.file != nil {
		syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
		l.file.Close()
		os.Remove(l.path + ".lock")
		l.file = nil
	}
	l.mu.Unlock()
}

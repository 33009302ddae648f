package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is returned by a fault that sets no Err of its own.
var ErrInjected = errors.New("fs: injected fault")

// Fault describes how a matched file misbehaves.
type Fault struct {
	// FailAfterBytes rejects the first write that would push the bytes
	// written through this handle past the limit. Negative means no limit.
	FailAfterBytes int64
	FailOnSync     bool
	FailOnClose    bool
	Err            error
}

type rule struct {
	pattern string
	fault   Fault
}

// FaultyFS wraps a FileSystem and hands out files that fail on demand.
// Rules are checked in the order they were added; the first whose pattern
// is a substring of the opened path wins.
type FaultyFS struct {
	base FileSystem

	mu    sync.Mutex
	rules []rule
}

// NewFaultyFS wraps base, or Default when base is nil.
func NewFaultyFS(base FileSystem) *FaultyFS {
	return &FaultyFS{base: Or(base)}
}

// AddRule applies fault to files opened later whose path contains pattern.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	if fault.Err == nil {
		fault.Err = ErrInjected
	}
	f.mu.Lock()
	f.rules = append(f.rules, rule{pattern: pattern, fault: fault})
	f.mu.Unlock()
}

// OpenFile opens name through the wrapped FileSystem.
func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.base.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	if fault, ok := f.match(name); ok {
		return &faultyFile{File: file, fault: fault}, nil
	}
	return file, nil
}

func (f *FaultyFS) match(name string) (Fault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rules {
		if strings.Contains(name, r.pattern) {
			return r.fault, true
		}
	}
	return Fault{}, false
}

type faultyFile struct {
	File
	fault   Fault
	written int64
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	limit := ff.fault.FailAfterBytes
	if limit >= 0 && ff.written+int64(len(p)) > limit {
		return 0, ff.fault.Err
	}
	n, err := ff.File.Write(p)
	ff.written += int64(n)
	return n, err
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fault.Err
	}
	return ff.File.Sync()
}

// Close always releases the handle, even when it reports a fault.
func (ff *faultyFile) Close() error {
	err := ff.File.Close()
	if ff.fault.FailOnClose {
		return ff.fault.Err
	}
	return err
}

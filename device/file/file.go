/*
DESCRIPTION
  file.go provides a file input source for recordings, with an optional
  follow mode for files that are still being transferred.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package file provides a file-backed input source for recordings. In
// follow mode the source waits for further writes at end of file rather
// than reporting it, so a recording can be decoded while it is still
// being transferred from the DVR.
package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ausocean/utils/logging"
)

// File is an input source for a recording file.
type File struct {
	f         *os.File
	path      string
	follow    bool
	watcher   *fsnotify.Watcher
	isRunning bool
	log       logging.Logger
	mu        sync.Mutex
}

// New returns a new File for the recording at path. With follow set, end
// of file waits for the producer instead of ending the stream.
func New(l logging.Logger, path string, follow bool) *File {
	return &File{log: l, path: path, follow: follow}
}

// Name returns the name of the device.
func (m *File) Name() string {
	return "File"
}

// IsRunning reports whether the source is open for reading.
func (m *File) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRunning
}

// Start opens the recording, and in follow mode begins watching it for
// further writes.
func (m *File) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	m.f, err = os.Open(m.path)
	if err != nil {
		return fmt.Errorf("could not open recording file: %w", err)
	}
	if m.follow {
		m.watcher, err = fsnotify.NewWatcher()
		if err != nil {
			m.f.Close()
			return fmt.Errorf("could not create file watcher: %w", err)
		}
		err = m.watcher.Add(m.path)
		if err != nil {
			m.watcher.Close()
			m.f.Close()
			return fmt.Errorf("could not watch recording file: %w", err)
		}
	}
	m.isRunning = true
	return nil
}

// Stop closes the file such that any further reads will fail.
func (m *File) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher != nil {
		m.watcher.Close()
		m.watcher = nil
	}
	err := m.f.Close()
	if err == nil {
		m.isRunning = false
		return nil
	}
	return err
}

// Read implements io.Reader. If Start has not been called, or Start has
// been called and Stop has since been called, an error is returned. In
// follow mode a read at end of file blocks until the file grows or goes
// away.
func (m *File) Read(p []byte) (int, error) {
	m.mu.Lock()
	f, w := m.f, m.watcher
	m.mu.Unlock()
	if f == nil {
		return 0, errors.New("recording file is closed, File not started")
	}

	for {
		n, err := f.Read(p)
		if n > 0 || err == nil {
			return n, nil
		}
		if err != io.EOF || w == nil {
			return n, err
		}

		// At end of file with follow on; wait for the producer.
		ev, ok := <-w.Events
		if !ok {
			return 0, io.EOF
		}
		if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			m.log.Info("followed recording file went away", "path", m.path)
			return 0, io.EOF
		}
		// The file grew or was touched; try again.
	}
}

/*
DESCRIPTION
  file_test.go tests the file input source.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package file

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ausocean/utils/logging"
)

func TestIsRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recording.TiVo")
	err := os.WriteFile(path, []byte("TiVo"), 0o644)
	if err != nil {
		t.Fatalf("could not write test file: %v", err)
	}

	d := New((*logging.TestLogger)(t), path, false)

	err = d.Start()
	if err != nil {
		t.Fatalf("could not start device %v", err)
	}
	if !d.IsRunning() {
		t.Error("device isn't running, when it should be")
	}

	err = d.Stop()
	if err != nil {
		t.Error(err.Error())
	}
	if d.IsRunning() {
		t.Error("device is running, when it should not be")
	}
}

func TestRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recording.TiVo")
	want := []byte("TiVo recording bytes")
	err := os.WriteFile(path, want, 0o644)
	if err != nil {
		t.Fatalf("could not write test file: %v", err)
	}

	d := New((*logging.TestLogger)(t), path, false)
	err = d.Start()
	if err != nil {
		t.Fatalf("could not start device: %v", err)
	}
	defer d.Stop()

	got, err := io.ReadAll(d)
	if err != nil {
		t.Fatalf("could not read device: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("did not get expected bytes: got: %q, want: %q", got, want)
	}
}

// TestFollow checks that a follow-mode read at end of file completes once
// the file grows.
func TestFollow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recording.TiVo")
	err := os.WriteFile(path, []byte("head"), 0o644)
	if err != nil {
		t.Fatalf("could not write test file: %v", err)
	}

	d := New((*logging.TestLogger)(t), path, true)
	err = d.Start()
	if err != nil {
		t.Fatalf("could not start device: %v", err)
	}
	defer d.Stop()

	buf := make([]byte, 4)
	_, err = io.ReadFull(d, buf)
	if err != nil {
		t.Fatalf("could not read head: %v", err)
	}

	done := make(chan []byte)
	go func() {
		b := make([]byte, 4)
		_, err := io.ReadFull(d, b)
		if err != nil {
			t.Errorf("could not read tail: %v", err)
		}
		done <- b
	}()

	select {
	case <-done:
		t.Fatal("read completed before the file grew")
	case <-time.After(50 * time.Millisecond):
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("could not reopen test file: %v", err)
	}
	f.Write([]byte("tail"))
	f.Close()

	select {
	case b := <-done:
		if !bytes.Equal(b, []byte("tail")) {
			t.Errorf("did not get expected bytes: got: %q", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("follow read did not complete after file growth")
	}
}

/*
NAME
  prefetch_test.go - tests for the read-ahead buffer.

DESCRIPTION
  See Readme.md

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package prefetch

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/ausocean/utils/logging"
)

// TestReadAll pushes a payload larger than the initial buffer through the
// reader and checks it arrives intact.
func TestReadAll(t *testing.T) {
	want := make([]byte, 3*initBuffer+17)
	for i := range want {
		want[i] = byte(i * 31)
	}

	p := NewReader(bytes.NewReader(want), (*logging.TestLogger)(t))
	defer p.Close()

	got, err := io.ReadAll(p)
	if err != nil {
		t.Fatalf("could not read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("prefetched bytes do not match source")
	}
}

// TestBlockingRead checks that a read blocks until the producer supplies
// data, then completes.
func TestBlockingRead(t *testing.T) {
	pr, pw := io.Pipe()
	p := NewReader(pr, (*logging.TestLogger)(t))
	defer p.Close()

	done := make(chan []byte)
	go func() {
		b := make([]byte, 4)
		_, err := io.ReadFull(p, b)
		if err != nil {
			t.Errorf("could not read: %v", err)
		}
		done <- b
	}()

	select {
	case <-done:
		t.Fatal("read completed before any data was written")
	case <-time.After(50 * time.Millisecond):
	}

	pw.Write([]byte("abcd"))
	select {
	case b := <-done:
		if !bytes.Equal(b, []byte("abcd")) {
			t.Errorf("did not get expected bytes: got: %q", b)
		}
	case <-time.After(time.Second):
		t.Fatal("read did not complete after write")
	}
	pw.Close()
}

// TestEOF checks that source end is surfaced once the buffer drains.
func TestEOF(t *testing.T) {
	p := NewReader(bytes.NewReader([]byte("xyz")), (*logging.TestLogger)(t))
	defer p.Close()

	got, err := io.ReadAll(p)
	if err != nil {
		t.Fatalf("could not read: %v", err)
	}
	if string(got) != "xyz" {
		t.Errorf("did not get expected bytes: got: %q", got)
	}
	n, err := p.Read(make([]byte, 1))
	if n != 0 || err != io.EOF {
		t.Errorf("did not get EOF after drain: got: %d, %v", n, err)
	}
}
